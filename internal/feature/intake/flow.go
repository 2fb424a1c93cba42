package intake

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_intake_bot/internal/domain"
	"tg_intake_bot/internal/logging"
)

// Callback data values used by the intake inline keyboards.
const (
	CallbackAddressPrefix = "addr_"
	CallbackContinue      = "continue_phone"
	CallbackSend          = "send"
	CallbackCancel        = "cancel"
	CallbackNewRequest    = "new_request"
)

// User-facing prompts.
const (
	promptAddress    = "Выберите Ваш объект:"
	promptText       = "Введите текст обращения:"
	promptPhone      = "Введите Ваши контактные данные:"
	promptContinue   = "Опционально добавьте вложения и (или) нажмите <b>Продолжить</b>."
	msgCancelled     = "Обращение отменено."
	buttonContinue   = "Продолжить"
	buttonSend       = "Отправить"
	buttonCancel     = "Отмена"
	buttonNewRequest = "Новое обращение"
)

// Sender is the subset of the Telegram bot API the intake feature talks to.
// *bot.Bot satisfies it; tests substitute a recording fake.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	EditMessageReplyMarkup(ctx context.Context, params *bot.EditMessageReplyMarkupParams) (*models.Message, error)
	SendMediaGroup(ctx context.Context, params *bot.SendMediaGroupParams) ([]*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// Flow drives the linear intake conversation: address, request text, optional
// attachments, phone, confirmation.
type Flow struct {
	sessions   *Sessions
	dispatcher *Dispatcher
	logger     *logrus.Entry
}

// NewFlow constructs the conversation flow.
func NewFlow(sessions *Sessions, dispatcher *Dispatcher, logger *logrus.Entry) *Flow {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Flow{
		sessions:   sessions,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Sessions exposes the session registry (used by the cancel command handler
// and tests).
func (f *Flow) Sessions() *Sessions {
	return f.sessions
}

// HandleStart handles the /start command: any prior session is discarded and
// the address keyboard is shown.
func (f *Flow) HandleStart(ctx context.Context, api Sender, msg *models.Message) {
	if msg == nil || msg.From == nil {
		return
	}

	f.logger.WithFields(logging.Fields{
		"event":   "intake_start",
		"user_id": msg.From.ID,
	}).Info("received start command")

	f.sessions.Begin(msg.From.ID)

	f.notify(ctx, api, &bot.SendMessageParams{
		ChatID:      msg.Chat.ID,
		Text:        promptAddress,
		ReplyMarkup: addressKeyboard(),
	})
}

// HandleNewRequest handles the new-request button: it starts a fresh session
// with a new message so the previous conversation stays visible.
func (f *Flow) HandleNewRequest(ctx context.Context, api Sender, update *models.Update) {
	query := update.CallbackQuery
	if query == nil {
		return
	}
	f.answer(ctx, api, query)

	f.logger.WithFields(logging.Fields{
		"event":   "intake_new_request",
		"user_id": query.From.ID,
	}).Info("starting a new intake session")

	f.sessions.Begin(query.From.ID)

	chatID, _, ok := callbackMessage(query)
	if !ok {
		chatID = query.From.ID
	}

	f.notify(ctx, api, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        promptAddress,
		ReplyMarkup: addressKeyboard(),
	})
}

// HandleAddress handles an address button press during address selection.
func (f *Flow) HandleAddress(ctx context.Context, api Sender, update *models.Update) {
	query := update.CallbackQuery
	if query == nil {
		return
	}
	f.answer(ctx, api, query)

	session, ok := f.sessions.Get(query.From.ID)
	if !ok {
		f.logger.WithFields(logging.Fields{
			"event":   "intake_stale_callback",
			"user_id": query.From.ID,
			"data":    query.Data,
		}).Debug("address callback without a live session, ignoring")
		return
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.State != StateSelectAddress {
		f.logger.WithFields(logging.Fields{
			"event":   "intake_stale_callback",
			"user_id": query.From.ID,
			"data":    query.Data,
		}).Debug("address callback outside of address selection, ignoring")
		return
	}

	idx, err := strconv.Atoi(strings.TrimPrefix(query.Data, CallbackAddressPrefix))
	if err != nil {
		f.logger.WithField("data", query.Data).WithError(err).Warn("malformed address callback data")
		return
	}

	address, ok := domain.AddressByIndex(idx)
	if !ok {
		f.logger.WithFields(logging.Fields{
			"event":   "intake_bad_address_index",
			"user_id": query.From.ID,
			"index":   idx,
		}).Warn("address index out of range")
		return
	}

	session.Address = address
	session.State = StateInputText

	chatID, _, ok := callbackMessage(query)
	if !ok {
		chatID = query.From.ID
	}

	f.notify(ctx, api, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   fmt.Sprintf("Ваш объект: %s.", address),
	})
	f.notify(ctx, api, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   promptText,
	})
}

// HandleMessage dispatches a non-command private-chat message according to the
// session's current state. Messages with no live session are ignored.
func (f *Flow) HandleMessage(ctx context.Context, api Sender, msg *models.Message) {
	if msg == nil || msg.From == nil {
		return
	}

	session, ok := f.sessions.Get(msg.From.ID)
	if !ok {
		f.logger.WithFields(logging.Fields{
			"event":   "intake_no_session",
			"user_id": msg.From.ID,
		}).Debug("message without a live session, ignoring")
		return
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	switch session.State {
	case StateInputText:
		f.acceptText(ctx, api, msg, session)
	case StateUploadFiles:
		f.acceptAttachment(ctx, api, msg, session)
	case StateInputPhone:
		f.acceptPhone(ctx, api, msg, session)
	default:
		f.logger.WithFields(logging.Fields{
			"event":   "intake_unexpected_message",
			"user_id": msg.From.ID,
			"state":   int(session.State),
		}).Debug("message does not match the current step, ignoring")
	}
}

// HandleContinue handles the continue button press after the attachment step.
func (f *Flow) HandleContinue(ctx context.Context, api Sender, update *models.Update) {
	query := update.CallbackQuery
	if query == nil {
		return
	}
	f.answer(ctx, api, query)

	session, ok := f.sessions.Get(query.From.ID)
	if !ok {
		f.logger.WithFields(logging.Fields{
			"event":   "intake_stale_callback",
			"user_id": query.From.ID,
			"data":    query.Data,
		}).Debug("continue callback without a live session, ignoring")
		return
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.State != StateUploadFiles {
		f.logger.WithFields(logging.Fields{
			"event":   "intake_stale_callback",
			"user_id": query.From.ID,
			"data":    query.Data,
		}).Debug("continue callback outside of the attachment step, ignoring")
		return
	}

	chatID, messageID, ok := callbackMessage(query)
	if ok {
		// Best effort: the prompt keeps working even if the button survives.
		if _, err := api.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
			ChatID:    chatID,
			MessageID: messageID,
		}); err != nil {
			f.logger.WithField("event", "intake_markup_strip_failed").WithError(err).Debug("failed to remove continue button")
		}
	} else {
		chatID = query.From.ID
	}

	session.State = StateInputPhone

	f.notify(ctx, api, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   promptPhone,
	})
}

// HandleConfirmation handles the send/cancel buttons under the preview.
func (f *Flow) HandleConfirmation(ctx context.Context, api Sender, update *models.Update) {
	query := update.CallbackQuery
	if query == nil {
		return
	}
	f.answer(ctx, api, query)

	session, ok := f.sessions.Get(query.From.ID)
	if !ok {
		f.logger.WithFields(logging.Fields{
			"event":   "intake_stale_callback",
			"user_id": query.From.ID,
			"data":    query.Data,
		}).Debug("confirmation callback without a live session, ignoring")
		return
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.State != StateConfirmation {
		f.logger.WithFields(logging.Fields{
			"event":   "intake_stale_callback",
			"user_id": query.From.ID,
			"data":    query.Data,
		}).Debug("confirmation callback outside of the confirmation step, ignoring")
		return
	}

	chatID, messageID, hasMessage := callbackMessage(query)
	if !hasMessage {
		chatID = query.From.ID
	}

	if query.Data == CallbackCancel {
		// Cancel restarts from address selection in place of the preview.
		f.sessions.Begin(query.From.ID)

		if hasMessage {
			if _, err := api.EditMessageText(ctx, &bot.EditMessageTextParams{
				ChatID:      chatID,
				MessageID:   messageID,
				Text:        promptAddress,
				ReplyMarkup: addressKeyboard(),
			}); err != nil {
				f.logger.WithField("event", "intake_restart_edit_failed").WithError(err).Error("failed to edit preview into address prompt")
				f.notify(ctx, api, &bot.SendMessageParams{
					ChatID:      chatID,
					Text:        promptAddress,
					ReplyMarkup: addressKeyboard(),
				})
			}
		} else {
			f.notify(ctx, api, &bot.SendMessageParams{
				ChatID:      chatID,
				Text:        promptAddress,
				ReplyMarkup: addressKeyboard(),
			})
		}
		return
	}

	// Leave confirmation before dispatching so a duplicate send callback
	// waiting on the session lock cannot submit the same ticket again.
	session.State = StateCompleted

	f.dispatcher.Submit(ctx, api, query.From, session, chatID, messageID)
	f.sessions.Clear(query.From.ID)
}

// HandleCancelCommand handles the /cancel fallback from any state.
func (f *Flow) HandleCancelCommand(ctx context.Context, api Sender, msg *models.Message) {
	if msg == nil || msg.From == nil {
		return
	}

	f.sessions.Clear(msg.From.ID)

	f.logger.WithFields(logging.Fields{
		"event":   "intake_cancelled",
		"user_id": msg.From.ID,
	}).Info("intake conversation cancelled")

	f.notify(ctx, api, &bot.SendMessageParams{
		ChatID:      msg.Chat.ID,
		Text:        msgCancelled,
		ReplyMarkup: newRequestKeyboard(),
	})
}

func (f *Flow) acceptText(ctx context.Context, api Sender, msg *models.Message, session *Session) {
	text := msg.Text
	if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "/") {
		return
	}

	session.Text = text
	session.Attachments = nil
	session.ContinuePromptID = 0
	session.State = StateUploadFiles

	prompt, err := api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      msg.Chat.ID,
		Text:        promptContinue,
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: continueKeyboard(),
	})
	if err != nil {
		f.logger.WithField("event", "intake_send_error").WithError(err).Error("failed to send continue prompt")
		return
	}

	session.ContinuePromptID = prompt.ID
}

func (f *Flow) acceptAttachment(ctx context.Context, api Sender, msg *models.Message, session *Session) {
	switch {
	case msg.Document != nil:
		session.Attachments = append(session.Attachments, domain.Attachment{
			FileID: msg.Document.FileID,
			Kind:   domain.KindDocument,
		})
	case len(msg.Photo) > 0:
		// Telegram lists photo sizes smallest first; take the best quality.
		best := msg.Photo[len(msg.Photo)-1]
		session.Attachments = append(session.Attachments, domain.Attachment{
			FileID: best.FileID,
			Kind:   domain.KindPhoto,
		})
	default:
		return
	}

	f.refreshContinuePrompt(ctx, api, msg.Chat.ID, session)
}

// refreshContinuePrompt edits the continue prompt in place with the live
// attachment count; if the edit fails a replacement prompt is sent and the
// session tracks the new message id.
func (f *Flow) refreshContinuePrompt(ctx context.Context, api Sender, chatID int64, session *Session) {
	count := len(session.Attachments)
	text := fmt.Sprintf("%s\n\nДобавлено <b>%d</b> %s.", promptContinue, count, attachmentWord(count))

	if session.ContinuePromptID != 0 {
		_, err := api.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:      chatID,
			MessageID:   session.ContinuePromptID,
			Text:        text,
			ParseMode:   models.ParseModeHTML,
			ReplyMarkup: continueKeyboard(),
		})
		if err == nil {
			return
		}

		f.logger.WithField("event", "intake_prompt_edit_failed").WithError(err).Error("failed to update continue prompt, sending a new one")
	}

	prompt, err := api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: continueKeyboard(),
	})
	if err != nil {
		f.logger.WithField("event", "intake_send_error").WithError(err).Error("failed to send continue prompt")
		return
	}

	session.ContinuePromptID = prompt.ID
}

func (f *Flow) acceptPhone(ctx context.Context, api Sender, msg *models.Message, session *Session) {
	phone := msg.Text
	if strings.TrimSpace(phone) == "" || strings.HasPrefix(phone, "/") {
		return
	}

	session.Phone = phone
	session.State = StateConfirmation

	preview := fmt.Sprintf(
		"Ваш объект: <b>%s</b>.\nВаши контактные данные: %s.\n\nТекст обращения:\n%s\n\nКоличество вложений: <b>%d</b>.",
		session.Address, session.Phone, session.Text, len(session.Attachments),
	)

	f.notify(ctx, api, &bot.SendMessageParams{
		ChatID:    msg.Chat.ID,
		Text:      preview,
		ParseMode: models.ParseModeHTML,
		ReplyMarkup: &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{{
				{Text: buttonSend, CallbackData: CallbackSend},
				{Text: buttonCancel, CallbackData: CallbackCancel},
			}},
		},
	})
}

// notify sends a message best-effort: a failure is logged and never surfaced,
// so one rejected send cannot take down the handler.
func (f *Flow) notify(ctx context.Context, api Sender, params *bot.SendMessageParams) {
	if _, err := api.SendMessage(ctx, params); err != nil {
		f.logger.WithFields(logging.Fields{
			"event":   "intake_send_error",
			"chat_id": params.ChatID,
		}).WithError(err).Error("failed to send message")
	}
}

func (f *Flow) answer(ctx context.Context, api Sender, query *models.CallbackQuery) {
	if _, err := api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: query.ID,
	}); err != nil {
		f.logger.WithField("event", "intake_answer_error").WithError(err).Debug("failed to answer callback query")
	}
}

func addressKeyboard() *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(domain.Addresses))
	for i, addr := range domain.Addresses {
		rows = append(rows, []models.InlineKeyboardButton{{
			Text:         addr,
			CallbackData: fmt.Sprintf("%s%d", CallbackAddressPrefix, i),
		}})
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func continueKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{
			{Text: buttonContinue, CallbackData: CallbackContinue},
		}},
	}
}

func newRequestKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{
			{Text: buttonNewRequest, CallbackData: CallbackNewRequest},
		}},
	}
}

// callbackMessage resolves the chat and message id behind a callback query
// when the originating message is still accessible.
func callbackMessage(query *models.CallbackQuery) (chatID int64, messageID int, ok bool) {
	if query == nil {
		return 0, 0, false
	}

	if query.Message.Type == models.MaybeInaccessibleMessageTypeMessage && query.Message.Message != nil {
		return query.Message.Message.Chat.ID, query.Message.Message.ID, true
	}

	return 0, 0, false
}
