package intake

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_intake_bot/internal/domain"
	"tg_intake_bot/internal/logging"
	"tg_intake_bot/internal/store"
)

const (
	msgSubmitted    = "🏷 Спасибо. Ваше обращение <code>#%d</code> зарегистрировано. Мы свяжемся с Вами."
	msgSubmitFailed = "🛸 Что-то пошло не так... Попробуйте снова."

	// summaryHeader is the fixed wording the reply router matches ticket
	// numbers against; the two must stay in sync.
	summaryHeader = "📟 Зарегистрировано новое обращение <code>#%d</code>."
)

// Dispatcher forwards a confirmed intake session to the staff chat and
// persists the resulting ticket.
type Dispatcher struct {
	tickets     *store.TicketStore
	counter     *store.Counter
	staffChatID int64
	logger      *logrus.Entry

	now func() time.Time
}

// NewDispatcher constructs a Dispatcher targeting the given staff chat.
func NewDispatcher(tickets *store.TicketStore, counter *store.Counter, staffChatID int64, logger *logrus.Entry) *Dispatcher {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Dispatcher{
		tickets:     tickets,
		counter:     counter,
		staffChatID: staffChatID,
		logger:      logger,
		now:         time.Now,
	}
}

// Submit assigns the next sequence number (exactly once, persisted before any
// dispatch), appends the ticket to the store, and forwards the summary and
// attachment batches to the staff chat. Failures never propagate: the user
// gets a generic failure notice with a new-request button instead.
func (d *Dispatcher) Submit(ctx context.Context, api Sender, from models.User, session *Session, previewChatID int64, previewMessageID int) {
	number := d.counter.Next()

	files, kinds := domain.SplitAttachments(session.Attachments)
	ticket := domain.Ticket{
		Timestamp: d.now(),
		Number:    number,
		User:      domain.DisplayName(from.Username, from.FirstName, from.LastName),
		UserID:    from.ID,
		Address:   session.Address,
		Text:      session.Text,
		Phone:     session.Phone,
		Files:     files,
		FileTypes: kinds,
		Status:    domain.StatusOpen,
	}

	if err := d.deliver(ctx, api, ticket, session.Attachments); err != nil {
		d.logger.WithFields(logging.Fields{
			"event":   "ticket_submit_error",
			"ticket":  number,
			"user_id": from.ID,
		}).WithError(err).Error("failed to submit ticket")

		d.stripPreviewButtons(ctx, api, previewChatID, previewMessageID)
		d.notify(ctx, api, &bot.SendMessageParams{
			ChatID:      previewChatID,
			Text:        msgSubmitFailed,
			ReplyMarkup: newRequestKeyboard(),
		})
		return
	}

	d.logger.WithFields(logging.Fields{
		"event":   "ticket_submitted",
		"ticket":  number,
		"user_id": from.ID,
	}).Info("ticket forwarded to the staff chat")

	d.stripPreviewButtons(ctx, api, previewChatID, previewMessageID)
	d.notify(ctx, api, &bot.SendMessageParams{
		ChatID:      previewChatID,
		Text:        fmt.Sprintf(msgSubmitted, number),
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: newRequestKeyboard(),
	})
}

// deliver persists the ticket and sends the summary plus per-kind media
// batches. The store append happens before any Telegram call so a delivery
// failure never loses a confirmed ticket.
func (d *Dispatcher) deliver(ctx context.Context, api Sender, ticket domain.Ticket, attachments []domain.Attachment) error {
	if err := d.tickets.Append(ticket); err != nil {
		return err
	}

	summary := fmt.Sprintf(
		summaryHeader+"\n\nОбъект: <b>%s</b>.\nКонтактные данные отправителя: %s (%s).\n\n%s",
		ticket.Number, ticket.Address, ticket.Phone, mention(ticket.UserID, ticket.User), ticket.Text,
	)

	if _, err := api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    d.staffChatID,
		Text:      summary,
		ParseMode: models.ParseModeHTML,
	}); err != nil {
		return fmt.Errorf("send ticket summary: %w", err)
	}

	// One batch per media kind; Telegram rejects resending mixed-type groups.
	var docs, photos []models.InputMedia
	for _, a := range attachments {
		switch a.Kind {
		case domain.KindDocument:
			docs = append(docs, &models.InputMediaDocument{Media: a.FileID})
		case domain.KindPhoto:
			photos = append(photos, &models.InputMediaPhoto{Media: a.FileID})
		}
	}

	if len(docs) > 0 {
		if _, err := api.SendMediaGroup(ctx, &bot.SendMediaGroupParams{
			ChatID: d.staffChatID,
			Media:  docs,
		}); err != nil {
			return fmt.Errorf("send document batch: %w", err)
		}
	}

	if len(photos) > 0 {
		if _, err := api.SendMediaGroup(ctx, &bot.SendMediaGroupParams{
			ChatID: d.staffChatID,
			Media:  photos,
		}); err != nil {
			return fmt.Errorf("send photo batch: %w", err)
		}
	}

	return nil
}

func (d *Dispatcher) stripPreviewButtons(ctx context.Context, api Sender, chatID int64, messageID int) {
	if messageID == 0 {
		return
	}

	if _, err := api.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
		ChatID:    chatID,
		MessageID: messageID,
	}); err != nil {
		d.logger.WithField("event", "intake_markup_strip_failed").WithError(err).Debug("failed to remove preview buttons")
	}
}

func (d *Dispatcher) notify(ctx context.Context, api Sender, params *bot.SendMessageParams) {
	if _, err := api.SendMessage(ctx, params); err != nil {
		d.logger.WithFields(logging.Fields{
			"event":   "intake_send_error",
			"chat_id": params.ChatID,
		}).WithError(err).Error("failed to send message")
	}
}

func mention(userID int64, name string) string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, userID, html.EscapeString(name))
}
