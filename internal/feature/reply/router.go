// Package reply relays staff answers, written as replies to forwarded tickets
// in the staff chat, back to the original submitter.
package reply

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_intake_bot/internal/logging"
)

// ticketNumberPattern matches the header of a forwarded ticket summary.
var ticketNumberPattern = regexp.MustCompile(`Зарегистрировано новое обращение\s#(\d+)`)

var errUnsupportedContent = errors.New("unsupported reply content")

const (
	msgRecipientUnknown = "Не удалось определить получателя для Вашего ответа на обращение <code>#%d</code>. Используйте контактные данные автора обращения, чтобы связаться с ним."
	msgDelivered        = "Ваш ответ на обращение <code>#%d</code> доставлен автору."
	msgDeliveryFailed   = "Не удалось доставить Ваш ответ на обращение <code>#%d</code>. Используйте контактные данные автора обращения, чтобы связаться с ним."

	replyCaption = "Получен ответ на Ваше обращение <code>#%d</code>."
)

// Sender is the subset of the Telegram bot API the reply router talks to.
// *bot.Bot satisfies it; tests substitute a recording fake.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	SendAnimation(ctx context.Context, params *bot.SendAnimationParams) (*models.Message, error)
	SendVideo(ctx context.Context, params *bot.SendVideoParams) (*models.Message, error)
	SendAudio(ctx context.Context, params *bot.SendAudioParams) (*models.Message, error)
	SendVoice(ctx context.Context, params *bot.SendVoiceParams) (*models.Message, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)
}

// Finder resolves a ticket's submitter from the persisted store.
type Finder interface {
	FindUserID(number int64) (int64, bool)
}

// Router inspects staff replies to forwarded tickets and relays their content
// to the originating user.
type Router struct {
	tickets     Finder
	staffChatID int64
	logger      *logrus.Entry
}

// NewRouter constructs a Router for the given staff chat.
func NewRouter(tickets Finder, staffChatID int64, logger *logrus.Entry) *Router {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Router{
		tickets:     tickets,
		staffChatID: staffChatID,
		logger:      logger,
	}
}

// TicketNumber extracts the sequence number from a forwarded ticket summary.
// Unrelated text yields no number; not every staff reply targets a ticket.
func TicketNumber(text string) (int64, bool) {
	match := ticketNumberPattern.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}

	number, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, false
	}

	return number, true
}

// Handle processes one staff-chat message that replies to another message.
func (r *Router) Handle(ctx context.Context, api Sender, msg *models.Message) {
	if msg == nil || msg.ReplyToMessage == nil {
		return
	}

	replied := msg.ReplyToMessage.Text
	if replied == "" {
		replied = msg.ReplyToMessage.Caption
	}

	number, ok := TicketNumber(replied)
	if !ok {
		r.logger.WithField("event", "reply_no_ticket_number").Debug("replied-to message carries no ticket number")
		return
	}

	log := r.logger.WithFields(logging.Fields{
		"event":  "reply_relay",
		"ticket": number,
	})

	userID, ok := r.tickets.FindUserID(number)
	if !ok {
		log.Warn("could not resolve the ticket submitter")
		r.notifyStaff(ctx, api, fmt.Sprintf(msgRecipientUnknown, number))
		return
	}

	if err := r.relay(ctx, api, msg, number, userID); err != nil {
		if errors.Is(err, errUnsupportedContent) {
			log.Debug("unsupported reply content, ignoring")
			return
		}

		log.WithError(err).Error("failed to deliver the reply to the submitter")
		r.notifyStaff(ctx, api, fmt.Sprintf(msgDeliveryFailed, number))
		return
	}

	log.WithField("user_id", userID).Info("reply delivered to the submitter")
	r.notifyStaff(ctx, api, fmt.Sprintf(msgDelivered, number))
}

// relay forwards the reply's content to the submitter with a kind-specific
// icon caption. Unsupported content kinds report errUnsupportedContent.
func (r *Router) relay(ctx context.Context, api Sender, msg *models.Message, number, userID int64) error {
	caption := func(icon string) string {
		text := fmt.Sprintf("%s "+replyCaption, icon, number)
		if msg.Caption != "" {
			text += "\n\n" + msg.Caption
		}
		return text
	}

	switch {
	case msg.Text != "":
		_, err := api.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    userID,
			Text:      fmt.Sprintf("📟 "+replyCaption+"\n\n%s", number, msg.Text),
			ParseMode: models.ParseModeHTML,
		})
		return err
	case len(msg.Photo) > 0:
		// The second size variant trades resolution for delivery cost; kept
		// as deployed until the choice is revisited.
		photo := msg.Photo[0]
		if len(msg.Photo) > 1 {
			photo = msg.Photo[1]
		}
		_, err := api.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:    userID,
			Photo:     &models.InputFileString{Data: photo.FileID},
			Caption:   caption("📷"),
			ParseMode: models.ParseModeHTML,
		})
		return err
	case msg.Animation != nil:
		_, err := api.SendAnimation(ctx, &bot.SendAnimationParams{
			ChatID:    userID,
			Animation: &models.InputFileString{Data: msg.Animation.FileID},
			Caption:   caption("📼"),
			ParseMode: models.ParseModeHTML,
		})
		return err
	case msg.Video != nil:
		_, err := api.SendVideo(ctx, &bot.SendVideoParams{
			ChatID:    userID,
			Video:     &models.InputFileString{Data: msg.Video.FileID},
			Caption:   caption("📼"),
			ParseMode: models.ParseModeHTML,
		})
		return err
	case msg.Audio != nil:
		_, err := api.SendAudio(ctx, &bot.SendAudioParams{
			ChatID:    userID,
			Audio:     &models.InputFileString{Data: msg.Audio.FileID},
			Caption:   caption("📣"),
			ParseMode: models.ParseModeHTML,
		})
		return err
	case msg.Voice != nil:
		_, err := api.SendVoice(ctx, &bot.SendVoiceParams{
			ChatID:    userID,
			Voice:     &models.InputFileString{Data: msg.Voice.FileID},
			Caption:   caption("📣"),
			ParseMode: models.ParseModeHTML,
		})
		return err
	case msg.Document != nil:
		_, err := api.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID:    userID,
			Document:  &models.InputFileString{Data: msg.Document.FileID},
			Caption:   caption("📃"),
			ParseMode: models.ParseModeHTML,
		})
		return err
	default:
		return errUnsupportedContent
	}
}

// notifyStaff reports relay outcomes back to the staff chat best-effort: a
// failed notification is logged and never raised further.
func (r *Router) notifyStaff(ctx context.Context, api Sender, text string) {
	if _, err := api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    r.staffChatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}); err != nil {
		r.logger.WithField("event", "reply_notify_error").WithError(err).Error("failed to notify the staff chat")
	}
}
