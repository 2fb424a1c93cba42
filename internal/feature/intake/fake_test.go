package intake

import (
	"context"
	"errors"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

var errSendRejected = errors.New("send rejected")

// fakeSender records every outbound call so tests can assert on the exact
// conversation the flow produces. Sends to failChatID fail when set. All
// methods are safe for concurrent use, matching the per-update goroutines of
// the real transport.
type fakeSender struct {
	mu sync.Mutex

	sent        []*bot.SendMessageParams
	edits       []*bot.EditMessageTextParams
	markupEdits []*bot.EditMessageReplyMarkupParams
	mediaGroups []*bot.SendMediaGroupParams
	answered    []string

	nextMessageID int

	failChatID  int64
	editTextErr error
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failChatID != 0 && params.ChatID == any(f.failChatID) {
		return nil, errSendRejected
	}

	f.sent = append(f.sent, params)
	f.nextMessageID++

	return &models.Message{ID: f.nextMessageID}, nil
}

func (f *fakeSender) EditMessageText(_ context.Context, params *bot.EditMessageTextParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.editTextErr != nil {
		return nil, f.editTextErr
	}

	f.edits = append(f.edits, params)
	return &models.Message{ID: params.MessageID}, nil
}

func (f *fakeSender) EditMessageReplyMarkup(_ context.Context, params *bot.EditMessageReplyMarkupParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.markupEdits = append(f.markupEdits, params)
	return &models.Message{ID: params.MessageID}, nil
}

func (f *fakeSender) SendMediaGroup(_ context.Context, params *bot.SendMediaGroupParams) ([]*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failChatID != 0 && params.ChatID == any(f.failChatID) {
		return nil, errSendRejected
	}

	f.mediaGroups = append(f.mediaGroups, params)
	return nil, nil
}

func (f *fakeSender) AnswerCallbackQuery(_ context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.answered = append(f.answered, params.CallbackQueryID)
	return true, nil
}

// lastSent returns the most recent SendMessage params, nil when none.
func (f *fakeSender) lastSent() *bot.SendMessageParams {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.sent) == 0 {
		return nil
	}

	return f.sent[len(f.sent)-1]
}
