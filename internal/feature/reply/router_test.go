package reply

import (
	"context"
	"strings"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

const (
	testStaffChat = int64(-100500)
	testUserID    = int64(555)
)

type stubFinder struct {
	userID int64
	found  bool
}

func (s stubFinder) FindUserID(int64) (int64, bool) {
	return s.userID, s.found
}

// fakeRelaySender records every outbound call; sends to failChatID fail.
type fakeRelaySender struct {
	messages   []*bot.SendMessageParams
	photos     []*bot.SendPhotoParams
	animations []*bot.SendAnimationParams
	videos     []*bot.SendVideoParams
	audios     []*bot.SendAudioParams
	voices     []*bot.SendVoiceParams
	documents  []*bot.SendDocumentParams

	failChatID int64
}

func (f *fakeRelaySender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	if f.failChatID != 0 && params.ChatID == any(f.failChatID) {
		return nil, errDelivery
	}

	f.messages = append(f.messages, params)
	return &models.Message{}, nil
}

func (f *fakeRelaySender) SendPhoto(_ context.Context, params *bot.SendPhotoParams) (*models.Message, error) {
	if f.failChatID != 0 && params.ChatID == any(f.failChatID) {
		return nil, errDelivery
	}

	f.photos = append(f.photos, params)
	return &models.Message{}, nil
}

func (f *fakeRelaySender) SendAnimation(_ context.Context, params *bot.SendAnimationParams) (*models.Message, error) {
	f.animations = append(f.animations, params)
	return &models.Message{}, nil
}

func (f *fakeRelaySender) SendVideo(_ context.Context, params *bot.SendVideoParams) (*models.Message, error) {
	f.videos = append(f.videos, params)
	return &models.Message{}, nil
}

func (f *fakeRelaySender) SendAudio(_ context.Context, params *bot.SendAudioParams) (*models.Message, error) {
	f.audios = append(f.audios, params)
	return &models.Message{}, nil
}

func (f *fakeRelaySender) SendVoice(_ context.Context, params *bot.SendVoiceParams) (*models.Message, error) {
	f.voices = append(f.voices, params)
	return &models.Message{}, nil
}

func (f *fakeRelaySender) SendDocument(_ context.Context, params *bot.SendDocumentParams) (*models.Message, error) {
	f.documents = append(f.documents, params)
	return &models.Message{}, nil
}

var errDelivery = errTest("recipient blocked the bot")

type errTest string

func (e errTest) Error() string { return string(e) }

func newTestRouter(finder Finder) *Router {
	logger, _ := logtest.NewNullLogger()
	return NewRouter(finder, testStaffChat, logrus.NewEntry(logger))
}

func staffReply(repliedText string) *models.Message {
	return &models.Message{
		From: &models.User{ID: 42},
		Chat: models.Chat{ID: testStaffChat},
		ReplyToMessage: &models.Message{
			Text: repliedText,
		},
	}
}

func TestTicketNumber(t *testing.T) {
	number, ok := TicketNumber("Зарегистрировано новое обращение #42")
	if !ok || number != 42 {
		t.Fatalf("expected 42, got %d (found=%v)", number, ok)
	}

	number, ok = TicketNumber("📟 Зарегистрировано новое обращение #7.\n\nОбъект: Полтавская улица, 5.")
	if !ok || number != 7 {
		t.Fatalf("expected 7 from a full summary, got %d (found=%v)", number, ok)
	}

	if _, ok := TicketNumber("совершенно другой текст"); ok {
		t.Fatalf("expected no number from unrelated text")
	}

	if _, ok := TicketNumber(""); ok {
		t.Fatalf("expected no number from empty text")
	}
}

func TestHandleRelaysTextReply(t *testing.T) {
	router := newTestRouter(stubFinder{userID: testUserID, found: true})
	api := &fakeRelaySender{}

	msg := staffReply("📟 Зарегистрировано новое обращение #7.")
	msg.Text = "Мастер придёт завтра."

	router.Handle(context.Background(), api, msg)

	if len(api.messages) != 2 {
		t.Fatalf("expected the relay plus a staff confirmation, got %d messages", len(api.messages))
	}

	relayed := api.messages[0]
	if relayed.ChatID != any(testUserID) {
		t.Fatalf("expected the relay to target the submitter, got %v", relayed.ChatID)
	}
	if !strings.Contains(relayed.Text, "#7") || !strings.Contains(relayed.Text, "Мастер придёт завтра.") {
		t.Fatalf("unexpected relay text: %q", relayed.Text)
	}

	confirmation := api.messages[1]
	if confirmation.ChatID != any(testStaffChat) || !strings.Contains(confirmation.Text, "доставлен автору") {
		t.Fatalf("expected a delivery confirmation in the staff chat, got %+v", confirmation)
	}
}

func TestHandleIgnoresRepliesWithoutTicketNumber(t *testing.T) {
	router := newTestRouter(stubFinder{userID: testUserID, found: true})
	api := &fakeRelaySender{}

	msg := staffReply("просто обсуждение в чате")
	msg.Text = "ответ не на обращение"

	router.Handle(context.Background(), api, msg)

	if len(api.messages) != 0 {
		t.Fatalf("expected no sends for a non-ticket reply, got %d", len(api.messages))
	}
}

func TestHandleNotifiesWhenRecipientUnknown(t *testing.T) {
	router := newTestRouter(stubFinder{found: false})
	api := &fakeRelaySender{}

	msg := staffReply("📟 Зарегистрировано новое обращение #9.")
	msg.Text = "ответ"

	router.Handle(context.Background(), api, msg)

	if len(api.messages) != 1 {
		t.Fatalf("expected exactly one staff notification, got %d", len(api.messages))
	}

	notice := api.messages[0]
	if notice.ChatID != any(testStaffChat) || !strings.Contains(notice.Text, "Не удалось определить получателя") {
		t.Fatalf("expected a recipient-unknown notice, got %+v", notice)
	}
}

func TestHandleRelaysPhotoSecondVariant(t *testing.T) {
	router := newTestRouter(stubFinder{userID: testUserID, found: true})
	api := &fakeRelaySender{}

	msg := staffReply("📟 Зарегистрировано новое обращение #3.")
	msg.Photo = []models.PhotoSize{
		{FileID: "size-s"},
		{FileID: "size-m"},
		{FileID: "size-l"},
	}
	msg.Caption = "вот фото"

	router.Handle(context.Background(), api, msg)

	if len(api.photos) != 1 {
		t.Fatalf("expected one photo relay, got %d", len(api.photos))
	}

	photo := api.photos[0]
	file, ok := photo.Photo.(*models.InputFileString)
	if !ok || file.Data != "size-m" {
		t.Fatalf("expected the second size variant, got %+v", photo.Photo)
	}
	if !strings.Contains(photo.Caption, "#3") || !strings.Contains(photo.Caption, "вот фото") {
		t.Fatalf("unexpected photo caption: %q", photo.Caption)
	}
}

func TestHandleRelaysSingleSizePhoto(t *testing.T) {
	router := newTestRouter(stubFinder{userID: testUserID, found: true})
	api := &fakeRelaySender{}

	msg := staffReply("📟 Зарегистрировано новое обращение #3.")
	msg.Photo = []models.PhotoSize{{FileID: "only-size"}}

	router.Handle(context.Background(), api, msg)

	if len(api.photos) != 1 {
		t.Fatalf("expected one photo relay, got %d", len(api.photos))
	}

	file, ok := api.photos[0].Photo.(*models.InputFileString)
	if !ok || file.Data != "only-size" {
		t.Fatalf("expected the only available size, got %+v", api.photos[0].Photo)
	}
}

func TestHandleRelaysDocument(t *testing.T) {
	router := newTestRouter(stubFinder{userID: testUserID, found: true})
	api := &fakeRelaySender{}

	msg := staffReply("📟 Зарегистрировано новое обращение #4.")
	msg.Document = &models.Document{FileID: "doc-file"}

	router.Handle(context.Background(), api, msg)

	if len(api.documents) != 1 {
		t.Fatalf("expected one document relay, got %d", len(api.documents))
	}

	if len(api.messages) != 1 || !strings.Contains(api.messages[0].Text, "доставлен автору") {
		t.Fatalf("expected a delivery confirmation, got %+v", api.messages)
	}
}

func TestHandleIgnoresUnsupportedContent(t *testing.T) {
	router := newTestRouter(stubFinder{userID: testUserID, found: true})
	api := &fakeRelaySender{}

	// A reply with none of the supported content kinds (e.g. a sticker).
	msg := staffReply("📟 Зарегистрировано новое обращение #5.")

	router.Handle(context.Background(), api, msg)

	if len(api.messages) != 0 {
		t.Fatalf("expected unsupported content to be ignored silently, got %d sends", len(api.messages))
	}
}

func TestHandleReportsDeliveryFailure(t *testing.T) {
	router := newTestRouter(stubFinder{userID: testUserID, found: true})
	api := &fakeRelaySender{failChatID: testUserID}

	msg := staffReply("📟 Зарегистрировано новое обращение #6.")
	msg.Text = "ответ"

	router.Handle(context.Background(), api, msg)

	if len(api.messages) != 1 {
		t.Fatalf("expected one staff notification, got %d", len(api.messages))
	}

	notice := api.messages[0]
	if notice.ChatID != any(testStaffChat) || !strings.Contains(notice.Text, "Не удалось доставить") {
		t.Fatalf("expected a delivery-failed notice, got %+v", notice)
	}
	if !strings.Contains(notice.Text, "контактные данные") {
		t.Fatalf("expected the notice to point at the contact phone, got %q", notice.Text)
	}
}
