package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"label-reader/api/internal/apperr"
	"label-reader/api/internal/label"
	"label-reader/api/internal/store"
)

type fakeBot struct {
	sent    []string
	fileURL string
	files   []string
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, m.Text)
	}
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) GetFileDirectURL(fileID string) (string, error) {
	b.files = append(b.files, fileID)
	return b.fileURL + "/" + fileID, nil
}

type fakeRunner struct {
	out     label.Outcome
	err     error
	last    json.RawMessage
	lastErr error
	gotImg  []byte
	gotLLM  string
}

func (f *fakeRunner) Run(_ context.Context, img []byte, llmName string) (label.Outcome, error) {
	f.gotImg, f.gotLLM = img, llmName
	return f.out, f.err
}

func (f *fakeRunner) Last(context.Context) (json.RawMessage, error) { return f.last, f.lastErr }

func command(text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 42},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}}
}

func newRouter(t *testing.T, fr *fakeRunner) (*Router, *fakeBot) {
	t.Helper()
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("img:" + strings.TrimPrefix(r.URL.Path, "/")))
	}))
	t.Cleanup(files.Close)
	bot := &fakeBot{fileURL: files.URL}
	return &Router{Bot: bot, Pipeline: fr, LLMName: "gemini", Timeout: time.Minute, Log: zap.NewNop()}, bot
}

func TestPhotoRunsPipelineOnLargestSize(t *testing.T) {
	fr := &fakeRunner{out: label.Outcome{Record: &label.LabelRecord{
		Ingredients: []label.Ingredient{{Name: "Leite integral", Safe: true}},
	}}}
	r, bot := newRouter(t, fr)

	r.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:  &tgbotapi.Chat{ID: 42},
		Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}},
	}})

	if string(fr.gotImg) != "img:large" || fr.gotLLM != "gemini" {
		t.Fatalf("runner got %q / %q", fr.gotImg, fr.gotLLM)
	}
	if len(bot.sent) != 2 || !strings.Contains(bot.sent[1], "\"Leite integral\"") {
		t.Fatalf("unexpected replies: %q", bot.sent)
	}
}

func TestImageDocumentAccepted(t *testing.T) {
	fr := &fakeRunner{out: label.Outcome{Failure: label.NewRecoveryFailure("hello")}}
	r, bot := newRouter(t, fr)

	r.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 42},
		Document: &tgbotapi.Document{FileID: "doc", MimeType: "image/png"},
	}})

	if string(fr.gotImg) != "img:doc" {
		t.Fatalf("runner got %q", fr.gotImg)
	}
	last := bot.sent[len(bot.sent)-1]
	if !strings.Contains(last, label.RecoveryFailureMessage) || !strings.Contains(last, "hello") {
		t.Fatalf("reply = %q", last)
	}
}

func TestNonImageIgnored(t *testing.T) {
	fr := &fakeRunner{}
	r, bot := newRouter(t, fr)
	r.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 42},
		Document: &tgbotapi.Document{FileID: "doc", MimeType: "application/pdf"},
	}})
	if fr.gotImg != nil || len(bot.files) != 0 || len(bot.sent) != 1 {
		t.Fatalf("pdf must not be processed: files=%v sent=%q", bot.files, bot.sent)
	}
}

func TestPipelineErrorReported(t *testing.T) {
	fr := &fakeRunner{err: apperr.ModelService("gemini", errors.New("quota"))}
	r, bot := newRouter(t, fr)
	r.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:  &tgbotapi.Chat{ID: 42},
		Photo: []tgbotapi.PhotoSize{{FileID: "p"}},
	}})
	last := bot.sent[len(bot.sent)-1]
	if !strings.HasPrefix(last, "Erro:") || !strings.Contains(last, "quota") {
		t.Fatalf("reply = %q", last)
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		runner *fakeRunner
		health func(context.Context) error
		want   string
	}{
		{name: "start", text: "/start", runner: &fakeRunner{}, want: "/last"},
		{name: "last empty", text: "/last", runner: &fakeRunner{lastErr: store.ErrEmpty}, want: "Nenhum resultado gerado ainda."},
		{name: "last stored", text: "/last", runner: &fakeRunner{last: json.RawMessage(`{"brand": "Boa"}`)}, want: `"Boa"`},
		{name: "last failure", text: "/last", runner: &fakeRunner{lastErr: apperr.Storage(errors.New("corrupt"))}, want: "corrupt"},
		{name: "health ok", text: "/health", runner: &fakeRunner{}, want: "OK"},
		{name: "health down", text: "/health", runner: &fakeRunner{}, health: func(context.Context) error { return errors.New("conn refused") }, want: "conn refused"},
		{name: "unknown", text: "/engine", runner: &fakeRunner{}, want: "desconhecido"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, bot := newRouter(t, tt.runner)
			r.Health = tt.health
			r.HandleUpdate(context.Background(), command(tt.text))
			if len(bot.sent) != 1 || !strings.Contains(bot.sent[0], tt.want) {
				t.Fatalf("replies = %q, want one containing %q", bot.sent, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	short := "Valor energético"
	if truncate(short) != short {
		t.Fatalf("short text changed")
	}
	long := strings.Repeat("é", maxReplyRunes+10)
	got := truncate(long)
	if !utf8.ValidString(got) || utf8.RuneCountInString(got) != maxReplyRunes+1 || !strings.HasSuffix(got, "…") {
		t.Fatalf("bad truncation: %d runes", utf8.RuneCountInString(got))
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestRetryDelayFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want time.Duration
	}{
		{"nil", nil, 0},
		{"429 with retry after", errors.New("Too Many Requests: retry after 7"), 7 * time.Second},
		{"429 bare", errors.New("too many requests"), 3 * time.Second},
		{"timeout", timeoutErr{}, 2 * time.Second},
		{"other", errors.New("boom"), time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryDelayFromError(tt.err); got != tt.want {
				t.Fatalf("retryDelayFromError() = %v, want %v", got, tt.want)
			}
		})
	}
}

type scriptedUpdater struct {
	calls   int
	offsets []int
	cancel  context.CancelFunc
}

func (s *scriptedUpdater) GetUpdates(cfg tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	s.calls++
	s.offsets = append(s.offsets, cfg.Offset)
	switch s.calls {
	case 1:
		return []tgbotapi.Update{{UpdateID: 10}, {UpdateID: 11}}, nil
	default:
		s.cancel()
		return []tgbotapi.Update{{UpdateID: 12}}, nil
	}
}

func TestRunPollingAdvancesOffset(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	up := &scriptedUpdater{cancel: cancel}

	var seen []int
	RunPolling(ctx, up, zap.NewNop(), func(u tgbotapi.Update) { seen = append(seen, u.UpdateID) })

	if len(seen) != 3 || seen[2] != 12 {
		t.Fatalf("seen = %v", seen)
	}
	if up.offsets[0] != 0 || up.offsets[1] != 12 {
		t.Fatalf("offsets = %v", up.offsets)
	}
}
