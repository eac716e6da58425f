package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"label-reader/api/internal/label"
	"label-reader/api/internal/pipeline"
	"label-reader/api/internal/store"
	"label-reader/api/internal/util"
)

// Telegram rejects messages over 4096 characters; leave room for the header.
const maxReplyRunes = 3900

const maxDownloadBytes = 20 << 20

// Bot is the part of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Runner interface {
	Run(ctx context.Context, img []byte, llmName string) (label.Outcome, error)
	Last(ctx context.Context) (json.RawMessage, error)
}

type Router struct {
	Bot      Bot
	Pipeline Runner
	LLMName  string
	Timeout  time.Duration
	Health   func(ctx context.Context) error
	HTTP     *http.Client
	Log      *zap.Logger
}

func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	switch {
	case msg.IsCommand():
		r.HandleCommand(ctx, msg)
	case len(msg.Photo) > 0:
		// largest size is last
		r.acceptImage(ctx, msg.Chat.ID, msg.Photo[len(msg.Photo)-1].FileID)
	case msg.Document != nil && util.IsImageMIME(msg.Document.MimeType):
		r.acceptImage(ctx, msg.Chat.ID, msg.Document.FileID)
	default:
		r.send(msg.Chat.ID, "Envie uma foto do rótulo do alimento.")
	}
}

func (r *Router) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	switch msg.Command() {
	case "start":
		r.send(cid, "Envie a foto de um rótulo de alimento e eu devolvo os ingredientes e a tabela nutricional em JSON.\nComandos: /last, /health")
	case "last":
		doc, err := r.Pipeline.Last(ctx)
		if errors.Is(err, store.ErrEmpty) {
			r.send(cid, "Nenhum resultado gerado ainda.")
			return
		}
		if err != nil {
			r.sendError(cid, err)
			return
		}
		r.send(cid, truncate(string(doc)))
	case "health":
		if r.Health != nil {
			hctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := r.Health(hctx); err != nil {
				r.send(cid, "❌ armazenamento indisponível: "+err.Error())
				return
			}
		}
		r.send(cid, "✅ OK")
	default:
		r.send(cid, "Comando desconhecido")
	}
}

func (r *Router) acceptImage(ctx context.Context, cid int64, fileID string) {
	r.send(cid, "Foto recebida, processando…")

	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		r.sendError(cid, err)
		return
	}
	img, err := r.download(ctx, url)
	if err != nil {
		r.sendError(cid, err)
		return
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	out, err := r.Pipeline.Run(ctx, img, r.LLMName)
	if err != nil {
		r.sendError(cid, err)
		return
	}
	text, err := formatOutcome(out)
	if err != nil {
		r.sendError(cid, err)
		return
	}
	r.send(cid, text)
}

func (r *Router) download(ctx context.Context, url string) ([]byte, error) {
	hc := r.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
}

func (r *Router) send(chatID int64, text string) {
	if _, err := r.Bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil && r.Log != nil {
		r.Log.Warn("telegram send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (r *Router) sendError(chatID int64, err error) {
	if r.Log != nil {
		r.Log.Error("label processing failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	r.send(chatID, "Erro: "+err.Error())
}

func formatOutcome(out label.Outcome) (string, error) {
	doc, err := pipeline.MarshalDocument(out)
	if err != nil {
		return "", err
	}
	return truncate(string(doc)), nil
}

// truncate cuts on a rune boundary.
func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxReplyRunes {
		return s
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == maxReplyRunes {
			break
		}
		b.WriteRune(r)
		n++
	}
	b.WriteString("…")
	return b.String()
}
