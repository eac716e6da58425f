package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"label-reader/api/internal/app"
	"label-reader/api/internal/config"
	"label-reader/api/internal/httpserver"
	"label-reader/api/internal/logger"
	"label-reader/api/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Must("production").Fatal("config", zap.Error(err))
	}
	log := logger.Must(cfg.AppEnv)
	defer func() { _ = log.Sync() }()

	if cfg.TelegramBotToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is empty")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup", zap.Error(err))
	}
	defer a.Close()

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Fatal("telegram", zap.Error(err))
	}
	bot.Debug = false
	log.Info("telegram authorized", zap.String("bot", bot.Self.UserName))

	r := &telegram.Router{
		Bot:      bot,
		Pipeline: a.Pipeline,
		LLMName:  cfg.LLMDefault,
		Timeout:  cfg.RequestTimeout,
		Health:   a.Health,
		Log:      log.Named("telegram"),
	}

	// health endpoint; polling does not need it but platforms probe it
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		hctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := a.Health(hctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("store: not ok\n" + err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	go func() {
		if err := httpserver.Start(ctx, "0.0.0.0:"+cfg.Port, mux, log); err != nil {
			log.Error("health server", zap.Error(err))
		}
	}()

	telegram.RunPolling(ctx, bot, log, func(upd tgbotapi.Update) {
		r.HandleUpdate(ctx, upd)
	})
}
