package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"label-reader/api/internal/app"
	"label-reader/api/internal/config"
	"label-reader/api/internal/handle"
	"label-reader/api/internal/httpserver"
	"label-reader/api/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Must("production").Fatal("config", zap.Error(err))
	}
	log := logger.Must(cfg.AppEnv)
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup", zap.Error(err))
	}
	defer a.Close()

	h := handle.New(a.Pipeline, log,
		handle.WithErrorStatus(cfg.HTTPErrorStatus),
		handle.WithTimeout(cfg.RequestTimeout),
	)

	log.Info("label-api starting",
		zap.String("llm_default", cfg.LLMDefault),
		zap.String("store", cfg.StoreBackend),
		zap.String("ocr_language", cfg.OCRLanguage))
	if err := httpserver.Start(ctx, ":"+cfg.Port, httpserver.NewMux(h, "ok"), log); err != nil {
		log.Fatal("http server", zap.Error(err))
	}
}
