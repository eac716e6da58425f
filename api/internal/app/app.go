// Package app wires configuration into a ready Pipeline. It is shared by the
// HTTP API, the Telegram bot and the CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"go.uber.org/zap"

	"label-reader/api/internal/config"
	"label-reader/api/internal/llm"
	"label-reader/api/internal/llm/gemini"
	"label-reader/api/internal/llm/openai"
	"label-reader/api/internal/pipeline"
	"label-reader/api/internal/preprocess"
	"label-reader/api/internal/store"
	"label-reader/api/internal/tesseract"
)

type App struct {
	Pipeline *pipeline.Pipeline
	Store    store.LastResult

	ping    func(ctx context.Context) error
	closers []func() error
}

// Build creates engines, the store backend and the pipeline from cfg.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{}

	st, err := a.openStore(ctx, cfg, log)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Store = st

	a.Pipeline = pipeline.New(pipeline.Deps{
		Preprocessor: preprocess.New(cfg.ContrastFactor),
		OCR: tesseract.New(tesseract.Config{
			Language:       cfg.OCRLanguage,
			TessdataPrefix: cfg.TessdataPrefix,
		}, log),
		Engines:     Engines(cfg),
		Store:       st,
		Temperature: cfg.LLMTemperature,
		Logger:      log,
	})
	return a, nil
}

// Engines registers only the engines that have a key, so an unconfigured one
// is reported by name instead of failing inside its client.
func Engines(cfg *config.Config) *llm.Engines {
	engs := &llm.Engines{Default: cfg.LLMDefault}
	if cfg.OpenAIAPIKey != "" {
		engs.OpenAI = openai.New(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.RequestTimeout,
		})
	}
	if cfg.GeminiAPIKey != "" {
		engs.Gemini = gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	}
	return engs
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.LastResult, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("sql.Open: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		// one row, a handful of writers
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(1 * time.Hour)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return nil, fmt.Errorf("db.Ping: %w", err)
		}
		log.Info("db connected", zap.String("dsn", SafeDSNSummary(cfg.DatabaseURL)))

		pg := store.NewPostgresStore(db)
		if err := pg.EnsureSchema(pingCtx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		a.ping = db.PingContext
		return pg, nil

	case config.BackendRedis:
		rs, err := store.NewRedisStoreFromURL(cfg.RedisURL, store.DefaultRedisKey)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rs.Close)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		log.Info("redis connected", zap.String("key", store.DefaultRedisKey))
		a.ping = rs.Ping
		return rs, nil

	default:
		log.Info("file store", zap.String("path", cfg.ResultPath))
		return store.NewFileStore(cfg.ResultPath), nil
	}
}

// Health checks the store backend; the file store is always healthy.
func (a *App) Health(ctx context.Context) error {
	if a.ping == nil {
		return nil
	}
	return a.ping(ctx)
}

func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// SafeDSNSummary renders a DSN for logs without the password.
func SafeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "dsn: parse error"
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}
