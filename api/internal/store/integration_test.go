package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// These run only when a backend is provided, e.g.
// LABEL_TEST_DATABASE_URL=postgres://... LABEL_TEST_REDIS_URL=redis://... go test ./...

func TestPostgresStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("LABEL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("LABEL_TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := NewPostgresStore(db)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if _, err := db.ExecContext(ctx, `delete from last_result`); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := s.Load(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Load() err = %v, want ErrEmpty", err)
	}

	doc := "{\n  \"productName\": \"Leite\"\n}"
	if err := s.Save(ctx, []byte(doc)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(got) != doc {
		t.Fatalf("Load() = %q, want %q", got, doc)
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	url := os.Getenv("LABEL_TEST_REDIS_URL")
	if url == "" {
		t.Skip("LABEL_TEST_REDIS_URL not set")
	}
	s, err := NewRedisStoreFromURL(url, "label:test:last_result")
	if err != nil {
		t.Fatalf("NewRedisStoreFromURL() error = %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := s.Load(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Load() err = %v, want ErrEmpty", err)
	}
	if err := s.Save(ctx, []byte(`{"brand":"X"}`)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(got) != `{"brand":"X"}` {
		t.Fatalf("Load() = %s", got)
	}
}

func TestNewRedisStoreFromURLRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStoreFromURL("not a url", ""); err == nil {
		t.Fatalf("expected error")
	}
}
