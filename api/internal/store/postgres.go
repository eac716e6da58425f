package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresStore keeps the last result in a one-row table. The payload column
// is json (not jsonb) so the stored indentation survives.
type PostgresStore struct{ DB *sql.DB }

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{DB: db} }

const lastResultSlot = 1

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const q = `
create table if not exists last_result (
  slot       smallint primary key,
  payload    json not null,
  updated_at timestamptz not null default now()
)`
	_, err := s.DB.ExecContext(ctx, q)
	return err
}

func (s *PostgresStore) Save(ctx context.Context, doc []byte) error {
	const q = `
insert into last_result (slot, payload, updated_at)
values ($1, $2, now())
on conflict (slot) do update
set payload = excluded.payload,
    updated_at = excluded.updated_at`
	_, err := s.DB.ExecContext(ctx, q, lastResultSlot, string(doc))
	return err
}

func (s *PostgresStore) Load(ctx context.Context) ([]byte, error) {
	doc, _, err := s.LoadWithTime(ctx)
	return doc, err
}

// LoadWithTime also returns when the result was written.
func (s *PostgresStore) LoadWithTime(ctx context.Context) ([]byte, time.Time, error) {
	const q = `select payload, updated_at from last_result where slot = $1`
	var (
		payload string
		ts      time.Time
	)
	err := s.DB.QueryRowContext(ctx, q, lastResultSlot).Scan(&payload, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrEmpty
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	return []byte(payload), ts, nil
}
