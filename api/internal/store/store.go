package store

import (
	"context"
	"errors"
)

// ErrEmpty is returned by Load when no result was saved yet.
var ErrEmpty = errors.New("no result saved yet")

// LastResult is a single-slot document store. Save replaces the whole
// document; concurrent writers resolve as last-writer-wins.
type LastResult interface {
	Save(ctx context.Context, doc []byte) error
	Load(ctx context.Context) ([]byte, error)
}
