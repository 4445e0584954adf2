// Package storage persists crawl state and crawl output.
package storage

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrCorruptState is returned when a persisted state value cannot be decoded.
// A resumed run must not continue from state it cannot read.
var ErrCorruptState = eris.New("persisted state is corrupt")

// StateStore is a JSON key/value store for resumable crawl state.
type StateStore interface {
	LoadState(ctx context.Context, key string, dst any) (bool, error)
	SaveState(ctx context.Context, key string, v any) error
	Close() error
}
