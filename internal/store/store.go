package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = errors.New("store: key not found")

// Entry is one bookkeeping key/value pair with its last update time (UTC).
type Entry struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Store is a minimal persistent key/value interface the registry uses for
// its own bookkeeping (session metadata, schema stamps). It is deliberately
// separate from the heartbeat directory: heartbeat records live on the
// shared filesystem, bookkeeping lives wherever the host keeps long-lived
// state across restarts.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (Entry, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
