package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed  = errors.New("storage closed")
	ErrBadKey  = errors.New("storage: empty key")
	ErrUnknown = errors.New("unknown storage driver")
)

// Config configures storage.
//
// Driver values:
//   - "memory": process-local map (nothing survives a restart)
//   - "file": dependency-free file backend (JSON snapshot + JSON Lines journal)
//   - "sqlite": SQLite database file
//
// Empty Driver means "file".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// CompactEvery compacts the file journal after this many writes (file only).
	CompactEvery int
}

// Change describes a committed mutation of one key.
type Change struct {
	Key     string
	Value   string
	Deleted bool
}

// Store is the persistence API used by the timer.
//
// Writes that do not change a key's value are not published to subscribers.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	// SetMany applies all pairs atomically with respect to crashes.
	SetMany(ctx context.Context, kv map[string]string) error
	Delete(ctx context.Context, keys ...string) error

	// Subscribe returns a channel of committed changes. Slow subscribers lose
	// the oldest pending change, never the newest.
	Subscribe(buffer int) (ch <-chan Change, unsubscribe func())

	// Compact folds any write-ahead state into its compact form. Drivers
	// without such state return nil.
	Compact(ctx context.Context) error
	Close() error
}
