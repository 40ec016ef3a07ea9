package storage

import (
	"context"
	"errors"
	"time"

	"github.com/wcooke83/element-click-timer/internal/timer"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the durable tier.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "file":   JSON snapshot files, dependency-free
//
// If Driver is empty, "sqlite" is assumed.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Durable is the restart-surviving tier. SaveTimers replaces the whole
// collection; partial updates are the registry's job, not the store's.
type Durable interface {
	LoadTimers(ctx context.Context) ([]timer.Timer, error)
	SaveTimers(ctx context.Context, timers []timer.Timer) error
	LoadSettings(ctx context.Context) ([]byte, error)
	SaveSettings(ctx context.Context, raw []byte) error
	Close() error
}

// Ephemeral is the session tier. Implementations fail soft: a missing
// backing file loads as empty, and Discard tolerates already-gone state.
type Ephemeral interface {
	LoadTimers(ctx context.Context) ([]timer.Timer, error)
	SaveTimers(ctx context.Context, timers []timer.Timer) error
	Discard() error
}
