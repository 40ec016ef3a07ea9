package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wcooke83/element-click-timer/internal/timer"
	logx "github.com/wcooke83/element-click-timer/pkg/logx"
)

// ephemeralStore keeps session-tier timers in a JSON file under the runtime
// directory. Session timers do not survive abnormal termination, so loss
// of this file is acceptable.
type ephemeralStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
}

// OpenEphemeral initializes the session tier at the given path. An empty
// path picks a default under the runtime directory.
func OpenEphemeral(path string, log logx.Logger) (Ephemeral, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join(RuntimeDir(), "session-timers.json")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &ephemeralStore{log: log, path: path}, nil
}

// RuntimeDir resolves the per-session scratch directory: XDG_RUNTIME_DIR
// when the host provides one (a tmpfs the host discards at session end),
// otherwise the OS temp dir.
func RuntimeDir() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); dir != "" {
		return filepath.Join(dir, "clicktimerd")
	}
	return filepath.Join(os.TempDir(), "clicktimerd")
}

func (s *ephemeralStore) LoadTimers(ctx context.Context) ([]timer.Timer, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return readSnapshot(s.path)
}

func (s *ephemeralStore) SaveTimers(ctx context.Context, timers []timer.Timer) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeSnapshot(s.path, timers)
}

// Discard removes the backing file. Called on clean shutdown so session
// timers do not leak into the next session.
func (s *ephemeralStore) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
