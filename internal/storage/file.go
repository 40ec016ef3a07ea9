package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wcooke83/element-click-timer/internal/timer"
	logx "github.com/wcooke83/element-click-timer/pkg/logx"
)

// fileStore is a dependency-free durable backend.
//
// Files:
//   - <prefix>.timers.json   (full snapshot, atomic rename)
//   - <prefix>.settings.json (settings object)
type fileStore struct {
	log logx.Logger

	mu           sync.Mutex
	timersPath   string
	settingsPath string
}

type timersSnapshot struct {
	Timers []timer.Timer `json:"timers"`
}

func openFile(cfg Config, log logx.Logger) (Durable, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		timersPath:   prefix + ".timers.json",
		settingsPath: prefix + ".settings.json",
	}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) LoadTimers(ctx context.Context) ([]timer.Timer, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return readSnapshot(s.timersPath)
}

func (s *fileStore) SaveTimers(ctx context.Context, timers []timer.Timer) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeSnapshot(s.timersPath, timers)
}

func (s *fileStore) LoadSettings(ctx context.Context) ([]byte, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.settingsPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return b, err
}

func (s *fileStore) SaveSettings(ctx context.Context, raw []byte) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return atomicWrite(s.settingsPath, raw)
}

func readSnapshot(path string) ([]timer.Timer, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap timersSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, err
	}
	return snap.Timers, nil
}

func writeSnapshot(path string, timers []timer.Timer) error {
	b, err := json.MarshalIndent(timersSnapshot{Timers: timers}, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(path, b)
}

func atomicWrite(path string, b []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
