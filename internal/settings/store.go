package settings

import (
	"context"
	"encoding/json"
	"sync"

	logx "github.com/wcooke83/element-click-timer/pkg/logx"
)

// Persister is the slice of the durable tier the settings store needs.
type Persister interface {
	LoadSettings(ctx context.Context) ([]byte, error)
	SaveSettings(ctx context.Context, raw []byte) error
}

// Store holds the process-wide settings: persisted overrides merged over
// compiled defaults, lazily loaded, replaced whole by Update.
type Store struct {
	persister Persister
	log       logx.Logger

	mu     sync.RWMutex
	cur    Settings
	loaded bool

	subsMu sync.Mutex
	subs   []chan Settings
}

func NewStore(p Persister, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{persister: p, log: log}
}

// Load merges persisted overrides over the defaults and commits the result.
// A storage error degrades to plain defaults rather than failing.
func (s *Store) Load(ctx context.Context) Settings {
	cur := Defaults()
	if s.persister != nil {
		raw, err := s.persister.LoadSettings(ctx)
		if err != nil {
			s.log.Warn("settings load failed, using defaults", logx.Err(err))
		} else {
			cur = Merge(cur, raw)
		}
	}
	s.mu.Lock()
	s.cur = cur
	s.loaded = true
	s.mu.Unlock()
	return cur
}

// Get returns the current settings, loading lazily on first use.
func (s *Store) Get(ctx context.Context) Settings {
	s.mu.RLock()
	if s.loaded {
		cur := s.cur
		s.mu.RUnlock()
		return cur
	}
	s.mu.RUnlock()
	return s.Load(ctx)
}

// Update validates, persists, and commits a full replacement settings
// object, then echoes it to subscribers. On validation or persist failure the
// prior settings stay in effect (persist failure is logged, not fatal: the
// in-memory copy still advances, matching best-effort save semantics).
func (s *Store) Update(ctx context.Context, next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	if s.persister != nil {
		raw, err := json.Marshal(next)
		if err == nil {
			err = s.persister.SaveSettings(ctx, raw)
		}
		if err != nil {
			s.log.Warn("settings persist failed", logx.Err(err))
		}
	}

	s.mu.Lock()
	s.cur = next
	s.loaded = true
	s.mu.Unlock()

	s.publish(next)
	return nil
}

// Subscribe returns a buffered channel receiving every committed settings
// replacement. Slow subscribers lose intermediate values, never the latest.
func (s *Store) Subscribe(buffer int) chan Settings {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Settings, buffer)
	s.subsMu.Lock()
	s.subs = append(s.subs, ch)
	s.subsMu.Unlock()
	return ch
}

func (s *Store) publish(cur Settings) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- cur:
		default:
			// drop one stale value, then push the newest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cur:
			default:
			}
		}
	}
}
