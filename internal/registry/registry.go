package registry

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/wcooke83/element-click-timer/internal/eventbus"
	"github.com/wcooke83/element-click-timer/internal/storage"
	"github.com/wcooke83/element-click-timer/internal/timer"
	logx "github.com/wcooke83/element-click-timer/pkg/logx"
)

var (
	ErrNotFound = errors.New("timer not found")
	ErrExists   = errors.New("timer id already registered")
)

// TabProber answers load-time liveness questions about browser tabs. The
// registry deliberately depends on this one-method view instead of the full
// browser adapter.
type TabProber interface {
	Alive(ctx context.Context, tabID string) bool
}

// Registry owns the in-memory working set of timers for the process
// lifetime. Every mutation is followed by a best-effort persist into the
// two storage tiers.
//
// All methods are safe for concurrent use, but the intended model is a
// single logical thread of control: the scheduler, the engine, and the
// control surface serialize through the registry's lock.
type Registry struct {
	durable   storage.Durable
	ephemeral storage.Ephemeral
	bus       eventbus.Bus
	log       logx.Logger

	mu     sync.Mutex
	timers []timer.Timer
}

func New(durable storage.Durable, ephemeral storage.Ephemeral, bus eventbus.Bus, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{durable: durable, ephemeral: ephemeral, bus: bus, log: log}
}

// Load fetches both tiers, unions them (first occurrence of an id wins),
// drops executed timers past the retention window, drops tab/session timers
// whose tab the prober cannot resolve, persists the cleaned set back, and
// installs it as the working set.
//
// Fails soft: storage errors reset the working set to empty instead of
// propagating.
func (r *Registry) Load(ctx context.Context, prober TabProber, retention timer.Retention) {
	var combined []timer.Timer
	failed := false

	if r.durable != nil {
		ts, err := r.durable.LoadTimers(ctx)
		if err != nil {
			r.log.Error("durable tier load failed, starting empty", logx.Err(err))
			failed = true
		} else {
			combined = append(combined, ts...)
		}
	}
	if !failed && r.ephemeral != nil {
		ts, err := r.ephemeral.LoadTimers(ctx)
		if err != nil {
			r.log.Error("ephemeral tier load failed, starting empty", logx.Err(err))
			failed = true
		} else {
			combined = append(combined, ts...)
		}
	}
	if failed {
		r.mu.Lock()
		r.timers = nil
		r.mu.Unlock()
		return
	}

	cleaned := reconcile(ctx, combined, prober, retention, r.log)

	r.mu.Lock()
	r.timers = cleaned
	r.persistLocked(ctx)
	r.mu.Unlock()

	r.publishChanged()
}

// Add registers a new timer. The id must be unique across the registry.
func (r *Registry) Add(ctx context.Context, t timer.Timer) error {
	r.mu.Lock()
	if r.indexLocked(t.ID) >= 0 {
		r.mu.Unlock()
		return ErrExists
	}
	r.timers = append(r.timers, t.Clone())
	r.persistLocked(ctx)
	r.mu.Unlock()

	r.publishChanged()
	return nil
}

// Update replaces the record with the same id. Unknown ids report
// ErrNotFound and mutate nothing.
func (r *Registry) Update(ctx context.Context, t timer.Timer) error {
	r.mu.Lock()
	i := r.indexLocked(t.ID)
	if i < 0 {
		r.mu.Unlock()
		return ErrNotFound
	}
	r.timers[i] = t.Clone()
	r.persistLocked(ctx)
	r.mu.Unlock()

	r.publishChanged()
	return nil
}

// ReplaceAll swaps in a full replacement working set.
func (r *Registry) ReplaceAll(ctx context.Context, timers []timer.Timer) {
	next := make([]timer.Timer, 0, len(timers))
	for _, t := range timers {
		next = append(next, t.Clone())
	}

	r.mu.Lock()
	r.timers = next
	r.persistLocked(ctx)
	r.mu.Unlock()

	r.publishChanged()
}

// Remove drops the timer with the given id. Removing an unknown id is a
// no-op, which makes cancellation idempotent.
func (r *Registry) Remove(ctx context.Context, id string) {
	r.mu.Lock()
	i := r.indexLocked(id)
	if i < 0 {
		r.mu.Unlock()
		return
	}
	r.timers = append(r.timers[:i], r.timers[i+1:]...)
	r.persistLocked(ctx)
	r.mu.Unlock()

	r.publishChanged()
}

// RemoveBatch drops a set of ids in one persist. Used by the janitor sweep.
func (r *Registry) RemoveBatch(ctx context.Context, ids []string) int {
	if len(ids) == 0 {
		return 0
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	r.mu.Lock()
	kept := r.timers[:0]
	removed := 0
	for _, t := range r.timers {
		if drop[t.ID] {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	r.timers = kept
	if removed > 0 {
		r.persistLocked(ctx)
	}
	r.mu.Unlock()

	if removed > 0 {
		r.publishChanged()
	}
	return removed
}

// DropSessionForTab removes session-tier timers bound to a closed tab.
// Returns how many were dropped.
func (r *Registry) DropSessionForTab(ctx context.Context, tabID string) int {
	r.mu.Lock()
	kept := r.timers[:0]
	removed := 0
	for _, t := range r.timers {
		if t.TabID == tabID && t.Persistence == timer.TierSession {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	r.timers = kept
	if removed > 0 {
		r.persistLocked(ctx)
	}
	r.mu.Unlock()

	if removed > 0 {
		r.publishChanged()
	}
	return removed
}

// Get returns a copy of the timer with the given id.
func (r *Registry) Get(id string) (timer.Timer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(id)
	if i < 0 {
		return timer.Timer{}, false
	}
	return r.timers[i].Clone(), true
}

// List returns copies of the working set: pending timers first ordered by
// fire time, then executed ones newest first. Callers own the returned
// slice.
func (r *Registry) List() []timer.Timer {
	r.mu.Lock()
	out := make([]timer.Timer, 0, len(r.timers))
	for _, t := range r.timers {
		out = append(out, t.Clone())
	}
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		ap, bp := a.Status == timer.StatusPending, b.Status == timer.StatusPending
		if ap != bp {
			return ap
		}
		if ap {
			return a.TargetTime.Before(b.TargetTime)
		}
		at, bt := a.TargetTime, b.TargetTime
		if a.ExecutedAt != nil {
			at = *a.ExecutedAt
		}
		if b.ExecutedAt != nil {
			bt = *b.ExecutedAt
		}
		return at.After(bt)
	})
	return out
}

// DropSession strips session-tier timers from the working set and persists.
// Called on clean shutdown, mirroring the session tier being discarded.
func (r *Registry) DropSession(ctx context.Context) {
	r.mu.Lock()
	kept := r.timers[:0]
	for _, t := range r.timers {
		if t.Persistence == timer.TierSession {
			continue
		}
		kept = append(kept, t)
	}
	r.timers = kept
	r.persistLocked(ctx)
	r.mu.Unlock()
}

func (r *Registry) indexLocked(id string) int {
	for i, t := range r.timers {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// persistLocked partitions the working set by tier and writes each tier's
// share. Failures are logged, not propagated: the in-memory state is the
// source of truth until the next successful write.
func (r *Registry) persistLocked(ctx context.Context) {
	var durableSet, sessionSet []timer.Timer
	for _, t := range r.timers {
		if t.Persistence == timer.TierSession {
			sessionSet = append(sessionSet, t)
		} else {
			durableSet = append(durableSet, t)
		}
	}

	if r.durable != nil {
		if err := r.durable.SaveTimers(ctx, durableSet); err != nil {
			r.log.Warn("durable tier save failed", logx.Err(err), logx.Int("timers", len(durableSet)))
		}
	}
	if r.ephemeral != nil {
		if err := r.ephemeral.SaveTimers(ctx, sessionSet); err != nil {
			// Acceptable loss: session timers just won't survive.
			r.log.Debug("ephemeral tier save failed", logx.Err(err), logx.Int("timers", len(sessionSet)))
		}
	}
}

func (r *Registry) publishChanged() {
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: eventbus.TypeRegistryChanged})
	}
}
