package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wcooke83/element-click-timer/internal/eventbus"
	"github.com/wcooke83/element-click-timer/internal/registry"
	"github.com/wcooke83/element-click-timer/internal/settings"
	"github.com/wcooke83/element-click-timer/internal/timer"
	logx "github.com/wcooke83/element-click-timer/pkg/logx"
)

type fakeTier struct {
	mu     sync.Mutex
	timers []timer.Timer
	raw    []byte
}

func (f *fakeTier) LoadTimers(context.Context) ([]timer.Timer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]timer.Timer, len(f.timers))
	copy(out, f.timers)
	return out, nil
}

func (f *fakeTier) SaveTimers(_ context.Context, ts []timer.Timer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timers = make([]timer.Timer, len(ts))
	copy(f.timers, ts)
	return nil
}

func (f *fakeTier) LoadSettings(context.Context) ([]byte, error)   { return f.raw, nil }
func (f *fakeTier) SaveSettings(_ context.Context, b []byte) error { f.raw = b; return nil }
func (f *fakeTier) Discard() error                                 { return nil }
func (f *fakeTier) Close() error                                   { return nil }

type fakeFirer struct {
	reg   *registry.Registry
	fired []string
}

func (f *fakeFirer) Fire(ctx context.Context, t timer.Timer) {
	f.fired = append(f.fired, t.ID)
	_ = t.MarkExecuted(true, time.Now())
	_ = f.reg.Update(ctx, t)
}

func newService(t *testing.T, now time.Time) (*Service, *registry.Registry, *fakeFirer, *settings.Store) {
	t.Helper()
	tier := &fakeTier{}
	reg := registry.New(tier, tier, eventbus.New(), logx.Nop())
	st := settings.NewStore(tier, logx.Nop())
	firer := &fakeFirer{reg: reg}
	svc := New(Config{}, reg, firer, st, logx.Nop())
	svc.now = func() time.Time { return now }
	return svc, reg, firer, st
}

func addTimer(t *testing.T, reg *registry.Registry, id string, target time.Time) {
	t.Helper()
	err := reg.Add(context.Background(), timer.Timer{
		ID:          id,
		TabID:       "tab-1",
		OriginalURL: "https://a.example/",
		Action:      timer.ActionClick,
		Selector:    "#go",
		TargetTime:  target,
		Persistence: timer.TierBrowser,
		URLPolicy:   timer.PolicyCancel,
		Status:      timer.StatusPending,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestScanFiresOnlyDuePending(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, reg, firer, _ := newService(t, now)

	addTimer(t, reg, "due-early", now.Add(-time.Minute))
	addTimer(t, reg, "due-late", now.Add(-time.Second))
	addTimer(t, reg, "future", now.Add(time.Hour))

	svc.scanDue(context.Background())

	if len(firer.fired) != 2 {
		t.Fatalf("fired = %v, want 2 timers", firer.fired)
	}
	// List orders pending timers by target time, so the earlier one fires
	// first.
	if firer.fired[0] != "due-early" || firer.fired[1] != "due-late" {
		t.Fatalf("fired order = %v", firer.fired)
	}

	// Second scan must not re-fire: both are terminal now.
	firer.fired = nil
	svc.scanDue(context.Background())
	if len(firer.fired) != 0 {
		t.Fatalf("refired terminal timers: %v", firer.fired)
	}
}

func TestSweepRemovesExpiredTerminal(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, reg, _, st := newService(t, now)

	s := st.Get(context.Background())
	s.AutoDeleteExecuted = "5min"
	if err := st.Update(context.Background(), s); err != nil {
		t.Fatal(err)
	}

	addTimer(t, reg, "old", now.Add(-time.Hour))
	addTimer(t, reg, "fresh", now.Add(-time.Hour))
	addTimer(t, reg, "pending", now.Add(time.Hour))

	old, _ := reg.Get("old")
	if err := old.MarkExecuted(true, now.Add(-10*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := reg.Update(context.Background(), old); err != nil {
		t.Fatal(err)
	}
	fresh, _ := reg.Get("fresh")
	if err := fresh.MarkExecuted(false, now.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := reg.Update(context.Background(), fresh); err != nil {
		t.Fatal(err)
	}

	svc.sweep(context.Background())

	if _, ok := reg.Get("old"); ok {
		t.Fatalf("expired timer survived the sweep")
	}
	if _, ok := reg.Get("fresh"); !ok {
		t.Fatalf("timer inside the window was removed")
	}
	if _, ok := reg.Get("pending"); !ok {
		t.Fatalf("pending timer was removed")
	}
}

func TestSweepDisabledIsNoop(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, reg, _, st := newService(t, now)

	s := st.Get(context.Background())
	s.AutoDeleteExecuted = "disabled"
	if err := st.Update(context.Background(), s); err != nil {
		t.Fatal(err)
	}

	addTimer(t, reg, "old", now.Add(-48*time.Hour))
	old, _ := reg.Get("old")
	if err := old.MarkExecuted(true, now.Add(-47*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := reg.Update(context.Background(), old); err != nil {
		t.Fatal(err)
	}

	svc.sweep(context.Background())

	if _, ok := reg.Get("old"); !ok {
		t.Fatalf("sweep removed a timer with retention disabled")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newService(t, time.Now())
	svc.cfg = Config{PollInterval: time.Hour, SweepInterval: time.Hour}

	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	// Restart replaces the runner instead of stacking a second one.
	if err := svc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	svc.Stop()
	svc.Stop()
}

func TestStartStopChurnDoesNotWedge(t *testing.T) {
	t.Parallel()

	svc, reg, _, _ := newService(t, time.Now())
	svc.cfg = Config{PollInterval: time.Millisecond, SweepInterval: time.Millisecond}
	addTimer(t, reg, "due", time.Now().Add(-time.Minute))

	// Stop waits for running jobs to drain while holding the service mutex,
	// so a job dispatched just before Stop must never need that mutex. Churn
	// fast ticks against Start/Stop and fail if a cycle wedges.
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx := context.Background()
		for i := 0; i < 500; i++ {
			if err := svc.Start(ctx); err != nil {
				t.Error(err)
				return
			}
			time.Sleep(time.Millisecond)
			svc.Stop()
		}
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("scheduler wedged during start/stop churn")
	}
}
