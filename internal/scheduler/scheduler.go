// Package scheduler owns the two periodic loops: the due-timer scan and the
// auto-delete sweep.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wcooke83/element-click-timer/internal/registry"
	"github.com/wcooke83/element-click-timer/internal/settings"
	"github.com/wcooke83/element-click-timer/internal/timer"
	logx "github.com/wcooke83/element-click-timer/pkg/logx"
)

type Config struct {
	PollInterval  time.Duration // due-timer scan cadence
	SweepInterval time.Duration // auto-delete janitor cadence
}

func (c *Config) normalize() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
}

// Firer runs one firing attempt to completion. Satisfied by the execution
// engine.
type Firer interface {
	Fire(ctx context.Context, t timer.Timer)
}

type Service struct {
	cfg      Config
	reg      *registry.Registry
	eng      Firer
	settings *settings.Store
	log      logx.Logger

	now func() time.Time

	mu     sync.Mutex
	c      *cron.Cron
	cancel context.CancelFunc
}

func New(cfg Config, reg *registry.Registry, eng Firer, st *settings.Store, log logx.Logger) *Service {
	cfg.normalize()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, reg: reg, eng: eng, settings: st, log: log, now: time.Now}
}

// Start registers both loops and starts the cron runner. Calling Start on a
// running service restarts it, so a restart never leaves two tickers behind.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	// The jobs capture their run context here instead of reading it off the
	// service, so a running job never touches s.mu and Stop can drain jobs
	// while holding it.
	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DiscardLogger),
	))

	if _, err := c.AddFunc("@every "+s.cfg.PollInterval.String(), func() { s.scanDue(runCtx) }); err != nil {
		cancel()
		return err
	}
	if _, err := c.AddFunc("@every "+s.cfg.SweepInterval.String(), func() { s.sweep(runCtx) }); err != nil {
		cancel()
		return err
	}

	s.c, s.cancel = c, cancel
	s.c.Start()
	s.log.Info("scheduler started",
		logx.Duration("poll", s.cfg.PollInterval),
		logx.Duration("sweep", s.cfg.SweepInterval))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Service) stopLocked() {
	if s.c == nil {
		return
	}
	// Cancel before draining so an in-flight scan observes shutdown instead
	// of firing through the rest of its working set.
	s.cancel()
	s.cancel = nil
	<-s.c.Stop().Done()
	s.c = nil
	s.log.Info("scheduler stopped")
}

// scanDue fires every due pending timer strictly in sequence. Two attempts
// never interleave; the cron chain also skips a tick while one is running.
func (s *Service) scanDue(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	now := s.now()
	for _, t := range s.reg.List() {
		if ctx.Err() != nil {
			return
		}
		if t.Status != timer.StatusPending || !t.Due(now) {
			continue
		}
		s.log.Debug("timer due", logx.String("timer", t.ID), logx.Time("target", t.TargetTime))
		s.eng.Fire(ctx, t)
	}
}

// sweep removes terminal timers past the retention window.
func (s *Service) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	retention := s.settings.Get(ctx).Retention()
	if _, ok := retention.Window(); !ok {
		return
	}
	now := s.now()
	var expired []string
	for _, t := range s.reg.List() {
		if timer.Expired(t, retention, now) {
			expired = append(expired, t.ID)
		}
	}
	if len(expired) == 0 {
		return
	}
	removed := s.reg.RemoveBatch(ctx, expired)
	s.log.Info("swept expired timers", logx.Int("removed", removed))
}
