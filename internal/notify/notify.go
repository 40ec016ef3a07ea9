// Package notify delivers outcome notifications to the configured sinks.
// Delivery is asynchronous and best effort: a slow or broken sink never
// blocks a firing attempt.
package notify

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/wcooke83/element-click-timer/internal/settings"
	"github.com/wcooke83/element-click-timer/internal/timer"
	logx "github.com/wcooke83/element-click-timer/pkg/logx"
)

// Sink is one delivery channel (desktop popup, Telegram chat).
type Sink interface {
	Name() string
	Send(ctx context.Context, title, body string) error
}

type Config struct {
	QueueSize  int
	RatePerSec float64
	Burst      int
}

func (c *Config) normalize() {
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 2
	}
	if c.Burst <= 0 {
		c.Burst = 4
	}
}

type message struct {
	title string
	body  string
}

type Service struct {
	sinks    []Sink
	settings *settings.Store
	limiter  *rate.Limiter
	log      logx.Logger

	mu     sync.Mutex
	queue  chan message
	cancel context.CancelFunc
}

func New(cfg Config, st *settings.Store, log logx.Logger, sinks ...Sink) *Service {
	cfg.normalize()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		sinks:    sinks,
		settings: st,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		log:      log,
		queue:    make(chan message, cfg.QueueSize),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	go s.worker(ctx)
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// TimerExecuted satisfies the engine's notifier contract. The success and
// failure toggles gate delivery independently.
func (s *Service) TimerExecuted(t timer.Timer, ok bool, reason string) {
	cur := s.settings.Get(context.Background())
	if ok && !cur.NotifySuccess {
		return
	}
	if !ok && !cur.NotifyFailure {
		return
	}
	s.enqueue(format(t, ok, reason))
}

func (s *Service) enqueue(m message) {
	select {
	case s.queue <- m:
	default:
		s.log.Warn("notification dropped, queue full", logx.String("title", m.title))
	}
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-s.queue:
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			s.deliver(ctx, m)
		}
	}
}

func (s *Service) deliver(ctx context.Context, m message) {
	for _, sink := range s.sinks {
		if err := sink.Send(ctx, m.title, m.body); err != nil {
			s.log.Warn("notification send failed",
				logx.String("sink", sink.Name()), logx.Err(err))
		}
	}
}

// format renders the outcome for human consumption. Text for sensitive
// timers is never echoed back.
func format(t timer.Timer, ok bool, reason string) message {
	var m message
	what := "Click"
	if t.Action == timer.ActionEnterText {
		what = "Text entry"
	}
	where := t.TabTitle
	if where == "" {
		where = t.OriginalURL
	}
	if ok {
		m.title = what + " executed"
		m.body = fmt.Sprintf("%s on %q succeeded.", what, where)
	} else {
		m.title = what + " failed"
		if reason == "" {
			reason = "unknown error"
		}
		m.body = fmt.Sprintf("%s on %q failed: %s", what, where, reason)
	}
	return m
}
