// Package engine runs one firing attempt per due timer: resolve the bound
// tab, apply the URL policy, wait for the page to load, dispatch the action
// and commit the outcome exactly once.
package engine

import (
	"context"
	"time"

	"github.com/wcooke83/element-click-timer/internal/browser"
	"github.com/wcooke83/element-click-timer/internal/eventbus"
	"github.com/wcooke83/element-click-timer/internal/registry"
	"github.com/wcooke83/element-click-timer/internal/settings"
	"github.com/wcooke83/element-click-timer/internal/timer"
	logx "github.com/wcooke83/element-click-timer/pkg/logx"
)

// Notifier receives the outcome of a firing attempt. Implementations must
// not block; delivery is best effort.
type Notifier interface {
	TimerExecuted(t timer.Timer, ok bool, reason string)
}

// NopNotifier discards outcomes.
type NopNotifier struct{}

func (NopNotifier) TimerExecuted(timer.Timer, bool, string) {}

type Engine struct {
	reg      *registry.Registry
	tabs     browser.Tabs
	exec     browser.Executor
	settings *settings.Store
	notify   Notifier
	bus      eventbus.Bus
	log      logx.Logger

	now func() time.Time
}

func New(reg *registry.Registry, tabs browser.Tabs, exec browser.Executor, st *settings.Store, n Notifier, bus eventbus.Bus, log logx.Logger) *Engine {
	if n == nil {
		n = NopNotifier{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		reg:      reg,
		tabs:     tabs,
		exec:     exec,
		settings: st,
		notify:   n,
		bus:      bus,
		log:      log,
		now:      time.Now,
	}
}

// Fire runs the full attempt for one due timer. The timer is committed to a
// terminal status before Fire returns, whatever happens along the way; the
// attempt itself is never retried.
func (e *Engine) Fire(ctx context.Context, t timer.Timer) {
	if t.Terminal() {
		return
	}
	log := e.log.With(logx.String("timer", t.ID), logx.String("tab", t.TabID))

	tab, err := e.tabs.Get(ctx, t.TabID)
	if err != nil {
		log.Info("firing aborted, tab gone", logx.Err(err))
		e.commit(ctx, t, false, "tab was closed")
		return
	}

	targetID := t.TabID
	if tab.URL != t.OriginalURL {
		switch t.URLPolicy {
		case timer.PolicyCancel:
			log.Info("firing aborted, url drift",
				logx.String("want", t.OriginalURL), logx.String("have", tab.URL))
			e.commit(ctx, t, false, "URL changed")
			return
		case timer.PolicyNewTab:
			nt, err := e.tabs.OpenBackground(ctx, t.OriginalURL)
			if err != nil {
				log.Warn("relocation failed", logx.Err(err))
				e.commit(ctx, t, false, "could not open tab: "+err.Error())
				return
			}
			targetID = nt.ID
			e.waitLoad(ctx, log, targetID)
		case timer.PolicyNavigate:
			if err := e.tabs.Navigate(ctx, t.TabID, t.OriginalURL); err != nil {
				log.Warn("navigation failed", logx.Err(err))
				e.commit(ctx, t, false, "could not navigate: "+err.Error())
				return
			}
			e.waitLoad(ctx, log, targetID)
		default:
			e.commit(ctx, t, false, "unknown URL policy")
			return
		}
	}

	res := e.exec.Do(ctx, targetID, e.action(ctx, t))
	log.Info("dispatch returned",
		logx.Bool("success", res.Success), logx.String("error", res.Error))
	e.commit(ctx, t, res.Success, res.Error)
}

// waitLoad is best effort: a page that never signals completion must not
// stall the scheduler.
func (e *Engine) waitLoad(ctx context.Context, log logx.Logger, tabID string) {
	if err := e.tabs.WaitLoad(ctx, tabID); err != nil {
		log.Debug("load wait gave up", logx.String("tab", tabID), logx.Err(err))
	}
}

func (e *Engine) action(ctx context.Context, t timer.Timer) browser.Action {
	s := e.settings.Get(ctx)
	return browser.Action{
		Kind:               t.Action,
		Selector:           t.Selector,
		Text:               t.Text,
		ClearBeforeTyping:  t.ClearBefore,
		TypingSpeed:        s.TypingSpeed(),
		PostTextEntryDelay: s.PostTextEntryDelay(),
		TriggerFocusBlur:   s.TriggerFocusBlur,
	}
}

func (e *Engine) commit(ctx context.Context, t timer.Timer, ok bool, reason string) {
	if err := t.MarkExecuted(ok, e.now()); err != nil {
		e.log.Warn("refusing to re-commit timer", logx.String("timer", t.ID), logx.Err(err))
		return
	}
	if err := e.reg.Update(ctx, t); err != nil {
		// Cancelled mid-flight. The attempt already ran; there is
		// nothing left to record.
		e.log.Info("timer vanished before commit", logx.String("timer", t.ID), logx.Err(err))
	}

	if e.bus != nil {
		e.bus.Publish(eventbus.Event{
			Type: eventbus.TypeTimerExecuted,
			Time: e.now(),
			Data: eventbus.ExecutedData{TimerID: t.ID, Status: string(t.Status)},
		})
	}
	e.notify.TimerExecuted(t, ok, reason)
}
