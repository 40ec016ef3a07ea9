// Package app assembles the daemon: config, logging, storage tiers, the
// browser adapter, the registry, the scheduler, notifications and the
// control surface.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/wcooke83/element-click-timer/internal/browser"
	"github.com/wcooke83/element-click-timer/internal/config"
	"github.com/wcooke83/element-click-timer/internal/engine"
	"github.com/wcooke83/element-click-timer/internal/eventbus"
	"github.com/wcooke83/element-click-timer/internal/notify"
	"github.com/wcooke83/element-click-timer/internal/registry"
	"github.com/wcooke83/element-click-timer/internal/scheduler"
	"github.com/wcooke83/element-click-timer/internal/server"
	"github.com/wcooke83/element-click-timer/internal/settings"
	"github.com/wcooke83/element-click-timer/internal/storage"
	logx "github.com/wcooke83/element-click-timer/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	bus       eventbus.Bus
	durable   storage.Durable
	ephemeral storage.Ephemeral
	browser   *browser.Rod
	settings  *settings.Store
	registry  *registry.Registry
	notify    *notify.Service
	scheduler *scheduler.Service
	server    *server.Server

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New loads the config and builds every component. Nothing runs yet; Start
// connects to the browser and brings the loops up.
func New(cfgPath string) (*App, error) {
	cfgMgr := config.NewManager(cfgPath, logx.Nop())
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	busyTimeout, err := cfg.StorageBusyTimeout()
	if err != nil {
		return nil, err
	}
	durable, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	ephemeral, err := storage.OpenEphemeral(cfg.Storage.SessionPath, log)
	if err != nil {
		durable.Close()
		return nil, fmt.Errorf("open session storage: %w", err)
	}

	loadCeiling, _ := cfg.LoadCeiling()
	settleDelay, _ := cfg.SettleDelay()
	br := browser.NewRod(browser.Config{
		ControlURL:  cfg.Browser.ControlURL,
		Headless:    cfg.Browser.Headless,
		LoadCeiling: loadCeiling,
		SettleDelay: settleDelay,
	}, log)

	bus := eventbus.New()
	st := settings.NewStore(durable, log)
	reg := registry.New(durable, ephemeral, bus, log)

	sinks := buildSinks(cfg, log)
	nsvc := notify.New(notify.Config{
		QueueSize:  cfg.Notify.QueueSize,
		RatePerSec: cfg.Notify.RatePerSec,
	}, st, log, sinks...)

	eng := engine.New(reg, br, br, st, nsvc, bus, log)

	pollInterval, _ := cfg.PollInterval()
	sweepInterval, _ := cfg.SweepInterval()
	sched := scheduler.New(scheduler.Config{
		PollInterval:  pollInterval,
		SweepInterval: sweepInterval,
	}, reg, eng, st, log)

	srv := server.New(server.Config{Addr: cfg.Server.Addr}, reg, st, bus, log)

	return &App{
		cfgMgr:    cfgMgr,
		logSvc:    logSvc,
		log:       log,
		bus:       bus,
		durable:   durable,
		ephemeral: ephemeral,
		browser:   br,
		settings:  st,
		registry:  reg,
		notify:    nsvc,
		scheduler: sched,
		server:    srv,
	}, nil
}

func buildSinks(cfg *config.Config, log logx.Logger) []notify.Sink {
	var sinks []notify.Sink
	if cfg.Notify.Desktop {
		sinks = append(sinks, notify.DesktopSink{})
	}
	if tg := cfg.Notify.Telegram; tg != nil && tg.Token != "" {
		sink, err := notify.NewTelegramSink(tg.Token, tg.ChatID)
		if err != nil {
			log.Warn("telegram sink unavailable", logx.Err(err))
		} else {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	a.done = make(chan struct{})

	if err := a.browser.Connect(runCtx); err != nil {
		cancel()
		return fmt.Errorf("connect browser: %w", err)
	}

	// Settings before the registry: the load-time reconcile needs the
	// retention window.
	cur := a.settings.Load(runCtx)
	a.registry.Load(runCtx, a.browser, cur.Retention())

	a.browser.OnTabClosed(func(tabID string) {
		if n := a.registry.DropSessionForTab(runCtx, tabID); n > 0 {
			a.log.Info("dropped session timers for closed tab",
				logx.String("tab", tabID), logx.Int("count", n))
		}
	})
	a.browser.OnTabNavigated(func(tabID, url string) {
		// Timers stay put on navigation; views refresh so they can flag
		// the drift.
		a.bus.Publish(eventbus.Event{Type: eventbus.TypeRegistryChanged})
	})

	a.notify.Start(runCtx)
	if err := a.scheduler.Start(runCtx); err != nil {
		cancel()
		return err
	}

	go func() {
		defer close(a.done)
		if err := a.server.Start(runCtx); err != nil {
			a.log.Error("control surface failed", logx.Err(err))
		}
	}()
	go a.watchConfig(runCtx)

	a.started = true
	a.log.Info("daemon started")
	return nil
}

// watchConfig applies hot-reloadable settings. Only logging changes take
// effect without a restart; everything else is picked up next start.
func (a *App) watchConfig(ctx context.Context) {
	updates := a.cfgMgr.Subscribe(4)
	defer a.cfgMgr.Unsubscribe(updates)

	go func() {
		if err := a.cfgMgr.Watch(ctx); err != nil {
			a.log.Warn("config watch unavailable", logx.Err(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.log.Info("logging config applied", logx.String("level", cfg.Logging.Level))
		}
	}
}

// Stop shuts everything down and purges session-tier timers; they do not
// survive a clean daemon exit.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}
	a.started = false

	a.scheduler.Stop()
	if err := a.server.Shutdown(ctx); err != nil {
		a.log.Warn("control surface shutdown", logx.Err(err))
	}
	a.notify.Stop()

	a.registry.DropSession(ctx)
	if err := a.ephemeral.Discard(); err != nil {
		a.log.Warn("session store discard", logx.Err(err))
	}

	if err := a.browser.Close(); err != nil {
		a.log.Warn("browser close", logx.Err(err))
	}
	if err := a.durable.Close(); err != nil {
		a.log.Warn("storage close", logx.Err(err))
	}

	if a.cancel != nil {
		a.cancel()
	}
	if a.done != nil {
		<-a.done
	}
	a.log.Info("daemon stopped")
	return a.logSvc.Close()
}
