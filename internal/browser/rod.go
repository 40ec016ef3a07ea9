package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	logx "github.com/wcooke83/element-click-timer/pkg/logx"
)

// Config configures the rod adapter.
type Config struct {
	// ControlURL is the DevTools websocket endpoint of a running browser.
	// Empty launches a browser via the rod launcher.
	ControlURL string
	Headless   bool

	// LoadCeiling bounds WaitLoad; SettleDelay is added after the load
	// signal for page scripts to finish their own post-load work.
	LoadCeiling time.Duration
	SettleDelay time.Duration
}

func (c Config) loadCeiling() time.Duration {
	if c.LoadCeiling > 0 {
		return c.LoadCeiling
	}
	return 30 * time.Second
}

func (c Config) settleDelay() time.Duration {
	if c.SettleDelay > 0 {
		return c.SettleDelay
	}
	return time.Second
}

// Rod drives a Chromium-family browser over the DevTools protocol and
// implements Tabs, Executor, and Events.
type Rod struct {
	cfg Config
	log logx.Logger

	mu      sync.RWMutex
	browser *rod.Browser

	cbMu        sync.RWMutex
	onClosed    []func(string)
	onNavigated []func(string, string)
}

func NewRod(cfg Config, log logx.Logger) *Rod {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Rod{cfg: cfg, log: log}
}

// Connect attaches to the configured browser (or launches one) and starts
// the tab lifecycle event stream.
func (b *Rod) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return nil
	}

	controlURL := strings.TrimSpace(b.cfg.ControlURL)
	if controlURL == "" {
		u, err := launcher.New().Headless(b.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("no control_url and failed to launch: %w", err)
		}
		controlURL = u
	}

	br := rod.New().ControlURL(controlURL).Context(ctx)
	if err := br.Connect(); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}
	// Receive target lifecycle events for every page.
	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(br); err != nil {
		b.log.Warn("target discovery unavailable", logx.Err(err))
	}

	b.browser = br
	go b.eventLoop()

	b.log.Info("browser connected", logx.String("control_url", controlURL))
	return nil
}

func (b *Rod) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}

func (b *Rod) current() (*rod.Browser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.browser == nil {
		return nil, fmt.Errorf("browser not connected")
	}
	return b.browser, nil
}

// eventLoop fans tab lifecycle events out to registered callbacks. It ends
// when the browser connection's context is cancelled.
func (b *Rod) eventLoop() {
	br, err := b.current()
	if err != nil {
		return
	}
	wait := br.EachEvent(
		func(e *proto.TargetTargetDestroyed) {
			id := string(e.TargetID)
			b.cbMu.RLock()
			fns := append([]func(string){}, b.onClosed...)
			b.cbMu.RUnlock()
			for _, fn := range fns {
				fn(id)
			}
		},
		func(e *proto.TargetTargetInfoChanged) {
			if e.TargetInfo.Type != proto.TargetTargetInfoTypePage {
				return
			}
			id := string(e.TargetInfo.TargetID)
			url := e.TargetInfo.URL
			b.cbMu.RLock()
			fns := append([]func(string, string){}, b.onNavigated...)
			b.cbMu.RUnlock()
			for _, fn := range fns {
				fn(id, url)
			}
		},
	)
	wait()
}

func (b *Rod) OnTabClosed(fn func(tabID string)) {
	b.cbMu.Lock()
	b.onClosed = append(b.onClosed, fn)
	b.cbMu.Unlock()
}

func (b *Rod) OnTabNavigated(fn func(tabID, url string)) {
	b.cbMu.Lock()
	b.onNavigated = append(b.onNavigated, fn)
	b.cbMu.Unlock()
}

// page resolves a live page by target id.
func (b *Rod) page(id string) (*rod.Page, error) {
	br, err := b.current()
	if err != nil {
		return nil, err
	}
	pages, err := br.Pages()
	if err != nil {
		return nil, err
	}
	for _, p := range pages {
		if string(p.TargetID) == id {
			return p, nil
		}
	}
	return nil, ErrTabNotFound
}

func (b *Rod) Get(ctx context.Context, id string) (Tab, error) {
	p, err := b.page(id)
	if err != nil {
		return Tab{}, err
	}
	info, err := p.Context(ctx).Info()
	if err != nil {
		return Tab{}, ErrTabNotFound
	}
	return Tab{ID: id, URL: info.URL, Title: info.Title}, nil
}

// Alive satisfies the registry's load-time liveness probe.
func (b *Rod) Alive(ctx context.Context, id string) bool {
	_, err := b.Get(ctx, id)
	return err == nil
}

func (b *Rod) Navigate(ctx context.Context, id, url string) error {
	p, err := b.page(id)
	if err != nil {
		return err
	}
	return p.Context(ctx).Navigate(url)
}

func (b *Rod) OpenBackground(ctx context.Context, url string) (Tab, error) {
	br, err := b.current()
	if err != nil {
		return Tab{}, err
	}
	p, err := br.Page(proto.TargetCreateTarget{URL: url, Background: true})
	if err != nil {
		return Tab{}, fmt.Errorf("create tab: %w", err)
	}
	return Tab{ID: string(p.TargetID), URL: url}, nil
}

// WaitLoad blocks for the page load signal plus the settle delay, bounded
// by the configured ceiling. Hitting the ceiling is not an error: the
// dispatch proceeds against whatever state the page reached.
func (b *Rod) WaitLoad(ctx context.Context, id string) error {
	p, err := b.page(id)
	if err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, b.cfg.loadCeiling())
	defer cancel()
	if err := p.Context(wctx).WaitLoad(); err != nil {
		b.log.Debug("load wait ceiling reached, proceeding", logx.String("tab", id), logx.Err(err))
	}

	select {
	case <-time.After(b.cfg.settleDelay()):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
