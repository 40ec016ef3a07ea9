// Package server exposes the JSON-RPC 2.0 control surface: an HTTP bridge
// for request/response clients and a websocket endpoint that additionally
// receives push notifications.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/creachadair/jrpc2/jhttp"

	"github.com/wcooke83/element-click-timer/internal/eventbus"
	"github.com/wcooke83/element-click-timer/internal/registry"
	"github.com/wcooke83/element-click-timer/internal/settings"
	logx "github.com/wcooke83/element-click-timer/pkg/logx"
)

type Config struct {
	Addr string // listen address, defaults to localhost
}

type Server struct {
	cfg      Config
	reg      *registry.Registry
	settings *settings.Store
	bus      eventbus.Bus
	push     *Pusher
	log      logx.Logger

	clock func() time.Time

	bridge jhttp.Bridge
	httpd  *http.Server
	unsub  func()
}

func New(cfg Config, reg *registry.Registry, st *settings.Store, bus eventbus.Bus, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8457"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		cfg:      cfg,
		reg:      reg,
		settings: st,
		bus:      bus,
		push:     NewPusher(log),
		log:      log,
	}
	s.bridge = jhttp.NewBridge(s.methods(), nil)
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /rpc", s.bridge)
	mux.HandleFunc("GET /rpc/ws", s.handleWS)
	return mux
}

// Start serves until the listener fails or Shutdown is called. It also
// starts pumping bus events out to websocket sessions.
func (s *Server) Start(ctx context.Context) error {
	events, unsub := s.bus.Subscribe(64)
	s.unsub = unsub
	go s.pump(ctx, events)

	s.httpd = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info("control surface listening", logx.String("addr", s.cfg.Addr))
	err := s.httpd.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.unsub != nil {
		s.unsub()
	}
	s.bridge.Close()
	if s.httpd == nil {
		return nil
	}
	return s.httpd.Shutdown(ctx)
}

// pump translates bus events into websocket push notifications.
func (s *Server) pump(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case eventbus.TypeRegistryChanged:
				s.push.Broadcast("event.registryChanged", struct{}{})
			case eventbus.TypeTimerExecuted:
				if data, ok := ev.Data.(eventbus.ExecutedData); ok {
					s.push.Broadcast("event.timerExecuted", data)
				}
			}
		}
	}
}
