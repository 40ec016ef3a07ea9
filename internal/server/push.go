package server

import (
	"context"
	"sync"

	"github.com/creachadair/jrpc2"

	logx "github.com/wcooke83/element-click-timer/pkg/logx"
)

// Pusher tracks the live websocket sessions and fans push notifications out
// to all of them. Sessions that fail a send are dropped.
type Pusher struct {
	mu      sync.RWMutex
	servers map[*jrpc2.Server]struct{}
	log     logx.Logger
}

func NewPusher(log logx.Logger) *Pusher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pusher{servers: make(map[*jrpc2.Server]struct{}), log: log}
}

func (p *Pusher) Register(srv *jrpc2.Server) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.servers[srv] = struct{}{}
}

func (p *Pusher) Unregister(srv *jrpc2.Server) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.servers, srv)
}

func (p *Pusher) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.servers)
}

func (p *Pusher) Broadcast(method string, params any) {
	p.mu.RLock()
	servers := make([]*jrpc2.Server, 0, len(p.servers))
	for srv := range p.servers {
		servers = append(servers, srv)
	}
	p.mu.RUnlock()

	var failed []*jrpc2.Server
	for _, srv := range servers {
		if err := srv.Notify(context.Background(), method, params); err != nil {
			p.log.Debug("push failed, dropping session", logx.Err(err))
			failed = append(failed, srv)
		}
	}
	if len(failed) > 0 {
		p.mu.Lock()
		for _, srv := range failed {
			delete(p.servers, srv)
		}
		p.mu.Unlock()
	}
}
