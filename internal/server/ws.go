package server

import (
	"context"
	"net/http"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"

	logx "github.com/wcooke83/element-click-timer/pkg/logx"
)

// wsChannel adapts a coder/websocket.Conn to the jrpc2 Channel interface.
type wsChannel struct {
	conn *cws.Conn
	ctx  context.Context
}

func (c *wsChannel) Send(data []byte) error {
	return c.conn.Write(c.ctx, cws.MessageText, data)
}

func (c *wsChannel) Recv() ([]byte, error) {
	_, data, err := c.conn.Read(c.ctx)
	return data, err
}

func (c *wsChannel) Close() error {
	return c.conn.Close(cws.StatusNormalClosure, "")
}

// handleWS upgrades the connection and runs one jrpc2 server on it for its
// lifetime. Push notifications reach the session through the pusher while
// it is registered.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := cws.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", logx.Err(err))
		return
	}

	ch := &wsChannel{conn: conn, ctx: r.Context()}
	srv := jrpc2.NewServer(s.methods(), &jrpc2.ServerOptions{AllowPush: true})
	srv.Start(ch)

	s.push.Register(srv)
	defer s.push.Unregister(srv)

	if err := srv.Wait(); err != nil {
		s.log.Debug("websocket session ended", logx.Err(err))
	}
}
