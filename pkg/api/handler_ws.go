package api

import (
	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// wsHandler upgrades GET /ws to a WebSocket and tunnels the newline-delimited
// stream protocol over it. Each text message may carry one or more complete
// lines; the gateway's own line splitter handles framing, so the bridge is a
// plain byte pipe.
func (s *Server) wsHandler(c *echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	nc := websocket.NetConn(c.Request().Context(), conn, websocket.MessageText)
	// Blocks until the peer disconnects. Auth still happens in-stream: the
	// first envelope over the tunnel must be auth.
	s.gw.HandleConn(nc)
	return nil
}
