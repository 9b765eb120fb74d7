package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/devharness/harnessd/pkg/cursor"
	"github.com/devharness/harnessd/pkg/events"
	"github.com/devharness/harnessd/pkg/models"
	"github.com/devharness/harnessd/pkg/protocol"
)

// maxLineBytes bounds one inbound line. A peer that streams this much without
// a newline is not speaking the protocol and gets disconnected, before auth
// included.
const maxLineBytes = 1 << 20

// conn is one client connection. The reader goroutine owns the inbound
// buffer; writes from command completions, subscription pumps and PTY
// broadcasts are serialized by writeMu. A conn is the delivery sink for its
// stream subscriptions and attached sessions.
type conn struct {
	id  string
	srv *Server
	nc  net.Conn
	log *slog.Logger

	writeMu sync.Mutex
	closed  atomic.Bool

	authed bool

	subMu sync.Mutex
	subs  map[string]struct{}

	// outGuard dedupes per-session output cursors so a regressed or replayed
	// chunk is never written twice to this connection.
	outGuard *cursor.Guard
}

func newConn(id string, srv *Server, nc net.Conn) *conn {
	return &conn{
		id:       id,
		srv:      srv,
		nc:       nc,
		log:      slog.With("component", "gateway-conn", "conn_id", id),
		subs:     make(map[string]struct{}),
		outGuard: cursor.NewGuard(),
	}
}

// serve reads envelopes until the peer disconnects or a protocol violation
// closes the connection.
func (c *conn) serve() {
	defer c.teardown()

	var buf []byte
	chunk := make([]byte, 4096)
	for {
		n, err := c.nc.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			msgs, rest := protocol.ConsumeJSONLines(buf)
			buf = append(buf[:0], rest...)
			for _, raw := range msgs {
				if !c.handle(raw) {
					return
				}
			}
			if len(buf) > maxLineBytes {
				c.log.Warn("Inbound line exceeds limit, closing", "pending_bytes", len(buf))
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// handle processes one raw line. Returns false when the connection must
// close. Unparseable envelopes are dropped silently.
func (c *conn) handle(raw json.RawMessage) bool {
	env := protocol.ParseClientEnvelope(raw)
	if env == nil {
		return true
	}

	if !c.authed {
		auth, ok := env.(protocol.Auth)
		if !ok {
			c.write(protocol.AuthError{Error: "auth: authentication required"})
			return false
		}
		if subtle.ConstantTimeCompare([]byte(auth.Token), []byte(c.srv.token)) != 1 {
			c.write(protocol.AuthError{Error: "auth: invalid token"})
			return false
		}
		c.authed = true
		c.write(protocol.AuthOK{})
		return true
	}

	switch e := env.(type) {
	case protocol.Auth:
		// Re-auth on an authenticated connection is a harmless no-op.
		c.write(protocol.AuthOK{})

	case protocol.Command:
		if e.Cmd == nil {
			if e.CommandID != "" {
				c.write(protocol.CommandFailed{CommandID: e.CommandID, Error: "invalid: malformed command"})
			}
			return true
		}
		c.write(protocol.CommandAccepted{CommandID: e.CommandID})
		go c.runCommand(e)

	case protocol.PtyInput:
		// Raw input envelopes carry no commandId, so failures are dropped.
		if err := c.srv.registry.Input(e.SessionID, e.Data); err != nil {
			c.log.Debug("Dropping pty.input", "session_id", e.SessionID, "error", err)
		}

	case protocol.PtyResize:
		if err := c.srv.registry.Resize(e.SessionID, e.Cols, e.Rows); err != nil {
			c.log.Debug("Dropping pty.resize", "session_id", e.SessionID, "error", err)
		}

	case protocol.PtySignal:
		if err := c.srv.registry.Signal(e.SessionID, sessionSignal(e.Signal)); err != nil {
			c.log.Debug("Dropping pty.signal", "session_id", e.SessionID, "error", err)
		}
	}
	return true
}

// runCommand dispatches one command concurrently with the reader. The
// completion is skipped if the connection closed while the command ran.
func (c *conn) runCommand(cmd protocol.Command) {
	result, err := c.srv.dispatch(c, cmd.Cmd)
	if c.closed.Load() {
		return
	}
	if err != nil {
		c.write(protocol.CommandFailed{CommandID: cmd.CommandID, Error: wireError(err)})
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		c.log.Error("Failed to encode command result", "command", cmd.Cmd.CmdType(), "error", err)
		c.write(protocol.CommandFailed{CommandID: cmd.CommandID, Error: wireError(err)})
		return
	}
	c.write(protocol.CommandCompleted{CommandID: cmd.CommandID, Result: raw})
}

// write serializes one server envelope onto the socket.
func (c *conn) write(env protocol.ServerEnvelope) {
	if c.closed.Load() {
		return
	}
	data, err := protocol.EncodeServer(env)
	if err != nil {
		c.log.Error("Failed to encode envelope", "error", err)
		return
	}
	c.writeMu.Lock()
	_, err = c.nc.Write(data)
	c.writeMu.Unlock()
	if err != nil {
		c.close()
	}
}

func (c *conn) close() {
	if c.closed.CompareAndSwap(false, true) {
		c.nc.Close()
	}
}

// teardown releases everything the connection registered: subscriptions end,
// session attachments drop. Controller claims persist across disconnects.
func (c *conn) teardown() {
	c.close()

	c.subMu.Lock()
	subs := make([]string, 0, len(c.subs))
	for id := range c.subs {
		subs = append(subs, id)
	}
	c.subs = make(map[string]struct{})
	c.subMu.Unlock()

	for _, id := range subs {
		c.srv.mux.Unsubscribe(id)
	}
	c.srv.registry.DetachAll(c.id)
	c.srv.removeConn(c)
	c.log.Debug("Connection closed")
}

func (c *conn) trackSubscription(id string) {
	c.subMu.Lock()
	c.subs[id] = struct{}{}
	c.subMu.Unlock()
}

func (c *conn) forgetSubscription(id string) {
	c.subMu.Lock()
	delete(c.subs, id)
	c.subMu.Unlock()
}

// Deliver implements events.Sink.
func (c *conn) Deliver(d events.Delivery) error {
	env := protocol.StreamEvent{
		SubscriptionID: d.SubscriptionID,
		Cursor:         d.Cursor,
		Event:          d.Event,
	}
	data, err := protocol.EncodeServer(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.nc.Write(data)
	return err
}

// Dropped implements events.Sink. The subscription is gone; tell the client
// rather than silently skipping events.
func (c *conn) Dropped(subscriptionID, reason string) {
	c.forgetSubscription(subscriptionID)
	c.write(protocol.CommandFailed{
		CommandID: "stream:" + subscriptionID,
		Error:     "internal: subscription dropped: " + reason,
	})
}

// SessionOutput implements session.OutputSink.
func (c *conn) SessionOutput(sessionID string, cur int64, chunk []byte) {
	if res := c.outGuard.Observe("pty:"+sessionID, cur); !res.Accepted {
		c.log.Debug("Rejecting stale output cursor",
			"session_id", sessionID, "cursor", cur, "previous", res.Previous)
		return
	}
	c.write(protocol.PtyOutput{SessionID: sessionID, Cursor: cur, Chunk: chunk})
}

// SessionExit implements session.OutputSink.
func (c *conn) SessionExit(sessionID string, exit models.ExitStatus) {
	c.write(protocol.PtyExit{SessionID: sessionID, Exit: exit})
}

// SessionEvent implements session.EventSink.
func (c *conn) SessionEvent(sessionID, eventType, title, message, reason string, exit *models.ExitStatus) {
	c.write(protocol.PtyEvent{
		SessionID: sessionID,
		Event: protocol.SessionEvent{
			Type:    protocol.SessionEventType(eventType),
			Title:   title,
			Message: message,
			Reason:  reason,
			Exit:    exit,
		},
	})
}
