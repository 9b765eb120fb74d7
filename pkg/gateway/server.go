// Package gateway is the control-plane server: it accepts client connections
// over TCP or a Unix socket, runs the auth handshake, dispatches commands to
// the domain store and session registry, and owns the on-disk gateway record
// that identifies a running daemon.
package gateway

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/devharness/harnessd/pkg/events"
	"github.com/devharness/harnessd/pkg/session"
	"github.com/devharness/harnessd/pkg/store"
)

// Server wires the store, session registry and event multiplexer behind the
// stream protocol.
type Server struct {
	store    *store.Store
	registry *session.Registry
	mux      *events.Multiplexer
	token    string
	log      *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[string]*conn
	draining atomic.Bool
	wg       sync.WaitGroup
}

// NewServer creates a server. token is the bearer string every connection
// must present in its auth envelope.
func NewServer(st *store.Store, registry *session.Registry, mux *events.Multiplexer, token string) *Server {
	return &Server{
		store:    st,
		registry: registry,
		mux:      mux,
		token:    token,
		log:      slog.With("component", "gateway"),
		conns:    make(map[string]*conn),
	}
}

// Serve accepts connections until the listener closes. Each connection gets
// its own reader goroutine.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	for {
		nc, err := l.Accept()
		if err != nil {
			if s.draining.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		go s.HandleConn(nc)
	}
}

// HandleConn runs the stream protocol over one accepted connection and
// blocks until it closes. The WebSocket bridge feeds connections in here as
// well as the accept loop.
func (s *Server) HandleConn(nc net.Conn) {
	c := newConn(uuid.New().String(), s, nc)
	s.mu.Lock()
	if s.draining.Load() {
		s.mu.Unlock()
		nc.Close()
		return
	}
	s.conns[c.id] = c
	s.mu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()
	c.serve()
}

func (s *Server) removeConn(c *conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
}

// ActiveConnections returns the number of open client connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown drains the server: new commands are refused with shutting-down,
// subscription queues are flushed, PTY children get terminate and then kill
// after the grace window, and every connection is closed.
func (s *Server) Shutdown(grace time.Duration) {
	if !s.draining.CompareAndSwap(false, true) {
		return
	}
	s.log.Info("Gateway shutting down", "grace", grace)

	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		l.Close()
	}

	s.mux.Shutdown()
	s.registry.Shutdown(grace)

	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.close()
	}

	s.wg.Wait()
	s.log.Info("Gateway shutdown complete")
}
