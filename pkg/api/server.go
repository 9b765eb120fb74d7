// Package api is the optional HTTP bridge in front of the control plane: a
// health endpoint, a read-only status endpoint, and a WebSocket endpoint
// that tunnels the stream protocol for clients that cannot open raw sockets.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/devharness/harnessd/pkg/events"
	"github.com/devharness/harnessd/pkg/gateway"
	"github.com/devharness/harnessd/pkg/session"
)

// Server is the HTTP bridge.
type Server struct {
	gw        *gateway.Server
	registry  *session.Registry
	mux       *events.Multiplexer
	startedAt time.Time
	log       *slog.Logger

	echo       *echo.Echo
	httpServer *http.Server
}

// NewServer wires the bridge routes.
func NewServer(gw *gateway.Server, registry *session.Registry, mux *events.Multiplexer) *Server {
	s := &Server{
		gw:        gw,
		registry:  registry,
		mux:       mux,
		startedAt: time.Now().UTC(),
		log:       slog.With("component", "api"),
	}

	e := echo.New()
	e.Use(securityHeaders())
	e.GET("/healthz", s.healthHandler)
	e.GET("/api/v1/status", s.statusHandler)
	e.GET("/ws", s.wsHandler)
	s.echo = e

	return s
}

// Start serves HTTP on the port until Shutdown. Blocks.
func (s *Server) Start(port int) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("HTTP bridge listening", "port", port)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler { return s.echo }
