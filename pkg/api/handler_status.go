package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/devharness/harnessd/pkg/version"
)

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Version             string `json:"version"`
	UptimeSeconds       int64  `json:"uptimeSeconds"`
	LiveSessions        int    `json:"liveSessions"`
	ActiveSubscriptions int    `json:"activeSubscriptions"`
	ActiveConnections   int    `json:"activeConnections"`
	EventHighwater      int64  `json:"eventHighwater"`
}

// statusHandler handles GET /api/v1/status with a read-only operational view.
func (s *Server) statusHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &StatusResponse{
		Version:             version.Full(),
		UptimeSeconds:       int64(time.Since(s.startedAt) / time.Second),
		LiveSessions:        len(s.registry.List(true)),
		ActiveSubscriptions: s.mux.ActiveSubscriptions(),
		ActiveConnections:   s.gw.ActiveConnections(),
		EventHighwater:      s.mux.Highwater(),
	})
}
