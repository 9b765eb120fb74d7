package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/devharness/harnessd/pkg/version"
)

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// healthHandler handles GET /healthz. The bridge has no external
// dependencies to probe; a reachable process is a healthy one.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:  "healthy",
		Version: version.GitCommit,
	})
}
