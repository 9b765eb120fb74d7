package api

import (
	echo "github.com/labstack/echo/v5"
)

// securityHeaders returns middleware for the bridge's response headers. The
// bridge serves API consumers and the WebSocket tunnel, never browser pages,
// so framing is denied outright and responses are not cacheable.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			return next(c)
		}
	}
}
