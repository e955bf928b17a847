package config

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes exposes the effective configuration. The remote token is
// never included.
func RegisterRoutes(e *echo.Echo, cfg *Config) {
	h := &handler{config: cfg}

	e.GET("/config", h.retrieve)
}
