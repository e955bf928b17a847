package config

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	config *Config
}

type configResponse struct {
	*Config
	RemoteConfigured bool `json:"remote_configured"`
	RemoteTokenSet   bool `json:"remote_token_set"`
}

func (h *handler) retrieve(c echo.Context) error {
	return errors.WithStack(c.JSON(http.StatusOK, configResponse{
		Config:           h.config,
		RemoteConfigured: h.config.RemoteURL != "",
		RemoteTokenSet:   h.config.RemoteToken != "",
	}))
}
