// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version   string
	positions PositionSource
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, positions PositionSource) HealthHandler {
	return &HealthHandlerImpl{
		version:   version,
		positions: positions,
	}
}

// HandleHealth returns server health status. It never triggers an upstream fetch.
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}
	if h.positions != nil {
		resp["positions"] = h.positions.Status()
	}
	return c.JSON(http.StatusOK, resp)
}
