// handlers_health.go - Health check and debug handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	formats []string
}

// NewHealthHandler creates a new health handler. formats lists the
// recording formats the server accepts.
func NewHealthHandler(version string, formats []string) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		formats: formats,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"formats": h.formats,
	})
}

// DebugHandlerImpl implements the DebugHandler interface
type DebugHandlerImpl struct {
	counter CounterSource
}

// NewDebugHandler creates a debug handler reading from counter.
func NewDebugHandler(counter CounterSource) DebugHandler {
	return &DebugHandlerImpl{counter: counter}
}

// HandleRenderCounts returns how often each plot pipeline stage has run.
func (h *DebugHandlerImpl) HandleRenderCounts(c echo.Context) error {
	return c.JSON(http.StatusOK, h.counter.Counts())
}
