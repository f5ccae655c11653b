package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/arqon/siteapi/internal/infrastructure/config"
)

// HealthHandler reports process liveness
type HealthHandler struct {
	app config.AppConfig
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(app config.AppConfig) *HealthHandler {
	return &HealthHandler{app: app}
}

// Health godoc
// @Summary Liveness check
// @Tags system
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Success:     true,
		Message:     "API is running",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Environment: h.app.Environment,
		Version:     h.app.Version,
	})
}
