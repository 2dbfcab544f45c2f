package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type HealthHandler struct {
	check func(ctx context.Context) error
}

// checkがnilなら常にok（memoryモード）
func NewHealthHandler(check func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{check: check}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.healthz)
}

func (h *HealthHandler) healthz(c echo.Context) error {
	if h.check != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.check(ctx); err != nil {
			return fail(c, http.StatusServiceUnavailable, "database unavailable")
		}
	}
	return success(c, http.StatusOK, map[string]string{
		"service": "marketplace",
		"time":    time.Now().Format(time.RFC3339),
	})
}
