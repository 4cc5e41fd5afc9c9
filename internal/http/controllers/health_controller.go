package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/authcore/internal/http/dto"
	"github.com/dropDatabas3/authcore/internal/http/helpers"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
)

// HealthController maneja /healthz y /readyz.
type HealthController struct {
	stores Pinger
}

// Healthz: el proceso está vivo.
func (c *HealthController) Healthz(w http.ResponseWriter, _ *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, dto.HealthResponse{Status: "ok"})
}

// Readyz hace ping a los stores abiertos; 503 si alguno falla.
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	if c.stores == nil {
		helpers.WriteJSON(w, http.StatusOK, dto.HealthResponse{Status: "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := c.stores.Ping(ctx); err != nil {
		opLogger(r, "HealthController.Readyz").Warn("store ping failed", logger.Err(err))
		helpers.WriteJSON(w, http.StatusServiceUnavailable, dto.HealthResponse{
			Status:     "unavailable",
			Components: map[string]string{"store": "down"},
		})
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.HealthResponse{
		Status:     "ready",
		Components: map[string]string{"store": "ok"},
	})
}
