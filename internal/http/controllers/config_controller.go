package controllers

import (
	"net/http"

	"github.com/dropDatabas3/authcore/internal/auth"
	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/http/dto"
	"github.com/dropDatabas3/authcore/internal/http/helpers"
	mw "github.com/dropDatabas3/authcore/internal/http/middlewares"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
)

// ConfigController maneja el AuthConfig del tenant.
type ConfigController struct {
	engine *auth.Engine
}

// Get maneja GET /config?tenantId= (público, sin secretos).
func (c *ConfigController) Get(w http.ResponseWriter, r *http.Request) {
	log := opLogger(r, "ConfigController.Get")

	cfg, err := c.engine.GetConfig(r.Context(), helpers.TenantParam(r))
	if err != nil {
		writeError(w, log, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, cfg)
}

// Patch maneja PATCH /config?tenantId= (super-admin del mismo tenant).
func (c *ConfigController) Patch(w http.ResponseWriter, r *http.Request) {
	log := opLogger(r, "ConfigController.Patch")

	raw, ok := helpers.ReadRaw(w, r)
	if !ok {
		return
	}
	tenantID := helpers.TenantParam(r)
	cfg, err := c.engine.UpdateConfig(r.Context(), mw.GetPrincipal(r.Context()), tenantID, domain.AuthConfigPatch(raw))
	if err != nil {
		writeError(w, log, err)
		return
	}

	log.Info("auth config updated", logger.TenantID(tenantID))
	helpers.WriteJSON(w, http.StatusOK, dto.ConfigUpdateResponse{Success: true, ID: cfg.ID, Config: cfg})
}

// Examples maneja GET /password-policy/examples?tenantId=
func (c *ConfigController) Examples(w http.ResponseWriter, r *http.Request) {
	log := opLogger(r, "ConfigController.Examples")

	ex, err := c.engine.PasswordExamples(r.Context(), helpers.TenantParam(r))
	if err != nil {
		writeError(w, log, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.ExamplesResponse{Examples: ex[:]})
}
