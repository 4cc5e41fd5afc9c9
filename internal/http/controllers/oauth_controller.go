package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/authcore/internal/auth"
	"github.com/dropDatabas3/authcore/internal/http/dto"
	"github.com/dropDatabas3/authcore/internal/http/helpers"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
)

// OAuthController maneja el flujo authorization-code de Google/GitHub.
type OAuthController struct {
	engine *auth.Engine
}

// Start maneja GET /oauth/{provider}/start?tenantId=. Redirige al consent
// del provider; con Accept: application/json devuelve {url}.
func (c *OAuthController) Start(w http.ResponseWriter, r *http.Request) {
	log := opLogger(r, "OAuthController.Start")

	provider := chi.URLParam(r, "provider")
	u, err := c.engine.OAuthStart(r.Context(), helpers.TenantParam(r), provider)
	if err != nil {
		writeError(w, log, err)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		helpers.WriteJSON(w, http.StatusOK, map[string]string{"url": u})
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}

// Callback maneja GET /oauth/{provider}/callback?code=&state=
func (c *OAuthController) Callback(w http.ResponseWriter, r *http.Request) {
	log := opLogger(r, "OAuthController.Callback")

	provider := chi.URLParam(r, "provider")
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeError(w, log, auth.ErrInvalidCredentials.WithDetails("provider returned "+e))
		return
	}

	res, err := c.engine.OAuthCallback(r.Context(), provider, q.Get("code"), q.Get("state"), helpers.SessionMeta(r, provider))
	if err != nil {
		writeError(w, log, err)
		return
	}

	log.Info("oauth login ok", logger.Provider(provider), logger.TenantID(res.User.TenantID), logger.UserID(res.User.ID))
	helpers.WriteJSON(w, http.StatusOK, dto.LoginResponse{
		Token:     res.Session.Token,
		ExpiresAt: res.Session.ExpiresAt,
		User:      dto.Summary(res.User),
	})
}
