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

// AuthController maneja login, signup, me y logout.
type AuthController struct {
	engine *auth.Engine
}

// Login maneja POST /login
func (c *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	log := opLogger(r, "AuthController.Login")

	var req dto.LoginRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, log, auth.ErrInvalidRequest.WithMessage("email and password are required"))
		return
	}

	res, err := c.engine.SignIn(r.Context(), domain.ProviderEmailPassword, auth.Credentials{
		TenantID:   req.TenantID,
		Identifier: req.Email,
		Password:   req.Password,
	}, helpers.SessionMeta(r, domain.AuthMethodPassword))
	if err != nil {
		writeError(w, log, err)
		return
	}

	log.Info("login ok", logger.TenantID(res.User.TenantID), logger.UserID(res.User.ID))
	helpers.WriteJSON(w, http.StatusOK, dto.LoginResponse{
		Token:     res.Session.Token,
		ExpiresAt: res.Session.ExpiresAt,
		User:      dto.Summary(res.User),
	})
}

// Signup maneja POST /signup
func (c *AuthController) Signup(w http.ResponseWriter, r *http.Request) {
	log := opLogger(r, "AuthController.Signup")

	var req dto.SignupRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}

	res, err := c.engine.SignUp(r.Context(), domain.ProviderEmailPassword, auth.Credentials{
		TenantID:   req.TenantID,
		Identifier: req.Email,
		Password:   req.Password,
		Name:       req.Name,
		Username:   req.Username,
	}, helpers.SessionMeta(r, domain.AuthMethodSignup))
	if err != nil {
		writeError(w, log, err)
		return
	}

	helpers.WriteJSON(w, http.StatusOK, dto.SignupResponse{
		ID:        res.User.ID,
		Email:     res.User.Email,
		Token:     res.Session.Token,
		ExpiresAt: res.Session.ExpiresAt,
	})
}

// Me maneja GET /me (requiere RequireAuth).
func (c *AuthController) Me(w http.ResponseWriter, r *http.Request) {
	p := mw.GetPrincipal(r.Context())
	if p == nil {
		writeError(w, opLogger(r, "AuthController.Me"), auth.ErrUnauthorized)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.MeResponse{User: p.User, Session: p.Session})
}

// Logout maneja POST /logout. Es idempotente: un token desconocido o ya
// revocado también responde 200.
func (c *AuthController) Logout(w http.ResponseWriter, r *http.Request) {
	log := opLogger(r, "AuthController.Logout")

	tok, ok := helpers.BearerToken(r)
	if !ok {
		writeError(w, log, auth.ErrUnauthorized)
		return
	}
	if err := c.engine.SignOut(r.Context(), tok); err != nil {
		writeError(w, log, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.LogoutResponse{Success: true})
}

// Providers maneja GET /providers?tenantId=
func (c *AuthController) Providers(w http.ResponseWriter, r *http.Request) {
	log := opLogger(r, "AuthController.Providers")

	ids, err := c.engine.EnabledProviders(r.Context(), helpers.TenantParam(r))
	if err != nil {
		writeError(w, log, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.ProvidersResponse{Providers: ids})
}
