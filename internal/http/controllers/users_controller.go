package controllers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/authcore/internal/auth"
	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/http/dto"
	"github.com/dropDatabas3/authcore/internal/http/helpers"
	mw "github.com/dropDatabas3/authcore/internal/http/middlewares"
)

// UsersController expone la administración de usuarios del tenant.
// Todas las rutas pasan por RequireAuth.
type UsersController struct {
	engine *auth.Engine
}

// List maneja GET /users?tenantId=&limit=&offset=&search=
func (c *UsersController) List(w http.ResponseWriter, r *http.Request) {
	log := opLogger(r, "UsersController.List")

	q := r.URL.Query()
	opts := domain.ListOptions{Search: q.Get("search")}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		opts.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		opts.Offset = v
	}

	users, err := c.engine.ListUsers(r.Context(), mw.GetPrincipal(r.Context()), helpers.TenantParam(r), opts)
	if err != nil {
		writeError(w, log, err)
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	helpers.WriteJSON(w, http.StatusOK, users)
}

// Get maneja GET /users/{id}?tenantId=
func (c *UsersController) Get(w http.ResponseWriter, r *http.Request) {
	log := opLogger(r, "UsersController.Get")

	d, err := c.engine.GetUserDetail(r.Context(), mw.GetPrincipal(r.Context()), helpers.TenantParam(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, log, err)
		return
	}
	sessions := d.Sessions
	if sessions == nil {
		sessions = []domain.Session{}
	}
	helpers.WriteJSON(w, http.StatusOK, dto.UserDetailResponse{User: d.User, Sessions: sessions})
}

// Create maneja POST /users?tenantId=
func (c *UsersController) Create(w http.ResponseWriter, r *http.Request) {
	log := opLogger(r, "UsersController.Create")

	var req dto.CreateUserRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	out, err := c.engine.CreateUser(r.Context(), mw.GetPrincipal(r.Context()), helpers.TenantParam(r), auth.NewUserRequest{
		Email:         req.Email,
		Password:      req.Password,
		Username:      req.Username,
		Name:          req.Name,
		Phone:         req.Phone,
		EmailVerified: req.EmailVerified,
		IsSuperAdmin:  req.IsSuperAdmin,
	})
	if err != nil {
		writeError(w, log, err)
		return
	}

	helpers.WriteJSON(w, http.StatusCreated, dto.CreateUserResponse{User: out.User, GeneratedPassword: out.GeneratedPassword})
}

// Delete maneja DELETE /users/{id}?tenantId=
func (c *UsersController) Delete(w http.ResponseWriter, r *http.Request) {
	log := opLogger(r, "UsersController.Delete")

	if err := c.engine.DeleteUser(r.Context(), mw.GetPrincipal(r.Context()), helpers.TenantParam(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokeSessions maneja POST /users/{id}/revoke-sessions?tenantId=
func (c *UsersController) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	log := opLogger(r, "UsersController.RevokeSessions")

	n, err := c.engine.RevokeSessions(r.Context(), mw.GetPrincipal(r.Context()), helpers.TenantParam(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, log, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.RevokeResponse{Revoked: n})
}
