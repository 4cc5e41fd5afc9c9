package auth

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/authcore/internal/audit"
	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
	"github.com/dropDatabas3/authcore/internal/security/password"
	"github.com/dropDatabas3/authcore/internal/store"
)

// =================================================================================
// AUTORIZACIÓN
// =================================================================================

// authorize exige que el caller pertenezca al tenant pedido. Las lecturas
// alcanzan con eso; las mutaciones exigen además super-admin. IsSuperAdmin
// vale solo dentro del tenant del usuario: un super-admin de otro tenant
// recibe forbidden.
func authorize(p *Principal, tenantID string, mutate bool) error {
	if p == nil || p.User == nil {
		return ErrUnauthorized
	}
	if p.User.TenantID != tenantID {
		return ErrForbidden
	}
	if mutate && !p.User.IsSuperAdmin {
		return ErrForbidden
	}
	return nil
}

// ─── Config ───

// RedactConfig borra los client secrets antes de exponer el config.
func RedactConfig(cfg domain.AuthConfig) domain.AuthConfig {
	out := cfg.Clone()
	for id, ps := range out.Providers {
		if ps.ClientSecret != "" {
			ps.ClientSecret = ""
			out.Providers[id] = ps
		}
	}
	return out
}

// GetConfig devuelve el config efectivo (defaults si no hay fila), sin
// secretos.
func (e *Engine) GetConfig(ctx context.Context, tenantID string) (domain.AuthConfig, error) {
	if err := checkTenant(tenantID); err != nil {
		return domain.AuthConfig{}, err
	}
	cfg, err := e.configs.Get(ctx, tenantID)
	if err != nil {
		return domain.AuthConfig{}, e.fail(ctx, "config.get", err)
	}
	return RedactConfig(cfg), nil
}

// UpdateConfig valida el patch contra el schema y lo aplica con upsert.
func (e *Engine) UpdateConfig(ctx context.Context, p *Principal, tenantID string, patch domain.AuthConfigPatch) (*domain.AuthConfig, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	if err := authorize(p, tenantID, true); err != nil {
		return nil, err
	}
	if err := domain.ValidatePatch(patch); err != nil {
		return nil, ErrInvalidRequest.WithMessage("Invalid config document").WithDetails(err.Error())
	}
	a, err := e.stores.For(ctx, tenantID)
	if err != nil {
		return nil, e.fail(ctx, "config.update", err)
	}
	cfg, err := a.UpsertAuthConfig(ctx, tenantID, patch)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidConfig) {
			return nil, ErrInvalidRequest.WithMessage("Invalid config document").WithDetails(err.Error())
		}
		return nil, e.fail(ctx, "config.update", err)
	}
	e.configs.Invalidate(ctx, tenantID)
	audit.Log(ctx, audit.ConfigUpdated, tenantID, p.User.ID)
	out := RedactConfig(*cfg)
	return &out, nil
}

// PasswordExamples devuelve [débil, buena, fuerte] para la política del
// tenant; las tres cumplen la política.
func (e *Engine) PasswordExamples(ctx context.Context, tenantID string) ([3]string, error) {
	if err := checkTenant(tenantID); err != nil {
		return [3]string{}, err
	}
	cfg, err := e.configs.Get(ctx, tenantID)
	if err != nil {
		return [3]string{}, e.fail(ctx, "password.examples", err)
	}
	return password.GenerateExamples(cfg.PasswordPolicy), nil
}

// ─── Usuarios ───

// UserDetail es la vista de detalle del admin.
type UserDetail struct {
	User     *domain.User     `json:"user"`
	Sessions []domain.Session `json:"sessions"`
}

func (e *Engine) ListUsers(ctx context.Context, p *Principal, tenantID string, opts domain.ListOptions) ([]domain.User, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	if err := authorize(p, tenantID, false); err != nil {
		return nil, err
	}
	a, err := e.stores.For(ctx, tenantID)
	if err != nil {
		return nil, e.fail(ctx, "users.list", err)
	}
	us, err := a.ListUsers(ctx, tenantID, opts.Normalize())
	if err != nil {
		return nil, e.fail(ctx, "users.list", err)
	}
	return us, nil
}

// GetUserDetail trae usuario y sesiones en paralelo. Un usuario sin
// super-admin solo puede ver su propio detalle.
func (e *Engine) GetUserDetail(ctx context.Context, p *Principal, tenantID, userID string) (*UserDetail, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	if err := authorize(p, tenantID, false); err != nil {
		return nil, err
	}
	if !p.User.IsSuperAdmin && p.User.ID != userID {
		return nil, ErrForbidden
	}
	a, err := e.stores.For(ctx, tenantID)
	if err != nil {
		return nil, e.fail(ctx, "users.detail", err)
	}

	var (
		u  *domain.User
		ss []domain.Session
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		u, err = a.GetUser(gctx, tenantID, userID)
		return err
	})
	g.Go(func() error {
		var err error
		ss, err = a.ListUserSessions(gctx, tenantID, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, e.fail(ctx, "users.detail", err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	now := e.now()
	live := ss[:0]
	for _, s := range ss {
		if !s.Expired(now) {
			live = append(live, s)
		}
	}
	if live == nil {
		live = []domain.Session{}
	}
	return &UserDetail{User: u, Sessions: live}, nil
}

// NewUserRequest es el alta administrativa. Password vacío = se genera uno.
type NewUserRequest struct {
	Email         string
	Password      string
	Username      string
	Name          string
	Phone         string
	EmailVerified bool
	IsSuperAdmin  bool
}

// CreatedUser lleva el password generado; se muestra una sola vez.
type CreatedUser struct {
	User              *domain.User
	GeneratedPassword string
}

func (e *Engine) CreateUser(ctx context.Context, p *Principal, tenantID string, in NewUserRequest) (*CreatedUser, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	if err := authorize(p, tenantID, true); err != nil {
		return nil, err
	}
	email := domain.NormalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	cfg, err := e.configs.Get(ctx, tenantID)
	if err != nil {
		return nil, e.fail(ctx, "users.create", err)
	}

	out := &CreatedUser{}
	pw := in.Password
	if pw == "" {
		pw = password.GenerateExamples(cfg.PasswordPolicy)[2]
		out.GeneratedPassword = pw
	} else {
		res := e.validator.Validate(pw, cfg.PasswordPolicy, &password.UserContext{Email: email, Username: in.Username, Name: in.Name})
		if !res.IsValid {
			return nil, ErrWeakPassword.WithDetails(res.Errors...)
		}
	}

	a, err := e.stores.For(ctx, tenantID)
	if err != nil {
		return nil, e.fail(ctx, "users.create", err)
	}
	u, err := a.CreateUser(ctx, tenantID, domain.NewUser{
		Email:         email,
		Username:      in.Username,
		Name:          in.Name,
		DisplayName:   in.Name,
		Phone:         in.Phone,
		Password:      pw,
		EmailVerified: in.EmailVerified,
		IsSuperAdmin:  in.IsSuperAdmin,
	})
	switch {
	case errors.Is(err, store.ErrEmailInUse):
		return nil, ErrEmailInUse
	case errors.Is(err, store.ErrUsernameInUse):
		return nil, ErrInvalidRequest.WithMessage("Username already in use")
	case errors.Is(err, store.ErrInvalidInput):
		return nil, ErrInvalidRequest.WithCause(err)
	case err != nil:
		return nil, e.fail(ctx, "users.create", err)
	}
	audit.Log(ctx, audit.UserCreated, tenantID, p.User.ID, logger.UserID(u.ID))
	out.User = u
	return out, nil
}

// DeleteUser borra al usuario y sus sesiones. Idempotente.
func (e *Engine) DeleteUser(ctx context.Context, p *Principal, tenantID, userID string) error {
	if err := checkTenant(tenantID); err != nil {
		return err
	}
	if err := authorize(p, tenantID, true); err != nil {
		return err
	}
	if p.User.ID == userID {
		return ErrInvalidRequest.WithMessage("Cannot delete the current user")
	}
	a, err := e.stores.For(ctx, tenantID)
	if err != nil {
		return e.fail(ctx, "users.delete", err)
	}
	if err := a.DeleteUser(ctx, tenantID, userID); err != nil {
		return e.fail(ctx, "users.delete", err)
	}
	audit.Log(ctx, audit.UserDeleted, tenantID, p.User.ID, logger.UserID(userID))
	return nil
}

// RevokeSessions cierra todas las sesiones de un usuario.
func (e *Engine) RevokeSessions(ctx context.Context, p *Principal, tenantID, userID string) (int, error) {
	if err := checkTenant(tenantID); err != nil {
		return 0, err
	}
	if err := authorize(p, tenantID, true); err != nil {
		return 0, err
	}
	n, err := e.sessions.RevokeUser(ctx, tenantID, userID)
	if err != nil {
		return 0, e.fail(ctx, "users.revoke", err)
	}
	audit.Log(ctx, audit.SessionsRevoked, tenantID, p.User.ID, logger.UserID(userID), logger.Count(n))
	return n, nil
}
