// Package bootstrap crea el primer super-admin de un tenant para que la API
// de administración sea usable desde el arranque.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/authcore/internal/auth"
	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
	"github.com/dropDatabas3/authcore/internal/security/password"
	"github.com/dropDatabas3/authcore/internal/store"
)

// AdminConfig describe el super-admin a asegurar.
type AdminConfig struct {
	TenantID string
	Email    string
	// Password vacío: se genera uno que cumple la política del tenant.
	Password string
}

// Result reporta lo que hizo EnsureSuperAdmin.
type Result struct {
	Created bool
	User    *domain.User
	// GeneratedPassword solo viene cuando se generó (se muestra una vez).
	GeneratedPassword string
}

// pageSize para recorrer usuarios buscando un super-admin existente.
const pageSize = 200

// EnsureSuperAdmin no hace nada si el tenant ya tiene algún super-admin; si
// no, crea uno con email verificado.
func EnsureSuperAdmin(ctx context.Context, stores store.Resolver, configs auth.ConfigSource, v *password.Validator, cfg AdminConfig) (*Result, error) {
	email := domain.NormalizeEmail(cfg.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, errors.New("bootstrap: admin email is required")
	}
	a, err := stores.For(ctx, cfg.TenantID)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	// 1. ¿Ya hay super-admin?
	existing, err := findSuperAdmin(ctx, a, cfg.TenantID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.From(ctx).Debug("super admin present, skipping bootstrap",
			logger.TenantID(cfg.TenantID), logger.UserID(existing.ID))
		return &Result{User: existing}, nil
	}

	// 2. Password: validar contra la política del tenant o generar uno.
	policy, err := configs.Get(ctx, cfg.TenantID)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load config: %w", err)
	}
	out := &Result{Created: true}
	pw := cfg.Password
	if pw == "" {
		pw = password.GenerateExamples(policy.PasswordPolicy)[2]
		out.GeneratedPassword = pw
	} else if res := v.Validate(pw, policy.PasswordPolicy, &password.UserContext{Email: email}); !res.IsValid {
		return nil, fmt.Errorf("bootstrap: admin password rejected: %s", strings.Join(res.Errors, "; "))
	}

	// 3. Crear admin del tenant
	u, err := a.CreateUser(ctx, cfg.TenantID, domain.NewUser{
		Email:         email,
		Password:      pw,
		EmailVerified: true,
		IsSuperAdmin:  true,
	})
	if errors.Is(err, store.ErrEmailInUse) {
		// El email existe como usuario común: promoverlo.
		u, err = promote(ctx, a, cfg.TenantID, email)
		out.GeneratedPassword = ""
	}
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create admin: %w", err)
	}
	logger.From(ctx).Info("super admin bootstrapped", logger.TenantID(cfg.TenantID), logger.UserID(u.ID))
	out.User = u
	return out, nil
}

func findSuperAdmin(ctx context.Context, a store.Adapter, tenantID string) (*domain.User, error) {
	for offset := 0; ; offset += pageSize {
		page, err := a.ListUsers(ctx, tenantID, domain.ListOptions{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("bootstrap: list users: %w", err)
		}
		for i := range page {
			if page[i].IsSuperAdmin && page[i].IsActive {
				return &page[i], nil
			}
		}
		if len(page) < pageSize {
			return nil, nil
		}
	}
}

func promote(ctx context.Context, a store.Adapter, tenantID, email string) (*domain.User, error) {
	u, err := a.GetUserByEmail(ctx, tenantID, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, store.ErrEmailInUse
	}
	yes := true
	u, err = a.UpdateUser(ctx, tenantID, u.ID, domain.UserPatch{IsSuperAdmin: &yes, IsActive: &yes})
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errors.New("user vanished during promotion")
	}
	return u, nil
}
