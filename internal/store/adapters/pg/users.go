package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/store"
)

// ─── Users ───

func (a *Adapter) CreateUser(ctx context.Context, tenantID string, in domain.NewUser) (*domain.User, error) {
	u, err := store.BuildUser(a.cfg.Hasher, a.cfg.Clock(), tenantID, in)
	if err != nil {
		return nil, err
	}
	meta, err := marshalMetadata(u.Metadata)
	if err != nil {
		return nil, err
	}

	const q = `INSERT INTO auth_user (id, tenant_id, email, username, display_name, name, phone, password_hash,
		email_verified, email_verified_at, is_active, is_super_admin, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	_, err = a.pool.Exec(ctx, q,
		u.ID, u.TenantID, u.Email, nullIfEmpty(u.Username), nullIfEmpty(u.DisplayName), nullIfEmpty(u.Name),
		nullIfEmpty(u.Phone), u.PasswordHash, u.EmailVerified, u.EmailVerifiedAt, u.IsActive, u.IsSuperAdmin,
		meta, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("pg: create user: %w", err)
	}
	return &u, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", store.ErrInvalidInput, err)
	}
	return b, nil
}

// queryUser corre un SELECT de una fila; sin filas devuelve (nil, nil).
func (a *Adapter) queryUser(ctx context.Context, op, where string, args ...any) (*domain.User, error) {
	q := `SELECT ` + userColumns + ` FROM auth_user WHERE ` + where
	u, err := scanUser(a.pool.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pg: %s: %w", op, err)
	}
	return u, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (a *Adapter) GetUser(ctx context.Context, tenantID, id string) (*domain.User, error) {
	if !validID(id) {
		return nil, nil
	}
	return a.queryUser(ctx, "get user", `tenant_id = $1 AND id = $2`, tenantID, id)
}

func (a *Adapter) GetUserByEmail(ctx context.Context, tenantID, email string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	return a.queryUser(ctx, "get user by email", `tenant_id = $1 AND lower(email) = $2`, tenantID, email)
}

func (a *Adapter) GetUserByUsername(ctx context.Context, tenantID, username string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, nil
	}
	return a.queryUser(ctx, "get user by username", `tenant_id = $1 AND lower(username) = lower($2)`, tenantID, username)
}

func (a *Adapter) GetUserByPhone(ctx context.Context, tenantID, phone string) (*domain.User, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, nil
	}
	return a.queryUser(ctx, "get user by phone", `tenant_id = $1 AND phone = $2 ORDER BY created_at LIMIT 1`, tenantID, phone)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (a *Adapter) ListUsers(ctx context.Context, tenantID string, opts domain.ListOptions) ([]domain.User, error) {
	opts = opts.Normalize()

	q := `SELECT ` + userColumns + ` FROM auth_user WHERE tenant_id = $1`
	args := []any{tenantID}
	if opts.Search != "" {
		args = append(args, "%"+likeEscaper.Replace(opts.Search)+"%")
		q += ` AND (lower(email) LIKE $2 OR lower(coalesce(username,'')) LIKE $2
			OR lower(coalesce(name,'')) LIKE $2 OR lower(coalesce(display_name,'')) LIKE $2)`
	}
	args = append(args, opts.Limit, opts.Offset)
	q += fmt.Sprintf(` ORDER BY created_at, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := a.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pg: list users: %w", err)
	}
	defer rows.Close()

	out := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("pg: list users: %w", err)
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pg: list users: %w", err)
	}
	return out, nil
}

func (a *Adapter) UpdateUser(ctx context.Context, tenantID, id string, patch domain.UserPatch) (*domain.User, error) {
	if !validID(id) {
		return nil, nil
	}
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pg: update user: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanUser(tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM auth_user WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pg: update user: %w", err)
	}

	patch.Apply(cur, a.cfg.Clock())
	meta, err := marshalMetadata(cur.Metadata)
	if err != nil {
		return nil, err
	}

	const q = `UPDATE auth_user SET username=$3, display_name=$4, name=$5, phone=$6, password_hash=$7,
		email_verified=$8, email_verified_at=$9, phone_verified=$10, phone_verified_at=$11,
		user_verified=$12, user_verified_at=$13, is_active=$14, is_super_admin=$15, metadata=$16, updated_at=$17
		WHERE tenant_id = $1 AND id = $2`
	_, err = tx.Exec(ctx, q, tenantID, id,
		nullIfEmpty(cur.Username), nullIfEmpty(cur.DisplayName), nullIfEmpty(cur.Name), nullIfEmpty(cur.Phone),
		cur.PasswordHash, cur.EmailVerified, cur.EmailVerifiedAt, cur.PhoneVerified, cur.PhoneVerifiedAt,
		cur.UserVerified, cur.UserVerifiedAt, cur.IsActive, cur.IsSuperAdmin, meta, cur.UpdatedAt)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("pg: update user: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("pg: update user: commit: %w", err)
	}
	return cur, nil
}

// DeleteUser borra el usuario; sus sesiones caen por ON DELETE CASCADE.
func (a *Adapter) DeleteUser(ctx context.Context, tenantID, id string) error {
	if !validID(id) {
		return nil
	}
	if _, err := a.pool.Exec(ctx, `DELETE FROM auth_user WHERE tenant_id = $1 AND id = $2`, tenantID, id); err != nil {
		return fmt.Errorf("pg: delete user: %w", err)
	}
	return nil
}

func (a *Adapter) VerifyPassword(ctx context.Context, tenantID, identifier, plain string) (*domain.User, error) {
	ident := strings.TrimSpace(identifier)
	var u *domain.User
	if ident != "" {
		var err error
		u, err = a.queryUser(ctx, "verify password",
			`tenant_id = $1 AND (lower(email) = lower($2) OR lower(username) = lower($2))
			ORDER BY (lower(email) = lower($2)) DESC LIMIT 1`, tenantID, ident)
		if err != nil {
			return nil, err
		}
	}
	return store.CheckPassword(a.cfg.Hasher, u, plain), nil
}
