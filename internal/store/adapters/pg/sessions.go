package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/security/token"
	"github.com/dropDatabas3/authcore/internal/store"
)

// ─── Sessions ───
// La tabla guarda sha256(token); el token en claro solo vive en el cliente.

func (a *Adapter) CreateSession(ctx context.Context, s domain.Session) (*domain.Session, error) {
	s, err := store.PrepareSession(s, a.cfg.Clock())
	if err != nil {
		return nil, err
	}
	if !validID(s.UserID) {
		return nil, fmt.Errorf("%w: user id %q", store.ErrInvalidInput, s.UserID)
	}
	const q = `INSERT INTO auth_session (id, token_hash, user_id, tenant_id, expires_at, auth_method, ip_address, user_agent, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err = a.pool.Exec(ctx, q, s.ID, token.Hash(s.Token), s.UserID, s.TenantID, s.ExpiresAt,
		nullIfEmpty(s.AuthMethod), nullIfEmpty(s.IPAddress), nullIfEmpty(s.UserAgent), s.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == pgerrcode.UniqueViolation || pgErr.Code == pgerrcode.ForeignKeyViolation) {
			return nil, fmt.Errorf("%w: %s", store.ErrInvalidInput, pgErr.Message)
		}
		return nil, fmt.Errorf("pg: create session: %w", err)
	}
	return &s, nil
}

func (a *Adapter) GetSessionByToken(ctx context.Context, tok string) (*domain.Session, error) {
	if tok == "" {
		return nil, nil
	}
	s, err := scanSession(a.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM auth_session WHERE token_hash = $1`, token.Hash(tok)), tok)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get session: %w", err)
	}
	return s, nil
}

func (a *Adapter) ListUserSessions(ctx context.Context, tenantID, userID string) ([]domain.Session, error) {
	out := []domain.Session{}
	if !validID(userID) {
		return out, nil
	}
	rows, err := a.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM auth_session WHERE tenant_id = $1 AND user_id = $2 ORDER BY created_at`,
		tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("pg: list sessions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		s, err := scanSession(rows, "")
		if err != nil {
			return nil, fmt.Errorf("pg: list sessions: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pg: list sessions: %w", err)
	}
	return out, nil
}

func (a *Adapter) DeleteSession(ctx context.Context, tok string) error {
	if tok == "" {
		return nil
	}
	if _, err := a.pool.Exec(ctx, `DELETE FROM auth_session WHERE token_hash = $1`, token.Hash(tok)); err != nil {
		return fmt.Errorf("pg: delete session: %w", err)
	}
	return nil
}

func (a *Adapter) DeleteUserSessions(ctx context.Context, tenantID, userID string) (int, error) {
	if !validID(userID) {
		return 0, nil
	}
	tag, err := a.pool.Exec(ctx, `DELETE FROM auth_session WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err != nil {
		return 0, fmt.Errorf("pg: delete user sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
