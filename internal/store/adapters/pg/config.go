package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/store"
)

// ─── AuthConfig ───

const configColumns = `id::text, tenant_id, document, created_at, updated_at`

func (a *Adapter) GetAuthConfig(ctx context.Context, tenantID string) (*domain.AuthConfig, error) {
	c, err := scanConfig(a.pool.QueryRow(ctx,
		`SELECT `+configColumns+` FROM auth_config WHERE tenant_id = $1`, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get auth config: %w", err)
	}
	return c, nil
}

// UpsertAuthConfig inserta el default si falta, bloquea la fila y aplica
// el patch dentro de la misma transacción.
func (a *Adapter) UpsertAuthConfig(ctx context.Context, tenantID string, patch domain.AuthConfigPatch) (*domain.AuthConfig, error) {
	now := a.cfg.Clock()

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pg: upsert auth config: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	def := domain.DefaultAuthConfig(tenantID)
	defDoc, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("pg: upsert auth config: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO auth_config (id, tenant_id, document, created_at, updated_at) VALUES ($1,$2,$3,$4,$4)
		ON CONFLICT (tenant_id) DO NOTHING`, uuid.NewString(), tenantID, defDoc, now)
	if err != nil {
		return nil, fmt.Errorf("pg: upsert auth config: seed: %w", err)
	}

	cur, err := scanConfig(tx.QueryRow(ctx,
		`SELECT `+configColumns+` FROM auth_config WHERE tenant_id = $1 FOR UPDATE`, tenantID))
	if err != nil {
		return nil, fmt.Errorf("pg: upsert auth config: %w", err)
	}

	next, err := domain.ApplyPatch(*cur, patch)
	if err != nil {
		return nil, err
	}
	next.UpdatedAt = now
	if err := a.writeConfig(ctx, tx, next, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("pg: upsert auth config: commit: %w", err)
	}
	return &next, nil
}

func (a *Adapter) writeConfig(ctx context.Context, tx pgx.Tx, c domain.AuthConfig, now time.Time) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("%w: auth config: %v", store.ErrInvalidInput, err)
	}
	_, err = tx.Exec(ctx, `UPDATE auth_config SET document = $2, updated_at = $3 WHERE tenant_id = $1`,
		c.TenantID, doc, now)
	if err != nil {
		return fmt.Errorf("pg: upsert auth config: %w", err)
	}
	return nil
}

// ─── Housekeeping ───

func (a *Adapter) PurgeExpired(ctx context.Context, now time.Time) (store.PurgeStats, error) {
	var st store.PurgeStats
	tag, err := a.pool.Exec(ctx, `DELETE FROM auth_session WHERE expires_at < $1`, now)
	if err != nil {
		return st, fmt.Errorf("pg: purge sessions: %w", err)
	}
	st.Sessions = int(tag.RowsAffected())

	tag, err = a.pool.Exec(ctx, `DELETE FROM auth_otp WHERE expires_at < $1`, now)
	if err != nil {
		return st, fmt.Errorf("pg: purge otps: %w", err)
	}
	st.OTPs = int(tag.RowsAffected())
	return st, nil
}
