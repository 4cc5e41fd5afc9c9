package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/store"
)

// ─── OTP ───

// UpsertOTP reemplaza atómicamente el OTP de (tenant, identifier, purpose)
// apoyándose en auth_otp_key_uq.
func (a *Adapter) UpsertOTP(ctx context.Context, o domain.OtpSession) (*domain.OtpSession, error) {
	o, err := store.PrepareOTP(o, a.cfg.Clock())
	if err != nil {
		return nil, err
	}
	const q = `INSERT INTO auth_otp (id, tenant_id, identifier, purpose, channel, code, expires_at, attempts, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8)
		ON CONFLICT ON CONSTRAINT auth_otp_key_uq DO UPDATE SET
			id = EXCLUDED.id, channel = EXCLUDED.channel, code = EXCLUDED.code,
			expires_at = EXCLUDED.expires_at, attempts = 0, created_at = EXCLUDED.created_at`
	_, err = a.pool.Exec(ctx, q, o.ID, o.TenantID, o.Identifier, string(o.Purpose), string(o.Channel),
		o.Code, o.ExpiresAt, o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("pg: upsert otp: %w", err)
	}
	return &o, nil
}

func (a *Adapter) GetOTP(ctx context.Context, tenantID, identifier string, purpose domain.OTPPurpose) (*domain.OtpSession, error) {
	o, err := scanOTP(a.pool.QueryRow(ctx,
		`SELECT `+otpColumns+` FROM auth_otp WHERE tenant_id = $1 AND identifier = $2 AND purpose = $3`,
		tenantID, identifier, string(purpose)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get otp: %w", err)
	}
	return o, nil
}

func (a *Adapter) IncrementOTPAttempts(ctx context.Context, tenantID, identifier string, purpose domain.OTPPurpose) (int, error) {
	var n int
	err := a.pool.QueryRow(ctx,
		`UPDATE auth_otp SET attempts = attempts + 1
		WHERE tenant_id = $1 AND identifier = $2 AND purpose = $3 RETURNING attempts`,
		tenantID, identifier, string(purpose)).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("pg: increment otp attempts: %w", err)
	}
	return n, nil
}

func (a *Adapter) DeleteOTP(ctx context.Context, tenantID, identifier string, purpose domain.OTPPurpose) error {
	_, err := a.pool.Exec(ctx, `DELETE FROM auth_otp WHERE tenant_id = $1 AND identifier = $2 AND purpose = $3`,
		tenantID, identifier, string(purpose))
	if err != nil {
		return fmt.Errorf("pg: delete otp: %w", err)
	}
	return nil
}

// ReserveOTPAttempt bloquea la fila del OTP vigente y decide dentro de la
// misma transacción: dos verificaciones concurrentes nunca ven el mismo
// contador.
func (a *Adapter) ReserveOTPAttempt(ctx context.Context, tenantID, identifier string, purpose domain.OTPPurpose, id string, maxAttempts int, now time.Time) (*domain.OtpSession, store.OTPAttempt, error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, store.OTPAttemptMissing, fmt.Errorf("pg: reserve otp attempt: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOTP(tx.QueryRow(ctx,
		`SELECT `+otpColumns+` FROM auth_otp
		WHERE tenant_id = $1 AND identifier = $2 AND purpose = $3 AND id = $4 FOR UPDATE`,
		tenantID, identifier, string(purpose), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.OTPAttemptMissing, nil
	}
	if err != nil {
		return nil, store.OTPAttemptMissing, fmt.Errorf("pg: reserve otp attempt: %w", err)
	}

	st := store.OTPAttemptGranted
	switch {
	case o.Expired(now):
		st = store.OTPAttemptExpired
	case o.Attempts >= maxAttempts:
		st = store.OTPAttemptExhausted
	}
	if st != store.OTPAttemptGranted {
		if _, err := tx.Exec(ctx, `DELETE FROM auth_otp WHERE id = $1`, id); err != nil {
			return nil, store.OTPAttemptMissing, fmt.Errorf("pg: reserve otp attempt: delete: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, store.OTPAttemptMissing, fmt.Errorf("pg: reserve otp attempt: commit: %w", err)
		}
		return nil, st, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE auth_otp SET attempts = attempts + 1 WHERE id = $1`, id); err != nil {
		return nil, store.OTPAttemptMissing, fmt.Errorf("pg: reserve otp attempt: increment: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, store.OTPAttemptMissing, fmt.Errorf("pg: reserve otp attempt: commit: %w", err)
	}
	o.Attempts++
	return o, store.OTPAttemptGranted, nil
}

// ConsumeOTP borra el OTP sólo si sigue siendo el registro id; el DELETE
// condicional lo gana una única verificación.
func (a *Adapter) ConsumeOTP(ctx context.Context, tenantID, identifier string, purpose domain.OTPPurpose, id string) (bool, error) {
	tag, err := a.pool.Exec(ctx,
		`DELETE FROM auth_otp WHERE tenant_id = $1 AND identifier = $2 AND purpose = $3 AND id = $4`,
		tenantID, identifier, string(purpose), id)
	if err != nil {
		return false, fmt.Errorf("pg: consume otp: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
