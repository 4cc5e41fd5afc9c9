// Package pg implementa store.Adapter sobre PostgreSQL con pgx/v5.
//
// Todas las tablas llevan tenant_id; un mismo pool puede servir a muchos
// tenants. La unicidad (tenant, email) y (tenant, identifier, purpose) la
// garantizan índices únicos, no lecturas previas.
package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/authcore/internal/store"
)

func init() {
	store.Register(driver{})
}

type driver struct{}

func (driver) Name() string { return "postgres" }

func (driver) Open(ctx context.Context, cfg store.AdapterConfig) (store.Adapter, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse DSN: %w", err)
	}
	poolCfg.MaxConns = 10
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 2
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	return New(pool, cfg), nil
}

// Pool es el subconjunto de *pgxpool.Pool que usa el adapter; en tests se
// satisface con pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Adapter es el store postgres.
type Adapter struct {
	pool Pool
	cfg  store.AdapterConfig
}

var _ store.Adapter = (*Adapter)(nil)

// New envuelve un pool ya creado.
func New(pool Pool, cfg store.AdapterConfig) *Adapter {
	cfg.Driver = "postgres"
	return &Adapter{pool: pool, cfg: cfg.WithDefaults()}
}

func (a *Adapter) Name() string { return "postgres" }

func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("pg: ping: %w", err)
	}
	return nil
}

func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}

// Nombres de constraints de 0001_auth_core.up.sql.
const (
	constraintEmail    = "auth_user_tenant_email_uq"
	constraintUsername = "auth_user_tenant_username_uq"
)

// mapUniqueViolation traduce violaciones de unicidad a errores del contrato.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case constraintEmail:
		return store.ErrEmailInUse
	case constraintUsername:
		return store.ErrUsernameInUse
	}
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
