package pg

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	migrations "github.com/dropDatabas3/authcore/migrations/postgres"
)

type migrateIface interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Close() (source error, database error)
}

// Migrator aplica el esquema embebido en migrations/postgres.
type Migrator struct {
	m migrateIface
}

// MigrateURL convierte postgres:// (o postgresql://) al esquema pgx5:// que
// espera el driver de golang-migrate.
func MigrateURL(dsn string) string {
	for _, p := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(dsn, p); ok {
			return "pgx5://" + rest
		}
	}
	return dsn
}

func NewMigrator(dsn string) (*Migrator, error) {
	src, err := iofs.New(migrations.FS, migrations.Dir)
	if err != nil {
		return nil, fmt.Errorf("pg: migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, MigrateURL(dsn))
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("pg: init migrator: %w", err)
	}
	return &Migrator{m: m}, nil
}

// Up aplica las migraciones pendientes. Sin cambios no es error.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("pg: migrate up: %w", err)
	}
	return nil
}

// Down revierte todo el esquema (borra las tablas).
func (m *Migrator) Down() error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("pg: migrate down: %w", err)
	}
	return nil
}

// Version devuelve 0 si nunca se migró.
func (m *Migrator) Version() (uint, bool, error) {
	v, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("pg: migrate version: %w", err)
	}
	return v, dirty, nil
}

func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}
