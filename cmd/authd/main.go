// authd es el servidor HTTP de authcore.
//
//	authd serve              levanta la API (+ sweeper)
//	authd migrate up|down    aplica el esquema postgres
//	authd sweep              barrido único de sesiones/OTPs vencidos
//	authd bootstrap          asegura el super-admin inicial
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/authcore/internal/bootstrap"
	"github.com/dropDatabas3/authcore/internal/config"
	authhttp "github.com/dropDatabas3/authcore/internal/http"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
	"github.com/dropDatabas3/authcore/internal/store/adapters/pg"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath = os.Getenv("AUTH_CONFIG")
		envFile = ".env"
		cfg     *config.Config
	)

	root := &cobra.Command{
		Use:           "authd",
		Short:         "Servidor de autenticación multi-tenant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env opcional: sin archivo seguimos con el entorno del sistema.
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			var err error
			if cfg, err = config.Load(cfgPath); err != nil {
				return err
			}
			logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "authd", Version: version})
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) { _ = logger.L().Sync() },
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", cfgPath, "Archivo YAML (env AUTH_CONFIG); vacío = defaults + env")
	root.PersistentFlags().StringVar(&envFile, "env-file", envFile, "Archivo .env a cargar si existe")

	cfgFn := func() *config.Config { return cfg }
	root.AddCommand(
		newServeCmd(cfgFn),
		newMigrateCmd(cfgFn),
		newSweepCmd(cfgFn),
		newBootstrapCmd(cfgFn),
		&cobra.Command{
			Use:   "version",
			Short: "Muestra la versión",
			Run:   func(cmd *cobra.Command, _ []string) { fmt.Fprintln(cmd.OutOrStdout(), version) },
		},
	)
	return root
}

// signalContext se cancela con SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// ─── serve ───

func newServeCmd(cfg func() *config.Config) *cobra.Command {
	var noSweep bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta la API HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			c := cfg()
			log := logger.L().With(logger.Component("authd"))
			ctx = logger.ToContext(ctx, log)

			a, err := build(ctx, c)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Warn("shutdown cleanup failed", logger.Err(err))
				}
			}()

			if c.Bootstrap.Email != "" {
				if err := runBootstrap(ctx, cmd, a); err != nil {
					return err
				}
			}

			log.Info("authd starting",
				logger.String("addr", c.Server.Addr),
				logger.Driver(c.Storage.Driver),
				logger.String("env", c.App.Env),
				logger.String("version", version))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return authhttp.NewServer(c.Server.Addr, a.handler).Run(gctx) })
			if !noSweep {
				g.Go(func() error { a.sweeper.Run(gctx); return nil })
			}
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "No correr el sweeper periódico (otra réplica lo hace)")
	return cmd
}

// ─── migrate ───

func newMigrateCmd(cfg func() *config.Config) *cobra.Command {
	run := func(action string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			targets := postgresTargets(cfg())
			if len(targets) == 0 {
				return errors.New("no postgres store configured (storage.driver / storage.tenants)")
			}
			for name, dsn := range targets {
				if err := migrateOne(cmd, action, name, dsn); err != nil {
					return err
				}
			}
			return nil
		}
	}
	cmd := &cobra.Command{Use: "migrate", Short: "Esquema postgres (golang-migrate)"}
	cmd.AddCommand(
		&cobra.Command{Use: "up", Short: "Aplica las migraciones pendientes", RunE: run("up")},
		&cobra.Command{Use: "down", Short: "Revierte todo el esquema", RunE: run("down")},
		&cobra.Command{Use: "version", Short: "Versión aplicada", RunE: run("version")},
	)
	return cmd
}

// postgresTargets: store por defecto y dedicados con driver postgres.
func postgresTargets(c *config.Config) map[string]string {
	isPG := func(d string) bool {
		switch strings.ToLower(strings.TrimSpace(d)) {
		case "postgres", "pg", "postgresql":
			return true
		}
		return false
	}
	out := map[string]string{}
	if isPG(c.Storage.Driver) {
		out["default"] = c.Storage.DSN
	}
	for tenant, ts := range c.Storage.Tenants {
		if isPG(ts.Driver) {
			out["tenant:"+tenant] = ts.DSN
		}
	}
	return out
}

func migrateOne(cmd *cobra.Command, action, name, dsn string) error {
	m, err := pg.NewMigrator(dsn)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	defer m.Close()

	switch action {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	v, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: version=%d dirty=%t\n", name, v, dirty)
	return nil
}

// ─── sweep ───

func newSweepCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Borra una vez las sesiones y OTPs vencidos de todos los stores",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			c := cfg()
			a, err := build(ctx, c)
			if err != nil {
				return err
			}
			defer a.Close()

			// Abrir también los stores dedicados: Each solo ve conexiones abiertas.
			for tenant := range c.Storage.Tenants {
				if _, err := a.stores.For(ctx, tenant); err != nil {
					return fmt.Errorf("open store for %s: %w", tenant, err)
				}
			}
			st, err := a.sweeper.SweepOnce(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "sessions=%d otps=%d\n", st.Sessions, st.OTPs)
			return err
		},
	}
}

// ─── bootstrap ───

func newBootstrapCmd(cfg func() *config.Config) *cobra.Command {
	var tenant, email string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Crea el super-admin inicial del tenant si no existe",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := cfg()
			if tenant != "" {
				c.Bootstrap.Tenant = tenant
			}
			if email != "" {
				c.Bootstrap.Email = email
			}
			ctx := cmd.Context()
			a, err := build(ctx, c)
			if err != nil {
				return err
			}
			defer a.Close()
			return runBootstrap(ctx, cmd, a)
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant (default bootstrap.tenant)")
	cmd.Flags().StringVar(&email, "email", "", "Email del admin (default bootstrap.email)")
	return cmd
}

func runBootstrap(ctx context.Context, cmd *cobra.Command, a *app) error {
	c := a.cfg
	res, err := bootstrap.EnsureSuperAdmin(ctx, a.stores, a.configs, a.validator, bootstrap.AdminConfig{
		TenantID: c.Bootstrap.Tenant,
		Email:    c.Bootstrap.Email,
		Password: c.Bootstrap.Password,
	})
	if err != nil {
		return err
	}
	if !res.Created {
		return nil
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "super admin %s ready in tenant %s (id %s)\n", res.User.Email, c.Bootstrap.Tenant, res.User.ID)
	if res.GeneratedPassword != "" {
		fmt.Fprintf(out, "generated password (shown once): %s\n", res.GeneratedPassword)
	}
	return nil
}
