package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/authcore/internal/auth"
	"github.com/dropDatabas3/authcore/internal/auth/providers"
	"github.com/dropDatabas3/authcore/internal/cache"
	"github.com/dropDatabas3/authcore/internal/config"
	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/http/router"
	"github.com/dropDatabas3/authcore/internal/metrics"
	"github.com/dropDatabas3/authcore/internal/notify"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
	"github.com/dropDatabas3/authcore/internal/rate"
	"github.com/dropDatabas3/authcore/internal/security/password"
	"github.com/dropDatabas3/authcore/internal/store"

	// Drivers: se registran en init().
	_ "github.com/dropDatabas3/authcore/internal/store/adapters/memory"
	_ "github.com/dropDatabas3/authcore/internal/store/adapters/pg"
	_ "github.com/dropDatabas3/authcore/internal/store/adapters/redis"
)

// app agrupa todo lo que arma build; Close libera en orden inverso.
type app struct {
	cfg       *config.Config
	stores    *store.Manager
	rdb       *redis.Client
	cache     cache.Client
	configs   *cache.ConfigCache
	validator *password.Validator
	engine    *auth.Engine
	sweeper   *auth.Sweeper
	metrics   *metrics.Metrics
	handler   http.Handler
}

// storeConfigs traduce storage.* a la config del Manager.
func storeConfigs(cfg *config.Config) (store.AdapterConfig, map[string]store.AdapterConfig) {
	def := store.AdapterConfig{
		Driver:         cfg.Storage.Driver,
		DSN:            cfg.Storage.DSN,
		MaxConns:       cfg.Storage.Postgres.MaxConns,
		MinConns:       cfg.Storage.Postgres.MinConns,
		KeyPrefix:      cfg.Redis.Prefix + ":",
		ConnectRetries: cfg.Storage.ConnectRetries,
	}
	overrides := make(map[string]store.AdapterConfig, len(cfg.Storage.Tenants))
	for tenant, ts := range cfg.Storage.Tenants {
		o := def
		o.Driver, o.DSN = ts.Driver, ts.DSN
		overrides[tenant] = o
	}
	return def, overrides
}

func build(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	log := logger.From(ctx)
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// ─── Storage ───
	def, overrides := storeConfigs(cfg)
	a.stores = store.NewManager(def, overrides)
	a.stores.OnOpen = func(key, driver string) {
		log.Info("store connection opened", logger.String("store", key), logger.Driver(driver))
	}
	if _, err := a.stores.Default(ctx); err != nil {
		return nil, err
	}

	// ─── Redis compartido (rate limit + cache) ───
	if cfg.Redis.Addr != "" {
		a.rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	// ─── Cache de AuthConfig ───
	a.cache, err = cache.New(cache.Config{Kind: cfg.Cache.Kind, Prefix: cfg.Redis.Prefix, DefaultTTL: cfg.CacheTTL()}, a.rdb)
	if err != nil {
		return nil, err
	}
	a.configs = cache.NewConfigCache(a.cache, a.stores, cfg.CacheTTL())

	// ─── Password policy ───
	bl, err := password.LoadBlacklist(cfg.BlacklistPath)
	if err != nil {
		return nil, fmt.Errorf("load blacklist: %w", err)
	}
	a.validator = &password.Validator{Blacklist: bl}

	// ─── Rate limits ───
	idLimits, ipLimits := limits(cfg, a.rdb)

	// ─── OAuth state ───
	secret := []byte(cfg.Auth.StateSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, err
		}
		log.Warn("auth.state_secret not set; using an ephemeral secret (OAuth states die on restart)")
	}

	// ─── Observabilidad ───
	var obs auth.Observer
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(a.stores)
		obs = a.metrics
	}

	a.engine, err = auth.NewEngine(auth.Deps{
		Stores:   a.stores,
		Configs:  a.configs,
		Sessions: auth.NewSessionManager(a.stores, cfg.SessionDuration()),
		Providers: auth.NewRegistry(
			providers.NewEmailPassword(a.stores, a.configs, a.validator),
			providers.NewGoogle(a.stores, a.configs),
			providers.NewGitHub(a.stores, a.configs),
		),
		States:    auth.NewStateSigner(secret, 0),
		Notifier:  notifier(cfg),
		Limits:    idLimits,
		Validator: a.validator,
		Observer:  obs,
	})
	if err != nil {
		return nil, err
	}
	a.sweeper = auth.NewSweeper(a.stores, cfg.SweepInterval(), obs)

	a.handler = router.New(router.Deps{
		Engine:      a.engine,
		Stores:      a.stores,
		Metrics:     a.metrics,
		IPLimits:    ipLimits,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	return a, nil
}

// limits arma los limiters por identifier (Engine) y por IP (router).
// Con rate.enabled=false ambos quedan vacíos (sin límite).
func limits(cfg *config.Config, rdb *redis.Client) (ident, ip auth.Limits) {
	if !cfg.Rate.Enabled {
		return auth.Limits{}, auth.Limits{}
	}
	rule := func(w config.Window) rate.Rule { return rate.Rule{Max: w.Limit, Window: w.Duration()} }
	mk := func(kind string) auth.Limits {
		prefix := cfg.Redis.Prefix + ":rl:" + kind
		return auth.Limits{
			Login:  rate.New(rdb, prefix+":login", rule(cfg.Rate.Login)),
			Signup: rate.New(rdb, prefix+":signup", rule(cfg.Rate.Signup)),
			OTP:    rate.New(rdb, prefix+":otp", rule(cfg.Rate.OTP)),
		}
	}
	return mk("id"), mk("ip")
}

// notifier: email por SMTP si hay host, si no todo a consola.
func notifier(cfg *config.Config) notify.Router {
	console := notify.NewConsole(os.Stdout)
	var email notify.Sender = console
	if strings.TrimSpace(cfg.SMTP.Host) != "" {
		email = notify.NewSMTPSender(notify.SMTPConfig{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			From:               cfg.SMTP.From,
			Username:           cfg.SMTP.Username,
			Password:           cfg.SMTP.Password,
			TLSMode:            cfg.SMTP.TLS,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
		})
	} else if cfg.IsProd() {
		logger.L().Warn("smtp.host not set; email OTPs go to stdout")
	}
	return notify.Router{
		domain.ChannelEmail:    email,
		domain.ChannelSMS:      console,
		domain.ChannelWhatsApp: console,
	}
}

func (a *app) Close() error {
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	if a.stores != nil {
		errs = append(errs, a.stores.CloseAll())
	}
	return errors.Join(errs...)
}
