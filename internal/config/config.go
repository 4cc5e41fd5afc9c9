package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/authcore/internal/security/token"
)

// Window es un límite {limit, window} de un endpoint.
type Window struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"`
}

// Duration parsea Window; vacío o inválido devuelve 0 (límite apagado).
func (w Window) Duration() time.Duration {
	d, _ := time.ParseDuration(strings.TrimSpace(w.Window))
	return d
}

// TenantStore es un store dedicado para un tenant puntual.
type TenantStore struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr        string   `yaml:"addr"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`

	Storage struct {
		// memory | postgres | redis
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns int32 `yaml:"max_conns"`
			MinConns int32 `yaml:"min_conns"`
		} `yaml:"postgres"`
		ConnectRetries uint64 `yaml:"connect_retries"`
		// Tenants: tenantID → store dedicado (el resto usa el default).
		Tenants map[string]TenantStore `yaml:"tenants"`
	} `yaml:"storage"`

	// Redis compartido por rate limit y cache (no por el adapter redis,
	// que usa storage.dsn).
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`

	Cache struct {
		Kind string `yaml:"kind"` // memory | redis
		TTL  string `yaml:"ttl"`
	} `yaml:"cache"`

	Auth struct {
		SessionDuration string `yaml:"session_duration"`
		SweepInterval   string `yaml:"sweep_interval"`
		// StateSecret firma el state del flujo OAuth.
		StateSecret string `yaml:"state_secret"`
	} `yaml:"auth"`

	Rate struct {
		Enabled bool   `yaml:"enabled"`
		Login   Window `yaml:"login"`
		Signup  Window `yaml:"signup"`
		OTP     Window `yaml:"otp"`
	} `yaml:"rate"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"`                  // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"smtp"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`

	// Bootstrap: super-admin inicial. Email vacío = no se crea.
	Bootstrap struct {
		Tenant   string `yaml:"tenant"`
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
	} `yaml:"bootstrap"`

	// BlacklistPath: un password prohibido por línea. Vacío = lista embebida.
	BlacklistPath string `yaml:"blacklist_path"`
}

// Default devuelve la configuración sin YAML: memory store, dev.
func Default() *Config {
	var c Config
	c.setDefaults()
	return &c
}

// Load lee path (si no es vacío), aplica defaults, overrides AUTH_* y valida.
func Load(path string) (*Config, error) {
	var c Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	// Overrides por env antes de defaults: un env vacío no pisa nada.
	c.applyEnvOverrides()
	c.setDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	// Normalizar ruta de blacklist (si relativa) respecto al directorio del YAML
	if p := strings.TrimSpace(c.BlacklistPath); p != "" && path != "" {
		if !filepath.IsAbs(p) {
			c.BlacklistPath = filepath.Clean(filepath.Join(filepath.Dir(path), p))
		}
	}
	return &c, nil
}

func (c *Config) setDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Postgres.MaxConns == 0 {
		c.Storage.Postgres.MaxConns = 10
	}
	if c.Storage.ConnectRetries == 0 {
		c.Storage.ConnectRetries = 5
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "authcore"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.TTL == "" {
		c.Cache.TTL = "1m"
	}
	if c.Auth.SessionDuration == "" {
		c.Auth.SessionDuration = "168h" // 7d
	}
	if c.Auth.SweepInterval == "" {
		c.Auth.SweepInterval = "5m"
	}
	// Endpoint-specific rate limit defaults
	if c.Rate.Login.Limit == 0 {
		c.Rate.Login.Limit = 10
	}
	if c.Rate.Login.Window == "" {
		c.Rate.Login.Window = "1m"
	}
	if c.Rate.Signup.Limit == 0 {
		c.Rate.Signup.Limit = 5
	}
	if c.Rate.Signup.Window == "" {
		c.Rate.Signup.Window = "10m"
	}
	if c.Rate.OTP.Limit == 0 {
		c.Rate.OTP.Limit = 5
	}
	if c.Rate.OTP.Window == "" {
		c.Rate.OTP.Window = "10m"
	}
	// SMTP defaults
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Bootstrap.Tenant == "" {
		c.Bootstrap.Tenant = "default"
	}
}

// IsProd indica app.env=prod.
func (c *Config) IsProd() bool { return strings.EqualFold(c.App.Env, "prod") }

func (c *Config) SessionDuration() time.Duration { return mustDur(c.Auth.SessionDuration) }
func (c *Config) SweepInterval() time.Duration   { return mustDur(c.Auth.SweepInterval) }
func (c *Config) CacheTTL() time.Duration        { return mustDur(c.Cache.TTL) }

// mustDur asume un valor ya validado por Validate.
func mustDur(s string) time.Duration {
	d, _ := time.ParseDuration(strings.TrimSpace(s))
	return d
}

// ---- Helpers env ----

const envPrefix = "AUTH_"

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(envPrefix + key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa el YAML con variables AUTH_*.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ORIGINS"); ok {
		c.Server.CORSOrigins = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_CONNS"); ok {
		c.Storage.Postgres.MaxConns = int32(v)
	}
	if v, ok := getEnvInt("POSTGRES_MIN_CONNS"); ok {
		c.Storage.Postgres.MinConns = int32(v)
	}

	// REDIS
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Redis.Prefix = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("CACHE_TTL"); ok {
		c.Cache.TTL = v
	}

	// AUTH
	if v, ok := getEnvStr("SESSION_DURATION"); ok {
		c.Auth.SessionDuration = v
	}
	if v, ok := getEnvStr("SWEEP_INTERVAL"); ok {
		c.Auth.SweepInterval = v
	}
	if v, ok := getEnvStr("STATE_SECRET"); ok {
		c.Auth.StateSecret = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvInt("RATE_LOGIN_LIMIT"); ok {
		c.Rate.Login.Limit = v
	}
	if v, ok := getEnvStr("RATE_LOGIN_WINDOW"); ok {
		c.Rate.Login.Window = v
	}
	if v, ok := getEnvInt("RATE_SIGNUP_LIMIT"); ok {
		c.Rate.Signup.Limit = v
	}
	if v, ok := getEnvStr("RATE_SIGNUP_WINDOW"); ok {
		c.Rate.Signup.Window = v
	}
	if v, ok := getEnvInt("RATE_OTP_LIMIT"); ok {
		c.Rate.OTP.Limit = v
	}
	if v, ok := getEnvStr("RATE_OTP_WINDOW"); ok {
		c.Rate.OTP.Window = v
	}

	// SMTP
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvStr("SMTP_TLS"); ok {
		c.SMTP.TLS = strings.ToLower(v) // auto|starttls|ssl|none
	}
	if v, ok := getEnvBool("SMTP_INSECURE_SKIP_VERIFY"); ok {
		c.SMTP.InsecureSkipVerify = v
	}

	// LOG / METRICS
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := getEnvBool("METRICS_ENABLED"); ok {
		c.Metrics.Enabled = v
	}
	// BOOTSTRAP
	if v, ok := getEnvStr("BOOTSTRAP_TENANT"); ok {
		c.Bootstrap.Tenant = v
	}
	if v, ok := getEnvStr("BOOTSTRAP_EMAIL"); ok {
		c.Bootstrap.Email = v
	}
	if v, ok := getEnvStr("BOOTSTRAP_PASSWORD"); ok {
		c.Bootstrap.Password = v
	}

	if v, ok := getEnvStr("BLACKLIST_PATH"); ok {
		c.BlacklistPath = strings.TrimSpace(v)
	}
}

// Validate rechaza combinaciones sin sentido. Corre después de los defaults.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Storage.Driver) {
	case "memory", "mem":
	case "postgres", "pg", "postgresql", "redis":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not supported (memory|postgres|redis)", c.Storage.Driver))
	}
	for tenant, ts := range c.Storage.Tenants {
		if strings.TrimSpace(ts.Driver) == "" || strings.TrimSpace(ts.DSN) == "" {
			errs = append(errs, fmt.Errorf("storage.tenants.%s needs driver and dsn", tenant))
		}
	}
	if c.Storage.Postgres.MinConns > c.Storage.Postgres.MaxConns {
		errs = append(errs, errors.New("storage.postgres.min_conns exceeds max_conns"))
	}

	switch strings.ToLower(c.Cache.Kind) {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("cache.kind=redis requires redis.addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.kind %q is not supported (memory|redis)", c.Cache.Kind))
	}

	// validate string durations
	for key, v := range map[string]string{
		"cache.ttl":             c.Cache.TTL,
		"auth.session_duration": c.Auth.SessionDuration,
		"auth.sweep_interval":   c.Auth.SweepInterval,
		"rate.login.window":     c.Rate.Login.Window,
		"rate.signup.window":    c.Rate.Signup.Window,
		"rate.otp.window":       c.Rate.OTP.Window,
	} {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, v))
		}
	}

	switch c.SMTP.TLS {
	case "auto", "starttls", "ssl", "none":
	default:
		errs = append(errs, fmt.Errorf("smtp.tls %q is not supported", c.SMTP.TLS))
	}

	if c.Bootstrap.Email != "" {
		if err := token.ValidateTenantID(c.Bootstrap.Tenant); err != nil {
			errs = append(errs, fmt.Errorf("bootstrap.tenant: %w", err))
		}
	}

	// Guardia dura: en prod el state OAuth no puede firmarse con un secreto efímero.
	if c.IsProd() && len(c.Auth.StateSecret) < 32 {
		errs = append(errs, errors.New("auth.state_secret must be at least 32 bytes in prod"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
