// Package config loads tokenauth-server settings from a YAML file and
// TOKENAUTH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/middleware"
	"github.com/MrEthical07/tokenauth/signer"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// TOKENAUTH_REDIS_ADDR for redis.addr.
const EnvPrefix = "TOKENAUTH"

type Config struct {
	Server   Server   `mapstructure:"server"`
	Store    Store    `mapstructure:"store"`
	Redis    Redis    `mapstructure:"redis"`
	Postgres Postgres `mapstructure:"postgres"`
	Tokens   Tokens   `mapstructure:"tokens"`
	JWT      JWT      `mapstructure:"jwt"`
	Cookie   Cookie   `mapstructure:"cookie"`
	NATS     NATS     `mapstructure:"nats"`
	Links    Links    `mapstructure:"links"`
	Log      Log      `mapstructure:"log"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Audit    Audit    `mapstructure:"audit"`
	Rate     Rate     `mapstructure:"rate_limit"`
}

type Server struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	PurgeInterval   time.Duration `mapstructure:"purge_interval"`
	// TrustedProxies lists the peers (addresses or CIDRs) whose
	// X-Forwarded-For is believed. Empty means the socket address is used.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// Store selects the token store backend: "redis" or "postgres".
type Store struct {
	Backend string `mapstructure:"backend"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type Postgres struct {
	DSN string `mapstructure:"dsn"`
}

type Tokens struct {
	AccessTTL        time.Duration `mapstructure:"access_ttl"`
	RefreshTTL       time.Duration `mapstructure:"refresh_ttl"`
	ResetPasswordTTL time.Duration `mapstructure:"reset_password_ttl"`
	VerifyEmailTTL   time.Duration `mapstructure:"verify_email_ttl"`
}

type JWT struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
	Leeway   time.Duration `mapstructure:"leeway"`
}

type Cookie struct {
	Domain   string `mapstructure:"domain"`
	Secure   bool   `mapstructure:"secure"`
	SameSite string `mapstructure:"same_site"`
}

// NATS enables the NATS notifier when URL is set.
type NATS struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type Links struct {
	ResetPasswordURL string `mapstructure:"reset_password_url"`
	VerifyEmailURL   string `mapstructure:"verify_email_url"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Metrics struct {
	Enabled bool `mapstructure:"enabled"`
	Latency bool `mapstructure:"latency"`
}

type Audit struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
}

// Rate throttles failed logins and reset requests. It needs Redis and is
// skipped on the postgres backend.
type Rate struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Window      time.Duration `mapstructure:"window"`
}

func setDefaults(v *viper.Viper) {
	def := tokenauth.DefaultConfig()

	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.purge_interval", time.Hour)
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("store.backend", "redis")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", def.Store.RedisPrefix)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("tokens.access_ttl", def.Tokens.AccessTTL)
	v.SetDefault("tokens.refresh_ttl", def.Tokens.RefreshTTL)
	v.SetDefault("tokens.reset_password_ttl", def.Tokens.ResetPasswordTTL)
	v.SetDefault("tokens.verify_email_ttl", def.Tokens.VerifyEmailTTL)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "")
	v.SetDefault("jwt.audience", "")
	v.SetDefault("jwt.leeway", time.Duration(0))
	v.SetDefault("cookie.domain", "")
	v.SetDefault("cookie.secure", false)
	v.SetDefault("cookie.same_site", "lax")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "tokenauth.notify")
	v.SetDefault("links.reset_password_url", "http://localhost:3000/reset-password")
	v.SetDefault("links.verify_email_url", "http://localhost:3000/verify-email")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.latency", false)
	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.buffer_size", def.Audit.BufferSize)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.max_attempts", 20)
	v.SetDefault("rate_limit.window", 15*time.Minute)
}

// Load reads path (optional) and applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks server-level settings. Engine settings are validated by the
// builder.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if _, err := middleware.NewProxyTrust(c.Server.TrustedProxies); err != nil {
		return fmt.Errorf("server.trusted_proxies: %w", err)
	}
	switch c.Store.Backend {
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required for the redis store")
		}
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	if _, err := parseSameSite(c.Cookie.SameSite); err != nil {
		return err
	}
	if c.Rate.Enabled && (c.Rate.MaxAttempts <= 0 || c.Rate.Window <= 0) {
		return errors.New("rate_limit.max_attempts and rate_limit.window must be > 0")
	}
	return nil
}

// EngineConfig converts c into a tokenauth.Config.
func (c *Config) EngineConfig() (tokenauth.Config, error) {
	cfg := tokenauth.DefaultConfig()

	cfg.Tokens = tokenauth.TokenConfig{
		AccessTTL:        c.Tokens.AccessTTL,
		RefreshTTL:       c.Tokens.RefreshTTL,
		ResetPasswordTTL: c.Tokens.ResetPasswordTTL,
		VerifyEmailTTL:   c.Tokens.VerifyEmailTTL,
	}
	cfg.Signer.Method = signer.MethodHS256
	cfg.Signer.Secret = []byte(c.JWT.Secret)
	cfg.Signer.Issuer = c.JWT.Issuer
	cfg.Signer.Audience = c.JWT.Audience
	cfg.Signer.Leeway = c.JWT.Leeway
	cfg.Store.RedisPrefix = c.Redis.Prefix

	sameSite, err := parseSameSite(c.Cookie.SameSite)
	if err != nil {
		return tokenauth.Config{}, err
	}
	cfg.Cookie.Domain = c.Cookie.Domain
	cfg.Cookie.Secure = c.Cookie.Secure
	cfg.Cookie.SameSite = sameSite

	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = c.Metrics.Latency
	cfg.Audit.Enabled = c.Audit.Enabled
	cfg.Audit.BufferSize = c.Audit.BufferSize

	return cfg, cfg.Validate()
}

func parseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(s) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("unknown cookie.same_site %q", s)
	}
}
