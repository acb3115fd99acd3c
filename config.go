package tokenauth

import (
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/tokenauth/signer"
)

// Config is the full engine configuration. Start from [DefaultConfig] and
// override what the deployment needs; [Builder.Build] validates it once.
type Config struct {
	Tokens  TokenConfig
	Signer  SignerConfig
	Store   StoreConfig
	Cookie  CookieConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig holds the lifetime of each token type.
type TokenConfig struct {
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	ResetPasswordTTL time.Duration
	VerifyEmailTTL   time.Duration
}

/*
====================================
SIGNER CONFIG
====================================
*/

// SignerConfig selects the signing algorithm and key material.
type SignerConfig struct {
	Method       signer.Method
	Secret       []byte
	PrivateKey   []byte
	PublicKey    []byte
	Issuer       string
	Audience     string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig configures the Redis token store created by [Builder.WithRedis].
type StoreConfig struct {
	RedisPrefix string
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig controls the cookies written by the HTTP transports.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	Path        string
	Domain      string
	Secure      bool
	SameSite    http.SameSite
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters and gate latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULTS
====================================
*/

// DefaultConfig returns the baseline configuration. The signing secret is
// left empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		Tokens: TokenConfig{
			AccessTTL:        30 * time.Minute,
			RefreshTTL:       30 * 24 * time.Hour,
			ResetPasswordTTL: 10 * time.Minute,
			VerifyEmailTTL:   10 * time.Minute,
		},
		Signer: SignerConfig{
			Method:       signer.MethodHS256,
			MaxFutureIAT: 10 * time.Minute,
		},
		Store: StoreConfig{
			RedisPrefix: "tok",
		},
		Cookie: CookieConfig{
			AccessName:  "accessToken",
			RefreshName: "refreshToken",
			Path:        "/",
			SameSite:    http.SameSiteLaxMode,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func defaultConfig() Config {
	return DefaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Signer.Secret = cloneBytes(cfg.Signer.Secret)
	out.Signer.PrivateKey = cloneBytes(cfg.Signer.PrivateKey)
	out.Signer.PublicKey = cloneBytes(cfg.Signer.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c SignerConfig) signerConfig(now func() time.Time) signer.Config {
	return signer.Config{
		Method:       c.Method,
		Secret:       cloneBytes(c.Secret),
		PrivateKey:   cloneBytes(c.PrivateKey),
		PublicKey:    cloneBytes(c.PublicKey),
		Issuer:       c.Issuer,
		Audience:     c.Audience,
		Leeway:       c.Leeway,
		MaxFutureIAT: c.MaxFutureIAT,
		Now:          now,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error. Key material is parsed
// when the signer is constructed.
func (c *Config) Validate() error {
	// Tokens
	if c.Tokens.AccessTTL <= 0 {
		return errors.New("Tokens AccessTTL must be > 0")
	}
	if c.Tokens.RefreshTTL <= 0 {
		return errors.New("Tokens RefreshTTL must be > 0")
	}
	if c.Tokens.RefreshTTL <= c.Tokens.AccessTTL {
		return errors.New("Tokens RefreshTTL must be greater than AccessTTL")
	}
	if c.Tokens.ResetPasswordTTL <= 0 {
		return errors.New("Tokens ResetPasswordTTL must be > 0")
	}
	if c.Tokens.VerifyEmailTTL <= 0 {
		return errors.New("Tokens VerifyEmailTTL must be > 0")
	}

	// Signer
	switch c.Signer.Method {
	case signer.MethodHS256, "":
		if len(c.Signer.Secret) == 0 {
			return errors.New("hs256 requires Secret")
		}
	case signer.MethodEd25519:
		if len(c.Signer.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
	default:
		return errors.New("unsupported signing method")
	}
	if c.Signer.Leeway < 0 || c.Signer.Leeway > 2*time.Minute {
		return errors.New("Signer Leeway must be between 0 and 2m")
	}
	if c.Signer.MaxFutureIAT < 0 {
		return errors.New("Signer MaxFutureIAT must be >= 0")
	}

	// Cookies
	if c.Cookie.AccessName == "" || c.Cookie.RefreshName == "" {
		return errors.New("Cookie AccessName and RefreshName are required")
	}
	if c.Cookie.AccessName == c.Cookie.RefreshName {
		return errors.New("Cookie AccessName and RefreshName must differ")
	}
	if c.Cookie.SameSite == http.SameSiteNoneMode && !c.Cookie.Secure {
		return errors.New("Cookie SameSite=None requires Secure")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
