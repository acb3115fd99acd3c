package tokenauth

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/tokenauth/signer"
)

func TestConfigValidateRejects(t *testing.T) {
	cases := map[string]struct {
		mutate  func(*Config)
		message string
	}{
		"missing secret":         {func(c *Config) { c.Signer.Secret = nil }, "requires Secret"},
		"ed25519 without key":    {func(c *Config) { c.Signer.Method = signer.MethodEd25519 }, "requires PrivateKey"},
		"unknown method":         {func(c *Config) { c.Signer.Method = "rs256" }, "unsupported"},
		"zero access ttl":        {func(c *Config) { c.Tokens.AccessTTL = 0 }, "AccessTTL"},
		"refresh within access":  {func(c *Config) { c.Tokens.RefreshTTL = c.Tokens.AccessTTL }, "greater than AccessTTL"},
		"negative reset ttl":     {func(c *Config) { c.Tokens.ResetPasswordTTL = -time.Minute }, "ResetPasswordTTL"},
		"zero verify ttl":        {func(c *Config) { c.Tokens.VerifyEmailTTL = 0 }, "VerifyEmailTTL"},
		"leeway over 2m":         {func(c *Config) { c.Signer.Leeway = 3 * time.Minute }, "Leeway"},
		"negative future iat":    {func(c *Config) { c.Signer.MaxFutureIAT = -time.Second }, "MaxFutureIAT"},
		"same cookie names":      {func(c *Config) { c.Cookie.RefreshName = c.Cookie.AccessName }, "must differ"},
		"empty cookie name":      {func(c *Config) { c.Cookie.AccessName = "" }, "required"},
		"samesite none insecure": {func(c *Config) { c.Cookie.SameSite = http.SameSiteNoneMode }, "requires Secure"},
		"audit without buffer":   {func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }, "BufferSize"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.message) {
				t.Fatalf("error %q does not mention %q", err, tc.message)
			}
		})
	}
}

func TestConfigValidateAccepts(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"defaults":                func(*Config) {},
		"leeway within bound":     func(c *Config) { c.Signer.Leeway = 45 * time.Second },
		"samesite none secure":    func(c *Config) { c.Cookie.SameSite = http.SameSiteNoneMode; c.Cookie.Secure = true },
		"audit with buffer":       func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 8 },
		"empty method means hmac": func(c *Config) { c.Signer.Method = "" },
	} {
		cfg := testConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err != nil {
			t.Errorf("%s: unexpected error %v", name, err)
		}
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Tokens.AccessTTL != 30*time.Minute || cfg.Tokens.RefreshTTL != 30*24*time.Hour {
		t.Fatalf("unexpected token lifetimes %+v", cfg.Tokens)
	}
	if cfg.Tokens.ResetPasswordTTL != 10*time.Minute || cfg.Tokens.VerifyEmailTTL != 10*time.Minute {
		t.Fatalf("unexpected single-use lifetimes %+v", cfg.Tokens)
	}
	if cfg.Cookie.AccessName != "accessToken" || cfg.Cookie.RefreshName != "refreshToken" {
		t.Fatalf("unexpected cookie names %+v", cfg.Cookie)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("defaults without a secret must not validate")
	}
}

func TestCloneConfigCopiesKeyMaterial(t *testing.T) {
	cfg := testConfig()
	clone := cloneConfig(cfg)
	clone.Signer.Secret[0] ^= 0xff
	if cfg.Signer.Secret[0] == clone.Signer.Secret[0] {
		t.Fatal("clone shares the secret backing array")
	}
}
