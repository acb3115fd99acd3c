package config

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Tokens.AccessTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Tokens.RefreshTTL)
	assert.Equal(t, "lax", cfg.Cookie.SameSite)
	assert.True(t, cfg.Metrics.Enabled)
	assert.True(t, cfg.Rate.Enabled)
	assert.Equal(t, 20, cfg.Rate.MaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Rate.Window)
	assert.Empty(t, cfg.Server.TrustedProxies)
	require.NoError(t, cfg.Validate())

	// No secret yet.
	_, err = cfg.EngineConfig()
	assert.Error(t, err)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokenauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":8080"
tokens:
  access_ttl: 15m
jwt:
  secret: file-secret-file-secret-file-secret
cookie:
  same_site: strict
  secure: true
log:
  level: debug
`), 0o600))

	t.Setenv("TOKENAUTH_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("TOKENAUTH_TOKENS_REFRESH_TTL", "168h")
	t.Setenv("TOKENAUTH_SERVER_TRUSTED_PROXIES", "10.0.0.0/8,127.0.0.1")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 15*time.Minute, cfg.Tokens.AccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.Tokens.RefreshTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.Server.TrustedProxies)

	engineCfg, err := cfg.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, []byte("file-secret-file-secret-file-secret"), engineCfg.Signer.Secret)
	assert.Equal(t, http.SameSiteStrictMode, engineCfg.Cookie.SameSite)
	assert.True(t, engineCfg.Cookie.Secure)
	assert.Equal(t, 15*time.Minute, engineCfg.Tokens.AccessTTL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Store.Backend = "postgres"
	assert.Error(t, cfg.Validate())
	cfg.Postgres.DSN = "postgres://localhost/tokenauth"
	assert.NoError(t, cfg.Validate())

	cfg.Store.Backend = "memcached"
	assert.Error(t, cfg.Validate())

	cfg.Store.Backend = "redis"
	cfg.Cookie.SameSite = "sometimes"
	assert.Error(t, cfg.Validate())

	cfg.Cookie.SameSite = "lax"
	cfg.Rate.MaxAttempts = 0
	assert.Error(t, cfg.Validate())
	cfg.Rate.Enabled = false
	assert.NoError(t, cfg.Validate())

	cfg.Server.TrustedProxies = []string{"10.0.0.0/33"}
	assert.Error(t, cfg.Validate())
	cfg.Server.TrustedProxies = []string{"10.0.0.0/8", "::1"}
	assert.NoError(t, cfg.Validate())
}
