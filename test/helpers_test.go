package test

import (
	"context"
	"strings"
	"testing"

	"github.com/MrEthical07/tokenauth"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testSecret = "integration-secret-integration-secret"

type principalMap map[string]*tokenauth.Principal

func (m principalMap) FindByID(_ context.Context, id string) (*tokenauth.Principal, error) {
	p, ok := m[id]
	if !ok {
		return nil, tokenauth.ErrPrincipalNotFound
	}
	cp := *p
	return &cp, nil
}

func (m principalMap) FindByEmail(_ context.Context, email string) (*tokenauth.Principal, error) {
	for _, p := range m {
		if strings.EqualFold(p.Email, email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, tokenauth.ErrPrincipalNotFound
}

func defaultPrincipals() principalMap {
	return principalMap{
		"42": {ID: "42", Email: "alice@example.com", Name: "Alice", Role: "user"},
		"7":  {ID: "7", Email: "root@example.com", Name: "Root", Role: "admin"},
	}
}

func newRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func newIntegrationEngine(t testing.TB, rdb redis.UniversalClient) *tokenauth.Engine {
	t.Helper()

	cfg := tokenauth.DefaultConfig()
	cfg.Signer.Secret = []byte(testSecret)

	engine, err := tokenauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithPrincipalStore(defaultPrincipals()).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

type cookieJar struct {
	access  string
	refresh string
}

func (c *cookieJar) Tokens() (string, string) { return c.access, c.refresh }

func (c *cookieJar) SetTokens(pair *tokenauth.AuthTokenPair) {
	c.access = pair.Access.Token
	c.refresh = pair.Refresh.Token
}
