package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/MrEthical07/tokenauth/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type testServer struct {
	t       *testing.T
	app     *app
	handler http.Handler
	logs    *observer.ObservedLogs
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)
	for _, m := range mutate {
		m(cfg)
	}

	core, logs := observer.New(zapcore.InfoLevel)
	a, closers, err := buildApp(context.Background(), cfg, serveOptions{
		dev:           true,
		adminEmail:    "root@example.com",
		adminPassword: "rootpass1",
	}, zap.New(core))
	require.NoError(t, err)
	t.Cleanup(func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	})

	return &testServer{t: t, app: a, handler: a.routes(), logs: logs}
}

func (s *testServer) do(method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(email, pw string) []*http.Cookie {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/v1/auth/login", credentials{Email: email, Password: pw})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.Len(s.t, cookies, 2)
	return cookies
}

func cookieNamed(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// lastLinkToken pulls the token out of the most recent logged link.
func (s *testServer) lastLinkToken(kind string) string {
	s.t.Helper()
	entries := s.logs.FilterMessage("notification").All()
	for i := len(entries) - 1; i >= 0; i-- {
		fields := entries[i].ContextMap()
		if fields["kind"] != kind {
			continue
		}
		u, err := url.Parse(fields["link"].(string))
		require.NoError(s.t, err)
		return u.Query().Get("token")
	}
	s.t.Fatalf("no %s link logged", kind)
	return ""
}

func TestRegisterLoginAndUserAccess(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/v1/auth/register", credentials{Email: "alice@example.com", Password: "password1", Name: "Alice"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var registered struct {
		User   userView `json:"user"`
		Tokens struct {
			Access struct {
				Token string `json:"token"`
			} `json:"access"`
		} `json:"tokens"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&registered))
	assert.Equal(t, "2", registered.User.ID)
	assert.NotEmpty(t, registered.Tokens.Access.Token)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/auth/register", credentials{Email: "alice@example.com", Password: "password1"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/auth/register", credentials{Email: "bob@example.com", Password: "short"}).Code)

	rec = s.do(http.MethodPost, "/v1/auth/login", credentials{Email: "alice@example.com", Password: "wrong-password1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Incorrect email or password")

	alice := s.login("alice@example.com", "password1")
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/users/2", nil, alice...).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/v1/users/1", nil, alice...).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/v1/users", nil, alice...).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/v1/users", nil).Code)

	admin := s.login("root@example.com", "rootpass1")
	rec = s.do(http.MethodGet, "/v1/users", nil, admin...)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Results []userView `json:"results"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list.Results, 2)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/v1/users/99", nil, admin...).Code)
}

func TestSessionRotatesAndDetectsReplay(t *testing.T) {
	s := newTestServer(t)
	cfg := s.app.engine.CookieConfig()

	rec := s.do(http.MethodPost, "/v1/auth/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":null}`, rec.Body.String())

	cookies := s.login("root@example.com", "rootpass1")
	oldRefresh := cookieNamed(cookies, cfg.RefreshName)
	require.NotNil(t, oldRefresh)

	rec = s.do(http.MethodPost, "/v1/auth/session", nil, oldRefresh)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "root@example.com")
	newRefresh := cookieNamed(rec.Result().Cookies(), cfg.RefreshName)
	require.NotNil(t, newRefresh)
	assert.NotEqual(t, oldRefresh.Value, newRefresh.Value)

	rec = s.do(http.MethodPost, "/v1/auth/refresh-tokens", refreshBody{RefreshToken: oldRefresh.Value})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The replay revoked the whole family.
	rec = s.do(http.MethodPost, "/v1/auth/refresh-tokens", refreshBody{RefreshToken: newRefresh.Value})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshTokensAndLogout(t *testing.T) {
	s := newTestServer(t)
	cfg := s.app.engine.CookieConfig()

	cookies := s.login("root@example.com", "rootpass1")
	refresh := cookieNamed(cookies, cfg.RefreshName)

	rec := s.do(http.MethodPost, "/v1/auth/refresh-tokens", refreshBody{RefreshToken: refresh.Value})
	require.Equal(t, http.StatusOK, rec.Code)
	var pair struct {
		Refresh struct {
			Token string `json:"token"`
		} `json:"refresh"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&pair))
	require.NotEmpty(t, pair.Refresh.Token)

	rec = s.do(http.MethodPost, "/v1/auth/logout", refreshBody{RefreshToken: pair.Refresh.Token})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	for _, c := range rec.Result().Cookies() {
		assert.Empty(t, c.Value)
	}

	rec = s.do(http.MethodPost, "/v1/auth/refresh-tokens", refreshBody{RefreshToken: pair.Refresh.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/v1/auth/logout", nil).Code)
}

func TestPasswordResetFlow(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusNotFound,
		s.do(http.MethodPost, "/v1/auth/forgot-password", map[string]string{"email": "nobody@example.com"}).Code)

	rec := s.do(http.MethodPost, "/v1/auth/forgot-password", map[string]string{"email": "root@example.com"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	tok := s.lastLinkToken("reset_password")
	require.NotEmpty(t, tok)

	assert.Equal(t, http.StatusBadRequest,
		s.do(http.MethodPost, "/v1/auth/reset-password?token="+url.QueryEscape(tok), map[string]string{"password": "weak"}).Code)

	rec = s.do(http.MethodPost, "/v1/auth/reset-password?token="+url.QueryEscape(tok), map[string]string{"password": "newpassword2"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/v1/auth/reset-password?token="+url.QueryEscape(tok), map[string]string{"password": "newpassword3"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Password reset failed")

	assert.Equal(t, http.StatusUnauthorized,
		s.do(http.MethodPost, "/v1/auth/login", credentials{Email: "root@example.com", Password: "rootpass1"}).Code)
	s.login("root@example.com", "newpassword2")
}

func TestEmailVerificationFlow(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/v1/auth/send-verification-email", nil).Code)

	cookies := s.login("root@example.com", "rootpass1")
	require.Equal(t, http.StatusNoContent, s.do(http.MethodPost, "/v1/auth/send-verification-email", nil, cookies...).Code)
	tok := s.lastLinkToken("verify_email")

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/v1/auth/verify-email?token=garbage", nil).Code)
	require.Equal(t, http.StatusNoContent, s.do(http.MethodPost, "/v1/auth/verify-email?token="+url.QueryEscape(tok), nil).Code)

	rec := s.do(http.MethodGet, "/v1/users/1", nil, cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"isEmailVerified":true`)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store":true`)

	s.login("root@example.com", "rootpass1")
	rec = s.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "tokenauth_tokens_issued_total 1"), rec.Body.String())
}

func TestLoginRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Rate.MaxAttempts = 2
	})
	wrong := credentials{Email: "root@example.com", Password: "wrong-password1"}

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/v1/auth/login", wrong).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/v1/auth/login", wrong).Code)

	rec := s.do(http.MethodPost, "/v1/auth/login", wrong)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "900", rec.Header().Get("Retry-After"))

	// The budget is spent, so even the right password waits for the window.
	rec = s.do(http.MethodPost, "/v1/auth/login", credentials{Email: "root@example.com", Password: "rootpass1"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

// loginVia posts credentials with a caller-chosen X-Forwarded-For header.
func (s *testServer) loginVia(forwardedFor string, body credentials) int {
	s.t.Helper()
	var buf bytes.Buffer
	require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestLoginRateLimitIgnoresForwardedFor(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Rate.MaxAttempts = 2
	})
	wrong := credentials{Email: "root@example.com", Password: "wrong-password1"}

	assert.Equal(t, http.StatusUnauthorized, s.loginVia("198.51.100.1", wrong))
	assert.Equal(t, http.StatusUnauthorized, s.loginVia("198.51.100.2", wrong))
	assert.Equal(t, http.StatusTooManyRequests, s.loginVia("198.51.100.3", wrong))
}

func TestLoginRateLimitHonoursTrustedProxy(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Rate.MaxAttempts = 1
		// httptest requests come from 192.0.2.1.
		c.Server.TrustedProxies = []string{"192.0.2.1"}
	})
	wrong := credentials{Email: "root@example.com", Password: "wrong-password1"}

	assert.Equal(t, http.StatusUnauthorized, s.loginVia("198.51.100.1", wrong))
	assert.Equal(t, http.StatusTooManyRequests, s.loginVia("198.51.100.1", wrong))
	// A different client behind the same proxy has its own budget.
	assert.Equal(t, http.StatusUnauthorized, s.loginVia("198.51.100.2", wrong))
}

func TestSuccessfulLoginResetsBudget(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Rate.MaxAttempts = 2
	})
	wrong := credentials{Email: "root@example.com", Password: "wrong-password1"}

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/v1/auth/login", wrong).Code)
	s.login("root@example.com", "rootpass1")
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/v1/auth/login", wrong).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/v1/auth/login", wrong).Code)
}

func TestForgotPasswordRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Rate.MaxAttempts = 1
	})
	body := map[string]string{"email": "root@example.com"}

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodPost, "/v1/auth/forgot-password", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodPost, "/v1/auth/forgot-password", body).Code)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), appName+" version "+Version)
}
