package test

import (
	"context"
	"net/http"
	"testing"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/middleware"
	"github.com/MrEthical07/tokenauth/token"
	"github.com/labstack/echo/v4"
)

// This test intentionally guards public API compile-compat for consumers.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = tokenauth.New
	_ = tokenauth.DefaultConfig

	var _ *tokenauth.Engine
	var _ tokenauth.Config
	var _ tokenauth.AuthResult
	var _ tokenauth.AuthTokenPair
	var _ tokenauth.Requirement
	var _ tokenauth.PrincipalStore
	var _ tokenauth.TokenStore = (*token.RedisStore)(nil)
	var _ tokenauth.Notifier
	var _ tokenauth.CookieTransport = (*middleware.Transport)(nil)
	var _ tokenauth.AuditSink

	var _ error = tokenauth.ErrInvalidSignature
	var _ error = tokenauth.ErrExpired
	var _ error = tokenauth.ErrTokenTypeMismatch
	var _ error = tokenauth.ErrTokenNotFound
	var _ error = tokenauth.ErrTokenBlacklisted
	var _ error = tokenauth.ErrReusedRefreshToken
	var _ error = tokenauth.ErrPrincipalNotFound
	var _ error = tokenauth.ErrUnauthenticated
	var _ error = tokenauth.ErrForbidden
	var _ error = tokenauth.ErrStoreUnavailable

	var _ func(*tokenauth.Engine, ...middleware.Option) func(http.Handler) http.Handler = middleware.Require
	var _ func(*tokenauth.Engine, ...middleware.EchoOption) echo.MiddlewareFunc = middleware.EchoRequire
	var _ func(http.ResponseWriter, tokenauth.CookieConfig, *tokenauth.AuthTokenPair) = middleware.SetAuthCookies
	var _ func(http.ResponseWriter, tokenauth.CookieConfig) = middleware.ClearAuthCookies

	var _ func(*tokenauth.Engine, context.Context, string) (*tokenauth.AuthTokenPair, error) = (*tokenauth.Engine).GenerateAuthTokens
	var _ func(*tokenauth.Engine, context.Context, string, token.Type) (*token.Token, error) = (*tokenauth.Engine).VerifyToken
	var _ func(*tokenauth.Engine, context.Context, string) (*tokenauth.AuthTokenPair, error) = (*tokenauth.Engine).RefreshAuth
	var _ func(*tokenauth.Engine, context.Context, string) error = (*tokenauth.Engine).Logout
	var _ func(*tokenauth.Engine, context.Context, string) (int, error) = (*tokenauth.Engine).LogoutAll
	var _ func(*tokenauth.Engine, context.Context, string) error = (*tokenauth.Engine).BlacklistToken
	var _ func(*tokenauth.Engine, context.Context, string) (string, error) = (*tokenauth.Engine).GenerateResetPasswordToken
	var _ func(*tokenauth.Engine, context.Context, *tokenauth.Principal) (string, error) = (*tokenauth.Engine).GenerateVerifyEmailToken
	var _ func(*tokenauth.Engine, context.Context, string) (string, error) = (*tokenauth.Engine).ConsumeResetPasswordToken
	var _ func(*tokenauth.Engine, context.Context, string) (string, error) = (*tokenauth.Engine).ConsumeVerifyEmailToken
	var _ func(*tokenauth.Engine, context.Context, tokenauth.CookieTransport, tokenauth.Requirement) (*tokenauth.AuthResult, error) = (*tokenauth.Engine).Authenticate
}
