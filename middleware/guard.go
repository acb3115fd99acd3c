package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/tokenauth"
)

type authResultContextKey struct{}

// Option configures a gate.
type Option func(*gateOptions)

type gateOptions struct {
	rights []string
	owner  func(*http.Request) string
}

// WithRights requires the principal's role to hold every named right.
func WithRights(names ...string) Option {
	return func(o *gateOptions) {
		o.rights = append(o.rights, names...)
	}
}

// WithOwnerParam lets a principal whose id equals the named path value pass
// even without the required rights. The route must be registered with a
// pattern that declares the parameter, e.g. "GET /v1/users/{userId}".
func WithOwnerParam(name string) Option {
	return WithOwner(func(r *http.Request) string {
		return r.PathValue(name)
	})
}

// WithOwner is WithOwnerParam with a custom extractor.
func WithOwner(fn func(*http.Request) string) Option {
	return func(o *gateOptions) {
		o.owner = fn
	}
}

func buildOptions(opts []Option) gateOptions {
	var o gateOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// AuthResultFromContext returns the gate result stored by [Require].
func AuthResultFromContext(ctx context.Context) (*tokenauth.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*tokenauth.AuthResult)
	return res, ok
}

// PrincipalFromContext returns the principal authenticated by [Require].
func PrincipalFromContext(ctx context.Context) (*tokenauth.Principal, bool) {
	res, ok := AuthResultFromContext(ctx)
	if !ok || res.Principal == nil {
		return nil, false
	}
	return res.Principal, true
}

// Require returns middleware that admits only authenticated principals
// satisfying opts. An expired access token is rotated transparently and the
// new cookies are written before next runs.
func Require(engine *tokenauth.Engine, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := tokenauth.Requirement{Rights: o.rights}
			if o.owner != nil {
				req.Owner = func() string { return o.owner(r) }
			}

			ctx := RequestContext(r)
			res, err := engine.Authenticate(ctx, NewTransport(w, r, engine.CookieConfig()), req)
			if err != nil {
				status, body := errorResponse(err)
				writeJSON(w, status, body)
				return
			}

			ctx = context.WithValue(ctx, authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ErrorBody is the JSON body of gate rejections.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func errorResponse(err error) (int, ErrorBody) {
	if errors.Is(err, tokenauth.ErrForbidden) {
		return http.StatusForbidden, ErrorBody{Code: http.StatusForbidden, Message: "Forbidden"}
	}
	return http.StatusUnauthorized, ErrorBody{Code: http.StatusUnauthorized, Message: "Please authenticate"}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RequestContext returns r's context carrying the socket peer and user agent
// for audit events. Behind a reverse proxy use [ProxyTrust.RequestContext].
func RequestContext(r *http.Request) context.Context {
	return requestContext(r, ClientIP(r))
}

func requestContext(r *http.Request, ip string) context.Context {
	return tokenauth.WithRequestInfo(r.Context(), tokenauth.RequestInfo{
		ClientIP:  ip,
		UserAgent: r.UserAgent(),
	})
}
