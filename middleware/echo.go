package middleware

import (
	"github.com/MrEthical07/tokenauth"
	"github.com/labstack/echo/v4"
)

const echoAuthResultKey = "tokenauth.result"

// EchoOption configures [EchoRequire].
type EchoOption func(*echoOptions)

type echoOptions struct {
	rights []string
	owner  func(echo.Context) string
}

// EchoWithRights requires the principal's role to hold every named right.
func EchoWithRights(names ...string) EchoOption {
	return func(o *echoOptions) {
		o.rights = append(o.rights, names...)
	}
}

// EchoWithOwnerParam grants the self-access override when the route
// parameter name equals the principal id.
func EchoWithOwnerParam(name string) EchoOption {
	return func(o *echoOptions) {
		o.owner = func(c echo.Context) string { return c.Param(name) }
	}
}

// EchoRequire is [Require] for echo routers. The result is stored under the
// echo context and read back with [EchoPrincipal].
func EchoRequire(engine *tokenauth.Engine, opts ...EchoOption) echo.MiddlewareFunc {
	var o echoOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := tokenauth.Requirement{Rights: o.rights}
			if o.owner != nil {
				req.Owner = func() string { return o.owner(c) }
			}

			r := c.Request()
			transport := NewTransport(c.Response(), r, engine.CookieConfig())
			res, err := engine.Authenticate(RequestContext(r), transport, req)
			if err != nil {
				status, body := errorResponse(err)
				return c.JSON(status, body)
			}

			c.Set(echoAuthResultKey, res)
			return next(c)
		}
	}
}

// EchoPrincipal returns the principal authenticated by [EchoRequire].
func EchoPrincipal(c echo.Context) (*tokenauth.Principal, bool) {
	res, ok := c.Get(echoAuthResultKey).(*tokenauth.AuthResult)
	if !ok || res.Principal == nil {
		return nil, false
	}
	return res.Principal, true
}
