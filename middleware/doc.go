// Package middleware adapts tokenauth.Engine to HTTP servers.
//
// # Transport
//
// Tokens travel in two httpOnly cookies whose names and attributes come from
// Engine.CookieConfig. [NewTransport] implements tokenauth.CookieTransport
// over a request and its response writer; [SetAuthCookies] and
// [ClearAuthCookies] are for login and logout handlers.
//
// # Gates
//
//   - [Require] is net/http middleware.
//   - [EchoRequire] is the same gate as an echo.MiddlewareFunc.
//
// Both call Engine.Authenticate, answer 401 or 403 with a small JSON body on
// failure, and expose the authenticated principal to the wrapped handler.
//
// This package never parses tokens or touches the token store itself.
package middleware
