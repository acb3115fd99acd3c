// Package tokenauth issues and verifies signed session tokens, rotates refresh
// tokens with reuse detection, and gates requests by role rights.
//
// Access tokens are short-lived and stateless. Refresh, password-reset and
// email-verification tokens are signed and also persisted in a [TokenStore];
// a refresh token is single use, and presenting one whose row is gone revokes
// every refresh token of the same subject.
//
// # Architecture boundaries
//
// tokenauth is the public surface. It exposes [Engine], [Builder], [Config]
// and value types. Flow orchestration, audit dispatch and counters live under
// internal/ and are never exported. Signing lives in signer, persistence in
// token and token/pgstore, and the role table in rights.
//
// # Request gate
//
// [Engine.Authenticate] reads both cookies through a [CookieTransport]. When
// the access token is missing or invalid it silently rotates with the refresh
// token and hands the new pair back to the transport. Callers only ever see
// [ErrUnauthenticated] or [ErrForbidden]; the specific cause goes to logs,
// audit and metrics.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build].
package tokenauth
