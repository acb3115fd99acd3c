package tokenauth

import "errors"

var (
	// ErrInvalidSignature is returned for tokens whose signature, algorithm,
	// issuer, audience or structure does not verify.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrExpired is returned for correctly signed tokens past their exp.
	ErrExpired = errors.New("token expired")
	// ErrTokenTypeMismatch is returned when a token of another type is presented.
	ErrTokenTypeMismatch = errors.New("token type mismatch")
	// ErrTokenNotFound is returned when a persisted token has no store row.
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenBlacklisted is returned when the store row carries the blacklist flag.
	ErrTokenBlacklisted = errors.New("token blacklisted")
	// ErrReusedRefreshToken is returned when a validly signed refresh token is
	// presented after its row was consumed. The subject's refresh family has
	// been revoked by the time it is returned.
	ErrReusedRefreshToken = errors.New("refresh token reuse detected")
	// ErrPrincipalNotFound is returned by PrincipalStore implementations for
	// unknown subjects.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrUnauthenticated is the only credential error the request gate surfaces.
	ErrUnauthenticated = errors.New("please authenticate")
	// ErrForbidden is returned by the request gate when the principal lacks
	// the required rights.
	ErrForbidden = errors.New("forbidden")
	// ErrStoreUnavailable wraps token store backend failures.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
