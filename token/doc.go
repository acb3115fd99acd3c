// Package token defines the persisted token record and a Redis-backed store
// for refresh, reset-password and verify-email tokens.
//
// # Architecture boundaries
//
// This package owns token row persistence only. It never signs or verifies
// token strings and never decides what a missing or blacklisted row means;
// that policy lives in the root Engine.
//
// # What this package must NOT do
//
//   - Persist ACCESS tokens (Insert rejects them with [ErrUnsupportedType]).
//   - Import the root package or signer.
//   - Mutate a stored row other than flipping its blacklisted flag.
package token
