package token

import "time"

// Type identifies what a signed token string may be used for. Values match
// the "type" claim carried inside the signed payload.
type Type string

const (
	Access        Type = "ACCESS"
	Refresh       Type = "REFRESH"
	ResetPassword Type = "RESET_PASSWORD"
	VerifyEmail   Type = "VERIFY_EMAIL"
)

// Persisted reports whether rows of this type are stored. Access tokens are
// stateless and never persisted.
func (t Type) Persisted() bool {
	switch t {
	case Refresh, ResetPassword, VerifyEmail:
		return true
	default:
		return false
	}
}

// Valid reports whether t is one of the known token types.
func (t Type) Valid() bool {
	return t == Access || t.Persisted()
}

// Token is a persisted token row.
type Token struct {
	ID          string
	Value       string
	SubjectID   string
	Type        Type
	ExpiresAt   time.Time
	Blacklisted bool
}

// Expired reports whether the row's expiry is at or before now.
func (t *Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
