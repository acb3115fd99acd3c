package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/tokenauth/token"
)

// LogoutResult reports what a logout did. Deleted is false when the row was
// already gone or is a blacklisted marker, which is kept.
type LogoutResult struct {
	SubjectID string
	Deleted   bool
	Err       error
}

// RunLogout removes the refresh row for value. It never triggers reuse
// detection: a rotated or unknown value is a no-op. Expired tokens are still
// accepted so their rows can be cleaned up early.
func RunLogout(ctx context.Context, value string, deps Deps) LogoutResult {
	payload, err := deps.Signer.VerifyType(value, token.Refresh)
	if err != nil {
		if classifySignerError(err) != VerifyFailureExpired {
			return LogoutResult{Err: err}
		}
		// An expired row has no payload to scope the lookup; delete by value.
		deleted, delErr := deps.Store.Delete(ctx, value)
		return LogoutResult{Deleted: deleted, Err: delErr}
	}

	row, err := deps.Store.FindActive(ctx, value, token.Refresh, payload.Subject)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return LogoutResult{SubjectID: payload.Subject}
		}
		return LogoutResult{SubjectID: payload.Subject, Err: err}
	}
	if row.Blacklisted {
		return LogoutResult{SubjectID: payload.Subject}
	}

	deleted, err := deps.Store.Delete(ctx, value)
	return LogoutResult{SubjectID: payload.Subject, Deleted: deleted, Err: err}
}
