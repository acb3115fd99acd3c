package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/tokenauth/token"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureVerify
	RefreshFailureBlacklisted
	RefreshFailureReuse
	RefreshFailureStore
)

// RefreshResult carries the subject whose refresh row was consumed, or failure
// metadata. On RefreshFailureVerify, Verify holds the underlying result.
type RefreshResult struct {
	Failure   RefreshFailureKind
	Err       error
	SubjectID string
	Verify    VerifyResult
	Consumed  *token.Token
	Revoked   int
}

// RunRefresh verifies value as a refresh token and consumes its row. The
// consume is atomic in the store, so when several callers present the same
// value only one proceeds; the others find the row gone and take the reuse
// path. The winner must call ConfirmRotation once its new pair is stored.
func RunRefresh(ctx context.Context, value string, deps Deps) RefreshResult {
	v := RunVerify(ctx, value, token.Refresh, deps)
	switch v.Failure {
	case VerifyFailureNone:
	case VerifyFailureReuse:
		return RefreshResult{Failure: RefreshFailureReuse, Err: v.Err, SubjectID: v.SubjectID, Verify: v, Revoked: v.Revoked}
	case VerifyFailureBlacklisted:
		return RefreshResult{Failure: RefreshFailureBlacklisted, Err: v.Err, SubjectID: v.SubjectID, Verify: v}
	case VerifyFailureStore:
		return RefreshResult{Failure: RefreshFailureStore, Err: v.Err, SubjectID: v.SubjectID, Verify: v}
	default:
		return RefreshResult{Failure: RefreshFailureVerify, Err: v.Err, SubjectID: v.SubjectID, Verify: v}
	}

	row, err := deps.Store.Consume(ctx, value, token.Refresh, v.SubjectID)
	switch {
	case err == nil:
		return RefreshResult{SubjectID: v.SubjectID, Verify: v, Consumed: row}
	case errors.Is(err, token.ErrBlacklisted):
		return RefreshResult{Failure: RefreshFailureBlacklisted, Err: err, SubjectID: v.SubjectID, Verify: v}
	case errors.Is(err, token.ErrNotFound):
		lost := invalidateFamily(ctx, v.Token, v.Payload, deps.Store)
		if lost.Failure == VerifyFailureStore {
			return RefreshResult{Failure: RefreshFailureStore, Err: lost.Err, SubjectID: v.SubjectID, Verify: lost}
		}
		return RefreshResult{Failure: RefreshFailureReuse, Err: lost.Err, SubjectID: v.SubjectID, Verify: lost, Revoked: lost.Revoked}
	default:
		return RefreshResult{Failure: RefreshFailureStore, Err: err, SubjectID: v.SubjectID, Verify: v}
	}
}

// ConfirmRotation runs after the winner of RunRefresh has persisted issued, the
// refresh token replacing consumed. If a concurrent replay of consumed has
// marked it blacklisted, the family was revoked mid-rotation: issued is
// deleted and the result reports reuse.
func ConfirmRotation(ctx context.Context, consumed, issued, subject string, deps Deps) RefreshResult {
	row, err := deps.Store.FindActive(ctx, consumed, token.Refresh, subject)
	switch {
	case errors.Is(err, token.ErrNotFound):
		return RefreshResult{SubjectID: subject}
	case err != nil:
		_, _ = deps.Store.Delete(ctx, issued)
		return RefreshResult{Failure: RefreshFailureStore, Err: err, SubjectID: subject}
	case !row.Blacklisted:
		return RefreshResult{SubjectID: subject}
	}

	if _, err := deps.Store.Delete(ctx, issued); err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err, SubjectID: subject}
	}
	return RefreshResult{Failure: RefreshFailureReuse, Err: token.ErrBlacklisted, SubjectID: subject, Revoked: 1}
}
