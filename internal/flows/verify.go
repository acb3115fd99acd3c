package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/tokenauth/signer"
	"github.com/MrEthical07/tokenauth/token"
)

// VerifyFailureKind classifies verification failures for root-level mapping.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureSignature
	VerifyFailureExpired
	VerifyFailureType
	VerifyFailureBlacklisted
	VerifyFailureReuse
	VerifyFailureNotFound
	VerifyFailureStore
)

// VerifyResult carries the verified row or failure metadata. Revoked counts
// the refresh rows removed by reuse detection; PlaceholderErr records a
// failure to store the blacklisted marker after the family was already
// revoked.
type VerifyResult struct {
	Failure        VerifyFailureKind
	Err            error
	SubjectID      string
	Payload        *signer.Payload
	Token          *token.Token
	Revoked        int
	PlaceholderErr error
}

// RunVerify checks signature and type, then for persisted types the store
// row. A validly signed refresh token with no row is treated as replayed: the
// subject's refresh family is deleted and a blacklisted placeholder is stored
// for the replayed value.
func RunVerify(ctx context.Context, value string, typ token.Type, deps Deps) VerifyResult {
	payload, err := deps.Signer.VerifyType(value, typ)
	if err != nil {
		return VerifyResult{Failure: classifySignerError(err), Err: err}
	}

	view := &token.Token{
		ID:        payload.ID,
		Value:     value,
		SubjectID: payload.Subject,
		Type:      payload.Type,
		ExpiresAt: payload.ExpiresAt,
	}
	if !typ.Persisted() {
		return VerifyResult{SubjectID: payload.Subject, Payload: payload, Token: view}
	}

	row, err := deps.Store.FindActive(ctx, value, typ, payload.Subject)
	switch {
	case err == nil:
	case errors.Is(err, token.ErrNotFound):
		if typ != token.Refresh {
			return VerifyResult{Failure: VerifyFailureNotFound, Err: err, SubjectID: payload.Subject, Payload: payload}
		}
		return invalidateFamily(ctx, view, payload, deps.Store)
	default:
		return VerifyResult{Failure: VerifyFailureStore, Err: err, SubjectID: payload.Subject, Payload: payload}
	}

	if row.Blacklisted {
		return VerifyResult{Failure: VerifyFailureBlacklisted, Err: token.ErrBlacklisted, SubjectID: payload.Subject, Payload: payload, Token: row}
	}
	return VerifyResult{SubjectID: payload.Subject, Payload: payload, Token: row}
}

// invalidateFamily marks the replayed value and then revokes every refresh
// row of the subject. The marker goes in first and survives the delete, so a
// rotation racing this call either sees the marker in ConfirmRotation or has
// its new row removed by the delete.
func invalidateFamily(ctx context.Context, replayed *token.Token, payload *signer.Payload, store TokenStore) VerifyResult {
	res := VerifyResult{
		Failure:   VerifyFailureReuse,
		SubjectID: payload.Subject,
		Payload:   payload,
		Err:       token.ErrNotFound,
	}

	placeholder := &token.Token{
		Value:       replayed.Value,
		SubjectID:   payload.Subject,
		Type:        token.Refresh,
		ExpiresAt:   payload.ExpiresAt,
		Blacklisted: true,
	}
	if _, err := store.Insert(ctx, placeholder); err != nil && !errors.Is(err, token.ErrAlreadyExpired) {
		res.PlaceholderErr = err
	}

	n, err := store.DeleteAllForSubject(ctx, payload.Subject, token.Refresh)
	if err != nil {
		res.Failure = VerifyFailureStore
		res.Err = err
		return res
	}
	res.Revoked = n
	return res
}

func classifySignerError(err error) VerifyFailureKind {
	switch {
	case errors.Is(err, signer.ErrExpired):
		return VerifyFailureExpired
	case errors.Is(err, signer.ErrTypeMismatch):
		return VerifyFailureType
	default:
		return VerifyFailureSignature
	}
}
