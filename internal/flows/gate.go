package flows

import (
	"context"
	"errors"
)

// GateFailureKind classifies request-gate failures for root-level mapping.
type GateFailureKind int

const (
	GateFailureNone GateFailureKind = iota
	GateFailureNoCredentials
	GateFailureRotate
	GateFailurePrincipalMissing
	GateFailurePrincipalLookup
	GateFailureForbidden
)

// GateDeps captures the request-gate dependencies. P is the principal type.
type GateDeps[P any] struct {
	// VerifyAccess returns the subject of a valid access token.
	VerifyAccess func(access string) (string, error)
	// Rotate exchanges a refresh token for a new pair, hands the pair to the
	// transport and returns the subject.
	Rotate func(ctx context.Context, refresh string) (string, error)
	// LoadPrincipal resolves a subject.
	LoadPrincipal func(ctx context.Context, subjectID string) (P, error)
	// Authorize decides the requirement for p. owner reports that the
	// self-access override granted the request.
	Authorize func(p P) (allowed bool, owner bool)
	// PrincipalNotFound is the sentinel LoadPrincipal returns for a missing
	// subject.
	PrincipalNotFound error
}

// GateResult is the outcome of one gate pass. AccessErr records why the
// access token was not used, when it was present.
type GateResult[P any] struct {
	Failure   GateFailureKind
	Err       error
	AccessErr error
	SubjectID string
	Principal P
	Rotated   bool
	Owner     bool
}

// RunGate runs the per-request state machine: try the access token, fall
// back to rotating with the refresh token, resolve the principal and
// authorize it. It keeps no state between calls.
func RunGate[P any](ctx context.Context, access, refresh string, deps GateDeps[P]) GateResult[P] {
	var res GateResult[P]

	if access != "" {
		subject, err := deps.VerifyAccess(access)
		if err == nil {
			res.SubjectID = subject
		} else {
			res.AccessErr = err
		}
	}

	if res.SubjectID == "" {
		if refresh == "" {
			res.Failure = GateFailureNoCredentials
			res.Err = res.AccessErr
			return res
		}
		subject, err := deps.Rotate(ctx, refresh)
		if err != nil {
			res.Failure = GateFailureRotate
			res.Err = err
			return res
		}
		res.SubjectID = subject
		res.Rotated = true
	}

	p, err := deps.LoadPrincipal(ctx, res.SubjectID)
	if err != nil {
		res.Err = err
		if deps.PrincipalNotFound != nil && errors.Is(err, deps.PrincipalNotFound) {
			res.Failure = GateFailurePrincipalMissing
		} else {
			res.Failure = GateFailurePrincipalLookup
		}
		return res
	}
	res.Principal = p

	allowed, owner := deps.Authorize(p)
	if !allowed {
		res.Failure = GateFailureForbidden
		return res
	}
	res.Owner = owner
	return res
}
