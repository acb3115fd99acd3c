package tokenauth

import (
	"context"
	"time"

	"github.com/MrEthical07/tokenauth/internal/flows"
	"github.com/MrEthical07/tokenauth/token"
	"go.uber.org/zap"
)

// Authenticate runs the request gate over the cookies in transport.
//
// A valid access token is used as is. Otherwise the refresh token is rotated
// through [Engine.RefreshAuth] and the new pair is handed to
// transport.SetTokens before the principal is resolved. The returned error is
// always [ErrUnauthenticated] or [ErrForbidden]; the specific cause is
// logged, audited and counted. No state is kept between calls.
func (e *Engine) Authenticate(ctx context.Context, transport CookieTransport, req Requirement) (*AuthResult, error) {
	if e == nil || e.signer == nil {
		return nil, ErrEngineNotReady
	}
	if transport == nil {
		e.metricInc(MetricGateUnauthenticated)
		return nil, ErrUnauthenticated
	}

	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricGateLatency, time.Since(start))
		}
	}()

	access, refresh := transport.Tokens()
	res := flows.RunGate(ctx, access, refresh, flows.GateDeps[*Principal]{
		VerifyAccess: func(value string) (string, error) {
			p, err := e.signer.VerifyType(value, token.Access)
			if err != nil {
				e.metricInc(MetricAccessRejected)
				return "", signerError(err)
			}
			e.metricInc(MetricAccessVerified)
			return p.Subject, nil
		},
		Rotate: func(ctx context.Context, value string) (string, error) {
			pair, subject, err := e.rotate(ctx, value)
			if err != nil {
				return "", err
			}
			transport.SetTokens(pair)
			return subject, nil
		},
		LoadPrincipal:     e.loadPrincipal,
		Authorize:         func(p *Principal) (bool, bool) { return e.authorize(p, req) },
		PrincipalNotFound: ErrPrincipalNotFound,
	})

	switch res.Failure {
	case flows.GateFailureNone:
	case flows.GateFailureForbidden:
		e.metricInc(MetricGateForbidden)
		e.logger.Info("request forbidden",
			zap.String("subject", res.SubjectID),
			zap.String("role", res.Principal.Role),
			zap.Strings("required", req.Rights),
		)
		e.emitAudit(ctx, auditEventGateForbidden, false, res.SubjectID, ErrForbidden, func() map[string]string {
			return map[string]string{
				"role": res.Principal.Role,
			}
		})
		return nil, ErrForbidden
	default:
		e.unauthenticated(ctx, res)
		return nil, ErrUnauthenticated
	}

	e.metricInc(MetricGateAllowed)
	if res.Rotated {
		e.metricInc(MetricGateRotated)
	}
	if res.Owner {
		e.metricInc(MetricOwnerOverride)
	}
	e.emitAudit(ctx, auditEventGateAllowed, true, res.SubjectID, nil, nil)

	return &AuthResult{
		Principal:     res.Principal,
		Rotated:       res.Rotated,
		Granted:       e.rights.Granted(res.Principal.Role),
		OwnerOverride: res.Owner,
	}, nil
}

func (e *Engine) unauthenticated(ctx context.Context, res flows.GateResult[*Principal]) {
	e.metricInc(MetricGateUnauthenticated)

	reason := "no_credentials"
	switch res.Failure {
	case flows.GateFailureRotate:
		reason = "rotate_failed"
	case flows.GateFailurePrincipalMissing:
		reason = "principal_not_found"
	case flows.GateFailurePrincipalLookup:
		reason = "principal_lookup_failed"
		e.logger.Error("principal lookup failed", zap.String("subject", res.SubjectID), zap.Error(res.Err))
	}

	fields := []zap.Field{
		zap.String("reason", reason),
		zap.String("subject", res.SubjectID),
	}
	if res.Err != nil {
		fields = append(fields, zap.NamedError("cause", res.Err))
	}
	if res.AccessErr != nil {
		fields = append(fields, zap.NamedError("access", res.AccessErr))
	}
	e.logger.Info("request unauthenticated", fields...)

	e.emitAudit(ctx, auditEventGateUnauthenticated, false, res.SubjectID, res.Err, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})
}

func (e *Engine) loadPrincipal(ctx context.Context, id string) (*Principal, error) {
	p, err := e.principals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPrincipalNotFound
	}
	return p, nil
}

// authorize applies req to p. owner is true when only the self-access
// override granted the request.
func (e *Engine) authorize(p *Principal, req Requirement) (allowed bool, owner bool) {
	if len(req.Rights) == 0 {
		return true, false
	}
	if e.rights.HasAll(p.Role, req.Rights) {
		return true, false
	}
	if req.Owner != nil {
		if target := req.Owner(); target != "" && target == p.ID {
			return true, true
		}
	}
	return false, false
}

// PrincipalForToken verifies an access token and resolves its subject.
func (e *Engine) PrincipalForToken(ctx context.Context, access string) (*Principal, error) {
	t, err := e.VerifyToken(ctx, access, token.Access)
	if err != nil {
		return nil, err
	}
	return e.loadPrincipal(ctx, t.SubjectID)
}
