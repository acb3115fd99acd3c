package tokenauth

import (
	"context"

	"github.com/MrEthical07/tokenauth/token"
	"go.uber.org/zap"
)

// GenerateVerifyEmailToken issues and persists a VERIFY_EMAIL token for p.
func (e *Engine) GenerateVerifyEmailToken(ctx context.Context, p *Principal) (string, error) {
	if e == nil || e.signer == nil {
		return "", ErrEngineNotReady
	}
	if p == nil || p.ID == "" {
		return "", ErrPrincipalNotFound
	}

	return e.issuePersisted(ctx, p.ID, token.VerifyEmail, e.config.Tokens.VerifyEmailTTL)
}

// RequestEmailVerification issues a verification token for p and hands it to
// the notifier. Delivery failures are logged and counted but not returned.
func (e *Engine) RequestEmailVerification(ctx context.Context, p *Principal) error {
	if e == nil || e.signer == nil {
		return ErrEngineNotReady
	}

	value, err := e.GenerateVerifyEmailToken(ctx, p)
	if err != nil {
		subject := ""
		if p != nil {
			subject = p.ID
		}
		e.logger.Warn("email verification request failed", zap.String("subject", subject), zap.Error(err))
		e.emitAudit(ctx, auditEventEmailVerificationRequest, false, subject, err, nil)
		return err
	}

	e.metricInc(MetricEmailVerificationRequest)
	if err := e.notifier.SendVerificationLink(ctx, p.Email, value); err != nil {
		e.notifyFailed("verify_email", err)
	}
	e.emitAudit(ctx, auditEventEmailVerificationRequest, true, p.ID, nil, nil)
	return nil
}

// ConsumeVerifyEmailToken verifies value, consumes it and deletes every other
// verification token of the same principal. It returns the principal id the
// caller should mark as verified.
func (e *Engine) ConsumeVerifyEmailToken(ctx context.Context, value string) (string, error) {
	if e == nil || e.signer == nil {
		return "", ErrEngineNotReady
	}

	subject, err := e.consumeSingleUse(ctx, value, token.VerifyEmail)
	if err != nil {
		e.emitAudit(ctx, auditEventEmailVerificationConfirm, false, subject, err, nil)
		return "", err
	}

	e.metricInc(MetricEmailVerificationConsumed)
	e.emitAudit(ctx, auditEventEmailVerificationConfirm, true, subject, nil, nil)
	return subject, nil
}
