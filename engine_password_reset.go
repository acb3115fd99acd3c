package tokenauth

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/tokenauth/token"
	"go.uber.org/zap"
)

// GenerateResetPasswordToken issues and persists a RESET_PASSWORD token for
// the principal registered under email. It returns [ErrPrincipalNotFound]
// for unknown addresses.
func (e *Engine) GenerateResetPasswordToken(ctx context.Context, email string) (string, error) {
	if e == nil || e.signer == nil {
		return "", ErrEngineNotReady
	}

	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrPrincipalNotFound
	}
	p, err := e.principals.FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", ErrPrincipalNotFound
	}

	return e.issuePersisted(ctx, p.ID, token.ResetPassword, e.config.Tokens.ResetPasswordTTL)
}

// RequestPasswordReset issues a reset token and hands it to the notifier.
// Delivery failures are logged and counted but not returned.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.signer == nil {
		return ErrEngineNotReady
	}

	value, err := e.GenerateResetPasswordToken(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrPrincipalNotFound) {
			e.logger.Warn("password reset request failed", zap.Error(err))
		}
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", err, nil)
		return err
	}

	e.metricInc(MetricPasswordResetRequest)
	if err := e.notifier.SendResetPasswordLink(ctx, email, value); err != nil {
		e.notifyFailed("reset_password", err)
	}
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", nil, nil)
	return nil
}

// ConsumeResetPasswordToken verifies value, consumes it and deletes every
// other reset token of the same principal. It returns the principal id whose
// credential the caller should update.
func (e *Engine) ConsumeResetPasswordToken(ctx context.Context, value string) (string, error) {
	if e == nil || e.signer == nil {
		return "", ErrEngineNotReady
	}

	subject, err := e.consumeSingleUse(ctx, value, token.ResetPassword)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordResetConsumed, false, subject, err, nil)
		return "", err
	}

	e.metricInc(MetricPasswordResetConsumed)
	e.emitAudit(ctx, auditEventPasswordResetConsumed, true, subject, nil, nil)
	return subject, nil
}

func (e *Engine) notifyFailed(kind string, err error) {
	e.metricInc(MetricNotifyFailure)
	e.logger.Warn("notification delivery failed",
		zap.String("kind", kind),
		zap.Error(err),
	)
}

// logNotifier is the default Notifier. It records that a link would have been
// sent without logging the token itself.
type logNotifier struct {
	logger *zap.Logger
}

func (n logNotifier) SendResetPasswordLink(_ context.Context, email, _ string) error {
	n.logger.Debug("reset password link not delivered: no notifier configured", zap.String("email", email))
	return nil
}

func (n logNotifier) SendVerificationLink(_ context.Context, email, _ string) error {
	n.logger.Debug("verification link not delivered: no notifier configured", zap.String("email", email))
	return nil
}
