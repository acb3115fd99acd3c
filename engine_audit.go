package tokenauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventRefreshSuccess           = "refresh_success"
	auditEventRefreshInvalid           = "refresh_invalid"
	auditEventRefreshReuseDetected     = "refresh_reuse_detected"
	auditEventLogout                   = "logout"
	auditEventLogoutAll                = "logout_all"
	auditEventGateAllowed              = "gate_allowed"
	auditEventGateUnauthenticated      = "gate_unauthenticated"
	auditEventGateForbidden            = "gate_forbidden"
	auditEventPasswordResetRequest     = "password_reset_request"
	auditEventPasswordResetConsumed    = "password_reset_consumed"
	auditEventEmailVerificationRequest = "email_verification_request"
	auditEventEmailVerificationConfirm = "email_verification_confirm"
)

// AuditErrorCode is the stable error label written to [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrInvalidToken     AuditErrorCode = "invalid_token"
	auditErrExpired          AuditErrorCode = "expired"
	auditErrBlacklisted      AuditErrorCode = "blacklisted"
	auditErrRefreshReuse     AuditErrorCode = "refresh_reuse"
	auditErrTokenNotFound    AuditErrorCode = "token_not_found"
	auditErrPrincipalMissing AuditErrorCode = "principal_not_found"
	auditErrUnauthenticated  AuditErrorCode = "unauthenticated"
	auditErrForbidden        AuditErrorCode = "forbidden"
	auditErrUnavailable      AuditErrorCode = "backend_unavailable"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subjectID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	caller := RequestInfoFrom(ctx)
	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		SubjectID: subjectID,
		IP:        caller.ClientIP,
		UserAgent: caller.UserAgent,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrReusedRefreshToken):
		return auditErrRefreshReuse
	case errors.Is(err, ErrTokenBlacklisted):
		return auditErrBlacklisted
	case errors.Is(err, ErrExpired):
		return auditErrExpired
	case errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrTokenTypeMismatch):
		return auditErrInvalidToken
	case errors.Is(err, ErrTokenNotFound):
		return auditErrTokenNotFound
	case errors.Is(err, ErrPrincipalNotFound):
		return auditErrPrincipalMissing
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	default:
		return auditErrInternal
	}
}
