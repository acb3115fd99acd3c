package tokenauth

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/tokenauth/internal/audit"
	internalmetrics "github.com/MrEthical07/tokenauth/internal/metrics"
	"github.com/MrEthical07/tokenauth/token"
	"go.uber.org/zap"
)

// Principal is the authenticated party a token's subject resolves to.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// PrincipalStore resolves principals. Implementations return
// [ErrPrincipalNotFound] (possibly wrapped) for unknown ids or emails.
type PrincipalStore interface {
	FindByID(ctx context.Context, id string) (*Principal, error)
	FindByEmail(ctx context.Context, email string) (*Principal, error)
}

// Notifier delivers out-of-band links. The engine treats delivery as fire and
// forget: failures are logged and counted but never returned to callers.
type Notifier interface {
	SendResetPasswordLink(ctx context.Context, email, tokenValue string) error
	SendVerificationLink(ctx context.Context, email, tokenValue string) error
}

// TokenStore persists REFRESH, RESET_PASSWORD and VERIFY_EMAIL rows.
// [token.RedisStore] and pgstore.Store implement it.
//
// Consume must be an atomic compare-and-delete: it removes and returns the
// row only when it exists and is not blacklisted.
type TokenStore interface {
	Insert(ctx context.Context, t *token.Token) (string, error)
	FindActive(ctx context.Context, value string, typ token.Type, subjectID string) (*token.Token, error)
	Consume(ctx context.Context, value string, typ token.Type, subjectID string) (*token.Token, error)
	DeleteAllForSubject(ctx context.Context, subjectID string, types ...token.Type) (int, error)
	MarkBlacklisted(ctx context.Context, value string) error
	Delete(ctx context.Context, value string) (bool, error)
	Ping(ctx context.Context) (time.Duration, error)
}

// CookieTransport moves the token pair between the engine and one request.
// Tokens returns empty strings for absent cookies.
type CookieTransport interface {
	Tokens() (access, refresh string)
	SetTokens(pair *AuthTokenPair)
}

// AuthToken is one signed token and its expiry.
type AuthToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires"`
}

// AuthTokenPair is returned by token issuance. Only the refresh half is
// persisted.
type AuthTokenPair struct {
	Access  AuthToken `json:"access"`
	Refresh AuthToken `json:"refresh"`
}

// Requirement describes what a request needs. With no Rights any
// authenticated principal passes. Owner, when set, returns the id of the
// principal the request targets; a match grants self-access regardless of
// Rights.
type Requirement struct {
	Rights []string
	Owner  func() string
}

// AuthResult is returned by [Engine.Authenticate].
type AuthResult struct {
	Principal     *Principal
	Rotated       bool
	Granted       []string
	OwnerOverride bool
}

// HealthStatus is an on-demand token store health result.
type HealthStatus struct {
	StoreAvailable bool
	StoreLatency   time.Duration
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink is an [AuditSink] that logs events through zap.
type ZapSink = internalaudit.ZapSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZapSink creates a [ZapSink] logging under the "audit" name.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(logger)
}

// MetricID identifies a counter or histogram slot.
type MetricID = internalmetrics.MetricID

const (
	MetricTokensIssued              = internalmetrics.MetricTokensIssued
	MetricAccessVerified            = internalmetrics.MetricAccessVerified
	MetricAccessRejected            = internalmetrics.MetricAccessRejected
	MetricRefreshSuccess            = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure            = internalmetrics.MetricRefreshFailure
	MetricRefreshReuseDetected      = internalmetrics.MetricRefreshReuseDetected
	MetricTokenBlacklisted          = internalmetrics.MetricTokenBlacklisted
	MetricGateAllowed               = internalmetrics.MetricGateAllowed
	MetricGateRotated               = internalmetrics.MetricGateRotated
	MetricGateUnauthenticated       = internalmetrics.MetricGateUnauthenticated
	MetricGateForbidden             = internalmetrics.MetricGateForbidden
	MetricOwnerOverride             = internalmetrics.MetricOwnerOverride
	MetricLogout                    = internalmetrics.MetricLogout
	MetricLogoutAll                 = internalmetrics.MetricLogoutAll
	MetricPasswordResetRequest      = internalmetrics.MetricPasswordResetRequest
	MetricPasswordResetConsumed     = internalmetrics.MetricPasswordResetConsumed
	MetricEmailVerificationRequest  = internalmetrics.MetricEmailVerificationRequest
	MetricEmailVerificationConsumed = internalmetrics.MetricEmailVerificationConsumed
	MetricNotifyFailure             = internalmetrics.MetricNotifyFailure
	MetricStoreUnavailable          = internalmetrics.MetricStoreUnavailable
	MetricGateLatency               = internalmetrics.MetricGateLatency
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When Enabled is false all
// operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}
