package tokenauth

import (
	"context"
	"errors"
	"strconv"
	"time"

	internalaudit "github.com/MrEthical07/tokenauth/internal/audit"
	"github.com/MrEthical07/tokenauth/internal/flows"
	"github.com/MrEthical07/tokenauth/rights"
	"github.com/MrEthical07/tokenauth/signer"
	"github.com/MrEthical07/tokenauth/token"
	"go.uber.org/zap"
)

// Engine issues, verifies and rotates tokens and gates requests. All methods
// are safe for concurrent use after [Builder.Build].
type Engine struct {
	config     Config
	signer     *signer.Signer
	store      TokenStore
	rights     *rights.Table
	principals PrincipalStore
	notifier   Notifier
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	logger     *zap.Logger
	now        func() time.Time
	flowDeps   flows.Deps
}

// Close flushes pending audit events. The token store is owned by the caller
// and is not closed.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	_ = e.logger.Sync()
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// CookieConfig returns the cookie settings transports should apply.
func (e *Engine) CookieConfig() CookieConfig {
	if e == nil {
		return DefaultConfig().Cookie
	}
	return e.config.Cookie
}

// Rights returns the immutable role table.
func (e *Engine) Rights() *rights.Table {
	if e == nil {
		return nil
	}
	return e.rights
}

// Health pings the token store.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.store == nil {
		return HealthStatus{}
	}

	latency, err := e.store.Ping(ctx)
	return HealthStatus{
		StoreAvailable: err == nil,
		StoreLatency:   latency,
	}
}

// GenerateAuthTokens signs a fresh access token and a fresh refresh token for
// principalID. The refresh token is persisted before the pair is returned.
func (e *Engine) GenerateAuthTokens(ctx context.Context, principalID string) (*AuthTokenPair, error) {
	if e == nil || e.signer == nil {
		return nil, ErrEngineNotReady
	}
	if principalID == "" {
		return nil, ErrPrincipalNotFound
	}

	access, accessExp, err := e.issue(principalID, token.Access, e.config.Tokens.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := e.issue(principalID, token.Refresh, e.config.Tokens.RefreshTTL)
	if err != nil {
		return nil, err
	}
	if err := e.persist(ctx, refresh, principalID, token.Refresh, refreshExp); err != nil {
		return nil, err
	}

	e.metricInc(MetricTokensIssued)
	return &AuthTokenPair{
		Access:  AuthToken{Token: access, ExpiresAt: accessExp},
		Refresh: AuthToken{Token: refresh, ExpiresAt: refreshExp},
	}, nil
}

func (e *Engine) issue(subject string, typ token.Type, ttl time.Duration) (string, time.Time, error) {
	now := e.now()
	exp := now.Add(ttl)
	value, err := e.signer.Sign(signer.Payload{
		Subject:   subject,
		IssuedAt:  now,
		ExpiresAt: exp,
		Type:      typ,
	})
	if err != nil {
		return "", time.Time{}, err
	}
	// Signed claims carry whole seconds; report the expiry the token enforces.
	return value, exp.Truncate(time.Second), nil
}

func (e *Engine) persist(ctx context.Context, value, subject string, typ token.Type, exp time.Time) error {
	_, err := e.store.Insert(ctx, &token.Token{
		Value:     value,
		SubjectID: subject,
		Type:      typ,
		ExpiresAt: exp,
	})
	if err != nil {
		return e.storeFailure("insert", subject, err)
	}
	return nil
}

// VerifyToken checks value's signature and type. ACCESS tokens yield a
// transient view. Persisted types must have a non-blacklisted store row; a
// validly signed REFRESH token without a row is treated as replayed, which
// revokes every refresh token of the subject and returns
// [ErrReusedRefreshToken].
func (e *Engine) VerifyToken(ctx context.Context, value string, typ token.Type) (*token.Token, error) {
	if e == nil || e.signer == nil {
		return nil, ErrEngineNotReady
	}

	res := flows.RunVerify(ctx, value, typ, e.flowDeps)
	if res.Failure != flows.VerifyFailureNone {
		if typ == token.Access {
			e.metricInc(MetricAccessRejected)
		}
		return nil, e.verifyFailure(ctx, typ, res)
	}
	if typ == token.Access {
		e.metricInc(MetricAccessVerified)
	}
	return res.Token, nil
}

func (e *Engine) verifyFailure(ctx context.Context, typ token.Type, res flows.VerifyResult) error {
	switch res.Failure {
	case flows.VerifyFailureSignature:
		e.logger.Info("token rejected", zap.String("reason", "signature"), zap.String("type", string(typ)))
		return ErrInvalidSignature
	case flows.VerifyFailureExpired:
		return ErrExpired
	case flows.VerifyFailureType:
		e.logger.Info("token rejected", zap.String("reason", "type_mismatch"), zap.String("type", string(typ)))
		return ErrTokenTypeMismatch
	case flows.VerifyFailureBlacklisted:
		e.logger.Info("token rejected", zap.String("reason", "blacklisted"), zap.String("subject", res.SubjectID))
		return ErrTokenBlacklisted
	case flows.VerifyFailureNotFound:
		return ErrTokenNotFound
	case flows.VerifyFailureReuse:
		e.reuseDetected(ctx, res.SubjectID, res.Revoked, res.PlaceholderErr)
		return ErrReusedRefreshToken
	case flows.VerifyFailureStore:
		return e.storeFailure("verify", res.SubjectID, res.Err)
	default:
		return ErrInvalidSignature
	}
}

func (e *Engine) reuseDetected(ctx context.Context, subject string, revoked int, placeholderErr error) {
	e.metricInc(MetricRefreshReuseDetected)
	e.logger.Warn("refresh token reuse detected",
		zap.String("subject", subject),
		zap.Int("revoked", revoked),
	)
	if placeholderErr != nil {
		e.metricInc(MetricStoreUnavailable)
		e.logger.Error("store unavailable", zap.String("op", "blacklist_placeholder"), zap.String("subject", subject), zap.Error(placeholderErr))
	}
	e.emitAudit(ctx, auditEventRefreshReuseDetected, false, subject, ErrReusedRefreshToken, func() map[string]string {
		return map[string]string{
			"revoked": strconv.Itoa(revoked),
		}
	})
}

func (e *Engine) storeFailure(op, subject string, err error) error {
	e.metricInc(MetricStoreUnavailable)
	e.logger.Error("store unavailable",
		zap.String("op", op),
		zap.String("subject", subject),
		zap.Error(err),
	)
	return errors.Join(ErrStoreUnavailable, err)
}

// RefreshAuth exchanges a refresh token for a new pair. The presented row is
// consumed atomically, so among concurrent presenters of one value at most one
// consumes it. The rest fail with [ErrReusedRefreshToken] and revoke the
// family, which also withdraws the pair issued to the consumer.
func (e *Engine) RefreshAuth(ctx context.Context, refreshValue string) (*AuthTokenPair, error) {
	if e == nil || e.signer == nil {
		return nil, ErrEngineNotReady
	}
	pair, _, err := e.rotate(ctx, refreshValue)
	return pair, err
}

// rotate is RefreshAuth that also reports the subject the pair was issued to.
func (e *Engine) rotate(ctx context.Context, refreshValue string) (*AuthTokenPair, string, error) {
	res := flows.RunRefresh(ctx, refreshValue, e.flowDeps)
	if res.Failure != flows.RefreshFailureNone {
		e.metricInc(MetricRefreshFailure)
		var err error
		switch res.Failure {
		case flows.RefreshFailureReuse:
			e.reuseDetected(ctx, res.SubjectID, res.Revoked, res.Verify.PlaceholderErr)
			return nil, res.SubjectID, ErrReusedRefreshToken
		case flows.RefreshFailureBlacklisted:
			err = ErrTokenBlacklisted
		case flows.RefreshFailureStore:
			err = e.storeFailure("refresh", res.SubjectID, res.Err)
		default:
			err = e.verifyFailure(ctx, token.Refresh, res.Verify)
		}
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.SubjectID, err, nil)
		return nil, res.SubjectID, err
	}

	pair, err := e.GenerateAuthTokens(ctx, res.SubjectID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.SubjectID, err, func() map[string]string {
			return map[string]string{
				"reason": "issue_failed",
			}
		})
		return nil, res.SubjectID, err
	}

	// A replay that raced this rotation may have revoked the family after the
	// consume; the fresh pair must not outlive it.
	confirm := flows.ConfirmRotation(ctx, refreshValue, pair.Refresh.Token, res.SubjectID, e.flowDeps)
	switch confirm.Failure {
	case flows.RefreshFailureNone:
	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshFailure)
		e.logger.Warn("rotation withdrawn after concurrent reuse", zap.String("subject", res.SubjectID))
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.SubjectID, ErrReusedRefreshToken, func() map[string]string {
			return map[string]string{
				"reason": "family_revoked",
			}
		})
		return nil, res.SubjectID, ErrReusedRefreshToken
	default:
		e.metricInc(MetricRefreshFailure)
		err := e.storeFailure("refresh_confirm", res.SubjectID, confirm.Err)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.SubjectID, err, nil)
		return nil, res.SubjectID, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.SubjectID, nil, nil)
	return pair, res.SubjectID, nil
}

// Logout deletes the row of refreshValue. An absent or already rotated row is
// not an error, and logout never triggers reuse detection.
func (e *Engine) Logout(ctx context.Context, refreshValue string) error {
	if e == nil || e.signer == nil {
		return ErrEngineNotReady
	}

	res := flows.RunLogout(ctx, refreshValue, e.flowDeps)
	if res.Err != nil {
		if isSignerError(res.Err) {
			return signerError(res.Err)
		}
		return e.storeFailure("logout", res.SubjectID, res.Err)
	}
	if res.Deleted {
		e.metricInc(MetricLogout)
	}
	e.emitAudit(ctx, auditEventLogout, true, res.SubjectID, nil, func() map[string]string {
		if res.Deleted {
			return map[string]string{"deleted": "true"}
		}
		return map[string]string{"deleted": "false"}
	})
	return nil
}

// LogoutAll revokes every refresh token of principalID and returns how many
// rows were removed.
func (e *Engine) LogoutAll(ctx context.Context, principalID string) (int, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}
	if principalID == "" {
		return 0, ErrPrincipalNotFound
	}

	n, err := e.store.DeleteAllForSubject(ctx, principalID, token.Refresh)
	if err != nil {
		return 0, e.storeFailure("logout_all", principalID, err)
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, principalID, nil, func() map[string]string {
		return map[string]string{
			"revoked": strconv.Itoa(n),
		}
	})
	return n, nil
}

// BlacklistToken flags the persisted row of a validly signed token so later
// presentations fail with [ErrTokenBlacklisted]. Expired tokens are accepted.
func (e *Engine) BlacklistToken(ctx context.Context, value string) error {
	if e == nil || e.signer == nil {
		return ErrEngineNotReady
	}

	payload, err := e.signer.Verify(value)
	if err != nil && !errors.Is(err, signer.ErrExpired) {
		return ErrInvalidSignature
	}
	if payload != nil && !payload.Type.Persisted() {
		return ErrTokenTypeMismatch
	}

	if err := e.store.MarkBlacklisted(ctx, value); err != nil {
		subject := ""
		if payload != nil {
			subject = payload.Subject
		}
		return e.storeFailure("blacklist", subject, err)
	}
	e.metricInc(MetricTokenBlacklisted)
	return nil
}

func isSignerError(err error) bool {
	return errors.Is(err, signer.ErrInvalidSignature) ||
		errors.Is(err, signer.ErrExpired) ||
		errors.Is(err, signer.ErrTypeMismatch)
}

func signerError(err error) error {
	switch {
	case errors.Is(err, signer.ErrExpired):
		return ErrExpired
	case errors.Is(err, signer.ErrTypeMismatch):
		return ErrTokenTypeMismatch
	default:
		return ErrInvalidSignature
	}
}

// issuePersisted signs a token of typ for subject and stores its row.
func (e *Engine) issuePersisted(ctx context.Context, subject string, typ token.Type, ttl time.Duration) (string, error) {
	value, exp, err := e.issue(subject, typ, ttl)
	if err != nil {
		return "", err
	}
	if err := e.persist(ctx, value, subject, typ, exp); err != nil {
		return "", err
	}
	e.metricInc(MetricTokensIssued)
	return value, nil
}

// consumeSingleUse verifies value as typ, atomically consumes its row and
// deletes every other row of the same type for the subject. It returns the
// subject.
func (e *Engine) consumeSingleUse(ctx context.Context, value string, typ token.Type) (string, error) {
	t, err := e.VerifyToken(ctx, value, typ)
	if err != nil {
		return "", err
	}
	if _, err := e.loadPrincipal(ctx, t.SubjectID); err != nil {
		return "", err
	}

	if _, err := e.store.Consume(ctx, value, typ, t.SubjectID); err != nil {
		switch {
		case errors.Is(err, token.ErrNotFound):
			return "", ErrTokenNotFound
		case errors.Is(err, token.ErrBlacklisted):
			return "", ErrTokenBlacklisted
		default:
			return "", e.storeFailure("consume", t.SubjectID, err)
		}
	}
	if _, err := e.store.DeleteAllForSubject(ctx, t.SubjectID, typ); err != nil {
		return "", e.storeFailure("delete_all", t.SubjectID, err)
	}
	return t.SubjectID, nil
}
