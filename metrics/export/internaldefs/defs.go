package internaldefs

import (
	"github.com/MrEthical07/tokenauth"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   tokenauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   tokenauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exporters publish for Engine.AuditDropped.
const AuditDroppedName = "tokenauth_audit_dropped_total"

// AuditDroppedHelp describes [AuditDroppedName].
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: tokenauth.MetricTokensIssued, Name: "tokenauth_tokens_issued_total", Help: "Signed and persisted tokens."},
	{ID: tokenauth.MetricAccessVerified, Name: "tokenauth_access_verified_total", Help: "Access tokens accepted by the signer."},
	{ID: tokenauth.MetricAccessRejected, Name: "tokenauth_access_rejected_total", Help: "Access tokens rejected by the signer."},
	{ID: tokenauth.MetricRefreshSuccess, Name: "tokenauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: tokenauth.MetricRefreshFailure, Name: "tokenauth_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: tokenauth.MetricRefreshReuseDetected, Name: "tokenauth_refresh_reuse_detected_total", Help: "Replayed refresh tokens that revoked a family."},
	{ID: tokenauth.MetricTokenBlacklisted, Name: "tokenauth_token_blacklisted_total", Help: "Tokens explicitly blacklisted."},
	{ID: tokenauth.MetricGateAllowed, Name: "tokenauth_gate_allowed_total", Help: "Requests admitted by the gate."},
	{ID: tokenauth.MetricGateRotated, Name: "tokenauth_gate_rotated_total", Help: "Requests admitted after silent rotation."},
	{ID: tokenauth.MetricGateUnauthenticated, Name: "tokenauth_gate_unauthenticated_total", Help: "Requests rejected with 401."},
	{ID: tokenauth.MetricGateForbidden, Name: "tokenauth_gate_forbidden_total", Help: "Requests rejected with 403."},
	{ID: tokenauth.MetricOwnerOverride, Name: "tokenauth_owner_override_total", Help: "Requests admitted through the self-access override."},
	{ID: tokenauth.MetricLogout, Name: "tokenauth_logout_total", Help: "Single refresh token logouts."},
	{ID: tokenauth.MetricLogoutAll, Name: "tokenauth_logout_all_total", Help: "Logout-all operations."},
	{ID: tokenauth.MetricPasswordResetRequest, Name: "tokenauth_password_reset_request_total", Help: "Password reset links issued."},
	{ID: tokenauth.MetricPasswordResetConsumed, Name: "tokenauth_password_reset_consumed_total", Help: "Password reset tokens consumed."},
	{ID: tokenauth.MetricEmailVerificationRequest, Name: "tokenauth_email_verification_request_total", Help: "Email verification links issued."},
	{ID: tokenauth.MetricEmailVerificationConsumed, Name: "tokenauth_email_verification_consumed_total", Help: "Email verification tokens consumed."},
	{ID: tokenauth.MetricNotifyFailure, Name: "tokenauth_notify_failure_total", Help: "Links the notifier failed to deliver."},
	{ID: tokenauth.MetricStoreUnavailable, Name: "tokenauth_store_unavailable_total", Help: "Token store calls that failed."},
}

// HistogramDefs lists every histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: tokenauth.MetricGateLatency, Name: "tokenauth_gate_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramBounds are the bucket labels, ending in +Inf.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramUpperBounds are the finite bucket bounds in seconds.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix is HistogramBounds made safe for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
