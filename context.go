package tokenauth

import "context"

// RequestInfo describes the caller behind an engine call. The engine copies
// it into audit events; it never affects an authentication decision.
type RequestInfo struct {
	ClientIP  string
	UserAgent string
}

type requestInfoKey struct{}

// WithRequestInfo attaches info to ctx.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFrom returns the info attached by [WithRequestInfo], or the
// zero value.
func RequestInfoFrom(ctx context.Context) RequestInfo {
	if ctx == nil {
		return RequestInfo{}
	}
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}
