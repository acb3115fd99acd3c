package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes links to a logger instead of sending them. Links carry a
// live token, so they are only logged when RevealLinks is set.
type LogNotifier struct {
	Logger      *zap.Logger
	Links       Links
	RevealLinks bool
}

// NewLogNotifier returns a LogNotifier with [DefaultLinks].
func NewLogNotifier(logger *zap.Logger, reveal bool) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{Logger: logger, Links: DefaultLinks(), RevealLinks: reveal}
}

func (n *LogNotifier) SendResetPasswordLink(_ context.Context, email, token string) error {
	n.log(KindResetPassword, email, token)
	return nil
}

func (n *LogNotifier) SendVerificationLink(_ context.Context, email, token string) error {
	n.log(KindVerifyEmail, email, token)
	return nil
}

func (n *LogNotifier) log(kind Kind, email, token string) {
	fields := []zap.Field{
		zap.String("kind", string(kind)),
		zap.String("email", email),
	}
	if n.RevealLinks {
		fields = append(fields, zap.String("link", n.Links.Build(kind, token)))
	}
	n.Logger.Info("notification", fields...)
}
