package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to the message kind to form the subject.
const DefaultSubjectPrefix = "tokenauth.notify"

// Publisher is the part of *nats.Conn the notifier uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes link messages to NATS.
type NATSNotifier struct {
	pub    Publisher
	prefix string
	links  Links
	now    func() time.Time
	closer func()
}

// NATSOption configures a NATSNotifier.
type NATSOption func(*NATSNotifier)

// WithSubjectPrefix overrides [DefaultSubjectPrefix].
func WithSubjectPrefix(prefix string) NATSOption {
	return func(n *NATSNotifier) {
		if prefix != "" {
			n.prefix = prefix
		}
	}
}

// WithLinks sets the pages links point at.
func WithLinks(l Links) NATSOption {
	return func(n *NATSNotifier) {
		n.links = l
	}
}

// WithClock overrides time.Now for SentAt.
func WithClock(now func() time.Time) NATSOption {
	return func(n *NATSNotifier) {
		if now != nil {
			n.now = now
		}
	}
}

// NewNATSNotifier returns a notifier publishing through pub.
func NewNATSNotifier(pub Publisher, opts ...NATSOption) *NATSNotifier {
	n := &NATSNotifier{
		pub:    pub,
		prefix: DefaultSubjectPrefix,
		links:  DefaultLinks(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

// ConnectNATS dials url and returns a notifier owning the connection.
func ConnectNATS(url string, opts ...NATSOption) (*NATSNotifier, error) {
	nc, err := nats.Connect(url,
		nats.Name("tokenauth-notify"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	n := NewNATSNotifier(nc, opts...)
	n.closer = nc.Close
	return n, nil
}

// Close releases the connection opened by [ConnectNATS].
func (n *NATSNotifier) Close() {
	if n != nil && n.closer != nil {
		n.closer()
	}
}

// Subject returns the subject messages of kind are published on.
func (n *NATSNotifier) Subject(kind Kind) string {
	return n.prefix + "." + string(kind)
}

func (n *NATSNotifier) SendResetPasswordLink(ctx context.Context, email, token string) error {
	return n.publish(ctx, KindResetPassword, email, token)
}

func (n *NATSNotifier) SendVerificationLink(ctx context.Context, email, token string) error {
	return n.publish(ctx, KindVerifyEmail, email, token)
}

func (n *NATSNotifier) publish(ctx context.Context, kind Kind, email, token string) error {
	if n == nil || n.pub == nil {
		return errors.New("notify: publisher not configured")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}

	data, err := json.Marshal(Message{
		Kind:   kind,
		Email:  email,
		Link:   n.links.Build(kind, token),
		SentAt: n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := n.pub.Publish(n.Subject(kind), data); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}
