// Package notify delivers password-reset and email-verification links.
//
// [NATSNotifier] publishes one JSON message per link to a NATS subject so a
// mail worker can render and send it. [LogNotifier] writes the link to a zap
// logger and is meant for local development.
//
// Both implement tokenauth.Notifier.
package notify
