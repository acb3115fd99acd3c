package notify

import (
	"net/url"
	"strings"
	"time"
)

// Kind names the purpose of a link.
type Kind string

const (
	KindResetPassword Kind = "reset_password"
	KindVerifyEmail   Kind = "verify_email"
)

// Message is the payload published for each link.
type Message struct {
	Kind   Kind      `json:"kind"`
	Email  string    `json:"email"`
	Link   string    `json:"link"`
	SentAt time.Time `json:"sent_at"`
}

// Links holds the front-end pages the token is appended to.
type Links struct {
	ResetPasswordURL string
	VerifyEmailURL   string
}

// DefaultLinks returns placeholder pages for local setups.
func DefaultLinks() Links {
	return Links{
		ResetPasswordURL: "http://localhost:3000/reset-password",
		VerifyEmailURL:   "http://localhost:3000/verify-email",
	}
}

// Build returns the page for kind with the token appended as a query value.
func (l Links) Build(kind Kind, token string) string {
	base := l.ResetPasswordURL
	if kind == KindVerifyEmail {
		base = l.VerifyEmailURL
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}
