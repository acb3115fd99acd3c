package middleware

import (
	"net/http"
	"time"

	"github.com/MrEthical07/tokenauth"
)

// Transport is a tokenauth.CookieTransport bound to one HTTP exchange.
type Transport struct {
	w   http.ResponseWriter
	r   *http.Request
	cfg tokenauth.CookieConfig
}

// NewTransport returns a transport reading cookies from r and writing them to w.
func NewTransport(w http.ResponseWriter, r *http.Request, cfg tokenauth.CookieConfig) *Transport {
	return &Transport{w: w, r: r, cfg: cfg}
}

// Tokens returns the access and refresh cookie values. Missing cookies yield
// empty strings.
func (t *Transport) Tokens() (string, string) {
	return cookieValue(t.r, t.cfg.AccessName), cookieValue(t.r, t.cfg.RefreshName)
}

// SetTokens overwrites both cookies on the response.
func (t *Transport) SetTokens(pair *tokenauth.AuthTokenPair) {
	SetAuthCookies(t.w, t.cfg, pair)
}

// SetAuthCookies writes the access and refresh cookies for pair. Each cookie
// expires together with its token.
func SetAuthCookies(w http.ResponseWriter, cfg tokenauth.CookieConfig, pair *tokenauth.AuthTokenPair) {
	if pair == nil {
		return
	}
	http.SetCookie(w, newCookie(cfg, cfg.AccessName, pair.Access.Token, pair.Access.ExpiresAt))
	http.SetCookie(w, newCookie(cfg, cfg.RefreshName, pair.Refresh.Token, pair.Refresh.ExpiresAt))
}

// ClearAuthCookies expires both cookies on the client.
func ClearAuthCookies(w http.ResponseWriter, cfg tokenauth.CookieConfig) {
	for _, name := range []string{cfg.AccessName, cfg.RefreshName} {
		c := newCookie(cfg, name, "", time.Unix(0, 0))
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func newCookie(cfg tokenauth.CookieConfig, name, value string, expires time.Time) *http.Cookie {
	path := cfg.Path
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   cfg.Domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	}
}

func cookieValue(r *http.Request, name string) string {
	if r == nil || name == "" {
		return ""
	}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
