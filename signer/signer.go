// Package signer produces and verifies signed token strings carrying a
// subject, issue/expiry times, a token type and a random token id.
//
// Verification checks the signature before any claim, so an expired token
// with a forged signature reports ErrInvalidSignature rather than ErrExpired.
package signer

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/tokenauth/token"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Method selects the signing algorithm.
type Method string

const (
	// MethodHS256 signs with HMAC-SHA256 over a shared secret.
	MethodHS256 Method = "hs256"
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 Method = "ed25519"
)

var (
	// ErrInvalidSignature covers signature mismatch, malformed tokens, wrong
	// algorithm, issuer/audience mismatch and missing claims.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrExpired is returned for a correctly signed token whose expiry has passed.
	ErrExpired = errors.New("token expired")
	// ErrTypeMismatch is returned by VerifyType when the type claim differs.
	ErrTypeMismatch = errors.New("token type mismatch")
)

// Config configures a Signer. Secret is required for MethodHS256; MethodEd25519
// takes raw or PEM-encoded keys and can verify without a private key.
type Config struct {
	Method       Method
	Secret       []byte
	PrivateKey   []byte
	PublicKey    []byte
	Issuer       string
	Audience     string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
	Now          func() time.Time
}

// Payload is the content carried by a signed token.
type Payload struct {
	ID        string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Type      token.Type
}

type claims struct {
	Type token.Type `json:"type"`
	jwt.RegisteredClaims
}

// Signer signs and verifies tokens. It holds no mutable state and is safe for
// concurrent use.
type Signer struct {
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
	parser    *jwt.Parser
	issuer    string
	audience  string
	maxFuture time.Duration
	now       func() time.Time
}

// New validates cfg and returns a Signer.
func New(cfg Config) (*Signer, error) {
	if cfg.Method == "" {
		cfg.Method = MethodHS256
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Signer{
		issuer:    strings.TrimSpace(cfg.Issuer),
		audience:  strings.TrimSpace(cfg.Audience),
		maxFuture: cfg.MaxFutureIAT,
		now:       cfg.Now,
	}

	switch cfg.Method {
	case MethodHS256:
		if len(cfg.Secret) == 0 {
			return nil, errors.New("hs256 requires secret")
		}
		secret := append([]byte(nil), cfg.Secret...)
		s.method = jwt.SigningMethodHS256
		s.signKey = secret
		s.verifyKey = secret
	case MethodEd25519:
		s.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			s.signKey = priv
			if len(cfg.PublicKey) == 0 {
				s.verifyKey = priv.Public()
			}
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			s.verifyKey = pub
		}
		if s.verifyKey == nil {
			return nil, errors.New("ed25519 requires public or private key")
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if s.issuer != "" {
		options = append(options, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		options = append(options, jwt.WithAudience(s.audience))
	}
	s.parser = jwt.NewParser(options...)

	return s, nil
}

// Now returns the signer's clock reading.
func (s *Signer) Now() time.Time {
	return s.now()
}

// Sign returns the signed string for p. A random ID is generated when p.ID is
// empty so that two payloads issued within the same second differ.
func (s *Signer) Sign(p Payload) (string, error) {
	if s.signKey == nil {
		return "", errors.New("signing key not configured")
	}
	if p.Subject == "" {
		return "", errors.New("payload subject is required")
	}
	if !p.Type.Valid() {
		return "", fmt.Errorf("unknown token type %q", p.Type)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.IssuedAt.IsZero() {
		p.IssuedAt = s.now()
	}

	c := claims{
		Type: p.Type,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        p.ID,
			Subject:   p.Subject,
			IssuedAt:  jwt.NewNumericDate(p.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(p.ExpiresAt),
			Issuer:    s.issuer,
		},
	}
	if s.audience != "" {
		c.Audience = jwt.ClaimStrings{s.audience}
	}

	return jwt.NewWithClaims(s.method, c).SignedString(s.signKey)
}

// Verify checks the signature and expiry of tokenStr and returns its payload.
func (s *Signer) Verify(tokenStr string) (*Payload, error) {
	var c claims
	parsed, err := s.parser.ParseWithClaims(tokenStr, &c, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != s.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return s.verifyKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidSignature
	}
	if c.Subject == "" || !c.Type.Valid() {
		return nil, fmt.Errorf("%w: missing subject or type", ErrInvalidSignature)
	}
	if c.IssuedAt != nil && c.IssuedAt.Time.After(s.now().Add(s.maxFuture)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrInvalidSignature)
	}

	p := &Payload{
		ID:        c.ID,
		Subject:   c.Subject,
		ExpiresAt: c.ExpiresAt.Time,
		Type:      c.Type,
	}
	if c.IssuedAt != nil {
		p.IssuedAt = c.IssuedAt.Time
	}
	return p, nil
}

// VerifyType verifies tokenStr and requires its type claim to equal want.
func (s *Signer) VerifyType(tokenStr string, want token.Type) (*Payload, error) {
	p, err := s.Verify(tokenStr)
	if err != nil {
		return nil, err
	}
	if p.Type != want {
		return nil, ErrTypeMismatch
	}
	return p, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
