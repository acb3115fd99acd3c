package flows

import (
	"context"

	"github.com/MrEthical07/tokenauth/signer"
	"github.com/MrEthical07/tokenauth/token"
)

// TokenVerifier checks a signed token string against an expected type.
type TokenVerifier interface {
	VerifyType(tokenStr string, want token.Type) (*signer.Payload, error)
}

// TokenStore is the persistence surface the flows need.
type TokenStore interface {
	Insert(ctx context.Context, t *token.Token) (string, error)
	FindActive(ctx context.Context, value string, typ token.Type, subjectID string) (*token.Token, error)
	Consume(ctx context.Context, value string, typ token.Type, subjectID string) (*token.Token, error)
	DeleteAllForSubject(ctx context.Context, subjectID string, types ...token.Type) (int, error)
	Delete(ctx context.Context, value string) (bool, error)
}

// Deps groups flow dependency sets. The Engine builds this once and delegates
// request methods to the matching flow.
type Deps struct {
	Signer TokenVerifier
	Store  TokenStore
}
