package token

import (
	"context"
	"errors"
)

var ErrNoToken = errors.New("token service returned no token")

// Issuer is the client side of the token service.
type Issuer interface {
	GetToken(ctx context.Context, userID string) (string, error)
}

// Verifier resolves a token back to the user id it was issued for.
type Verifier interface {
	Verify(token string) (string, error)
}
