package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken indicates an empty bearer token.
	ErrMissingToken = errors.New("auth: token required")
	// ErrInvalidToken indicates a token that failed parsing or signature checks.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrExpiredToken indicates a token past its expiry.
	ErrExpiredToken = errors.New("auth: token expired")
	// ErrMissingSubject indicates a token without a usable subject claim.
	ErrMissingSubject = errors.New("auth: subject required")
)

// Identity is the externally verified caller: an opaque subject plus an optional email.
type Identity struct {
	Subject string
	Email   string
}

// Verifier turns a bearer token into a verified Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// identityClaims mirrors the JWT payload issued by the identity provider.
type identityClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (c identityClaims) identity() (Identity, error) {
	subject := strings.TrimSpace(c.Subject)
	if subject == "" {
		return Identity{}, ErrMissingSubject
	}
	return Identity{
		Subject: subject,
		Email:   strings.TrimSpace(c.Email),
	}, nil
}
