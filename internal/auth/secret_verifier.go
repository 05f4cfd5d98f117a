package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSigningSecret = errors.New("secret verifier: signing secret required")
)

// SecretVerifierConfig describes how to validate HS256 tokens signed with a shared secret.
type SecretVerifierConfig struct {
	SigningSecret []byte
	Audience      string
	Issuer        string
	Clock         func() time.Time
}

// SecretVerifier validates HS256 JWTs issued by the hosted identity provider.
type SecretVerifier struct {
	signingSecret []byte
	audience      string
	issuer        string
	clock         func() time.Time
}

// NewSecretVerifier constructs a verifier with the provided configuration.
func NewSecretVerifier(cfg SecretVerifierConfig) (*SecretVerifier, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SecretVerifier{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		audience:      strings.TrimSpace(cfg.Audience),
		issuer:        strings.TrimSpace(cfg.Issuer),
		clock:         clock,
	}, nil
}

// Verify validates the supplied JWT string and returns the caller identity.
func (v *SecretVerifier) Verify(_ context.Context, tokenString string) (Identity, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	options := []jwt.ParserOption{
		jwt.WithTimeFunc(v.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}

	claims := &identityClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidToken, t.Method.Alg())
			}
			return v.signingSecret, nil
		},
		options...,
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, fmt.Errorf("%w: %w", ErrExpiredToken, err)
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	return claims.identity()
}
