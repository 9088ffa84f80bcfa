// Package auth verifies identity-provider tokens.
// Verification is stateless (HS256 shared secret), so any instance can
// authenticate any request. The token only asserts who the caller is;
// roles always come from the stored account.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/RayBen445/ChatBot/ports"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid identity token")

// Claims are the identity claims issued by the identity provider.
type Claims struct {
	UserID string `json:"uid,omitempty"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// UID returns the uid claim, falling back to the subject.
func (c *Claims) UID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Config configures token verification.
type Config struct {
	Secret   string
	Issuer   string // optional; enforced when set
	Audience string // optional; enforced when set
	Leeway   time.Duration
	Clock    ports.Clock
}

// Verifier implements ports.IdentityVerifier.
// Thread-safe and suitable for concurrent use.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier creates a verifier. The secret must not be empty.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("identity secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Clock != nil {
		opts = append(opts, jwt.WithTimeFunc(cfg.Clock.Now))
	}
	return &Verifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(opts...),
	}, nil
}

// Verify validates a token and returns the identity it asserts.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (ports.Identity, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return ports.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UID() == "" {
		return ports.Identity{}, ErrInvalidToken
	}
	return ports.Identity{
		UID:         claims.UID(),
		Email:       claims.Email,
		DisplayName: claims.Name,
	}, nil
}

// Ensure interface compliance.
var _ ports.IdentityVerifier = (*Verifier)(nil)

// Issuer signs identity tokens with the shared secret. Used by tests and
// the CLI to stand in for the identity provider.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	clock    ports.Clock
}

// NewIssuer creates an issuer matching a verifier's Config.
func NewIssuer(cfg Config) *Issuer {
	return &Issuer{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		clock:    cfg.Clock,
	}
}

// Issue signs a token for id valid for ttl.
func (i *Issuer) Issue(id ports.Identity, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	if i.clock != nil {
		now = i.clock.Now()
	}
	claims := Claims{
		UserID: id.UID,
		Email:  id.Email,
		Name:   id.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   id.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if i.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// GenerateSecret generates a random secret suitable for HS256 signing.
func GenerateSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
