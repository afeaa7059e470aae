// Package auth verifies bearer tokens at the ingress boundary and produces
// the identity claims the core trusts. The tenant id rides in the
// custom:tenantId claim, stamped into the token at issue time; callers never
// choose it per request.
package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	"tenant-assistant/internal/domain"
)

// ErrInvalidToken reports a token that failed verification for any reason.
// The reason is deliberately not surfaced to callers.
var ErrInvalidToken = errors.New("auth: invalid token")

// verifierEnv holds raw env values before post-parse validation.
type verifierEnv struct {
	Issuer    string `env:"AUTH_ISSUER"`
	Audience  string `env:"AUTH_AUDIENCE"`
	PublicKey string `env:"AUTH_PUBLIC_KEY"`
}

// tokenClaims is the internal claims type used for JWT parsing.
type tokenClaims struct {
	jwt.RegisteredClaims
	TenantID string `json:"custom:tenantId"`
}

// Verifier validates access tokens and extracts identity claims.
type Verifier struct {
	issuer   string
	audience string
	key      ed25519.PublicKey
}

// NewVerifier creates a Verifier.
func NewVerifier(issuer, audience string, key ed25519.PublicKey) (*Verifier, error) {
	issuer = strings.TrimSpace(issuer)
	audience = strings.TrimSpace(audience)
	if issuer == "" {
		return nil, errors.New("auth: issuer must not be empty")
	}
	if audience == "" {
		return nil, errors.New("auth: audience must not be empty")
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("auth: public key must be %d bytes", ed25519.PublicKeySize)
	}
	return &Verifier{issuer: issuer, audience: audience, key: key}, nil
}

// NewVerifierFromEnv reads AUTH_ISSUER, AUTH_AUDIENCE and AUTH_PUBLIC_KEY
// (base64-encoded Ed25519 public key) and builds a Verifier.
func NewVerifierFromEnv() (*Verifier, error) {
	var raw verifierEnv
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("auth: parse env: %w", err)
	}
	if strings.TrimSpace(raw.PublicKey) == "" {
		return nil, errors.New("auth: AUTH_PUBLIC_KEY is required")
	}
	keyBytes, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("auth: decode public key: %w", err)
	}
	return NewVerifier(raw.Issuer, raw.Audience, ed25519.PublicKey(keyBytes))
}

// Verify validates the token signature, issuer, audience and lifetime, and
// returns the caller's identity claims. Both the subject and the tenant claim
// must be present; a token without a tenant binding cannot reach the core.
func (v *Verifier) Verify(token string) (domain.IdentityClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.IdentityClaims{}, ErrInvalidToken
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return domain.IdentityClaims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	subject := strings.TrimSpace(parsed.Subject)
	tenantID := strings.TrimSpace(parsed.TenantID)
	if subject == "" || tenantID == "" {
		return domain.IdentityClaims{}, fmt.Errorf("%w: missing subject or tenant claim", ErrInvalidToken)
	}
	return domain.IdentityClaims{SubjectID: subject, TenantID: tenantID}, nil
}
