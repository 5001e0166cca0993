// Package auth implements the Auth Gate (C4): bearer token
// verification and principal extraction, stateless within a process
// (spec.md §4.7). Grounded on
// original_source/src/backend/middleware/auth.rs's AuthenticatedUser
// and "Bearer " stripping logic, adapted from Axum middleware to a
// plain verifier the chi router's handlers call directly.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Polqt/braidcore/internal/apperr"
)

// Principal is the authenticated caller, extracted from JWT claims
// (spec.md §3 "Principal").
type Principal struct {
	ID    uuid.UUID
	Email string
}

// claims is the subset of JWT claims this service expects: `sub` holds
// the principal's UUID (registered claim, parsed by the jwt library),
// `email` is a custom claim.
type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier verifies bearer tokens signed with a single HMAC secret.
// PrincipalExists is optional (nil means skip the check) — spec.md
// §4.7 calls consulting the persistence layer to confirm the principal
// still exists "a policy choice," not a requirement.
type Verifier struct {
	secret          []byte
	PrincipalExists func(ctx context.Context, id uuid.UUID) (bool, error)
}

// NewVerifier returns a Verifier keyed on secret.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Authenticate extracts and verifies a bearer token from an
// Authorization header value (the full header, e.g. "Bearer <token>"),
// returning the Principal or an *apperr.Error of KindUnauthorized.
func (v *Verifier) Authenticate(ctx context.Context, authorizationHeader string) (Principal, error) {
	token, ok := strings.CutPrefix(authorizationHeader, "Bearer ")
	if !ok || token == "" {
		return Principal{}, apperr.New(apperr.KindUnauthorized, "missing or malformed Authorization header")
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Principal{}, apperr.New(apperr.KindUnauthorized, "invalid token")
	}

	c, ok := parsed.Claims.(*claims)
	if !ok {
		return Principal{}, apperr.New(apperr.KindUnauthorized, "invalid token claims")
	}

	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return Principal{}, apperr.New(apperr.KindUnauthorized, "invalid subject claim")
	}

	if v.PrincipalExists != nil {
		exists, err := v.PrincipalExists(ctx, id)
		if err != nil || !exists {
			return Principal{}, apperr.New(apperr.KindUnauthorized, "principal not found")
		}
	}

	return Principal{ID: id, Email: c.Email}, nil
}
