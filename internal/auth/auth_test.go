package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Polqt/braidcore/internal/apperr"
)

func signToken(t *testing.T, secret []byte, subject, email string, expired bool) string {
	t.Helper()
	exp := time.Now().Add(time.Hour)
	if expired {
		exp = time.Now().Add(-time.Hour)
	}
	c := claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestAuthenticateValidToken(t *testing.T) {
	secret := []byte("test-secret")
	v := NewVerifier(secret)
	id := uuid.New()
	token := signToken(t, secret, id.String(), "alice@example.com", false)

	p, err := v.Authenticate(context.Background(), "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != id || p.Email != "alice@example.com" {
		t.Fatalf("got %+v", p)
	}
}

func TestAuthenticateMissingHeader(t *testing.T) {
	v := NewVerifier([]byte("secret"))
	_, err := v.Authenticate(context.Background(), "")
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("got %v want KindUnauthorized", apperr.KindOf(err))
	}
}

func TestAuthenticateMalformedHeader(t *testing.T) {
	v := NewVerifier([]byte("secret"))
	_, err := v.Authenticate(context.Background(), "Token abc")
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("got %v want KindUnauthorized", apperr.KindOf(err))
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	secret := []byte("test-secret")
	v := NewVerifier(secret)
	token := signToken(t, secret, uuid.New().String(), "a@b.com", true)

	_, err := v.Authenticate(context.Background(), "Bearer "+token)
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("got %v want KindUnauthorized", apperr.KindOf(err))
	}
}

func TestAuthenticateWrongSecret(t *testing.T) {
	v := NewVerifier([]byte("right-secret"))
	token := signToken(t, []byte("wrong-secret"), uuid.New().String(), "a@b.com", false)

	_, err := v.Authenticate(context.Background(), "Bearer "+token)
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("got %v want KindUnauthorized", apperr.KindOf(err))
	}
}

func TestAuthenticateConsultsPrincipalExists(t *testing.T) {
	secret := []byte("test-secret")
	v := NewVerifier(secret)
	id := uuid.New()
	token := signToken(t, secret, id.String(), "a@b.com", false)

	v.PrincipalExists = func(ctx context.Context, got uuid.UUID) (bool, error) {
		return got == id, nil
	}
	if _, err := v.Authenticate(context.Background(), "Bearer "+token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v.PrincipalExists = func(ctx context.Context, got uuid.UUID) (bool, error) {
		return false, nil
	}
	if _, err := v.Authenticate(context.Background(), "Bearer "+token); apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("expected unauthorized when principal does not exist, got %v", err)
	}
}
