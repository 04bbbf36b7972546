package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/cvgram/internal/core/domain"
)

func signHS256(t *testing.T, secret string, c claims) string {
	t.Helper()
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, c).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return token
}

func validClaims() claims {
	return claims{
		Email: "Alice@Example.com",
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "https://issuer.test",
			Audience:  gojwt.ClaimStrings{"cvgram"},
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func newHS256Verifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(Options{HMACSecret: "s3cret", Issuer: "https://issuer.test", Audience: "cvgram"})
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	return v
}

func TestVerifyHS256(t *testing.T) {
	v := newHS256Verifier(t)

	id, err := v.Verify(context.Background(), signHS256(t, "s3cret", validClaims()))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if id != (domain.Identity{Subject: "user-1", Email: "alice@example.com"}) {
		t.Fatalf("identity = %+v", id)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	v := newHS256Verifier(t)

	expired := validClaims()
	expired.ExpiresAt = gojwt.NewNumericDate(time.Now().Add(-time.Hour))

	wrongAudience := validClaims()
	wrongAudience.Audience = gojwt.ClaimStrings{"other"}

	noSubject := validClaims()
	noSubject.Subject = ""

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	tokens := map[string]string{
		"empty":          "",
		"garbage":        "not.a.token",
		"wrong secret":   signHS256(t, "other", validClaims()),
		"expired":        signHS256(t, "s3cret", expired),
		"wrong audience": signHS256(t, "s3cret", wrongAudience),
		"no subject":     signHS256(t, "s3cret", noSubject),
		"no expiry":      signHS256(t, "s3cret", noExpiry),
	}
	for name, token := range tokens {
		if _, err := v.Verify(context.Background(), token); !domain.IsKind(err, domain.ErrUnauthorized) {
			t.Fatalf("%s: expected ErrUnauthorized, got %v", name, err)
		}
	}
}

func TestVerifyRS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey() error = %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	v, err := NewVerifier(Options{RSAPublicKeyPEM: string(pemKey)})
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}

	token, err := gojwt.NewWithClaims(gojwt.SigningMethodRS256, validClaims()).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	id, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if id.Subject != "user-1" {
		t.Fatalf("subject = %q", id.Subject)
	}

	// an HS256 token must not be accepted by an RS256-only verifier
	if _, err := v.Verify(context.Background(), signHS256(t, "s3cret", validClaims())); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestNewVerifierRequiresKey(t *testing.T) {
	if _, err := NewVerifier(Options{}); err == nil {
		t.Fatal("expected error without a key")
	}
}
