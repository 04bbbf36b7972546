package jwt

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/cvgram/internal/core/domain"
)

type Options struct {
	// HMACSecret enables HS256 tokens.
	HMACSecret string
	// RSAPublicKeyPEM enables RS256 tokens.
	RSAPublicKeyPEM string
	Issuer          string
	Audience        string
	Leeway          time.Duration
}

type claims struct {
	Email string `json:"email"`
	gojwt.RegisteredClaims
}

// Verifier validates signed bearer tokens and reads sub and email claims.
type Verifier struct {
	hmacSecret []byte
	publicKey  *rsa.PublicKey
	parser     *gojwt.Parser
}

func NewVerifier(opts Options) (*Verifier, error) {
	v := &Verifier{}
	methods := make([]string, 0, 2)
	if opts.HMACSecret != "" {
		v.hmacSecret = []byte(opts.HMACSecret)
		methods = append(methods, gojwt.SigningMethodHS256.Alg())
	}
	if strings.TrimSpace(opts.RSAPublicKeyPEM) != "" {
		key, err := gojwt.ParseRSAPublicKeyFromPEM([]byte(opts.RSAPublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parse jwt public key: %w", err)
		}
		v.publicKey = key
		methods = append(methods, gojwt.SigningMethodRS256.Alg())
	}
	if len(methods) == 0 {
		return nil, errors.New("jwt verifier requires a secret or a public key")
	}

	parserOpts := []gojwt.ParserOption{
		gojwt.WithValidMethods(methods),
		gojwt.WithExpirationRequired(),
		gojwt.WithLeeway(opts.Leeway),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, gojwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		parserOpts = append(parserOpts, gojwt.WithAudience(opts.Audience))
	}
	v.parser = gojwt.NewParser(parserOpts...)
	return v, nil
}

func (v *Verifier) Verify(_ context.Context, token string) (domain.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Identity{}, domain.WrapError(domain.ErrUnauthorized, "verify token", errors.New("missing token"))
	}

	var c claims
	if _, err := v.parser.ParseWithClaims(token, &c, v.keyFunc); err != nil {
		return domain.Identity{}, domain.WrapError(domain.ErrUnauthorized, "verify token", err)
	}
	if c.Subject == "" {
		return domain.Identity{}, domain.WrapError(domain.ErrUnauthorized, "verify token", errors.New("token has no subject"))
	}
	return domain.Identity{Subject: c.Subject, Email: domain.NormalizeEmail(c.Email)}, nil
}

func (v *Verifier) keyFunc(t *gojwt.Token) (any, error) {
	switch t.Method.(type) {
	case *gojwt.SigningMethodHMAC:
		if v.hmacSecret == nil {
			return nil, errors.New("hmac tokens are not accepted")
		}
		return v.hmacSecret, nil
	case *gojwt.SigningMethodRSA:
		if v.publicKey == nil {
			return nil, errors.New("rsa tokens are not accepted")
		}
		return v.publicKey, nil
	default:
		return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
	}
}
