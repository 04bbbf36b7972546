package httpadapter

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/kirillkom/cvgram/internal/core/domain"
)

type identityContextKey struct{}

func identityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(domain.Identity)
	return id, ok
}

// authenticated resolves the bearer token before the handler runs; requests
// without a valid identity never reach the catalog.
func (rt *Router) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			rt.recordAuthFailure("missing")
			writeError(w, r, domain.WrapError(domain.ErrUnauthorized, "authenticate", errors.New("bearer token is required")))
			return
		}
		id, err := rt.identity.Verify(r.Context(), token)
		if err != nil {
			rt.recordAuthFailure("bearer")
			writeError(w, r, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), identityContextKey{}, id)))
	}
}

func bearerToken(headerValue string) (string, bool) {
	headerValue = strings.TrimSpace(headerValue)
	const bearerPrefix = "bearer "
	if len(headerValue) <= len(bearerPrefix) || !strings.EqualFold(headerValue[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(headerValue[len(bearerPrefix):])
	return token, token != ""
}

func isAuthorizedBearerHeader(headerValue, expectedToken string) bool {
	if expectedToken == "" {
		return false
	}
	token, ok := bearerToken(headerValue)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) == 1
}
