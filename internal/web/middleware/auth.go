package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrMissingBearer is returned when the Authorization header is absent.
	ErrMissingBearer = errors.New("missing bearer token")
	// ErrInvalidToken is returned for malformed or unknown tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// TokenVerifier checks bearer tokens for mutating routes.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) error
}

// StaticTokenVerifier accepts a fixed set of tokens. With no tokens
// configured every request is refused.
type StaticTokenVerifier struct {
	tokens []string
}

// NewStaticTokenVerifier creates a verifier for tokens; blank entries are ignored.
func NewStaticTokenVerifier(tokens []string) *StaticTokenVerifier {
	v := &StaticTokenVerifier{}
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			v.tokens = append(v.tokens, t)
		}
	}
	return v
}

// Verify implements TokenVerifier.
func (v *StaticTokenVerifier) Verify(_ context.Context, token string) error {
	ok := 0
	for _, t := range v.tokens {
		ok |= subtle.ConstantTimeCompare([]byte(t), []byte(token))
	}
	if ok == 0 {
		return ErrInvalidToken
	}
	return nil
}

// RequireToken is middleware that requires a valid bearer token
func RequireToken(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extractBearer(r)
			if err == nil {
				err = v.Verify(r.Context(), token)
			}
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearer(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", ErrMissingBearer
	}
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
