package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Skipper allows callers to bypass authentication for specific requests.
type Skipper func(r *http.Request) bool

// RevocationChecker reports whether a token id was signed out.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Middleware provides HTTP middleware for bearer-token validation.
type Middleware struct {
	Config      Config
	Skipper     Skipper
	Revocations RevocationChecker
}

// NewMiddleware constructs a middleware with optional skipper and revocation check.
func NewMiddleware(cfg Config, skipper Skipper, revocations RevocationChecker) Middleware {
	return Middleware{Config: cfg, Skipper: skipper, Revocations: revocations}
}

// PublicPaths skips authentication for health checks, metrics and the
// sign-up/sign-in endpoints.
func PublicPaths(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics", "/v1/auth/signup", "/v1/auth/signin":
		return true
	}
	return r.Method == http.MethodOptions
}

// Wrap wraps an http.Handler with authentication.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skipper != nil && m.Skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.parseRequest(r)
		if errors.Is(err, ErrRevocationUnavailable) {
			http.Error(w, ErrRevocationUnavailable.Error(), http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		ctx := WithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Middleware) parseRequest(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrMissingToken
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return nil, ErrInvalidToken
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	claims, err := Parse(token, m.Config)
	if err != nil {
		return nil, err
	}
	if m.Revocations != nil {
		revoked, err := m.Revocations.IsRevoked(r.Context(), claims.TokenID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRevocationUnavailable, err)
		}
		if revoked {
			return nil, ErrRevokedToken
		}
	}
	return claims, nil
}
