// Package auth issues and validates the bearer tokens that identify a user.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Config holds signer verification parameters.
type Config struct {
	Secret string
	Issuer string
}

// Claims represents the payload extracted from a JWT.
type Claims struct {
	Subject   string
	Email     string
	TokenID   string
	Scopes    map[string]struct{}
	ExpiresAt time.Time
}

// ErrMissingToken is returned when the Authorization header is absent.
var ErrMissingToken = errors.New("missing bearer token")

// ErrInvalidToken wraps parsing/validation errors.
var ErrInvalidToken = errors.New("invalid bearer token")

// ErrRevokedToken is returned for tokens that were signed out.
var ErrRevokedToken = errors.New("bearer token revoked")

// ErrRevocationUnavailable is returned when the revocation list cannot be read.
var ErrRevocationUnavailable = errors.New("token revocation check unavailable")

// Issue signs a token for the subject valid for ttl.
func Issue(cfg Config, subject, email string, scopes []string, ttl time.Duration, now time.Time) (string, *Claims, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return "", nil, errors.New("auth: empty signing secret")
	}
	claims := &Claims{
		Subject:   subject,
		Email:     email,
		TokenID:   uuid.NewString(),
		Scopes:    make(map[string]struct{}, len(scopes)),
		ExpiresAt: now.Add(ttl).UTC().Truncate(time.Second),
	}
	for _, s := range scopes {
		claims.Scopes[s] = struct{}{}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":    cfg.Issuer,
		"sub":    subject,
		"email":  email,
		"jti":    claims.TokenID,
		"scopes": strings.Join(scopes, " "),
		"iat":    now.Unix(),
		"exp":    claims.ExpiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Parse validates a JWT and returns normalized claims.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithIssuer(cfg.Issuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	subject, _ := claims["sub"].(string)
	tokenID, _ := claims["jti"].(string)
	if subject == "" || tokenID == "" {
		return nil, ErrInvalidToken
	}
	email, _ := claims["email"].(string)

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrInvalidToken)
	}

	return &Claims{
		Subject:   subject,
		Email:     email,
		TokenID:   tokenID,
		Scopes:    normalizeScopes(claims["scopes"]),
		ExpiresAt: exp.Time,
	}, nil
}

func normalizeScopes(value interface{}) map[string]struct{} {
	out := make(map[string]struct{})
	switch v := value.(type) {
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok && str != "" {
				out[str] = struct{}{}
			}
		}
	case []string:
		for _, str := range v {
			if str != "" {
				out[str] = struct{}{}
			}
		}
	case string:
		for _, str := range strings.Split(v, " ") {
			str = strings.TrimSpace(str)
			if str != "" {
				out[str] = struct{}{}
			}
		}
	}
	return out
}

// HasScope reports whether the claim set includes the provided scope.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Scopes[scope]
	return ok
}
