package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const adminAudience = "resolverd-admin"

// Authenticator verifies bearer tokens on the admin surface. Tokens are HS256
// signed with a shared secret and must carry the admin role.
type Authenticator struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// NewAuthenticator constructs the admin token verifier.
func NewAuthenticator(secret, issuer string) (*Authenticator, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, errors.New("admin secret required")
	}
	if len(trimmed) < 32 {
		return nil, errors.New("admin secret must be at least 32 bytes")
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, errors.New("admin token issuer required")
	}
	return &Authenticator{
		secret: []byte(trimmed),
		issuer: issuer,
		leeway: 30 * time.Second,
		now:    time.Now,
	}, nil
}

// Verify parses and validates an admin token, returning the subject.
func (a *Authenticator) Verify(token string) (string, error) {
	if a == nil {
		return "", errors.New("authenticator not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithAudience(adminAudience),
		jwt.WithLeeway(a.leeway),
		jwt.WithTimeFunc(func() time.Time { return a.now() }),
	}
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("token validation failed")
	}
	subject, _ := claims["sub"].(string)
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("token subject missing")
	}
	role, _ := claims["role"].(string)
	if !strings.EqualFold(strings.TrimSpace(role), "admin") {
		return "", fmt.Errorf("role %q is not permitted", role)
	}
	return subject, nil
}

// Middleware enforces admin authentication before invoking the next handler.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := strings.TrimSpace(r.Header.Get("Authorization"))
		if authz == "" {
			http.Error(w, "missing authorization", http.StatusUnauthorized)
			return
		}
		parts := strings.SplitN(authz, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			http.Error(w, "invalid authorization scheme", http.StatusUnauthorized)
			return
		}
		if _, err := a.Verify(strings.TrimSpace(parts[1])); err != nil {
			http.Error(w, "invalid authorization token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
