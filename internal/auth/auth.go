// Package auth turns bearer tokens issued by the identity provider into
// sessions.
package auth

import (
	"context"
	"crypto/rsa"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/robertarktes/travel-reservations/internal/domain"
)

type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type Verifier struct {
	key *rsa.PublicKey
}

// NewVerifier parses a PEM encoded RSA public key. An empty key yields a
// verifier that rejects every token, so all callers stay anonymous.
func NewVerifier(publicKeyPEM string) (*Verifier, error) {
	if strings.TrimSpace(publicKeyPEM) == "" {
		return &Verifier{}, nil
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, errors.Wrap(err, "parse jwt public key")
	}
	return &Verifier{key: key}, nil
}

// Verify checks an RS256 token and returns its session.
func (v *Verifier) Verify(raw string) (*domain.Session, error) {
	if v.key == nil {
		return nil, errors.Wrap(domain.ErrUnauthenticated, "token verification disabled")
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, errors.Wrapf(domain.ErrUnauthenticated, "invalid token: %v", err)
	}
	if claims.Subject == "" {
		return nil, errors.Wrap(domain.ErrUnauthenticated, "token has no subject")
	}

	role := claims.Role
	if role != domain.RoleOperator {
		role = domain.RoleCustomer
	}
	return &domain.Session{
		UserID: claims.Subject,
		Email:  claims.Email,
		Name:   claims.Name,
		Role:   role,
	}, nil
}

// FromHeader extracts the token of an "Authorization: Bearer" header value.
func FromHeader(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

type sessionKey struct{}

func WithSession(ctx context.Context, s *domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the caller's session, or nil for anonymous requests.
func SessionFrom(ctx context.Context) *domain.Session {
	s, _ := ctx.Value(sessionKey{}).(*domain.Session)
	return s
}
