// Package token validates dashboard-issued bearer tokens.
//
// The dashboard authenticates its users itself; it mints short-lived HS256
// tokens scoped to a tenant so this service only has to check the signature
// and the tenant claim.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"linkhub/internal/platform/middleware"
)

// Service signs and validates tenant-scoped tokens.
type Service struct {
	signingKey []byte
	ttl        time.Duration
}

type claims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// New creates a token service with the given HS256 signing key.
func New(signingKey string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{signingKey: []byte(signingKey), ttl: ttl}
}

// Generate mints a token scoped to the given tenant. Used by the dashboard
// integration tests and the tokengen tool; production tokens come from the
// dashboard's own issuer sharing the signing key.
func (s *Service) Generate(tenantID, subject string) (string, error) {
	now := time.Now()
	c := claims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        fmt.Sprintf("%d", now.UnixNano()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks signature and expiry and returns the tenant claims.
func (s *Service) ValidateToken(tokenString string) (*middleware.TokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if c.TenantID == "" {
		return nil, fmt.Errorf("token missing tenant_id claim")
	}

	return &middleware.TokenClaims{
		TenantID: c.TenantID,
		Subject:  c.Subject,
		JTI:      c.ID,
	}, nil
}
