// Package auth issues and verifies member credentials for the schedule service.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"teamcal/internal/platform/apperrors"
)

const tokenIssuer = "teamcal"

// MinKeySize is the smallest accepted HMAC signing key length.
const MinKeySize = 32

// Manager signs and verifies member session tokens.
type Manager struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// tokenClaims is the internal claims type used for JWT parsing.
type tokenClaims struct {
	jwt.RegisteredClaims
	MemberID int64 `json:"member_id"`
}

// NewManager creates a token manager for the given HMAC key and lifetime.
func NewManager(key []byte, ttl time.Duration, now func() time.Time) (*Manager, error) {
	if len(key) < MinKeySize {
		return nil, fmt.Errorf("token key must be at least %d bytes", MinKeySize)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{key: key, ttl: ttl, now: now}, nil
}

// TTL returns the configured token lifetime.
func (m *Manager) TTL() time.Duration {
	if m == nil {
		return 0
	}
	return m.ttl
}

// Issue signs a token identifying one member.
func (m *Manager) Issue(memberID int64) (string, error) {
	if m == nil {
		return "", fmt.Errorf("token manager is not configured")
	}
	if memberID <= 0 {
		return "", fmt.Errorf("member id is required")
	}
	issuedAt := m.now().UTC()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(memberID, 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(m.ttl)),
		},
		MemberID: memberID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns the member it identifies.
func (m *Manager) Verify(token string) (int64, error) {
	if m == nil {
		return 0, fmt.Errorf("token manager is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, apperrors.E(apperrors.KindUnauthorized, "token is required")
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		return m.key, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return 0, mapJWTError(err)
	}

	if parsed.Issuer != tokenIssuer {
		return 0, apperrors.E(apperrors.KindUnauthorized, "token issuer mismatch")
	}
	if parsed.ExpiresAt == nil {
		return 0, apperrors.E(apperrors.KindUnauthorized, "token exp is required")
	}
	now := m.now().UTC()
	if !parsed.ExpiresAt.Time.UTC().After(now) {
		return 0, apperrors.E(apperrors.KindUnauthorized, "token is expired")
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return 0, apperrors.E(apperrors.KindUnauthorized, "token not active yet")
	}
	if parsed.MemberID <= 0 {
		return 0, apperrors.E(apperrors.KindUnauthorized, "token member claim is invalid")
	}
	return parsed.MemberID, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return apperrors.E(apperrors.KindUnauthorized, "token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.E(apperrors.KindUnauthorized, "token alg is invalid")
	}
	return apperrors.E(apperrors.KindUnauthorized, "token is invalid")
}
