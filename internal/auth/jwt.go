package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTService signs and verifies HS256 bearer tokens.
type JWTService struct {
	secret []byte
	issuer string
	expiry time.Duration
}

// NewJWTService builds a JWT helper. An empty issuer skips the iss check.
func NewJWTService(secret, issuer string, expiry time.Duration) *JWTService {
	return &JWTService{secret: []byte(secret), issuer: issuer, expiry: expiry}
}

// Enabled reports whether a secret is configured.
func (s *JWTService) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

type Claims struct {
	WorkspaceID string `json:"workspace_id"`
	jwt.RegisteredClaims
}

// Generate issues a signed token for id.
func (s *JWTService) Generate(id Identity) (string, error) {
	if !s.Enabled() {
		return "", ErrAuthDisabled
	}
	if strings.TrimSpace(id.UserID) == "" {
		return "", errors.New("user id required")
	}

	now := time.Now()
	claims := Claims{
		WorkspaceID: strings.TrimSpace(id.WorkspaceID),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  id.UserID,
			Issuer:   s.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.expiry))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and verifies a token and returns its identity.
func (s *JWTService) Validate(token string) (Identity, error) {
	if !s.Enabled() {
		return Identity{}, ErrAuthDisabled
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.WorkspaceID) == "" {
		return Identity{}, ErrMissingWorkspace
	}
	return Identity{
		UserID:      claims.Subject,
		WorkspaceID: strings.TrimSpace(claims.WorkspaceID),
	}, nil
}
