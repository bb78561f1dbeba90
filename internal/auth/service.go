package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned when the admin password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginDisabled is returned when no admin password hash is configured.
	ErrLoginDisabled = errors.New("admin login disabled")
	// ErrForbidden is returned for valid tokens lacking the admin role.
	ErrForbidden = errors.New("forbidden")
)

// Service issues and checks operator tokens for the debug surface.
type Service struct {
	passwordHash string
	jwtConfig    *JWTConfig
	now          func() time.Time
}

// NewService creates an auth service. An empty passwordHash disables Login.
func NewService(passwordHash string, jwtConfig *JWTConfig) *Service {
	return &Service{
		passwordHash: passwordHash,
		jwtConfig:    jwtConfig,
		now:          time.Now,
	}
}

// Login checks the admin password and returns a signed token.
func (s *Service) Login(_ context.Context, password string) (string, error) {
	if s.passwordHash == "" {
		return "", ErrLoginDisabled
	}
	if err := ComparePassword(s.passwordHash, password); err != nil {
		return "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, "operator", RoleAdmin, s.now())
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// Authorize validates a token and requires the admin role.
func (s *Service) Authorize(tokenString string) (*Claims, error) {
	claims, err := ValidateToken(s.jwtConfig, tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	return claims, nil
}
