// Package auth issues and validates the bearer tokens that guard the HTTP API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tradedata/s3sync/internal/config"
)

var ErrDisabled = errors.New("auth is disabled")

type AuthTokenType string

const AccessToken AuthTokenType = "access"

type Claims struct {
	Type AuthTokenType `json:"type"`
	jwt.RegisteredClaims
}

type AuthService struct {
	config *config.AuthConfig
}

func NewAuthService(cfg *config.AuthConfig) (*AuthService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &AuthService{config: cfg}, nil
}

func (s *AuthService) IsEnabled() bool {
	return s != nil && s.config.Enabled
}

// IssueToken creates an access token for subject, valid for the configured expiry.
func (s *AuthService) IssueToken(subject string) (string, error) {
	if !s.IsEnabled() {
		return "", ErrDisabled
	}
	token, err := NewToken(subject, s.config.TokenIssuer, s.config.TokenSecret, s.config.TokenExpiry)
	if err != nil {
		return "", err
	}
	slog.Debug("token issued", "subject", subject, "expiry", s.config.TokenExpiry)
	return token, nil
}

func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*Claims, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("invalid access token")
	}

	claims, err := ParseClaims(accessToken, s.config.TokenSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}

	if claims.Type != AccessToken {
		return nil, fmt.Errorf("invalid access token: wrong token type got %q", claims.Type)
	}
	if claims.Issuer != s.config.TokenIssuer {
		return nil, fmt.Errorf("invalid access token: unexpected issuer %q", claims.Issuer)
	}

	return claims, nil
}

func NewToken(subject, issuer, jwtSecret string, expiry time.Duration) (string, error) {
	var expiryTime *jwt.NumericDate
	if expiry > 0 {
		expiryTime = jwt.NewNumericDate(time.Now().Add(expiry))
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   subject,
			Issuer:    issuer,
			ExpiresAt: expiryTime,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Type: AccessToken,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}

func ParseClaims(tokenString, jwtSecret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
