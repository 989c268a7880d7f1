package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/viewtube/backend/config"
	apperrors "github.com/viewtube/backend/internal/errors"
)

// Token classes issued by the codec
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenClaims carries only the user ID beyond the registered claims; no
// other user attribute is embedded in a token.
type TokenClaims struct {
	jwt.RegisteredClaims
	UserID    uint   `json:"user_id"`
	TokenType string `json:"token_type"`
}

// TokenService signs and validates the two token classes. Access and
// refresh tokens use distinct secrets.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
	}
}

// AccessTTL exposes the configured access token lifetime for cookie and
// response expiry values.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL exposes the configured refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccess signs a short-lived access token for the user.
func (s *TokenService) IssueAccess(userID uint) (string, error) {
	return s.issue(userID, TokenTypeAccess, s.accessSecret, s.accessTTL)
}

// IssueRefresh signs a long-lived refresh token for the user.
func (s *TokenService) IssueRefresh(userID uint) (string, error) {
	return s.issue(userID, TokenTypeRefresh, s.refreshSecret, s.refreshTTL)
}

func (s *TokenService) issue(userID uint, tokenType string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			// Unique jti per issuance. Timestamps alone are second-granular,
			// and rotation relies on the new token differing from the old.
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:    userID,
		TokenType: tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Verify checks signature, expiry and token class, returning the embedded
// user ID. Every failure mode collapses into ErrInvalidToken.
func (s *TokenService) Verify(tokenString, expectedType string) (uint, error) {
	secret := s.accessSecret
	if expectedType == TokenTypeRefresh {
		secret = s.refreshSecret
	}

	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return 0, apperrors.WrapError(apperrors.ErrInvalidToken, err)
	}

	if !token.Valid || claims.TokenType != expectedType {
		return 0, apperrors.ErrInvalidToken
	}

	return claims.UserID, nil
}
