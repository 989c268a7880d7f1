package service

import (
	"context"
	"errors"

	"github.com/viewtube/backend/internal/dto"
	apperrors "github.com/viewtube/backend/internal/errors"
	"github.com/viewtube/backend/internal/model"
	ctxutil "github.com/viewtube/backend/pkg/context"
	"github.com/viewtube/backend/pkg/logger"
	"gorm.io/gorm"
)

// UserRepository is the persistence contract the services consume.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*model.User, error)
	GetByIDSanitized(ctx context.Context, id uint) (*model.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	UpdateRefreshToken(ctx context.Context, id uint, token *string) error
	RotateRefreshToken(ctx context.Context, id uint, oldToken, newToken string) (bool, error)
	UpdatePassword(ctx context.Context, id uint, hashedPassword string) error
	UpdateFullName(ctx context.Context, id uint, fullName string) error
	UpdateAvatar(ctx context.Context, id uint, url, objectID string) error
	UpdateCoverImage(ctx context.Context, id uint, url, objectID string) error
}

// SessionService owns the login/refresh/logout lifecycle. One refresh
// token is trusted per user at a time: a login or a successful refresh
// overwrites the stored value, revoking the previous session.
type SessionService struct {
	repo   UserRepository
	hasher *PasswordHasher
	tokens *TokenService
}

func NewSessionService(repo UserRepository, hasher *PasswordHasher, tokens *TokenService) *SessionService {
	return &SessionService{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
	}
}

// Login verifies credentials and opens a session. Unknown identifier and
// wrong password are indistinguishable to the caller.
func (s *SessionService) Login(ctx context.Context, identifier, password string) (*dto.LoginResponse, error) {
	ctx = context.WithValue(ctx, ctxutil.FunctionKey, "Login")
	ctx = context.WithValue(ctx, ctxutil.ModuleKey, "service")

	user, err := s.repo.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WarnWithContext(ctx, "Login failed: unknown identifier").Log()
			return nil, apperrors.ErrInvalidCredentials
		}
		logger.ErrorWithContext(ctx, "Failed to resolve user for login").
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if !s.hasher.Verify(password, user.Password) {
		logger.WarnWithContext(ctx, "Login failed: password mismatch").
			Uint("user_id", user.ID).
			Log()
		return nil, apperrors.ErrInvalidCredentials
	}

	accessToken, refreshToken, err := s.issuePair(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	// Overwriting the stored token revokes any previous session
	if err := s.repo.UpdateRefreshToken(ctx, user.ID, &refreshToken); err != nil {
		logger.ErrorWithContext(ctx, "Failed to persist refresh token").
			Uint("user_id", user.ID).
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	logger.InfoWithContext(ctx, "User logged in").
		Uint("user_id", user.ID).
		String("username", user.Username).
		Log()

	return &dto.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.tokens.AccessTTL().Seconds()),
		User:         ToUserResponse(user),
	}, nil
}

// Refresh rotates a presented refresh token into a fresh token pair.
// A structurally valid token that does not match the stored value is a
// replay signal and fails as Unauthorized.
func (s *SessionService) Refresh(ctx context.Context, presented string) (*dto.RefreshResponse, error) {
	ctx = context.WithValue(ctx, ctxutil.FunctionKey, "Refresh")
	ctx = context.WithValue(ctx, ctxutil.ModuleKey, "service")

	if presented == "" {
		return nil, apperrors.ErrUnauthorized
	}

	userID, err := s.tokens.Verify(presented, TokenTypeRefresh)
	if err != nil {
		logger.WarnWithContext(ctx, "Refresh failed: invalid token").
			Err(err).
			Log()
		return nil, apperrors.ErrInvalidToken
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUnauthorized
		}
		logger.ErrorWithContext(ctx, "Failed to load user for refresh").
			Uint("user_id", userID).
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if user.RefreshToken == nil || *user.RefreshToken != presented {
		logger.WarnWithContext(ctx, "Refresh failed: token does not match stored session").
			Uint("user_id", userID).
			Log()
		return nil, apperrors.ErrUnauthorized
	}

	accessToken, refreshToken, err := s.issuePair(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Conditional rotation: the losing side of a concurrent refresh race
	// observes the mismatch here and fails closed.
	rotated, err := s.repo.RotateRefreshToken(ctx, userID, presented, refreshToken)
	if err != nil {
		logger.ErrorWithContext(ctx, "Failed to rotate refresh token").
			Uint("user_id", userID).
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}
	if !rotated {
		logger.WarnWithContext(ctx, "Refresh lost rotation race").
			Uint("user_id", userID).
			Log()
		return nil, apperrors.ErrUnauthorized
	}

	logger.InfoWithContext(ctx, "Session refreshed").
		Uint("user_id", userID).
		Log()

	return &dto.RefreshResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// Logout clears the stored refresh token. Idempotent: logging out an
// already-anonymous user succeeds.
func (s *SessionService) Logout(ctx context.Context, userID uint) error {
	ctx = context.WithValue(ctx, ctxutil.FunctionKey, "Logout")
	ctx = context.WithValue(ctx, ctxutil.ModuleKey, "service")

	if err := s.repo.UpdateRefreshToken(ctx, userID, nil); err != nil {
		logger.ErrorWithContext(ctx, "Failed to clear refresh token on logout").
			Uint("user_id", userID).
			Err(err).
			Log()
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	logger.InfoWithContext(ctx, "User logged out").
		Uint("user_id", userID).
		Log()

	return nil
}

func (s *SessionService) issuePair(ctx context.Context, userID uint) (string, string, error) {
	accessToken, err := s.tokens.IssueAccess(userID)
	if err != nil {
		logger.ErrorWithContext(ctx, "Failed to issue access token").
			Uint("user_id", userID).
			Err(err).
			Log()
		return "", "", apperrors.WrapError(apperrors.ErrInternal, err)
	}

	refreshToken, err := s.tokens.IssueRefresh(userID)
	if err != nil {
		logger.ErrorWithContext(ctx, "Failed to issue refresh token").
			Uint("user_id", userID).
			Err(err).
			Log()
		return "", "", apperrors.WrapError(apperrors.ErrInternal, err)
	}

	return accessToken, refreshToken, nil
}
