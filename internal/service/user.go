package service

import (
	"context"
	"errors"
	"strings"

	"github.com/viewtube/backend/internal/dto"
	apperrors "github.com/viewtube/backend/internal/errors"
	"github.com/viewtube/backend/internal/model"
	"github.com/viewtube/backend/internal/storage"
	ctxutil "github.com/viewtube/backend/pkg/context"
	"github.com/viewtube/backend/pkg/logger"
	"gorm.io/gorm"
)

// UserService handles registration and profile self-service operations.
type UserService struct {
	repo     UserRepository
	hasher   *PasswordHasher
	uploader *UploadService
	store    storage.ObjectStore
}

func NewUserService(repo UserRepository, hasher *PasswordHasher, uploader *UploadService, store storage.ObjectStore) *UserService {
	return &UserService{
		repo:     repo,
		hasher:   hasher,
		uploader: uploader,
		store:    store,
	}
}

// ToUserResponse strips sensitive fields from a user record.
func ToUserResponse(user *model.User) dto.UserResponse {
	return dto.UserResponse{
		ID:         user.ID,
		Username:   user.Username,
		Email:      user.Email,
		FullName:   user.FullName,
		Avatar:     user.Avatar,
		CoverImage: user.CoverImage,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}
}

// Register creates an account. The avatar is mandatory and both media
// files arrive pre-staged in the local temp dir; staged files are always
// consumed (uploaded or cleaned) by the upload transactions.
func (s *UserService) Register(ctx context.Context, req *dto.RegisterRequest, avatarPath, coverPath string) (*dto.UserResponse, error) {
	ctx = context.WithValue(ctx, ctxutil.FunctionKey, "Register")
	ctx = context.WithValue(ctx, ctxutil.ModuleKey, "service")

	if avatarPath == "" {
		return nil, apperrors.WrapError(apperrors.ErrInvalidInput, errors.New("avatar file is required"))
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		logger.ErrorWithContext(ctx, "Failed to hash password").
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	avatarRef, err := s.uploader.Commit(ctx, avatarPath, nil)
	if err != nil {
		// The cover file was staged but will never be committed
		if coverPath != "" {
			s.uploader.removeLocal(ctx, coverPath)
		}
		return nil, err
	}

	var coverRef storage.RemoteRef
	if coverPath != "" {
		coverRef, err = s.uploader.Commit(ctx, coverPath, nil)
		if err != nil {
			s.rollbackRemote(ctx, avatarRef)
			return nil, err
		}
	}

	user := &model.User{
		Username:     strings.ToLower(strings.TrimSpace(req.Username)),
		Email:        req.Email,
		FullName:     req.FullName,
		Password:     hashed,
		Avatar:       avatarRef.URL,
		AvatarID:     avatarRef.ID,
		CoverImage:   coverRef.URL,
		CoverImageID: coverRef.ID,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		// The remote copies are orphaned otherwise
		s.rollbackRemote(ctx, avatarRef)
		s.rollbackRemote(ctx, coverRef)

		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.ErrDuplicateUser
		}
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	logger.InfoWithContext(ctx, "User registered").
		Uint("user_id", user.ID).
		String("username", user.Username).
		Log()

	response := ToUserResponse(user)
	return &response, nil
}

// Get returns the sanitized user record.
func (s *UserService) Get(ctx context.Context, id uint) (*dto.UserResponse, error) {
	ctx = context.WithValue(ctx, ctxutil.FunctionKey, "Get")
	ctx = context.WithValue(ctx, ctxutil.ModuleKey, "service")

	user, err := s.repo.GetByIDSanitized(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	response := ToUserResponse(user)
	return &response, nil
}

// ChangePassword verifies the old password before storing the new hash.
func (s *UserService) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	ctx = context.WithValue(ctx, ctxutil.FunctionKey, "ChangePassword")
	ctx = context.WithValue(ctx, ctxutil.ModuleKey, "service")

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrUserNotFound
		}
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if !s.hasher.Verify(oldPassword, user.Password) {
		logger.WarnWithContext(ctx, "Password change rejected: old password mismatch").
			Uint("user_id", userID).
			Log()
		return apperrors.ErrInvalidCredentials
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if err := s.repo.UpdatePassword(ctx, userID, hashed); err != nil {
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	logger.InfoWithContext(ctx, "Password changed").
		Uint("user_id", userID).
		Log()

	return nil
}

// ChangeFullName updates the display name.
func (s *UserService) ChangeFullName(ctx context.Context, userID uint, fullName string) (*dto.UserResponse, error) {
	ctx = context.WithValue(ctx, ctxutil.FunctionKey, "ChangeFullName")
	ctx = context.WithValue(ctx, ctxutil.ModuleKey, "service")

	if err := s.repo.UpdateFullName(ctx, userID, fullName); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	return s.Get(ctx, userID)
}

// UpdateAvatar replaces the avatar: commit the staged file, persist the
// new reference, let the transaction retire the previous remote copy.
func (s *UserService) UpdateAvatar(ctx context.Context, userID uint, localPath string) (*dto.UserResponse, error) {
	ctx = context.WithValue(ctx, ctxutil.FunctionKey, "UpdateAvatar")
	ctx = context.WithValue(ctx, ctxutil.ModuleKey, "service")

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	ref, err := s.uploader.Commit(ctx, localPath, &storage.RemoteRef{URL: user.Avatar, ID: user.AvatarID})
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateAvatar(ctx, userID, ref.URL, ref.ID); err != nil {
		s.rollbackRemote(ctx, ref)
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	return s.Get(ctx, userID)
}

// UpdateCoverImage replaces the cover image; a first upload has no
// previous remote copy to retire.
func (s *UserService) UpdateCoverImage(ctx context.Context, userID uint, localPath string) (*dto.UserResponse, error) {
	ctx = context.WithValue(ctx, ctxutil.FunctionKey, "UpdateCoverImage")
	ctx = context.WithValue(ctx, ctxutil.ModuleKey, "service")

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	var previous *storage.RemoteRef
	if user.CoverImageID != "" {
		previous = &storage.RemoteRef{URL: user.CoverImage, ID: user.CoverImageID}
	}

	ref, err := s.uploader.Commit(ctx, localPath, previous)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateCoverImage(ctx, userID, ref.URL, ref.ID); err != nil {
		s.rollbackRemote(ctx, ref)
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	return s.Get(ctx, userID)
}

// rollbackRemote removes a remote object that never became authoritative.
// Best-effort: an orphaned remote object is preferable to a hard failure.
func (s *UserService) rollbackRemote(ctx context.Context, ref storage.RemoteRef) {
	if ref.ID == "" {
		return
	}
	if err := s.store.Delete(ctx, ref.ID); err != nil {
		logger.WarnWithContext(ctx, "Failed to roll back remote object").
			String("remote_id", ref.ID).
			Err(err).
			Log()
	}
}
