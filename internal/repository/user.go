package repository

import (
	"context"
	"strings"
	"time"

	"github.com/viewtube/backend/internal/model"
	ctxutil "github.com/viewtube/backend/pkg/context"
	"github.com/viewtube/backend/pkg/logger"
	"gorm.io/gorm"
)

// sensitiveColumns are never selected when the caller asks for a
// sanitized record.
var sensitiveColumns = []string{"Password", "RefreshToken"}

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id uint) (*model.User, error) {
	ctx = context.WithValue(ctx, ctxutil.FunctionKey, "GetByID")
	ctx = context.WithValue(ctx, ctxutil.ModuleKey, "repository")

	start := time.Now()
	var user model.User

	result := r.db.WithContext(ctx).Where("id = ?", id).First(&user)
	if result.Error != nil {
		logger.DebugWithContext(ctx, "Failed to get user by ID").
			Uint("user_id", id).
			Duration(time.Since(start)).
			Err(result.Error).
			Log()
		return nil, result.Error
	}

	return &user, nil
}

// GetByIDSanitized loads a user with the password hash and refresh token
// columns omitted. Used to resolve request principals.
func (r *UserRepository) GetByIDSanitized(ctx context.Context, id uint) (*model.User, error) {
	ctx = context.WithValue(ctx, ctxutil.FunctionKey, "GetByIDSanitized")
	ctx = context.WithValue(ctx, ctxutil.ModuleKey, "repository")

	var user model.User
	result := r.db.WithContext(ctx).Omit(sensitiveColumns...).Where("id = ?", id).First(&user)
	if result.Error != nil {
		logger.DebugWithContext(ctx, "Failed to get sanitized user").
			Uint("user_id", id).
			Err(result.Error).
			Log()
		return nil, result.Error
	}

	return &user, nil
}

// GetByIdentifier resolves a user by username or email. Usernames are
// stored lowercase, so the identifier is normalized before matching.
func (r *UserRepository) GetByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	ctx = context.WithValue(ctx, ctxutil.FunctionKey, "GetByIdentifier")
	ctx = context.WithValue(ctx, ctxutil.ModuleKey, "repository")

	start := time.Now()
	var user model.User

	normalized := strings.ToLower(strings.TrimSpace(identifier))
	result := r.db.WithContext(ctx).
		Where("username = ? OR email = ?", normalized, identifier).
		First(&user)
	if result.Error != nil {
		logger.DebugWithContext(ctx, "Failed to get user by identifier").
			Duration(time.Since(start)).
			Err(result.Error).
			Log()
		return nil, result.Error
	}

	return &user, nil
}

// Create inserts a new user. Unique-constraint violations on username or
// email surface as gorm.ErrDuplicatedKey (TranslateError is enabled on the
// connection).
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	ctx = context.WithValue(ctx, ctxutil.FunctionKey, "Create")
	ctx = context.WithValue(ctx, ctxutil.ModuleKey, "repository")

	start := time.Now()
	result := r.db.WithContext(ctx).Create(user)
	duration := time.Since(start)

	if result.Error != nil {
		logger.WarnWithContext(ctx, "Failed to create user").
			String("username", user.Username).
			Duration(duration).
			Err(result.Error).
			Log()
		return result.Error
	}

	logger.InfoWithContext(ctx, "User created").
		String("username", user.Username).
		Uint("user_id", user.ID).
		Duration(duration).
		Log()

	return nil
}

// UpdateRefreshToken overwrites the stored refresh token unconditionally.
// A single-column update: no validation hooks, no password re-hashing.
// Passing nil clears the session (logout).
func (r *UserRepository) UpdateRefreshToken(ctx context.Context, id uint, token *string) error {
	ctx = context.WithValue(ctx, ctxutil.FunctionKey, "UpdateRefreshToken")
	ctx = context.WithValue(ctx, ctxutil.ModuleKey, "repository")

	result := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Update("refresh_token", token)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to update refresh token").
			Uint("user_id", id).
			Err(result.Error).
			Log()
		return result.Error
	}

	return nil
}

// RotateRefreshToken replaces the stored refresh token only if it still
// equals oldToken. The conditional WHERE makes rotation atomic: of two
// concurrent refresh calls presenting the same token, exactly one sees
// rowsAffected > 0.
func (r *UserRepository) RotateRefreshToken(ctx context.Context, id uint, oldToken, newToken string) (bool, error) {
	ctx = context.WithValue(ctx, ctxutil.FunctionKey, "RotateRefreshToken")
	ctx = context.WithValue(ctx, ctxutil.ModuleKey, "repository")

	result := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND refresh_token = ?", id, oldToken).
		Update("refresh_token", newToken)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to rotate refresh token").
			Uint("user_id", id).
			Err(result.Error).
			Log()
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// UpdatePassword stores a new password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, id uint, hashedPassword string) error {
	ctx = context.WithValue(ctx, ctxutil.FunctionKey, "UpdatePassword")
	ctx = context.WithValue(ctx, ctxutil.ModuleKey, "repository")

	result := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Update("password", hashedPassword)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to update password").
			Uint("user_id", id).
			Err(result.Error).
			Log()
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

// UpdateFullName updates the display name
func (r *UserRepository) UpdateFullName(ctx context.Context, id uint, fullName string) error {
	ctx = context.WithValue(ctx, ctxutil.FunctionKey, "UpdateFullName")
	ctx = context.WithValue(ctx, ctxutil.ModuleKey, "repository")

	result := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Update("full_name", fullName)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to update full name").
			Uint("user_id", id).
			Err(result.Error).
			Log()
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

// UpdateAvatar persists a new avatar reference (remote URL + object key)
func (r *UserRepository) UpdateAvatar(ctx context.Context, id uint, url, objectID string) error {
	ctx = context.WithValue(ctx, ctxutil.FunctionKey, "UpdateAvatar")
	ctx = context.WithValue(ctx, ctxutil.ModuleKey, "repository")

	result := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"avatar":    url,
			"avatar_id": objectID,
		})
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to update avatar").
			Uint("user_id", id).
			Err(result.Error).
			Log()
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

// UpdateCoverImage persists a new cover image reference
func (r *UserRepository) UpdateCoverImage(ctx context.Context, id uint, url, objectID string) error {
	ctx = context.WithValue(ctx, ctxutil.FunctionKey, "UpdateCoverImage")
	ctx = context.WithValue(ctx, ctxutil.ModuleKey, "repository")

	result := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"cover_image":    url,
			"cover_image_id": objectID,
		})
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to update cover image").
			Uint("user_id", id).
			Err(result.Error).
			Log()
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}
