package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/viewtube/backend/config"
	"github.com/viewtube/backend/internal/constants"
	"github.com/viewtube/backend/internal/dto"
	apperrors "github.com/viewtube/backend/internal/errors"
	"github.com/viewtube/backend/internal/middleware"
	"github.com/viewtube/backend/internal/service"
	ctxutil "github.com/viewtube/backend/pkg/context"
	"github.com/viewtube/backend/pkg/logger"
	"github.com/viewtube/backend/pkg/validation"
)

type UserHandler struct {
	users *service.UserService
	cfg   *config.Config
}

func NewUserHandler(users *service.UserService, cfg *config.Config) *UserHandler {
	return &UserHandler{
		users: users,
		cfg:   cfg,
	}
}

// Me returns the authenticated principal.
func (h *UserHandler) Me(c *gin.Context) {
	principal, ok := middleware.Principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse(constants.MsgUnauthorized, nil))
		return
	}

	c.JSON(http.StatusOK, constants.BuildDataResponse("Current user", service.ToUserResponse(principal)))
}

// ChangePassword verifies the old password and stores a new hash.
func (h *UserHandler) ChangePassword(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, "handler", "ChangePassword")

	principal, ok := middleware.Principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse(constants.MsgUnauthorized, nil))
		return
	}

	var req dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse(constants.MsgBadRequest, validation.FormatBindingError(err)))
		return
	}

	if err := h.users.ChangePassword(ctx, principal.ID, req.OldPassword, req.NewPassword); err != nil {
		logger.WarnWithContext(ctx, "Password change failed").
			Uint("user_id", principal.ID).
			Err(err).
			Log()
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Password change failed", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusOK, constants.BuildSuccessResponse("Password changed successfully"))
}

// ChangeFullName updates the display name.
func (h *UserHandler) ChangeFullName(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, "handler", "ChangeFullName")

	principal, ok := middleware.Principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse(constants.MsgUnauthorized, nil))
		return
	}

	var req dto.ChangeFullNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse(constants.MsgBadRequest, validation.FormatBindingError(err)))
		return
	}

	user, err := h.users.ChangeFullName(ctx, principal.ID, req.FullName)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Name change failed", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusOK, constants.BuildDataResponse("Full name updated", user))
}

// ChangeAvatar replaces the avatar through the upload transaction.
func (h *UserHandler) ChangeAvatar(c *gin.Context) {
	h.changeMedia(c, "avatar", h.users.UpdateAvatar)
}

// ChangeCoverImage replaces the cover image through the upload
// transaction.
func (h *UserHandler) ChangeCoverImage(c *gin.Context) {
	h.changeMedia(c, "coverImage", h.users.UpdateCoverImage)
}

func (h *UserHandler) changeMedia(c *gin.Context, field string, update func(ctx context.Context, userID uint, localPath string) (*dto.UserResponse, error)) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, "handler", "ChangeMedia")

	principal, ok := middleware.Principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse(constants.MsgUnauthorized, nil))
		return
	}

	localPath, err := stageFormFile(c, field, h.cfg.Upload.TempDir)
	if err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Media file is required", nil))
		return
	}

	user, err := update(ctx, principal.ID, localPath)
	if err != nil {
		logger.WarnWithContext(ctx, "Media update failed").
			Uint("user_id", principal.ID).
			String("field", field).
			Err(err).
			Log()
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Media update failed", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusOK, constants.BuildDataResponse("Media updated", user))
}
