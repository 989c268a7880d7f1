package handler

import (
	"net/http"
	"time"

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

type AuthHandler struct {
	sessions *service.SessionService
	users    *service.UserService
	cfg      *config.Config
}

func NewAuthHandler(sessions *service.SessionService, users *service.UserService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		users:    users,
		cfg:      cfg,
	}
}

// setSessionCookies writes both token cookies. httpOnly keeps them out of
// reach of client-side script.
func (h *AuthHandler) setSessionCookies(c *gin.Context, accessToken, refreshToken string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     constants.CookieAccessToken,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(h.cfg.JWT.AccessTTL.Seconds()),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     constants.CookieRefreshToken,
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   int(h.cfg.JWT.RefreshTTL.Seconds()),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearSessionCookies expires both cookies: empty value, Expires in the
// past.
func (h *AuthHandler) clearSessionCookies(c *gin.Context) {
	for _, name := range []string{constants.CookieAccessToken, constants.CookieRefreshToken} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			Secure:   true,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// Register creates an account from a multipart form carrying the profile
// fields plus a mandatory avatar file and an optional cover image.
func (h *AuthHandler) Register(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, "handler", "Register")

	var req dto.RegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		logger.WarnWithContext(ctx, "Invalid register request").
			Err(err).
			Log()
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse(constants.MsgBadRequest, validation.FormatBindingError(err)))
		return
	}

	avatarPath, err := stageFormFile(c, "avatar", h.cfg.Upload.TempDir)
	if err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Avatar file is required", nil))
		return
	}

	// Optional: a missing cover image is not an error
	coverPath, _ := stageFormFile(c, "coverImage", h.cfg.Upload.TempDir)

	user, err := h.users.Register(ctx, &req, avatarPath, coverPath)
	if err != nil {
		logger.WarnWithContext(ctx, "Registration failed").
			String("username", req.Username).
			Err(err).
			Log()
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Registration failed", apperrors.GetErrorMessage(err)))
		return
	}

	logger.InfoWithContext(ctx, "User registered").
		Uint("user_id", user.ID).
		Log()

	c.JSON(http.StatusCreated, constants.BuildDataResponse("User registered successfully", user))
}

// Login authenticates by username-or-email and opens a session.
func (h *AuthHandler) Login(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, "handler", "Login")

	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WarnWithContext(ctx, "Invalid login request").
			Err(err).
			Log()
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse(constants.MsgBadRequest, validation.FormatBindingError(err)))
		return
	}

	response, err := h.sessions.Login(ctx, req.Identifier, req.Password)
	if err != nil {
		logger.WarnWithContext(ctx, "Login failed").
			Err(err).
			Log()
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Authentication failed", apperrors.GetErrorMessage(err)))
		return
	}

	h.setSessionCookies(c, response.AccessToken, response.RefreshToken)
	c.JSON(http.StatusOK, constants.BuildDataResponse("Login successful", response))
}

// Refresh rotates the refresh token. The token is read from its cookie,
// with an explicit body field as fallback — never the Authorization
// header.
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, "handler", "Refresh")

	presented, err := c.Cookie(constants.CookieRefreshToken)
	if err != nil || presented == "" {
		var req dto.RefreshRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			presented = req.RefreshToken
		}
	}

	if presented == "" {
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse(constants.MsgUnauthorized, nil))
		return
	}

	response, err := h.sessions.Refresh(ctx, presented)
	if err != nil {
		logger.WarnWithContext(ctx, "Token refresh failed").
			Err(err).
			Log()
		h.clearSessionCookies(c)
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Token refresh failed", apperrors.GetErrorMessage(err)))
		return
	}

	h.setSessionCookies(c, response.AccessToken, response.RefreshToken)
	c.JSON(http.StatusOK, constants.BuildDataResponse("Token refreshed", response))
}

// Logout closes the session of the authenticated principal. The user ID
// comes from the verified access token, no extra lookup.
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, "handler", "Logout")

	principal, ok := middleware.Principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse(constants.MsgUnauthorized, nil))
		return
	}

	if err := h.sessions.Logout(ctx, principal.ID); err != nil {
		logger.ErrorWithContext(ctx, "Logout failed").
			Uint("user_id", principal.ID).
			Err(err).
			Log()
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Logout failed", apperrors.GetErrorMessage(err)))
		return
	}

	h.clearSessionCookies(c)
	c.JSON(http.StatusOK, constants.BuildSuccessResponse("Logout successful"))
}
