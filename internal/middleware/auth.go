package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/viewtube/backend/internal/constants"
	"github.com/viewtube/backend/internal/model"
	"github.com/viewtube/backend/internal/service"
	ctxutil "github.com/viewtube/backend/pkg/context"
	"github.com/viewtube/backend/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuthMiddleware is the request authenticator: it extracts an access
// token, validates it, resolves the principal and attaches it to the
// request. It never reads or writes the stored refresh token.
type AuthMiddleware struct {
	tokens *service.TokenService
	repo   service.UserRepository
}

func NewAuthMiddleware(tokens *service.TokenService, repo service.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
		repo:   repo,
	}
}

// extractToken prefers the access-token cookie; the Authorization header
// is the fallback for non-browser clients.
func extractToken(c *gin.Context) string {
	if cookie, err := c.Cookie(constants.CookieAccessToken); err == nil && cookie != "" {
		return cookie
	}

	authHeader := c.GetHeader(constants.HeaderAuthorization)
	if strings.HasPrefix(authHeader, constants.BearerPrefix) {
		return strings.TrimPrefix(authHeader, constants.BearerPrefix)
	}

	return ""
}

// RequireAuth validates the access token and loads the acting principal.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			logger.GetLogger().Warn("Missing access token",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method))
			c.AbortWithStatusJSON(http.StatusUnauthorized, constants.BuildErrorResponse(constants.MsgUnauthorized, nil))
			return
		}

		userID, err := m.tokens.Verify(tokenString, service.TokenTypeAccess)
		if err != nil {
			logger.GetLogger().Warn("Invalid or expired access token",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, constants.BuildErrorResponse(constants.MsgUnauthorized, nil))
			return
		}

		// The account may have been deleted after the token was issued.
		// Any other lookup failure is an infra problem, not a revoked
		// session.
		user, err := m.repo.GetByIDSanitized(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				logger.GetLogger().Warn("Token principal no longer exists",
					zap.Uint("user_id", userID),
					zap.String("path", c.Request.URL.Path))
				c.AbortWithStatusJSON(http.StatusUnauthorized, constants.BuildErrorResponse(constants.MsgUnauthorized, nil))
				return
			}
			logger.GetLogger().Error("Failed to resolve token principal",
				zap.Uint("user_id", userID),
				zap.String("path", c.Request.URL.Path),
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, constants.BuildErrorResponse(constants.MsgInternalError, nil))
			return
		}

		c.Set(constants.GinKeyPrincipal, user)
		c.Request = c.Request.WithContext(ctxutil.WithUserID(c.Request.Context(), user.ID))

		c.Next()
	}
}

// Principal returns the authenticated user attached by RequireAuth.
func Principal(c *gin.Context) (*model.User, bool) {
	value, exists := c.Get(constants.GinKeyPrincipal)
	if !exists {
		return nil, false
	}
	user, ok := value.(*model.User)
	return user, ok
}
