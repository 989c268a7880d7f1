package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	ctxutil "github.com/viewtube/backend/pkg/context"
)

// ContextMiddleware seeds the request context with tracking metadata so
// downstream layers log with request_id, client_ip and friends attached.
func ContextMiddleware(module string, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, module, c.Request.URL.Path)

		ctx, cancel := ctxutil.WithTimeout(ctx, timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
