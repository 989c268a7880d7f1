package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/viewtube/backend/pkg/logger"
	"go.uber.org/zap"
)

// LimiterStore counts requests per key within a fixed window. The redis
// implementation lives in pkg/redis; the in-memory one below is the
// single-instance fallback.
type LimiterStore interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// MemoryLimiterStore is a process-local fixed-window counter.
type MemoryLimiterStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count   int64
	resetAt time.Time
}

func NewMemoryLimiterStore() *MemoryLimiterStore {
	return &MemoryLimiterStore{windows: make(map[string]*window)}
}

func (s *MemoryLimiterStore) Hit(_ context.Context, key string, dur time.Duration) (int64, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(dur)}
		s.windows[key] = w
	}
	w.count++

	// Opportunistic cleanup of expired windows
	for k, v := range s.windows {
		if now.After(v.resetAt) {
			delete(s.windows, k)
		}
	}

	return w.count, nil
}

// RateLimit rejects clients exceeding maxRequest hits per duration,
// keyed by client IP. A store failure fails open: throttling is not
// worth taking the API down for.
func RateLimit(store LimiterStore, maxRequest int, duration time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		count, err := store.Hit(c.Request.Context(), ip, duration)
		if err != nil {
			logger.GetLogger().Warn("Rate limiter store unavailable",
				zap.String("client_ip", ip),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if count > int64(maxRequest) {
			logger.GetLogger().Warn("Rate limit exceeded",
				zap.String("client_ip", ip),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Int64("current_requests", count),
				zap.Int("max_requests", maxRequest),
			)

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": duration.Seconds(),
			})
			c.Abort()
			return
		}

		remaining := int64(maxRequest) - count
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequest))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		c.Next()
	}
}
