package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/movieclub/backend/internal/ratelimit"
	"github.com/movieclub/backend/pkg/response"
)

// RateLimit caps requests per second per authenticated user, or per client IP
// before authentication. Limiter errors let the request through.
func RateLimit(limiter ratelimit.Limiter, perSecond int, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if perSecond <= 0 {
			c.Next()
			return
		}
		key := "ip:" + c.ClientIP()
		if id, ok := UserID(c); ok {
			key = "u:" + strconv.FormatInt(id, 10)
		}
		res, err := limiter.Allow(c.Request.Context(), key, perSecond, time.Now())
		if err != nil {
			logger.Warn("rate limit check failed", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(perSecond))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))
		if !res.Allowed {
			c.Header("Retry-After", "1")
			response.TooManyRequests(c, "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
