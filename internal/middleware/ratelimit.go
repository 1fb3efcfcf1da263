package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medical-office-server/internal/ratelimit"
	"medical-office-server/internal/utils"
)

// RateLimit throttles requests per client IP. If the limiter's backend is
// down the request is let through and the failure is logged.
func RateLimit(limiter ratelimit.Limiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := limiter.Allow(c.Request.Context(), c.ClientIP())
		switch {
		case err == nil:
		case errors.Is(err, ratelimit.ErrRateLimited):
			utils.TooManyRequests(c, "Too many requests, try again later")
			return
		default:
			logger.Warn("rate limiter unavailable", zap.String("path", c.FullPath()), zap.Error(err))
		}
		c.Next()
	}
}
