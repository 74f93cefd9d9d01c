package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/homekeep/internal/observability/logger"
	"go.uber.org/zap"
)

// WriteRateLimit throttles mutating routes per household. Limiter failures
// let the request through.
func (s *Server) WriteRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.writeLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		householdID := householdParam(c)
		res, err := s.writeLimiter.AllowHousehold(ctx, householdID)
		if err != nil {
			logger.FromContext(ctx).Warn("write rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			logger.FromContext(ctx).Warn("write rate limit exceeded",
				zap.String("route", c.FullPath()),
				zap.Duration("retry_after", res.RetryAfter),
			)
			c.Header("Retry-After", strconv.Itoa(int(math.Max(1, math.Ceil(res.RetryAfter.Seconds())))))
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Next()
	}
}
