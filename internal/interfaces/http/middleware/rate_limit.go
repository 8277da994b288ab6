package middleware

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/errors"
	"github.com/turtacn/authcore/pkg/logger"
)

// RateLimit enforces the per-IP budget on untrusted endpoints. Limiter failures are
// logged and the request is let through. A nil limiter disables limiting.
func RateLimit(limiter service.RateLimiter, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		ip := c.ClientIP()
		result, err := limiter.Allow(c.Request.Context(), constants.RateLimitScopeIP, ip)
		if err != nil {
			log.Warn(c.Request.Context(), "rate limiter unavailable, allowing request",
				logger.Err(err), logger.String("route", route(c)))
			c.Next()
			return
		}

		c.Header(constants.HeaderRateLimitLimit, strconv.FormatInt(result.Limit, 10))
		c.Header(constants.HeaderRateLimitRemaining, strconv.FormatInt(result.Remaining, 10))

		if !result.Allowed {
			retryAfter := int64(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header(constants.HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))
			log.Warn(c.Request.Context(), "rate limit exceeded",
				logger.String("client_ip", ip), logger.String("route", route(c)))
			AbortWithError(c, errors.ErrRateLimitExceeded(string(constants.RateLimitScopeIP), int(result.Limit), result.RetryAfter))
			return
		}
		c.Next()
	}
}
