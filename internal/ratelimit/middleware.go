package ratelimit

import (
	"fmt"
	"log/slog"
	"strconv"

	apperrors "github.com/ZanzyTHEbar/karma-passport/internal/errors"
	"github.com/gin-gonic/gin"
)

// IPRateLimitMiddleware limits requests per client IP. Limiter failures
// never block the request.
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Enabled() {
			c.Next()
			return
		}

		ip := c.ClientIP()
		result, err := rl.AllowIP(c.Request.Context(), ip)
		if err != nil {
			slog.Error("Rate limit check failed", "ip", ip, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitIPBlock()
				rl.metrics.IncrementRateLimitEndpoint(c.FullPath())
			}

			retryAfter := max(int(result.RetryAfter.Seconds()+0.5), 1)
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			apperrors.Respond(c, apperrors.NewRateLimitError(fmt.Sprintf("%ds", retryAfter)))
			c.Abort()
			return
		}

		c.Next()
	}
}
