package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/dashbridge/pkg/cache"
)

// RateLimiter counts requests per client IP in one-minute windows kept in
// the shared cache, so every replica enforces the same budget. The limit
// can be changed while serving.
type RateLimiter struct {
	cache cache.ValkeyCluster
	limit atomic.Int64
	now   func() time.Time
}

func NewRateLimiter(c cache.ValkeyCluster, requestsPerMinute int64) *RateLimiter {
	rl := &RateLimiter{cache: c, now: time.Now}
	rl.SetLimit(requestsPerMinute)
	return rl
}

// SetLimit changes the per-minute budget; values below 1 disable limiting.
func (rl *RateLimiter) SetLimit(requestsPerMinute int64) {
	rl.limit.Store(requestsPerMinute)
}

func (rl *RateLimiter) Limit() int64 { return rl.limit.Load() }

// Middleware enforces the budget.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		maxRequests := rl.limit.Load()
		if maxRequests < 1 {
			c.Next()
			return
		}

		window := rl.now().Unix() / 60
		key := fmt.Sprintf("dashbridge:rate_limit:%s:%d", c.ClientIP(), window)
		reset := strconv.FormatInt((window+1)*60, 10)

		count, err := rl.cache.Incr(c.Request.Context(), key, 2*time.Minute)
		if err != nil {
			// An unavailable counter loosens the limit; the request still proceeds.
			c.Next()
			return
		}

		if count > maxRequests {
			c.Header("X-Rate-Limit-Limit", strconv.FormatInt(maxRequests, 10))
			c.Header("X-Rate-Limit-Remaining", "0")
			c.Header("X-Rate-Limit-Reset", reset)

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status":      "error",
				"error":       "rate_limit_exceeded",
				"retry_after": 60,
			})
			return
		}

		c.Header("X-Rate-Limit-Limit", strconv.FormatInt(maxRequests, 10))
		c.Header("X-Rate-Limit-Remaining", strconv.FormatInt(maxRequests-count, 10))
		c.Header("X-Rate-Limit-Reset", reset)

		c.Next()
	}
}
