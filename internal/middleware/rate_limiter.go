package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/soundly/backend/internal/config"
	"golang.org/x/time/rate"
)

// localLimiter is the per-process fallback used when Redis is absent or
// failing. Limits are per instance, not global.
type localLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newLocalLimiter(requests int, per time.Duration) *localLimiter {
	return &localLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(per / time.Duration(max(requests, 1))),
		burst:    max(requests, 1),
	}
}

func (l *localLimiter) allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// RateLimiter limits requests per client IP. Redis counters are shared
// across instances; without Redis a token bucket per IP is used.
func RateLimiter(redisClient *redis.Client, cfg *config.Config, logger *log.Logger) gin.HandlerFunc {
	local := newLocalLimiter(cfg.RateLimitRequests, cfg.RateLimitDuration)

	fallback := func(c *gin.Context, ip string) {
		if !local.allow(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}

	return func(c *gin.Context) {
		ip := c.ClientIP()
		if redisClient == nil {
			fallback(c, ip)
			return
		}

		ctx := c.Request.Context()
		key := fmt.Sprintf("rate_limit:%s", ip)

		count, err := redisClient.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("redis rate limiter unavailable", "err", err)
			fallback(c, ip)
			return
		}
		if count == 1 {
			if err := redisClient.Expire(ctx, key, cfg.RateLimitDuration).Err(); err != nil {
				logger.Warn("rate limiter failed to set expiry", "err", err)
			}
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.RateLimitRequests))
		if count > int64(cfg.RateLimitRequests) {
			ttl, _ := redisClient.TTL(ctx, key).Result()
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(ttl).Unix()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": ttl.Seconds(),
			})
			return
		}
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", int64(cfg.RateLimitRequests)-count))
		c.Next()
	}
}
