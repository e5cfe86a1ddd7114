package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	contextAuditAction = "audit_action"
	adminBlockAfter    = 5
	adminBlockDuration = time.Hour
)

// ActionCounter reports how often an admin performed an audited action
type ActionCounter interface {
	GetActionCount(ctx context.Context, adminID uuid.UUID, action string, since time.Time) (int64, error)
}

// AuditAction tags the route with the audit action AdminActionRateLimit counts
func AuditAction(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(contextAuditAction, action)
		c.Next()
	}
}

// AdminActionRateLimit throttles destructive ledger maintenance per admin.
// maxActions within window yields 429; reaching adminBlockAfter blocks the
// admin for an hour when Redis is available.
func AdminActionRateLimit(counter ActionCounter, redisClient *redis.Client, maxActions int, window time.Duration, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		action := c.GetString(contextAuditAction)
		adminID, ok := UserID(c)
		if action == "" || !ok {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		blockKey := fmt.Sprintf("admin_blocked:%s:%s", adminID, action)

		if redisClient != nil {
			if blocked, err := redisClient.Get(ctx, blockKey).Result(); err == nil && blocked == "1" {
				ttl, _ := redisClient.TTL(ctx, blockKey).Result()
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error":                 "admin_temporarily_blocked",
					"message":               "Too many maintenance actions. Contact another administrator.",
					"blocked_until_minutes": int(ttl.Minutes()),
				})
				return
			}
		}

		count, err := counter.GetActionCount(ctx, adminID, action, time.Now().Add(-window))
		if err != nil {
			logger.Warn("admin action count failed", "admin", adminID, "action", action, "err", err)
			c.Next()
			return
		}

		if count >= adminBlockAfter && redisClient != nil {
			_ = redisClient.Set(ctx, blockKey, "1", adminBlockDuration).Err()
			logger.Warn("admin blocked", "admin", adminID, "action", action, "count", count)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":               "admin_temporarily_blocked",
				"message":             "Too many maintenance actions. Blocked for one hour.",
				"blocked_for_minutes": int(adminBlockDuration.Minutes()),
			})
			return
		}

		if count >= int64(maxActions) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":               "rate_limit_exceeded",
				"message":             "Too many actions in a short time. Please wait a few minutes.",
				"retry_after_minutes": int(window.Minutes()),
			})
			return
		}

		c.Next()
	}
}
