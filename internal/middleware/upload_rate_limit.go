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
	"github.com/soundly/backend/internal/models"
)

// QuotaSource resolves users and their stored upload count for today
type QuotaSource interface {
	GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	UploadsToday(ctx context.Context, userID uuid.UUID) (int64, error)
}

func uploadKey(userID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("upload_limit:%s:%s", userID, now.UTC().Format("2006-01-02"))
}

// UploadQuota caps song uploads per UTC day for basic users; premium users
// are unlimited. The Redis counter only advances when an upload actually
// created a song (201), so duplicate uploads are free. Without Redis the
// stored songs are counted instead.
func UploadQuota(redisClient *redis.Client, users QuotaSource, dailyLimit int, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			c.Next()
			return
		}
		ctx := c.Request.Context()

		user, err := users.GetUserByID(ctx, userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
			return
		}
		if user.Type == models.UserTypePremium {
			c.Next()
			return
		}

		now := time.Now().UTC()
		key := uploadKey(userID, now)
		used, err := usedToday(ctx, redisClient, users, key, userID)
		if err != nil {
			// Quota lookups never block an upload.
			logger.Warn("upload quota lookup failed", "user", userID, "err", err)
			c.Next()
			return
		}

		if used >= int64(dailyLimit) {
			midnight := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":               "upload_limit_exceeded",
				"message":             "Daily upload limit reached. Upgrade to premium for unlimited uploads.",
				"uploads_today":       used,
				"max_uploads_per_day": dailyLimit,
				"retry_after_hours":   int(midnight.Sub(now).Hours()),
			})
			return
		}

		c.Next()

		if redisClient == nil || c.Writer.Status() != http.StatusCreated {
			return
		}
		pipe := redisClient.TxPipeline()
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, 25*time.Hour)
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Warn("upload quota increment failed", "user", userID, "err", err)
		}
	}
}

func usedToday(ctx context.Context, redisClient *redis.Client, users QuotaSource, key string, userID uuid.UUID) (int64, error) {
	if redisClient == nil {
		return users.UploadsToday(ctx, userID)
	}
	n, err := redisClient.Get(ctx, key).Int64()
	if err == redis.Nil {
		// Seed from the database so a Redis flush does not reset the quota.
		return users.UploadsToday(ctx, userID)
	}
	return n, err
}
