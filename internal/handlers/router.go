package handlers

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/soundly/backend/internal/config"
	"github.com/soundly/backend/internal/middleware"
	"github.com/soundly/backend/internal/services"
)

// Services are the dependencies the HTTP layer routes to
type Services struct {
	Auth          *services.AuthService
	Users         *services.UserService
	Songs         *services.SongService
	Exchanges     *services.ExchangeService
	Activities    *services.ActivityService
	Notifications *services.NotificationService
	Admin         *services.AdminService
	Audit         *services.AuditService
}

// NewRouter builds the gin engine. redisClient may be nil.
func NewRouter(cfg *config.Config, redisClient *redis.Client, svc Services, logger *log.Logger) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg))
	router.Use(middleware.RateLimiter(redisClient, cfg, logger))

	authHandler := NewAuthHandler(svc.Auth)
	userHandler := NewUserHandler(svc.Users, svc.Exchanges)
	songHandler := NewSongHandler(svc.Songs, svc.Exchanges)
	exchangeHandler := NewExchangeHandler(svc.Exchanges)
	feedHandler := NewFeedHandler(svc.Activities)
	notificationHandler := NewNotificationHandler(svc.Notifications)
	adminHandler := NewAdminHandler(svc.Admin, svc.Audit)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := router.Group("/api/v1")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		})

		api.OPTIONS("/*path", func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})

		api.GET("/genre-distribution", songHandler.GetGenreDistribution)

		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.POST("/logout", middleware.Auth(svc.Auth), authHandler.Logout)
		}

		authed := api.Group("")
		authed.Use(middleware.Auth(svc.Auth))
		{
			authed.GET("/user/profile", userHandler.GetProfile)
			authed.PUT("/user/profile", userHandler.UpdateProfile)
			authed.POST("/user/notifications/toggle", userHandler.ToggleNotifications)
			authed.GET("/statistics", userHandler.Statistics)
			authed.GET("/user-summary", userHandler.Summary)

			authed.POST("/songs",
				middleware.UploadQuota(redisClient, svc.Users, cfg.BasicDailyUploadLimit, logger),
				songHandler.CreateSong)
			authed.GET("/songs", songHandler.GetSongs)
			authed.GET("/songs/received", songHandler.GetReceivedSongs)
			authed.GET("/songs/:id", songHandler.GetSong)

			authed.GET("/exchanges/:id/reciprocal", exchangeHandler.GetReciprocal)

			authed.GET("/feed", feedHandler.GetFeed)
			authed.POST("/feed/:id/reactions/:type", feedHandler.React)
			authed.DELETE("/feed/:id/reactions/:type", feedHandler.Unreact)
			authed.POST("/feed/:id/comments", feedHandler.AddComment)
			authed.GET("/feed/:id/comments", feedHandler.GetComments)
			authed.DELETE("/feed/comments/:id", feedHandler.DeleteComment)

			authed.GET("/notifications", notificationHandler.GetNotifications)
			authed.POST("/notifications/read", notificationHandler.MarkRead)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.Auth(svc.Auth))
		admin.Use(middleware.AdminOnly())
		{
			admin.GET("/overview", adminHandler.GetOverview)
			admin.GET("/exchanges/consistency", adminHandler.CheckConsistency)
			admin.PUT("/users/:id/type", adminHandler.SetUserType)
			admin.GET("/audit/logs", adminHandler.GetAuditLogs)

			throttle := middleware.AdminActionRateLimit(svc.Audit, redisClient, cfg.AdminRateLimitActions, cfg.AdminRateLimitWindow, logger)
			admin.POST("/exchanges/dedup", middleware.AuditAction(services.ActionDedupExchanges), throttle, adminHandler.DeduplicateExchanges)
			admin.POST("/exchanges/:id/complete", middleware.AuditAction(services.ActionCompleteExchange), throttle, adminHandler.CompleteExchange)
			admin.POST("/activities/dedup", middleware.AuditAction(services.ActionDedupActivities), throttle, adminHandler.DeduplicateActivities)
		}
	}

	return router
}
