package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundly/backend/internal/services"
)

type UserHandler struct {
	userService     *services.UserService
	exchangeService *services.ExchangeService
}

func NewUserHandler(userService *services.UserService, exchangeService *services.ExchangeService) *UserHandler {
	return &UserHandler{userService: userService, exchangeService: exchangeService}
}

// GetProfile returns the caller's profile with today's remaining uploads
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	user, err := h.userService.GetUserByID(ctx, userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	remaining, err := h.userService.RemainingUploads(ctx, user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load upload quota"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                    user.ID,
		"username":              user.Username,
		"email":                 user.Email,
		"name":                  user.Name,
		"profile_image_url":     user.ProfileImageURL,
		"profession":            user.Profession,
		"country":               user.Country,
		"city":                  user.City,
		"type":                  user.Type,
		"is_admin":              user.IsAdmin,
		"remaining_uploads":     remaining,
		"notifications_enabled": user.NotificationsEnabled,
		"created_at":            user.CreatedAt,
	})
}

// UpdateProfile updates the caller's editable profile fields
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), userID, req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated successfully", "user": user})
}

// ToggleNotifications switches match notifications on or off for the caller
func (h *UserHandler) ToggleNotifications(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	enabled, err := h.userService.ToggleNotifications(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notification settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications_enabled": enabled})
}

// Statistics returns detailed exchange statistics for the caller
func (h *UserHandler) Statistics(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	stats, err := h.exchangeService.Statistics(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute statistics"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Summary returns the compact profile counters
func (h *UserHandler) Summary(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	sum, err := h.exchangeService.Summary(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute summary"})
		return
	}
	c.JSON(http.StatusOK, sum)
}
