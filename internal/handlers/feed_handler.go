package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/soundly/backend/internal/services"
)

type FeedHandler struct {
	activityService *services.ActivityService
}

func NewFeedHandler(activityService *services.ActivityService) *FeedHandler {
	return &FeedHandler{activityService: activityService}
}

func (h *FeedHandler) GetFeed(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	page, size := pageParams(c)

	items, total, err := h.activityService.Feed(c.Request.Context(), userID, page, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch feed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"activities":     items,
		"reaction_types": services.ReactionTypes,
		"pagination":     pagination(page, size, total),
	})
}

func (h *FeedHandler) React(c *gin.Context) {
	h.reaction(c, h.activityService.React, http.StatusCreated)
}

func (h *FeedHandler) Unreact(c *gin.Context) {
	h.reaction(c, h.activityService.Unreact, http.StatusOK)
}

func (h *FeedHandler) reaction(c *gin.Context, apply func(ctx context.Context, activityID, userID uuid.UUID, reaction string) error, status int) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	reaction := c.Param("type")

	err := apply(c.Request.Context(), id, userID, reaction)
	switch {
	case errors.Is(err, services.ErrInvalidReaction):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid reaction type"})
		return
	case errors.Is(err, services.ErrActivityNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Activity not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update reaction"})
		return
	}
	c.JSON(status, gin.H{"activity_id": id, "reaction_type": reaction})
}

type commentRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *FeedHandler) AddComment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comment, err := h.activityService.AddComment(c.Request.Context(), id, userID, req.Text)
	switch {
	case errors.Is(err, services.ErrEmptyComment), errors.Is(err, services.ErrCommentTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, services.ErrActivityNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Activity not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add comment"})
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *FeedHandler) GetComments(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	page, size := pageParams(c)

	comments, total, err := h.activityService.Comments(c.Request.Context(), id, page, size)
	if errors.Is(err, services.ErrActivityNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Activity not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch comments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"comments":   comments,
		"count":      total,
		"pagination": pagination(page, size, total),
	})
}

func (h *FeedHandler) DeleteComment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	err := h.activityService.DeleteComment(c.Request.Context(), id, userID)
	switch {
	case errors.Is(err, services.ErrCommentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
		return
	case errors.Is(err, services.ErrNotCommentAuthor):
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only delete your own comments"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete comment"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted"})
}
