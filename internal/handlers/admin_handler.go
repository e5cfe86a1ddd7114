package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/soundly/backend/internal/matching"
	"github.com/soundly/backend/internal/models"
	"github.com/soundly/backend/internal/services"
)

type AdminHandler struct {
	adminService *services.AdminService
	auditService *services.AuditService
}

func NewAdminHandler(adminService *services.AdminService, auditService *services.AuditService) *AdminHandler {
	return &AdminHandler{adminService: adminService, auditService: auditService}
}

func actor(c *gin.Context) (services.Actor, bool) {
	id, ok := currentUser(c)
	if !ok {
		return services.Actor{}, false
	}
	return services.Actor{
		AdminID:   id,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}, true
}

// GetOverview returns dashboard counters
func (h *AdminHandler) GetOverview(c *gin.Context) {
	ov, err := h.adminService.Overview(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load overview"})
		return
	}
	c.JSON(http.StatusOK, ov)
}

// CompleteExchange advances a matched pairing to completed
func (h *AdminHandler) CompleteExchange(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	done, mirror, err := h.adminService.CompleteExchange(c.Request.Context(), a, id)
	switch {
	case errors.Is(err, services.ErrExchangeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Exchange not found"})
		return
	case errors.Is(err, matching.ErrInvalidTransition), errors.Is(err, matching.ErrReciprocalMissing):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to complete exchange"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Exchange completed",
		"exchange":   done,
		"reciprocal": mirror,
	})
}

// CheckConsistency lists paired rows without exactly one reciprocal
func (h *AdminHandler) CheckConsistency(c *gin.Context) {
	violations, err := h.adminService.CheckConsistency(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check consistency"})
		return
	}

	out := make([]gin.H, 0, len(violations))
	for _, v := range violations {
		out = append(out, gin.H{
			"exchange_id": v.Exchange.ID,
			"reciprocals": v.Reciprocals,
			"reason":      v.Reason,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"consistent": len(violations) == 0,
		"violations": out,
	})
}

// DeduplicateExchanges removes duplicate exchange rows. ?dry_run=true only reports.
func (h *AdminHandler) DeduplicateExchanges(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	dryRun, _ := strconv.ParseBool(c.DefaultQuery("dry_run", "false"))

	report, err := h.adminService.DeduplicateExchanges(c.Request.Context(), a, dryRun)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deduplicate exchanges"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"dry_run": report.DryRun,
		"groups":  report.Groups,
		"kept":    report.Kept,
		"removed": report.Removed,
	})
}

// DeduplicateActivities removes repeated song_exchange feed entries. ?dry_run=true only reports.
func (h *AdminHandler) DeduplicateActivities(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	dryRun, _ := strconv.ParseBool(c.DefaultQuery("dry_run", "false"))

	report, err := h.adminService.DeduplicateActivities(c.Request.Context(), a, dryRun)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deduplicate activities"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// SetUserType upgrades or downgrades a user
func (h *AdminHandler) SetUserType(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Type models.UserType `json:"type" binding:"required,oneof=basic premium"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.adminService.SetUserType(c.Request.Context(), a, id, req.Type)
	if errors.Is(err, services.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User type updated", "type": req.Type})
}

// GetAuditLogs lists recent admin actions
func (h *AdminHandler) GetAuditLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	logs, total, err := h.auditService.GetRecentActions(c.Request.Context(), page, limit, c.Query("action"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch audit logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logs": logs,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}
