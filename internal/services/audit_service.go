package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/soundly/backend/internal/models"
	"gorm.io/gorm"
)

// Audit actions
const (
	ActionCompleteExchange = "complete_exchange"
	ActionDedupExchanges   = "dedup_exchanges"
	ActionDedupActivities  = "dedup_activities"
	ActionSetUserType      = "set_user_type"
)

// Actor identifies who performed an administrative action
type Actor struct {
	AdminID   uuid.UUID
	IPAddress string
	UserAgent string
}

type AuditService struct {
	db     *gorm.DB
	logger *log.Logger
}

func NewAuditService(db *gorm.DB, logger *log.Logger) *AuditService {
	return &AuditService{db: db, logger: logger}
}

// LogAction logs an admin action to the audit log
func (s *AuditService) LogAction(ctx context.Context, actor Actor, action, targetType string, targetID uuid.UUID, details map[string]interface{}) error {
	detailsJSON := ""
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			detailsJSON = string(b)
		}
	}

	entry := &models.AuditLog{
		AdminID:    actor.AdminID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    detailsJSON,
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}

	s.logger.Info("admin action", "admin", actor.AdminID, "action", action, "target", targetID)
	return nil
}

// GetRecentActions lists audit entries newest first, optionally filtered by action
func (s *AuditService) GetRecentActions(ctx context.Context, page, limit int, action string) ([]models.AuditLog, int64, error) {
	page, limit = normalizePage(page, limit)

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if action != "" {
		query = query.Where("action = ?", action)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []models.AuditLog
	if err := query.Preload("Admin").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// GetActionCount returns how often adminID performed action since the given time
func (s *AuditService) GetActionCount(ctx context.Context, adminID uuid.UUID, action string, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.AuditLog{}).
		Where("admin_id = ? AND action = ? AND created_at > ?", adminID, action, since).
		Count(&count).Error
	return count, err
}
