package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/soundly/backend/internal/config"
	"github.com/soundly/backend/internal/matching"
	"github.com/soundly/backend/internal/models"
	"github.com/soundly/backend/pkg/crypto"
	"gorm.io/gorm"
)

// AdminService runs ledger maintenance and account administration. Every
// mutating call is written to the audit log.
type AdminService struct {
	db     *gorm.DB
	cfg    *config.Config
	ledger *matching.Ledger
	audit  *AuditService
	users  *UserService
	logger *log.Logger

	activities *ActivityService
}

func NewAdminService(db *gorm.DB, cfg *config.Config, ledger *matching.Ledger, audit *AuditService, users *UserService, logger *log.Logger) *AdminService {
	return &AdminService{db: db, cfg: cfg, ledger: ledger, audit: audit, users: users, logger: logger}
}

// AttachActivityService enables feed maintenance
func (s *AdminService) AttachActivityService(activities *ActivityService) {
	s.activities = activities
}

// CreateDefaultAdmin creates the configured admin account if it doesn't
// exist. Without a configured password a random one is generated and logged
// once.
func (s *AdminService) CreateDefaultAdmin(ctx context.Context) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", s.cfg.AdminUsername).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	password := s.cfg.AdminPassword
	if password == "" {
		generated, err := crypto.RandomToken(12)
		if err != nil {
			return err
		}
		password = generated
		s.logger.Warn("ADMIN_PASSWORD not set, generated one", "username", s.cfg.AdminUsername, "password", password)
	}

	hashed, err := crypto.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return err
	}

	admin := &models.User{
		Username: s.cfg.AdminUsername,
		Email:    s.cfg.AdminEmail,
		Password: hashed,
		Name:     "Administrator",
		Type:     models.UserTypePremium,
		IsAdmin:  true,
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(admin).Error; err != nil {
		return err
	}
	s.logger.Info("default admin created", "username", admin.Username)
	return nil
}

// FindAdmin looks up an admin account by username
func (s *AdminService) FindAdmin(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ? AND is_admin = ?", username, true).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CompleteExchange moves a matched pairing to completed
func (s *AdminService) CompleteExchange(ctx context.Context, actor Actor, id uuid.UUID) (*models.SongExchange, *models.SongExchange, error) {
	done, mirror, err := s.ledger.Complete(ctx, id)
	if err != nil {
		if errors.Is(err, matching.ErrExchangeNotFound) {
			return nil, nil, ErrExchangeNotFound
		}
		return nil, nil, err
	}

	if err := s.audit.LogAction(ctx, actor, ActionCompleteExchange, "song_exchange", id, map[string]interface{}{
		"reciprocal_id": mirror.ID,
	}); err != nil {
		s.logger.Error("audit log failed", "action", ActionCompleteExchange, "err", err)
	}
	return done, mirror, nil
}

// CheckConsistency reports paired exchanges without exactly one reciprocal
func (s *AdminService) CheckConsistency(ctx context.Context) ([]matching.Violation, error) {
	violations, err := s.ledger.CheckConsistency(ctx)
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		s.logger.Warn("exchange ledger inconsistent", "violations", len(violations))
	}
	return violations, nil
}

// DeduplicateExchanges removes duplicate exchange rows. Dry runs are not audited.
func (s *AdminService) DeduplicateExchanges(ctx context.Context, actor Actor, dryRun bool) (*matching.DedupReport, error) {
	report, err := s.ledger.Deduplicate(ctx, dryRun)
	if err != nil {
		return nil, fmt.Errorf("deduplicating exchanges: %w", err)
	}
	if dryRun {
		return report, nil
	}

	s.logger.Info("exchanges deduplicated", "groups", report.Groups, "removed", len(report.Removed))
	if err := s.audit.LogAction(ctx, actor, ActionDedupExchanges, "song_exchange", uuid.Nil, map[string]interface{}{
		"groups":  report.Groups,
		"removed": len(report.Removed),
	}); err != nil {
		s.logger.Error("audit log failed", "action", ActionDedupExchanges, "err", err)
	}
	return report, nil
}

// DeduplicateActivities removes repeated song_exchange feed entries. Dry
// runs are not audited.
func (s *AdminService) DeduplicateActivities(ctx context.Context, actor Actor, dryRun bool) (*ActivityDedupReport, error) {
	if s.activities == nil {
		return nil, errors.New("activity service not attached")
	}
	report, err := s.activities.DeduplicateExchangeActivities(ctx, dryRun)
	if err != nil {
		return nil, fmt.Errorf("deduplicating activities: %w", err)
	}
	if dryRun {
		return report, nil
	}

	if err := s.audit.LogAction(ctx, actor, ActionDedupActivities, "activity", uuid.Nil, map[string]interface{}{
		"exchanges": report.Exchanges,
		"removed":   len(report.Removed),
	}); err != nil {
		s.logger.Error("audit log failed", "action", ActionDedupActivities, "err", err)
	}
	return report, nil
}

// SetUserType upgrades or downgrades a user
func (s *AdminService) SetUserType(ctx context.Context, actor Actor, userID uuid.UUID, t models.UserType) error {
	if err := s.users.SetUserType(ctx, userID, t); err != nil {
		return err
	}
	if err := s.audit.LogAction(ctx, actor, ActionSetUserType, "user", userID, map[string]interface{}{
		"type": t,
	}); err != nil {
		s.logger.Error("audit log failed", "action", ActionSetUserType, "err", err)
	}
	return nil
}

// Overview are the ledger counters shown on the admin dashboard
type Overview struct {
	Users     int64 `json:"users"`
	Songs     int64 `json:"songs"`
	Pending   int64 `json:"pending"`
	Matched   int64 `json:"matched"`
	Completed int64 `json:"completed"`
}

func (s *AdminService) Overview(ctx context.Context) (*Overview, error) {
	db := s.db.WithContext(ctx)
	ov := &Overview{}
	if err := db.Model(&models.User{}).Count(&ov.Users).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Song{}).Count(&ov.Songs).Error; err != nil {
		return nil, err
	}

	var rows []struct {
		Status models.ExchangeStatus
		Count  int64
	}
	if err := db.Model(&models.SongExchange{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		switch r.Status {
		case models.ExchangeStatusPending:
			ov.Pending = r.Count
		case models.ExchangeStatusMatched:
			ov.Matched = r.Count
		case models.ExchangeStatusCompleted:
			ov.Completed = r.Count
		}
	}
	return ov, nil
}
