package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/soundly/backend/internal/config"
	"github.com/soundly/backend/internal/models"
	"gorm.io/gorm"
)

// Unlimited is reported as remaining uploads for premium users
const Unlimited = -1

type UserService struct {
	db  *gorm.DB
	cfg *config.Config
}

func NewUserService(db *gorm.DB, cfg *config.Config) *UserService {
	return &UserService{db: db, cfg: cfg}
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ProfileUpdate holds the user-editable profile fields; nil means unchanged
type ProfileUpdate struct {
	Name            *string `json:"name"`
	Profession      *string `json:"profession"`
	Country         *string `json:"country"`
	City            *string `json:"city"`
	ProfileImageURL *string `json:"profile_image_url"`
	DeviceToken     *string `json:"device_token"`

	NotificationsEnabled *bool `json:"notifications_enabled"`
}

func (p ProfileUpdate) columns() map[string]interface{} {
	cols := map[string]interface{}{}
	set := func(name string, v *string) {
		if v != nil {
			cols[name] = *v
		}
	}
	set("name", p.Name)
	set("profession", p.Profession)
	set("country", p.Country)
	set("city", p.City)
	set("profile_image_url", p.ProfileImageURL)
	set("device_token", p.DeviceToken)
	if p.NotificationsEnabled != nil {
		cols["notifications_enabled"] = *p.NotificationsEnabled
	}
	return cols
}

// UpdateProfile applies the non-nil fields of p
func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, p ProfileUpdate) (*models.User, error) {
	if cols := p.columns(); len(cols) > 0 {
		res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(cols)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrUserNotFound
		}
	}
	return s.GetUserByID(ctx, userID)
}

// ToggleNotifications flips the user's match notification switch and
// returns the new state
func (s *UserService) ToggleNotifications(ctx context.Context, userID uuid.UUID) (bool, error) {
	var enabled bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("id = ?", userID).
			Update("notifications_enabled", gorm.Expr("NOT notifications_enabled"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}
		var user models.User
		if err := tx.Select("notifications_enabled").First(&user, "id = ?", userID).Error; err != nil {
			return err
		}
		enabled = user.NotificationsEnabled
		return nil
	})
	return enabled, err
}

// SetUserType switches a user between basic and premium
func (s *UserService) SetUserType(ctx context.Context, userID uuid.UUID, t models.UserType) error {
	if t != models.UserTypeBasic && t != models.UserTypePremium {
		return errors.New("invalid user type")
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("type", t)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UploadsToday counts songs the user uploaded since midnight UTC
func (s *UserService) UploadsToday(ctx context.Context, userID uuid.UUID) (int64, error) {
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Song{}).
		Where("uploader_id = ? AND created_at >= ?", userID, midnight).
		Count(&n).Error
	return n, err
}

// RemainingUploads returns how many uploads the user has left today, or
// Unlimited for premium users.
func (s *UserService) RemainingUploads(ctx context.Context, user *models.User) (int, error) {
	if user.Type == models.UserTypePremium {
		return Unlimited, nil
	}
	used, err := s.UploadsToday(ctx, user.ID)
	if err != nil {
		return 0, err
	}
	return max(s.cfg.BasicDailyUploadLimit-int(used), 0), nil
}
