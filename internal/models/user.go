package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserType controls upload quotas
type UserType string

const (
	UserTypeBasic   UserType = "basic"
	UserTypePremium UserType = "premium"
)

type User struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username             string    `gorm:"uniqueIndex;not null" json:"username"`
	Email                string    `gorm:"uniqueIndex;not null" json:"email"`
	Password             string    `gorm:"not null" json:"-"`
	Name                 string    `gorm:"not null" json:"name"`
	ProfileImageURL      string    `json:"profile_image_url"`
	Profession           string    `json:"profession"`
	Country              string    `gorm:"size:100" json:"country"`
	City                 string    `gorm:"size:100" json:"city"`
	Type                 UserType  `gorm:"type:varchar(16);default:'basic'" json:"type"`
	DeviceToken          string    `json:"-"`
	IsAdmin              bool      `gorm:"default:false" json:"is_admin"`
	IsActive             bool      `gorm:"default:true" json:"is_active"`
	// NotificationsEnabled gates match notifications for this user
	NotificationsEnabled bool      `gorm:"default:true" json:"notifications_enabled"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Type == "" {
		u.Type = UserTypeBasic
	}
	return nil
}

// DisplayName falls back to the username when no name is set
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

type RefreshToken struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Token     string    `gorm:"uniqueIndex;not null"`
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time

	// Relations
	User User `gorm:"foreignKey:UserID"`
}

func (r *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
