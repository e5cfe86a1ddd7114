package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification is an in-app notification for one recipient
type Notification struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_notification_recipient,priority:1" json:"recipient_id"`
	ActorID        *uuid.UUID `gorm:"type:uuid" json:"actor_id,omitempty"`
	Verb           string     `gorm:"size:255;not null" json:"verb"`
	Description    string     `gorm:"type:text" json:"description"`
	SongExchangeID *uuid.UUID `gorm:"type:uuid;index" json:"song_exchange_id,omitempty"`
	TargetURL      string     `json:"target_url,omitempty"`
	Unread         bool       `gorm:"default:true;index:idx_notification_recipient,priority:2" json:"unread"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
