package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ActivityType string

const (
	ActivityTypeSongDiscovery ActivityType = "song_discovery"
	ActivityTypeSongExchange  ActivityType = "song_exchange"
)

// Activity is a feed entry
type Activity struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID        uuid.UUID         `gorm:"type:uuid;not null;index" json:"actor_id"`
	Type           ActivityType      `gorm:"type:varchar(32);not null;index" json:"activity_type"`
	SongID         *uuid.UUID        `gorm:"type:uuid;index" json:"song_id,omitempty"`
	SongExchangeID *uuid.UUID        `gorm:"type:uuid;index" json:"song_exchange_id,omitempty"`
	ExtraData      map[string]string `gorm:"serializer:json;type:text" json:"extra_data"`
	CreatedAt      time.Time         `gorm:"index" json:"created_at"`

	Actor *User `gorm:"foreignKey:ActorID" json:"actor,omitempty"`
}

func (Activity) TableName() string {
	return "activities"
}

func (a *Activity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// ActivityReaction is one emoji reaction by one user
type ActivityReaction struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ActivityID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_reaction_unique,priority:1" json:"activity_id"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_reaction_unique,priority:2" json:"user_id"`
	ReactionType string    `gorm:"size:16;not null;uniqueIndex:idx_reaction_unique,priority:3" json:"reaction_type"`
	CreatedAt    time.Time `json:"created_at"`
}

func (ActivityReaction) TableName() string {
	return "activity_reactions"
}

func (r *ActivityReaction) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ActivityComment is a short text reply on a feed entry
type ActivityComment struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ActivityID uuid.UUID `gorm:"type:uuid;not null;index" json:"activity_id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (ActivityComment) TableName() string {
	return "activity_comments"
}

func (c *ActivityComment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
