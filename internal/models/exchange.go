package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExchangeStatus moves forward only: pending -> matched -> completed
type ExchangeStatus string

const (
	ExchangeStatusPending   ExchangeStatus = "pending"
	ExchangeStatusMatched   ExchangeStatus = "matched"
	ExchangeStatusCompleted ExchangeStatus = "completed"
)

// PairedStatuses are the statuses that carry a receiver and a reciprocal row
var PairedStatuses = []ExchangeStatus{ExchangeStatusMatched, ExchangeStatusCompleted}

// SongExchange is one direction of a pairing. A two-way exchange between A
// and B is two rows with sender/receiver and sent/received swapped and the
// same MatchedAt.
type SongExchange struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SenderID       uuid.UUID      `gorm:"type:uuid;not null;index:idx_exchange_sender_created,priority:1" json:"sender_id"`
	ReceiverID     *uuid.UUID     `gorm:"type:uuid;index:idx_exchange_receiver_created,priority:1" json:"receiver_id"`
	SentSongID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"sent_song_id"`
	ReceivedSongID *uuid.UUID     `gorm:"type:uuid;index" json:"received_song_id"`
	Status         ExchangeStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_exchange_status_created,priority:1" json:"status"`
	MatchedAt      *time.Time     `json:"matched_at"`
	CompletedAt    *time.Time     `json:"completed_at"`

	CreatedAt time.Time `gorm:"index:idx_exchange_status_created,priority:2;index:idx_exchange_sender_created,priority:2;index:idx_exchange_receiver_created,priority:2" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations, loaded on demand. Never set these when creating rows.
	Sender       *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Receiver     *User `gorm:"foreignKey:ReceiverID" json:"receiver,omitempty"`
	SentSong     *Song `gorm:"foreignKey:SentSongID" json:"sent_song,omitempty"`
	ReceivedSong *Song `gorm:"foreignKey:ReceivedSongID" json:"received_song,omitempty"`
}

func (SongExchange) TableName() string {
	return "song_exchanges"
}

// BeforeCreate generates a UUID if not set
func (e *SongExchange) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// IsPending reports whether the row is still waiting in the pool
func (e *SongExchange) IsPending() bool {
	return e.Status == ExchangeStatusPending && e.ReceiverID == nil && e.ReceivedSongID == nil
}

// IsPaired reports whether the row is matched or completed
func (e *SongExchange) IsPaired() bool {
	return e.Status == ExchangeStatusMatched || e.Status == ExchangeStatusCompleted
}

// Mirrors reports whether other is the reverse direction of e
func (e *SongExchange) Mirrors(other *SongExchange) bool {
	if e.ReceiverID == nil || e.ReceivedSongID == nil || other.ReceiverID == nil || other.ReceivedSongID == nil {
		return false
	}
	if e.MatchedAt == nil || other.MatchedAt == nil || !e.MatchedAt.Equal(*other.MatchedAt) {
		return false
	}
	return other.SenderID == *e.ReceiverID &&
		*other.ReceiverID == e.SenderID &&
		other.SentSongID == *e.ReceivedSongID &&
		*other.ReceivedSongID == e.SentSongID
}
