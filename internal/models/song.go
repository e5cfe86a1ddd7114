package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// GenreList is a set of free-form genre tags stored as a JSON array
type GenreList []string

// Value implements driver.Valuer
func (g GenreList) Value() (driver.Value, error) {
	if g == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(g))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (g *GenreList) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*g = GenreList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported genre column type %T", value)
	}
	if len(raw) == 0 {
		*g = GenreList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decoding genres: %w", err)
	}
	*g = out
	return nil
}

// GormDBDataType picks jsonb on Postgres and plain text elsewhere
func (GenreList) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}

// Song is an uploaded track. Everything except the enrichment fields
// (cover, duration, release date, fun fact) is fixed after creation.
type Song struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UploaderID     uuid.UUID `gorm:"type:uuid;not null;index" json:"uploader_id"`
	Title          string    `gorm:"size:200;not null" json:"title"`
	Artist         string    `gorm:"size:200;not null;index" json:"artist"`
	Album          string    `gorm:"size:200" json:"album"`
	Genre          GenreList `json:"genre"`
	URL            string    `gorm:"not null" json:"url"`
	SpotifyTrackID string    `gorm:"size:64;index" json:"spotify_track_id,omitempty"`

	// Enrichment
	CoverImageURL   string `json:"cover_image_url"`
	DurationSeconds int    `json:"duration_seconds"`
	ReleaseDate     string `gorm:"size:32" json:"release_date"`
	FunFact         string `gorm:"type:text" json:"fun_fact,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Uploader *User `gorm:"foreignKey:UploaderID" json:"uploader,omitempty"`
}

func (Song) TableName() string {
	return "songs"
}

// BeforeCreate generates a UUID if not set
func (s *Song) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
