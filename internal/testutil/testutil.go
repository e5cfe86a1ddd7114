// Package testutil holds fixtures shared by the package tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/soundly/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a migrated SQLite database in a temp dir, closed on cleanup.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "soundly_test.sqlite3")
	db, err := models.OpenSQLite(path, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// CreateUser inserts an active basic user with the given username.
func CreateUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	user := &models.User{
		Username:             username,
		Email:                username + "@example.com",
		Password:             "x",
		Name:                 username,
		IsActive:             true,
		NotificationsEnabled: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return user
}

// CreateSong inserts a song uploaded by uploader with the given genres.
func CreateSong(t *testing.T, db *gorm.DB, uploader uuid.UUID, title string, genres ...string) *models.Song {
	t.Helper()

	song := &models.Song{
		UploaderID: uploader,
		Title:      title,
		Artist:     "Artist " + title,
		Genre:      models.GenreList(genres),
		URL:        "https://open.spotify.com/track/" + title,
	}
	if err := db.Create(song).Error; err != nil {
		t.Fatalf("Failed to create song %s: %v", title, err)
	}
	return song
}

// Exchanges returns every exchange row ordered by creation.
func Exchanges(t *testing.T, db *gorm.DB) []models.SongExchange {
	t.Helper()

	var rows []models.SongExchange
	if err := db.Order("created_at, id").Find(&rows).Error; err != nil {
		t.Fatalf("Failed to list exchanges: %v", err)
	}
	return rows
}
