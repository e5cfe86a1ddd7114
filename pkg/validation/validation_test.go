package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("alice@example.com"))
	assert.True(t, ValidateEmail("  Alice@Example.COM "))
	assert.False(t, ValidateEmail("alice@"))
	assert.False(t, ValidateEmail("alice.example.com"))
}

func TestValidatePassword(t *testing.T) {
	assert.True(t, ValidatePassword("Secret123"))
	assert.False(t, ValidatePassword("short1A"))
	assert.False(t, ValidatePassword("alllowercase1"))
	assert.False(t, ValidatePassword("NoDigitsHere"))
}

func TestValidateUsername(t *testing.T) {
	assert.True(t, ValidateUsername("dj_alice-01"))
	assert.False(t, ValidateUsername("ab"))
	assert.False(t, ValidateUsername("has space"))
	assert.False(t, ValidateUsername(strings.Repeat("a", 31)))
}

func TestValidateSpotifyTrackURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC", true},
		{"https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=abc123", true},
		{"https://open.spotify.com/intl-de/track/4uLU6hMCjMI75M1A2tKUQC", true},
		{"https://open.spotify.com/album/4uLU6hMCjMI75M1A2tKUQC", false},
		{"https://example.com/track/4uLU6hMCjMI75M1A2tKUQC", false},
		{"spotify:track:4uLU6hMCjMI75M1A2tKUQC", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidateSpotifyTrackURL(tt.url), tt.url)
	}
}

func TestValidateGenres(t *testing.T) {
	assert.True(t, ValidateGenres(nil))
	assert.True(t, ValidateGenres([]string{"pop", "indie rock"}))
	assert.False(t, ValidateGenres([]string{strings.Repeat("x", 51)}))
	assert.False(t, ValidateGenres(make([]string, 21)))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hel\x00lo "))
}
