package validation

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

var (
	emailRegex        = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	usernameRegex     = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	spotifyTrackRegex = regexp.MustCompile(`^/(?:intl-[a-z]{2}/)?track/[a-zA-Z0-9]+/?$`)
)

// ValidateEmail validates email format
func ValidateEmail(email string) bool {
	email = strings.TrimSpace(strings.ToLower(email))
	return emailRegex.MatchString(email)
}

// ValidatePassword requires 8+ characters with upper, lower and a digit
func ValidatePassword(password string) bool {
	if len(password) < 8 {
		return false
	}

	var hasUpper, hasLower, hasNumber bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		}
	}
	return hasUpper && hasLower && hasNumber
}

// ValidateUsername validates username format
func ValidateUsername(username string) bool {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 30 {
		return false
	}
	return usernameRegex.MatchString(username)
}

// ValidateSpotifyTrackURL accepts https://open.spotify.com/track/<id> links,
// with or without a locale prefix and query string.
func ValidateSpotifyTrackURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return false
	}
	if u.Host != "open.spotify.com" {
		return false
	}
	return spotifyTrackRegex.MatchString(u.Path)
}

// ValidateGenres caps the number and length of free-form genre tags
func ValidateGenres(genres []string) bool {
	if len(genres) > 20 {
		return false
	}
	for _, g := range genres {
		if len(strings.TrimSpace(g)) > 50 {
			return false
		}
	}
	return true
}

// SanitizeString trims input and strips null bytes
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)
	return strings.ReplaceAll(input, "\x00", "")
}
