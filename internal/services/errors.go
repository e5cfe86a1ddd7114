package services

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is deactivated")
	ErrInvalidToken       = errors.New("invalid or expired token")

	ErrSongNotFound     = errors.New("song not found")
	ErrMissingMetadata  = errors.New("title and artist are required")
	ErrExchangeNotFound = errors.New("exchange not found")
	ErrNotParticipant   = errors.New("not a participant of this exchange")

	ErrActivityNotFound = errors.New("activity not found")
	ErrInvalidReaction  = errors.New("invalid reaction type")
	ErrEmptyComment     = errors.New("comment text is required")
	ErrCommentTooLong   = errors.New("comment exceeds 500 characters")
	ErrCommentNotFound  = errors.New("comment not found")
	ErrNotCommentAuthor = errors.New("only the author can delete a comment")
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// normalizePage clamps page to >= 1 and size to [1, maxPageSize],
// defaulting size to defaultPageSize.
func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}
