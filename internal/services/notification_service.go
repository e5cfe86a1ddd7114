package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/soundly/backend/internal/models"
	"gorm.io/gorm"
)

const matchVerb = "matched your song"

// NotificationChannel is the Redis pub/sub channel for a user's push fan-out
func NotificationChannel(userID uuid.UUID) string {
	return "notifications:" + userID.String()
}

type NotificationService struct {
	db     *gorm.DB
	redis  *redis.Client
	logger *log.Logger
}

// NewNotificationService wires the notifier. With a nil redis client
// notifications are only stored, never published.
func NewNotificationService(db *gorm.DB, redis *redis.Client, logger *log.Logger) *NotificationService {
	return &NotificationService{db: db, redis: redis, logger: logger}
}

// NotifyMatch tells both parties of a pairing about each other. mine is
// the uploader's row and theirs the counterpart's. Failures for one party
// do not stop the other; the joined error is returned for logging. Parties
// who switched notifications off are skipped.
func (s *NotificationService) NotifyMatch(ctx context.Context, mine, theirs *models.SongExchange) error {
	if mine == nil || theirs == nil || mine.ReceiverID == nil || theirs.ReceiverID == nil {
		return errors.New("notify match: exchange rows are not paired")
	}

	var songs []models.Song
	if err := s.db.WithContext(ctx).Where("id IN ?", []uuid.UUID{mine.SentSongID, theirs.SentSongID}).Find(&songs).Error; err != nil {
		return fmt.Errorf("loading matched songs: %w", err)
	}
	byID := make(map[uuid.UUID]models.Song, len(songs))
	for _, song := range songs {
		byID[song.ID] = song
	}

	var muted []uuid.UUID
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id IN ? AND notifications_enabled = ?", []uuid.UUID{mine.SenderID, theirs.SenderID}, false).
		Pluck("id", &muted).Error; err != nil {
		return fmt.Errorf("loading notification settings: %w", err)
	}
	skip := make(map[uuid.UUID]bool, len(muted))
	for _, id := range muted {
		skip[id] = true
	}

	var errs []error
	// each party is told about the song they received
	for _, ex := range []*models.SongExchange{mine, theirs} {
		if skip[ex.SenderID] {
			s.logger.Debug("notifications disabled, skipping", "recipient", ex.SenderID, "exchange", ex.ID)
			continue
		}
		received := byID[*ex.ReceivedSongID]
		n := &models.Notification{
			RecipientID:    ex.SenderID,
			ActorID:        ex.ReceiverID,
			Verb:           matchVerb,
			Description:    fmt.Sprintf("You received %q by %s", received.Title, received.Artist),
			SongExchangeID: &ex.ID,
			TargetURL:      received.URL,
			Unread:         true,
		}
		if err := s.send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *NotificationService) send(ctx context.Context, n *models.Notification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("storing notification for %s: %w", n.RecipientID, err)
	}
	if s.redis == nil {
		return nil
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := s.redis.Publish(ctx, NotificationChannel(n.RecipientID), payload).Err(); err != nil {
		s.logger.Warn("notification publish failed", "recipient", n.RecipientID, "err", err)
	}
	return nil
}

// List returns the user's notifications newest first
func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, page, size int) ([]models.Notification, int64, error) {
	page, size = normalizePage(page, size)

	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("recipient_id = ?", userID)
	if unreadOnly {
		query = query.Where("unread = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []models.Notification
	if err := query.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// MarkRead marks the given notifications read, or all of them when ids is empty
func (s *NotificationService) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("recipient_id = ? AND unread = ?", userID, true)
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}
	res := query.Update("unread", false)
	return res.RowsAffected, res.Error
}

// UnreadCount returns the number of unread notifications
func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND unread = ?", userID, true).
		Count(&n).Error
	return n, err
}
