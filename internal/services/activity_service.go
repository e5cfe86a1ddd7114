package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/soundly/backend/internal/models"
	"gorm.io/gorm"
)

// ReactionTypes is the fixed set of feed reactions
var ReactionTypes = []string{"🎵", "🎶", "🎸", "🎹", "🥁", "🎤"}

func validReaction(r string) bool {
	for _, t := range ReactionTypes {
		if t == r {
			return true
		}
	}
	return false
}

// ActivityService projects uploads and matches into the social feed. It
// is always called after the ledger transaction has committed.
type ActivityService struct {
	db     *gorm.DB
	logger *log.Logger
}

func NewActivityService(db *gorm.DB, logger *log.Logger) *ActivityService {
	return &ActivityService{db: db, logger: logger}
}

// RecordDiscovery adds a song_discovery entry for a fresh upload
func (s *ActivityService) RecordDiscovery(ctx context.Context, song *models.Song) error {
	activity := &models.Activity{
		ActorID: song.UploaderID,
		Type:    models.ActivityTypeSongDiscovery,
		SongID:  &song.ID,
		ExtraData: map[string]string{
			"song_title":  song.Title,
			"song_artist": song.Artist,
			"song_url":    song.URL,
		},
	}
	if err := s.db.WithContext(ctx).Create(activity).Error; err != nil {
		return fmt.Errorf("recording discovery: %w", err)
	}
	return nil
}

// RecordExchange adds one song_exchange entry for each party of a paired
// exchange row. Rows that already have exchange activities are skipped,
// so replaying a match never duplicates feed entries.
func (s *ActivityService) RecordExchange(ctx context.Context, exchangeID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ex models.SongExchange
		err := tx.Preload("Sender").Preload("Receiver").Preload("SentSong").Preload("ReceivedSong").
			First(&ex, "id = ?", exchangeID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrExchangeNotFound
			}
			return err
		}
		if !ex.IsPaired() || ex.Receiver == nil || ex.ReceivedSong == nil || ex.SentSong == nil || ex.Sender == nil {
			return nil
		}

		var existing int64
		if err := tx.Model(&models.Activity{}).
			Where("song_exchange_id = ? AND type = ?", ex.ID, models.ActivityTypeSongExchange).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			s.logger.Debug("exchange activities already recorded", "exchange", ex.ID)
			return nil
		}

		entries := []models.Activity{
			{
				ActorID:        ex.SenderID,
				Type:           models.ActivityTypeSongExchange,
				SongExchangeID: &ex.ID,
				ExtraData: map[string]string{
					"sent_song_title":      ex.SentSong.Title,
					"sent_song_artist":     ex.SentSong.Artist,
					"received_song_title":  ex.ReceivedSong.Title,
					"received_song_artist": ex.ReceivedSong.Artist,
					"receiver_name":        ex.Receiver.DisplayName(),
				},
			},
			{
				ActorID:        *ex.ReceiverID,
				Type:           models.ActivityTypeSongExchange,
				SongExchangeID: &ex.ID,
				ExtraData: map[string]string{
					"sent_song_title":      ex.ReceivedSong.Title,
					"sent_song_artist":     ex.ReceivedSong.Artist,
					"received_song_title":  ex.SentSong.Title,
					"received_song_artist": ex.SentSong.Artist,
					"sender_name":          ex.Sender.DisplayName(),
				},
			},
		}
		return tx.Create(&entries).Error
	})
}

// FeedItem is an activity with its reaction tallies
type FeedItem struct {
	models.Activity
	Reactions     map[string]int64 `json:"reactions"`
	MyReactions   []string         `json:"my_reactions"`
	CommentsCount int64            `json:"comments_count"`
}

// Feed lists activities newest first. viewer may be uuid.Nil.
func (s *ActivityService) Feed(ctx context.Context, viewer uuid.UUID, page, size int) ([]FeedItem, int64, error) {
	page, size = normalizePage(page, size)
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&models.Activity{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var activities []models.Activity
	if err := db.Preload("Actor").
		Order("created_at DESC, id").
		Offset((page - 1) * size).
		Limit(size).
		Find(&activities).Error; err != nil {
		return nil, 0, err
	}
	if len(activities) == 0 {
		return []FeedItem{}, total, nil
	}

	ids := make([]uuid.UUID, len(activities))
	items := make([]FeedItem, len(activities))
	index := make(map[uuid.UUID]int, len(activities))
	for i, a := range activities {
		ids[i] = a.ID
		items[i] = FeedItem{Activity: a, Reactions: map[string]int64{}, MyReactions: []string{}}
		index[a.ID] = i
	}

	var counts []struct {
		ActivityID   uuid.UUID
		ReactionType string
		Count        int64
	}
	if err := db.Model(&models.ActivityReaction{}).
		Select("activity_id, reaction_type, COUNT(*) AS count").
		Where("activity_id IN ?", ids).
		Group("activity_id, reaction_type").
		Scan(&counts).Error; err != nil {
		return nil, 0, err
	}
	for _, c := range counts {
		items[index[c.ActivityID]].Reactions[c.ReactionType] = c.Count
	}

	var comments []struct {
		ActivityID uuid.UUID
		Count      int64
	}
	if err := db.Model(&models.ActivityComment{}).
		Select("activity_id, COUNT(*) AS count").
		Where("activity_id IN ?", ids).
		Group("activity_id").
		Scan(&comments).Error; err != nil {
		return nil, 0, err
	}
	for _, c := range comments {
		items[index[c.ActivityID]].CommentsCount = c.Count
	}

	if viewer != uuid.Nil {
		var mine []models.ActivityReaction
		if err := db.Where("activity_id IN ? AND user_id = ?", ids, viewer).Find(&mine).Error; err != nil {
			return nil, 0, err
		}
		for _, r := range mine {
			i := index[r.ActivityID]
			items[i].MyReactions = append(items[i].MyReactions, r.ReactionType)
		}
	}
	return items, total, nil
}

// React adds a reaction; reacting twice with the same emoji is a no-op
func (s *ActivityService) React(ctx context.Context, activityID, userID uuid.UUID, reaction string) error {
	if !validReaction(reaction) {
		return ErrInvalidReaction
	}
	if err := s.requireActivity(ctx, activityID); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Create(&models.ActivityReaction{
		ActivityID:   activityID,
		UserID:       userID,
		ReactionType: reaction,
	}).Error
	if err != nil && !models.IsUniqueViolation(err) {
		return err
	}
	return nil
}

// Unreact removes a reaction if present
func (s *ActivityService) Unreact(ctx context.Context, activityID, userID uuid.UUID, reaction string) error {
	if !validReaction(reaction) {
		return ErrInvalidReaction
	}
	return s.db.WithContext(ctx).
		Where("activity_id = ? AND user_id = ? AND reaction_type = ?", activityID, userID, reaction).
		Delete(&models.ActivityReaction{}).Error
}

// MaxCommentLength is the longest comment accepted, in characters
const MaxCommentLength = 500

// AddComment stores a trimmed comment on an activity
func (s *ActivityService) AddComment(ctx context.Context, activityID, userID uuid.UUID, text string) (*models.ActivityComment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyComment
	}
	if utf8.RuneCountInString(text) > MaxCommentLength {
		return nil, ErrCommentTooLong
	}
	if err := s.requireActivity(ctx, activityID); err != nil {
		return nil, err
	}

	comment := &models.ActivityComment{ActivityID: activityID, UserID: userID, Text: text}
	db := s.db.WithContext(ctx)
	if err := db.Create(comment).Error; err != nil {
		return nil, fmt.Errorf("creating comment: %w", err)
	}
	if err := db.Preload("User").First(comment, "id = ?", comment.ID).Error; err != nil {
		return nil, err
	}
	return comment, nil
}

// Comments lists an activity's comments oldest first
func (s *ActivityService) Comments(ctx context.Context, activityID uuid.UUID, page, size int) ([]models.ActivityComment, int64, error) {
	if err := s.requireActivity(ctx, activityID); err != nil {
		return nil, 0, err
	}
	page, size = normalizePage(page, size)
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&models.ActivityComment{}).Where("activity_id = ?", activityID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	comments := []models.ActivityComment{}
	if err := db.Preload("User").
		Where("activity_id = ?", activityID).
		Order("created_at, id").
		Offset((page - 1) * size).
		Limit(size).
		Find(&comments).Error; err != nil {
		return nil, 0, err
	}
	return comments, total, nil
}

// DeleteComment removes a comment. Only its author may delete it.
func (s *ActivityService) DeleteComment(ctx context.Context, commentID, userID uuid.UUID) error {
	db := s.db.WithContext(ctx)
	var comment models.ActivityComment
	if err := db.First(&comment, "id = ?", commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCommentNotFound
		}
		return err
	}
	if comment.UserID != userID {
		return ErrNotCommentAuthor
	}
	return db.Delete(&comment).Error
}

// ActivityDedupReport summarises a DeduplicateExchangeActivities run
type ActivityDedupReport struct {
	DryRun    bool        `json:"dry_run"`
	Exchanges int         `json:"exchanges"`
	Removed   []uuid.UUID `json:"removed"`
}

type activityKey struct {
	exchange uuid.UUID
	actor    uuid.UUID
}

// DeduplicateExchangeActivities keeps one song_exchange activity per
// exchange and party, the earliest, and removes the rest together with
// their reactions and comments.
func (s *ActivityService) DeduplicateExchangeActivities(ctx context.Context, dryRun bool) (*ActivityDedupReport, error) {
	var rows []models.Activity
	if err := s.db.WithContext(ctx).
		Where("type = ? AND song_exchange_id IS NOT NULL", models.ActivityTypeSongExchange).
		Order("created_at, id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading exchange activities: %w", err)
	}

	report := &ActivityDedupReport{DryRun: dryRun, Removed: []uuid.UUID{}}
	seen := make(map[activityKey]bool, len(rows))
	affected := make(map[uuid.UUID]bool)
	for _, a := range rows {
		k := activityKey{exchange: *a.SongExchangeID, actor: a.ActorID}
		if !seen[k] {
			seen[k] = true
			continue
		}
		affected[k.exchange] = true
		report.Removed = append(report.Removed, a.ID)
	}
	report.Exchanges = len(affected)

	if dryRun || len(report.Removed) == 0 {
		return report, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("activity_id IN ?", report.Removed).Delete(&models.ActivityReaction{}).Error; err != nil {
			return fmt.Errorf("deleting reactions: %w", err)
		}
		if err := tx.Where("activity_id IN ?", report.Removed).Delete(&models.ActivityComment{}).Error; err != nil {
			return fmt.Errorf("deleting comments: %w", err)
		}
		if err := tx.Where("id IN ?", report.Removed).Delete(&models.Activity{}).Error; err != nil {
			return fmt.Errorf("deleting activities: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("exchange activities deduplicated", "exchanges", report.Exchanges, "removed", len(report.Removed))
	return report, nil
}

func (s *ActivityService) requireActivity(ctx context.Context, id uuid.UUID) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Activity{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrActivityNotFound
	}
	return nil
}
