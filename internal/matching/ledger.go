package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/soundly/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrCandidateTaken    = errors.New("candidate no longer available")
	ErrExchangeNotFound  = errors.New("exchange not found")
	ErrInvalidTransition = errors.New("invalid exchange status transition")
	ErrReciprocalMissing = errors.New("reciprocal exchange not found")
)

// dedupBatchSize bounds the IN lists sent to the database
const dedupBatchSize = 500

// pendingPool loads the live candidate pool: pending rows without a
// receiver, excluding the caller's own. Must run inside the claiming
// transaction; the pool is never cached.
func pendingPool(tx *gorm.DB, exclude uuid.UUID) ([]models.SongExchange, error) {
	var rows []models.SongExchange
	err := tx.Preload("SentSong").
		Where("status = ? AND receiver_id IS NULL AND received_song_id IS NULL", models.ExchangeStatusPending).
		Where("sender_id <> ?", exclude).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("loading pending pool: %w", err)
	}
	return rows, nil
}

func insertPending(tx *gorm.DB, sender, song uuid.UUID) (*models.SongExchange, error) {
	row := &models.SongExchange{
		SenderID:   sender,
		SentSongID: song,
		Status:     models.ExchangeStatusPending,
	}
	if err := tx.Create(row).Error; err != nil {
		return nil, fmt.Errorf("creating pending exchange: %w", err)
	}
	return row, nil
}

func insertMatched(tx *gorm.DB, sender, receiver, sent, received uuid.UUID, at time.Time) (*models.SongExchange, error) {
	row := &models.SongExchange{
		SenderID:       sender,
		ReceiverID:     &receiver,
		SentSongID:     sent,
		ReceivedSongID: &received,
		Status:         models.ExchangeStatusMatched,
		MatchedAt:      &at,
	}
	if err := tx.Create(row).Error; err != nil {
		return nil, fmt.Errorf("creating matched exchange: %w", err)
	}
	return row, nil
}

// claim moves a pending row to matched. The update is conditional on the
// row still being unclaimed, so of two racing claimants exactly one sees
// an affected row; the other gets ErrCandidateTaken.
func claim(tx *gorm.DB, id, receiver, received uuid.UUID, at time.Time) error {
	res := tx.Model(&models.SongExchange{}).
		Where("id = ? AND status = ? AND receiver_id IS NULL AND received_song_id IS NULL", id, models.ExchangeStatusPending).
		Updates(map[string]interface{}{
			"receiver_id":      receiver,
			"received_song_id": received,
			"status":           models.ExchangeStatusMatched,
			"matched_at":       at,
		})
	if res.Error != nil {
		return fmt.Errorf("claiming exchange %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrCandidateTaken
	}
	return nil
}

func loadExchange(tx *gorm.DB, id uuid.UUID) (*models.SongExchange, error) {
	var row models.SongExchange
	if err := tx.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExchangeNotFound
		}
		return nil, err
	}
	return &row, nil
}

// findReciprocal is the derived join read-side consumers use to find the
// other half of a pairing.
func findReciprocal(q *gorm.DB, ex *models.SongExchange) (*models.SongExchange, error) {
	if !ex.IsPaired() || ex.ReceiverID == nil || ex.ReceivedSongID == nil {
		return nil, ErrReciprocalMissing
	}
	var rows []models.SongExchange
	err := q.Where("sender_id = ? AND receiver_id = ? AND sent_song_id = ? AND received_song_id = ?",
		*ex.ReceiverID, ex.SenderID, *ex.ReceivedSongID, ex.SentSongID).
		Where("status IN ? AND id <> ?", models.PairedStatuses, ex.ID).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("looking up reciprocal: %w", err)
	}
	for i := range rows {
		if ex.Mirrors(&rows[i]) {
			return &rows[i], nil
		}
	}
	return nil, ErrReciprocalMissing
}

// Ledger exposes the read and maintenance operations on song_exchanges.
// Pairing writes go through Engine.
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Get returns one exchange by id
func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*models.SongExchange, error) {
	return loadExchange(l.db.WithContext(ctx), id)
}

// FindReciprocal returns the mirrored row of a matched or completed exchange
func (l *Ledger) FindReciprocal(ctx context.Context, ex *models.SongExchange) (*models.SongExchange, error) {
	return findReciprocal(l.db.WithContext(ctx), ex)
}

// PendingCount returns the current size of the candidate pool
func (l *Ledger) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	err := l.db.WithContext(ctx).Model(&models.SongExchange{}).
		Where("status = ? AND receiver_id IS NULL AND received_song_id IS NULL", models.ExchangeStatusPending).
		Count(&n).Error
	return n, err
}

// Complete advances a matched exchange and its reciprocal to completed.
// Both rows are locked for the duration of the transition.
func (l *Ledger) Complete(ctx context.Context, id uuid.UUID) (*models.SongExchange, *models.SongExchange, error) {
	var done, mirror *models.SongExchange
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ex models.SongExchange
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ex, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrExchangeNotFound
			}
			return err
		}
		if ex.Status != models.ExchangeStatusMatched {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ex.Status, models.ExchangeStatusCompleted)
		}

		recip, err := findReciprocal(tx.Clauses(clause.Locking{Strength: "UPDATE"}), &ex)
		if err != nil {
			return err
		}

		at := l.now().UTC().Truncate(time.Microsecond)
		updates := map[string]interface{}{
			"status":       models.ExchangeStatusCompleted,
			"completed_at": at,
		}
		res := tx.Model(&models.SongExchange{}).
			Where("id = ? AND status = ?", ex.ID, models.ExchangeStatusMatched).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		// The reciprocal may already be completed; that is not an error.
		if err := tx.Model(&models.SongExchange{}).
			Where("id = ? AND status = ?", recip.ID, models.ExchangeStatusMatched).
			Updates(updates).Error; err != nil {
			return err
		}

		if done, err = loadExchange(tx, ex.ID); err != nil {
			return err
		}
		mirror, err = loadExchange(tx, recip.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return done, mirror, nil
}

// Violation is a paired exchange that breaks the reciprocity invariant
type Violation struct {
	Exchange    models.SongExchange `json:"exchange"`
	Reciprocals int                 `json:"reciprocals"`
	Reason      string              `json:"reason"`
}

type pairKey struct {
	sender, receiver, sent, received uuid.UUID
}

// CheckConsistency reports every matched or completed row that does not
// have exactly one reciprocal with the same matched_at.
func (l *Ledger) CheckConsistency(ctx context.Context) ([]Violation, error) {
	var rows []models.SongExchange
	if err := l.db.WithContext(ctx).
		Where("status IN ?", models.PairedStatuses).
		Order("created_at, id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading paired exchanges: %w", err)
	}

	byKey := make(map[pairKey][]int, len(rows))
	for i := range rows {
		r := &rows[i]
		if r.ReceiverID == nil || r.ReceivedSongID == nil {
			continue
		}
		k := pairKey{r.SenderID, *r.ReceiverID, r.SentSongID, *r.ReceivedSongID}
		byKey[k] = append(byKey[k], i)
	}

	var violations []Violation
	for i := range rows {
		r := &rows[i]
		if r.ReceiverID == nil || r.ReceivedSongID == nil || r.MatchedAt == nil {
			violations = append(violations, Violation{Exchange: *r, Reason: "paired exchange missing receiver, received song or matched_at"})
			continue
		}
		mirror := pairKey{*r.ReceiverID, r.SenderID, *r.ReceivedSongID, r.SentSongID}
		n := 0
		for _, j := range byKey[mirror] {
			if j != i && r.Mirrors(&rows[j]) {
				n++
			}
		}
		switch {
		case n == 0:
			violations = append(violations, Violation{Exchange: *r, Reason: "missing reciprocal"})
		case n > 1:
			violations = append(violations, Violation{Exchange: *r, Reciprocals: n, Reason: "multiple reciprocals"})
		}
	}
	return violations, nil
}

// DedupReport summarises a Deduplicate run
type DedupReport struct {
	DryRun  bool        `json:"dry_run"`
	Groups  int         `json:"groups"`
	Kept    []uuid.UUID `json:"kept"`
	Removed []uuid.UUID `json:"removed"`
}

type dedupKey struct {
	sender   uuid.UUID
	receiver uuid.UUID
	sent     uuid.UUID
	received uuid.UUID
	status   models.ExchangeStatus
}

// Deduplicate removes exchange rows that share a logical identity (sender,
// receiver, sent song, received song, status), keeping the earliest-created
// row of each group. Feed activities of removed rows go with them and
// notifications are detached. Administrative use only.
func (l *Ledger) Deduplicate(ctx context.Context, dryRun bool) (*DedupReport, error) {
	var rows []models.SongExchange
	if err := l.db.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading exchanges: %w", err)
	}

	report := &DedupReport{DryRun: dryRun}
	first := make(map[dedupKey]uuid.UUID, len(rows))
	counted := make(map[dedupKey]bool)
	for _, r := range rows {
		k := dedupKey{sender: r.SenderID, sent: r.SentSongID, status: r.Status}
		if r.ReceiverID != nil {
			k.receiver = *r.ReceiverID
		}
		if r.ReceivedSongID != nil {
			k.received = *r.ReceivedSongID
		}
		keep, seen := first[k]
		if !seen {
			first[k] = r.ID
			continue
		}
		if !counted[k] {
			counted[k] = true
			report.Groups++
			report.Kept = append(report.Kept, keep)
		}
		report.Removed = append(report.Removed, r.ID)
	}

	if dryRun || len(report.Removed) == 0 {
		return report, nil
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(report.Removed); start += dedupBatchSize {
			end := min(start+dedupBatchSize, len(report.Removed))
			batch := report.Removed[start:end]
			feed := func() *gorm.DB {
				return tx.Model(&models.Activity{}).Select("id").Where("song_exchange_id IN ?", batch)
			}
			if err := tx.Where("activity_id IN (?)", feed()).Delete(&models.ActivityReaction{}).Error; err != nil {
				return fmt.Errorf("deleting reactions: %w", err)
			}
			if err := tx.Where("activity_id IN (?)", feed()).Delete(&models.ActivityComment{}).Error; err != nil {
				return fmt.Errorf("deleting comments: %w", err)
			}
			if err := tx.Where("song_exchange_id IN ?", batch).Delete(&models.Activity{}).Error; err != nil {
				return fmt.Errorf("deleting activities: %w", err)
			}
			if err := tx.Model(&models.Notification{}).
				Where("song_exchange_id IN ?", batch).
				Update("song_exchange_id", nil).Error; err != nil {
				return fmt.Errorf("detaching notifications: %w", err)
			}
			if err := tx.Where("id IN ?", batch).Delete(&models.SongExchange{}).Error; err != nil {
				return fmt.Errorf("deleting exchanges: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
