package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/soundly/backend/internal/matching"
	"github.com/soundly/backend/internal/models"
	"github.com/soundly/backend/internal/spotify"
	"gorm.io/gorm"
)

// TrackResolver turns a track link into metadata
type TrackResolver interface {
	Resolve(ctx context.Context, url string) (*spotify.TrackInfo, error)
}

// Matcher pairs an uploaded song with a counterpart
type Matcher interface {
	Match(ctx context.Context, mode matching.Mode, user uuid.UUID, song *models.Song) (matching.Result, error)
	Park(ctx context.Context, user uuid.UUID, song *models.Song) (*models.SongExchange, error)
}

// UploadInput is either a track URL, explicit metadata, or both. Explicit
// fields win over resolved ones.
type UploadInput struct {
	URL    string
	Title  string
	Artist string
	Album  string
	Genres []string
	Mode   string
}

// UploadResult describes what happened to an upload
type UploadResult struct {
	Song *models.Song
	// Existing is set when the user had already uploaded this title and
	// artist; no matching ran.
	Existing bool
	Match    matching.Result
	// Counterpart uploader, set when Match.Matched()
	MatchedUser *models.User
}

type SongService struct {
	db            *gorm.DB
	resolver      TrackResolver
	matcher       Matcher
	activities    *ActivityService
	notifications *NotificationService
	defaultMode   matching.Mode
	logger        *log.Logger
}

func NewSongService(db *gorm.DB, resolver TrackResolver, matcher Matcher, activities *ActivityService, notifications *NotificationService, defaultMode matching.Mode, logger *log.Logger) *SongService {
	if defaultMode == "" {
		defaultMode = matching.ModeAutomatic
	}
	return &SongService{
		db:            db,
		resolver:      resolver,
		matcher:       matcher,
		activities:    activities,
		notifications: notifications,
		defaultMode:   defaultMode,
		logger:        logger,
	}
}

// Upload stores a song for user and runs matching. The feed and
// notifications are updated after the match has committed; their failures
// are logged and never fail the upload.
func (s *SongService) Upload(ctx context.Context, userID uuid.UUID, in UploadInput) (*UploadResult, error) {
	mode := s.defaultMode
	if in.Mode != "" {
		m, err := matching.ParseMode(in.Mode)
		if err != nil {
			return nil, err
		}
		mode = m
	}

	song, err := s.buildSong(ctx, userID, in)
	if err != nil {
		return nil, err
	}

	existing, err := s.findDuplicate(ctx, userID, song.Title, song.Artist)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &UploadResult{Song: existing, Existing: true}, nil
	}

	if err := s.db.WithContext(ctx).Create(song).Error; err != nil {
		return nil, fmt.Errorf("creating song: %w", err)
	}
	logger := s.logger.With("user", userID, "song", song.ID, "mode", mode)
	logger.Info("song uploaded", "title", song.Title, "genres", len(song.Genre))

	if err := s.activities.RecordDiscovery(ctx, song); err != nil {
		logger.Error("discovery activity failed", "err", err)
	}

	res, err := s.matcher.Match(ctx, mode, userID, song)
	if err != nil {
		// The song is stored; make sure it can still be matched later.
		logger.Error("matching failed, parking song", "err", err)
		parked, perr := s.matcher.Park(ctx, userID, song)
		if perr != nil {
			return nil, fmt.Errorf("parking song after match failure: %w", errors.Join(err, perr))
		}
		res = matching.Result{Mode: mode, Exchange: parked}
	}

	out := &UploadResult{Song: song, Match: res}
	if !res.Matched() {
		return out, nil
	}

	for _, ex := range []*models.SongExchange{res.Exchange, res.Reciprocal} {
		if err := s.activities.RecordExchange(ctx, ex.ID); err != nil {
			logger.Error("exchange activity failed", "exchange", ex.ID, "err", err)
		}
	}
	if err := s.notifications.NotifyMatch(ctx, res.Exchange, res.Reciprocal); err != nil {
		logger.Error("match notification failed", "err", err)
	}

	var partner models.User
	if err := s.db.WithContext(ctx).First(&partner, "id = ?", res.User).Error; err != nil {
		logger.Error("loading matched user", "counterpart_user", res.User, "err", err)
	} else {
		out.MatchedUser = &partner
	}
	return out, nil
}

func (s *SongService) buildSong(ctx context.Context, userID uuid.UUID, in UploadInput) (*models.Song, error) {
	song := &models.Song{
		UploaderID: userID,
		Title:      strings.TrimSpace(in.Title),
		Artist:     strings.TrimSpace(in.Artist),
		Album:      strings.TrimSpace(in.Album),
		URL:        strings.TrimSpace(in.URL),
		Genre:      matching.NormalizeGenres(in.Genres),
	}

	if song.URL != "" && s.resolver != nil {
		info, err := s.resolver.Resolve(ctx, song.URL)
		switch {
		case err == nil:
			applyTrackInfo(song, info)
		case errors.Is(err, spotify.ErrNotConfigured) || errors.Is(err, spotify.ErrInvalidTrackURL):
			if song.Title == "" || song.Artist == "" {
				return nil, fmt.Errorf("%w: %v", ErrMissingMetadata, err)
			}
		default:
			if song.Title == "" || song.Artist == "" {
				return nil, fmt.Errorf("resolving track: %w", err)
			}
			s.logger.Warn("track lookup failed, using supplied metadata", "url", song.URL, "err", err)
		}
	}

	if song.Title == "" || song.Artist == "" {
		return nil, ErrMissingMetadata
	}
	return song, nil
}

func applyTrackInfo(song *models.Song, info *spotify.TrackInfo) {
	if song.Title == "" {
		song.Title = info.Title
	}
	if song.Artist == "" {
		song.Artist = info.Artist
	}
	if song.Album == "" {
		song.Album = info.Album
	}
	if len(song.Genre) == 0 {
		song.Genre = matching.NormalizeGenres(info.Genres)
	}
	song.SpotifyTrackID = info.TrackID
	song.CoverImageURL = info.CoverImageURL
	song.DurationSeconds = info.DurationSeconds
	song.ReleaseDate = info.ReleaseDate
}

func (s *SongService) findDuplicate(ctx context.Context, userID uuid.UUID, title, artist string) (*models.Song, error) {
	var song models.Song
	err := s.db.WithContext(ctx).
		Where("uploader_id = ? AND title = ? AND artist = ?", userID, title, artist).
		First(&song).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &song, nil
}

// Get returns one song
func (s *SongService) Get(ctx context.Context, id uuid.UUID) (*models.Song, error) {
	var song models.Song
	if err := s.db.WithContext(ctx).First(&song, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSongNotFound
		}
		return nil, err
	}
	return &song, nil
}

// List returns songs newest first. A non-nil uploader filters to that user.
func (s *SongService) List(ctx context.Context, uploader *uuid.UUID, page, size int) ([]models.Song, int64, error) {
	page, size = normalizePage(page, size)

	query := s.db.WithContext(ctx).Model(&models.Song{})
	if uploader != nil {
		query = query.Where("uploader_id = ?", *uploader)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var songs []models.Song
	if err := query.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&songs).Error; err != nil {
		return nil, 0, err
	}
	return songs, total, nil
}

// GenreCount is one row of the genre distribution
type GenreCount struct {
	Genre      string `json:"genre"`
	Count      int    `json:"count"`
	Percentage string `json:"percentage"`
}

// GenreDistribution counts genre tags across the catalog. Rows are sorted
// by count, then name; limit <= 0 returns everything.
func (s *SongService) GenreDistribution(ctx context.Context, limit int) ([]GenreCount, error) {
	var lists []models.GenreList
	if err := s.db.WithContext(ctx).Model(&models.Song{}).Pluck("genre", &lists).Error; err != nil {
		return nil, err
	}

	counts := map[string]int{}
	total := 0
	for _, l := range lists {
		for _, g := range l {
			counts[g]++
			total++
		}
	}

	out := make([]GenreCount, 0, len(counts))
	for g, n := range counts {
		out = append(out, GenreCount{
			Genre:      g,
			Count:      n,
			Percentage: fmt.Sprintf("%.0f%%", float64(n)/float64(total)*100),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Genre < out[j].Genre
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
