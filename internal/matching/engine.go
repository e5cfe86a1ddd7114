// Package matching pairs newly uploaded songs with songs from other users
// and records each pairing as two reciprocal rows in the exchange ledger.
//
// Every strategy runs its candidate read and its pairing writes inside one
// transaction. Claims on pool rows are conditional updates, so concurrent
// uploads can never claim the same pending exchange twice. The engine has
// no side effects outside the ledger; feed and notification fan-out is the
// caller's job after a successful commit.
package matching

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/soundly/backend/internal/logging"
	"github.com/soundly/backend/internal/models"
	"gorm.io/gorm"
)

// Mode selects a matching strategy
type Mode string

const (
	// ModeAutomatic claims the pending pool row with the highest genre similarity.
	ModeAutomatic Mode = "automatic"
	// ModeRandom pairs with a uniformly random catalog song from another user.
	ModeRandom Mode = "random"
	// ModePool parks the song first, then promotes it against a catalog song
	// the uploader has not received before.
	ModePool Mode = "pool"
)

var (
	ErrMissingUser      = errors.New("user id is required")
	ErrSongNotPersisted = errors.New("song is not persisted")
	ErrNotUploader      = errors.New("song belongs to another uploader")
	ErrUnknownMode      = errors.New("unknown match mode")
)

// ParseMode validates a mode name
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAutomatic, ModeRandom, ModePool:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Result is the outcome of one matching call. When no counterpart was
// found only Exchange is set, and it is the uploader's pending row.
type Result struct {
	Mode Mode

	// Counterpart song and its uploader
	Song *models.Song
	User uuid.UUID

	// Exchange is the uploader's row (sender = uploader); Reciprocal is the
	// counterpart's row.
	Exchange   *models.SongExchange
	Reciprocal *models.SongExchange

	// Genre scoring, automatic mode only
	Similarity float64
	Overlap    []string
}

// Matched reports whether a counterpart was found
func (r Result) Matched() bool {
	return r.Song != nil
}

type request struct {
	user   uuid.UUID
	song   *models.Song
	genres []string
}

// candidate is a potential counterpart. exchange is set when the
// counterpart already sits in the pool and has to be claimed; otherwise a
// fresh row is written for the counterpart side.
type candidate struct {
	exchange   *models.SongExchange
	song       *models.Song
	owner      uuid.UUID
	similarity float64
	overlap    []string
}

// strategy parameterises claimOrCreate. candidates returns counterparts
// best first and must only use tx.
type strategy struct {
	mode       Mode
	parkFirst  bool
	candidates func(tx *gorm.DB, req request) ([]candidate, error)
}

type Engine struct {
	db     *gorm.DB
	logger *log.Logger
	intn   func(n int) int
	now    func() time.Time
}

type Option func(*Engine)

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRandom replaces the uniform sampler used by random and pool modes.
// intn must return a value in [0, n).
func WithRandom(intn func(n int) int) Option {
	return func(e *Engine) { e.intn = intn }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(db *gorm.DB, opts ...Option) *Engine {
	e := &Engine{
		db:     db,
		logger: logging.Discard(),
		intn:   rand.Intn,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Match runs the strategy selected by mode
func (e *Engine) Match(ctx context.Context, mode Mode, user uuid.UUID, song *models.Song) (Result, error) {
	s, err := e.strategyFor(mode)
	if err != nil {
		return Result{Mode: mode}, err
	}
	return e.run(ctx, s, user, song)
}

// AutomaticMatch claims the pool row whose song has the highest Jaccard
// genre similarity with song. Songs without genres, or with no overlapping
// candidate, are parked in the pool.
func (e *Engine) AutomaticMatch(ctx context.Context, user uuid.UUID, song *models.Song) (Result, error) {
	return e.run(ctx, e.automatic(), user, song)
}

// RandomMatch pairs song with a uniformly chosen catalog song uploaded by
// someone else, writing two fresh matched rows. An empty catalog parks the
// song in the pool.
func (e *Engine) RandomMatch(ctx context.Context, user uuid.UUID, song *models.Song) (Result, error) {
	return e.run(ctx, e.random(), user, song)
}

// PoolFallbackMatch parks song, then tries to promote that same row
// against a catalog song the user neither uploaded nor already received.
// The returned exchange is the uploader's row in its final state.
func (e *Engine) PoolFallbackMatch(ctx context.Context, user uuid.UUID, song *models.Song) (*models.SongExchange, error) {
	res, err := e.run(ctx, e.poolFallback(), user, song)
	if err != nil {
		return nil, err
	}
	return res.Exchange, nil
}

// Park inserts song into the pool without attempting a match. Callers use
// it when a match attempt failed and the upload must still land in the pool.
func (e *Engine) Park(ctx context.Context, user uuid.UUID, song *models.Song) (*models.SongExchange, error) {
	req, err := e.prepare(ctx, user, song)
	if err != nil {
		return nil, err
	}
	return insertPending(e.db.WithContext(ctx), req.user, req.song.ID)
}

func (e *Engine) strategyFor(mode Mode) (strategy, error) {
	switch mode {
	case ModeAutomatic:
		return e.automatic(), nil
	case ModeRandom:
		return e.random(), nil
	case ModePool:
		return e.poolFallback(), nil
	}
	return strategy{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

func (e *Engine) automatic() strategy {
	return strategy{mode: ModeAutomatic, candidates: genreCandidates}
}

func (e *Engine) random() strategy {
	return strategy{mode: ModeRandom, candidates: func(tx *gorm.DB, req request) ([]candidate, error) {
		return e.sampleCandidate(tx, func(q *gorm.DB) *gorm.DB {
			return q.Where("uploader_id <> ?", req.user)
		})
	}}
}

func (e *Engine) poolFallback() strategy {
	return strategy{mode: ModePool, parkFirst: true, candidates: func(tx *gorm.DB, req request) ([]candidate, error) {
		return e.sampleCandidate(tx, func(q *gorm.DB) *gorm.DB {
			received := tx.Model(&models.SongExchange{}).
				Select("received_song_id").
				Where("receiver_id = ? AND received_song_id IS NOT NULL", req.user)
			return q.Where("uploader_id <> ?", req.user).Where("id NOT IN (?)", received)
		})
	}}
}

func (e *Engine) run(ctx context.Context, s strategy, user uuid.UUID, song *models.Song) (Result, error) {
	req, err := e.prepare(ctx, user, song)
	if err != nil {
		return Result{Mode: s.mode}, err
	}

	res, err := e.claimOrCreate(ctx, s, req)
	if err != nil {
		e.logger.Error("match aborted", "mode", s.mode, "user", user, "song", req.song.ID, "err", err)
		return Result{Mode: s.mode}, err
	}

	if res.Matched() {
		e.logger.Info("song matched", "mode", s.mode, "user", user, "song", req.song.ID,
			"counterpart", res.Song.ID, "counterpart_user", res.User, "similarity", RoundSimilarity(res.Similarity))
	} else {
		e.logger.Info("song parked in pool", "mode", s.mode, "user", user, "song", req.song.ID, "exchange", res.Exchange.ID)
	}
	return res, nil
}

// prepare rejects bad input before any ledger write and reloads the song
// so matching works on its stored genres and uploader.
func (e *Engine) prepare(ctx context.Context, user uuid.UUID, song *models.Song) (request, error) {
	if user == uuid.Nil {
		return request{}, ErrMissingUser
	}
	if song == nil || song.ID == uuid.Nil {
		return request{}, ErrSongNotPersisted
	}

	var stored models.Song
	if err := e.db.WithContext(ctx).First(&stored, "id = ?", song.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return request{}, ErrSongNotPersisted
		}
		return request{}, fmt.Errorf("loading song %s: %w", song.ID, err)
	}
	if stored.UploaderID != user {
		return request{}, ErrNotUploader
	}

	return request{user: user, song: &stored, genres: NormalizeGenres(stored.Genre)}, nil
}

// claimOrCreate is the single write path shared by all strategies. Inside
// one transaction it optionally parks the uploader's row, asks the strategy
// for candidates, and pairs with the first one that can still be claimed.
// When none can, the song ends up in the pool.
func (e *Engine) claimOrCreate(ctx context.Context, s strategy, req request) (Result, error) {
	var res Result
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res = Result{Mode: s.mode}

		var own *models.SongExchange
		if s.parkFirst {
			row, err := insertPending(tx, req.user, req.song.ID)
			if err != nil {
				return err
			}
			own = row
		}

		candidates, err := s.candidates(tx, req)
		if err != nil {
			return fmt.Errorf("selecting candidates: %w", err)
		}

		for _, c := range candidates {
			mine, theirs, err := e.pair(tx, req, own, c)
			if errors.Is(err, ErrCandidateTaken) {
				e.logger.Debug("candidate already claimed, trying next", "mode", s.mode, "song", c.song.ID)
				continue
			}
			if err != nil {
				return err
			}
			res.Song = c.song
			res.User = c.owner
			res.Exchange = mine
			res.Reciprocal = theirs
			res.Similarity = c.similarity
			res.Overlap = c.overlap
			return nil
		}

		if own == nil {
			if own, err = insertPending(tx, req.user, req.song.ID); err != nil {
				return err
			}
		}
		res.Exchange = own
		return nil
	})
	if err != nil {
		return Result{Mode: s.mode}, err
	}
	return res, nil
}

// pair writes both directions of a pairing with one shared matched_at. The
// counterpart side goes first so a lost claim fails before anything else
// has been written in this attempt.
func (e *Engine) pair(tx *gorm.DB, req request, own *models.SongExchange, c candidate) (mine, theirs *models.SongExchange, err error) {
	at := e.now().UTC().Truncate(time.Microsecond)

	if c.exchange != nil {
		if err := claim(tx, c.exchange.ID, req.user, req.song.ID, at); err != nil {
			return nil, nil, err
		}
		theirs, err = loadExchange(tx, c.exchange.ID)
	} else {
		theirs, err = insertMatched(tx, c.owner, req.user, c.song.ID, req.song.ID, at)
	}
	if err != nil {
		return nil, nil, err
	}

	if own != nil {
		if err := claim(tx, own.ID, c.owner, c.song.ID, at); err != nil {
			if errors.Is(err, ErrCandidateTaken) {
				err = fmt.Errorf("exchange %s changed inside its own transaction", own.ID)
			}
			return nil, nil, err
		}
		mine, err = loadExchange(tx, own.ID)
	} else {
		mine, err = insertMatched(tx, req.user, c.owner, req.song.ID, c.song.ID, at)
	}
	if err != nil {
		return nil, nil, err
	}
	return mine, theirs, nil
}

// genreCandidates scores the live pool against the uploader's genres.
// Ties keep pool iteration order; no tie-break ordering is imposed.
func genreCandidates(tx *gorm.DB, req request) ([]candidate, error) {
	if len(req.genres) == 0 {
		return nil, nil
	}
	rows, err := pendingPool(tx, req.user)
	if err != nil {
		return nil, err
	}

	var out []candidate
	for i := range rows {
		row := &rows[i]
		if row.SentSong == nil {
			continue
		}
		theirs := NormalizeGenres(row.SentSong.Genre)
		overlap := Overlap(req.genres, theirs)
		if len(overlap) == 0 {
			continue
		}
		out = append(out, candidate{
			exchange:   row,
			song:       row.SentSong,
			owner:      row.SenderID,
			similarity: Similarity(req.genres, theirs),
			overlap:    overlap,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].similarity > out[j].similarity
	})
	return out, nil
}

// sampleCandidate picks one song uniformly from the rows matched by scope.
func (e *Engine) sampleCandidate(tx *gorm.DB, scope func(*gorm.DB) *gorm.DB) ([]candidate, error) {
	var total int64
	if err := tx.Model(&models.Song{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting catalog: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	var song models.Song
	err := tx.Model(&models.Song{}).Scopes(scope).
		Order("created_at, id").
		Offset(e.intn(int(total))).
		Limit(1).
		Take(&song).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sampling catalog: %w", err)
	}
	return []candidate{{song: &song, owner: song.UploaderID}}, nil
}
