package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/soundly/backend/internal/matching"
	"github.com/soundly/backend/internal/models"
	"gorm.io/gorm"
)

const topLocations = 10

// ExchangeService serves read-side views of the exchange ledger
type ExchangeService struct {
	db     *gorm.DB
	ledger *matching.Ledger
	now    func() time.Time
}

func NewExchangeService(db *gorm.DB, ledger *matching.Ledger) *ExchangeService {
	return &ExchangeService{db: db, ledger: ledger, now: time.Now}
}

// ReceivedSongs lists the user's paired exchanges with the song they got
// back, newest first.
func (s *ExchangeService) ReceivedSongs(ctx context.Context, userID uuid.UUID, page, size int) ([]models.SongExchange, int64, error) {
	page, size = normalizePage(page, size)

	query := s.db.WithContext(ctx).Model(&models.SongExchange{}).
		Where("sender_id = ? AND status IN ? AND received_song_id IS NOT NULL", userID, models.PairedStatuses)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.SongExchange
	if err := query.Preload("SentSong").Preload("ReceivedSong").Preload("Receiver").
		Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Reciprocal returns an exchange and its other half. The caller must be a
// party to the exchange.
func (s *ExchangeService) Reciprocal(ctx context.Context, userID, exchangeID uuid.UUID) (*models.SongExchange, *models.SongExchange, error) {
	ex, err := s.ledger.Get(ctx, exchangeID)
	if err != nil {
		if errors.Is(err, matching.ErrExchangeNotFound) {
			return nil, nil, ErrExchangeNotFound
		}
		return nil, nil, err
	}
	if ex.SenderID != userID && (ex.ReceiverID == nil || *ex.ReceiverID != userID) {
		return nil, nil, ErrNotParticipant
	}

	recip, err := s.ledger.FindReciprocal(ctx, ex)
	if err != nil {
		return nil, nil, err
	}
	return ex, recip, nil
}

// LocationStats aggregates partners by place
type LocationStats struct {
	UsersCount     int    `json:"users_count"`
	SongsExchanged int    `json:"songs_exchanged"`
	Country        string `json:"country,omitempty"`
}

type NamedLocation struct {
	Name string `json:"name"`
	LocationStats
}

type Statistics struct {
	SongsShared          int64    `json:"songs_shared"`
	SongsReceived        int64    `json:"songs_received"`
	TotalUniqueExchanges int      `json:"total_unique_exchanges"`
	UsersExchangedWith   int      `json:"users_exchanged_with"`
	CountriesInvolved    int      `json:"countries_involved"`
	Countries            []string `json:"countries_list"`
	Cities               []string `json:"cities_list"`

	ByCountry     map[string]LocationStats `json:"by_country"`
	ByCity        map[string]LocationStats `json:"by_city"`
	ByCityCountry map[string]LocationStats `json:"by_city_country"`

	TopCountries []NamedLocation `json:"top_countries"`
	TopCities    []NamedLocation `json:"top_cities"`
}

type Summary struct {
	SongsShared int64 `json:"songs_shared"`
	Connections int   `json:"connections"`
	Countries   int   `json:"countries"`
	DaysActive  int   `json:"days_active"`
}

// partners returns the user's paired exchanges and the distinct users on
// the other side. The two rows of a pairing name the same partner, so
// each partner is counted once.
func (s *ExchangeService) partners(ctx context.Context, userID uuid.UUID) ([]models.SongExchange, []models.User, error) {
	var rows []models.SongExchange
	if err := s.db.WithContext(ctx).
		Where("(sender_id = ? OR receiver_id = ?) AND status IN ?", userID, userID, models.PairedStatuses).
		Order("created_at").
		Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	seen := map[uuid.UUID]bool{}
	var ids []uuid.UUID
	for _, r := range rows {
		partner := r.SenderID
		if partner == userID {
			if r.ReceiverID == nil {
				continue
			}
			partner = *r.ReceiverID
		}
		if partner == userID || seen[partner] {
			continue
		}
		seen[partner] = true
		ids = append(ids, partner)
	}

	var users []models.User
	if len(ids) > 0 {
		if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
			return nil, nil, err
		}
	}
	return rows, users, nil
}

func (s *ExchangeService) countPaired(ctx context.Context, column string, userID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.SongExchange{}).
		Where(column+" = ? AND status IN ?", userID, models.PairedStatuses).
		Count(&n).Error
	return n, err
}

// Statistics reports exchange counts and where the user's partners are
func (s *ExchangeService) Statistics(ctx context.Context, userID uuid.UUID) (*Statistics, error) {
	shared, err := s.countPaired(ctx, "sender_id", userID)
	if err != nil {
		return nil, err
	}
	received, err := s.countPaired(ctx, "receiver_id", userID)
	if err != nil {
		return nil, err
	}
	_, users, err := s.partners(ctx, userID)
	if err != nil {
		return nil, err
	}

	st := &Statistics{
		SongsShared:          shared,
		SongsReceived:        received,
		TotalUniqueExchanges: len(users),
		UsersExchangedWith:   len(users),
		Countries:            []string{},
		Cities:               []string{},
		ByCountry:            map[string]LocationStats{},
		ByCity:               map[string]LocationStats{},
		ByCityCountry:        map[string]LocationStats{},
	}

	bump := func(m map[string]LocationStats, key, country string) {
		ls := m[key]
		ls.UsersCount++
		ls.SongsExchanged++
		ls.Country = country
		m[key] = ls
	}
	for _, u := range users {
		if u.Country != "" {
			bump(st.ByCountry, u.Country, "")
		}
		if u.City != "" {
			country := u.Country
			if country == "" {
				country = "Unknown"
			}
			bump(st.ByCity, u.City, country)
		}
		if u.City != "" && u.Country != "" {
			bump(st.ByCityCountry, u.City+", "+u.Country, "")
		}
	}

	for c := range st.ByCountry {
		st.Countries = append(st.Countries, c)
	}
	for c := range st.ByCity {
		st.Cities = append(st.Cities, c)
	}
	sort.Strings(st.Countries)
	sort.Strings(st.Cities)
	st.CountriesInvolved = len(st.Countries)
	st.TopCountries = top(st.ByCountry)
	st.TopCities = top(st.ByCity)
	return st, nil
}

func top(m map[string]LocationStats) []NamedLocation {
	out := make([]NamedLocation, 0, len(m))
	for name, ls := range m {
		out = append(out, NamedLocation{Name: name, LocationStats: ls})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UsersCount != out[j].UsersCount {
			return out[i].UsersCount > out[j].UsersCount
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > topLocations {
		out = out[:topLocations]
	}
	return out
}

// Summary is the compact profile counter block
func (s *ExchangeService) Summary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	rows, users, err := s.partners(ctx, userID)
	if err != nil {
		return nil, err
	}

	var shared int64
	if err := s.db.WithContext(ctx).Model(&models.SongExchange{}).
		Where("sender_id = ? AND status IN ?", userID, models.PairedStatuses).
		Distinct("sent_song_id").
		Count(&shared).Error; err != nil {
		return nil, err
	}

	countries := map[string]bool{}
	for _, u := range users {
		if u.Country != "" {
			countries[u.Country] = true
		}
	}

	sum := &Summary{
		SongsShared: shared,
		Connections: len(users),
		Countries:   len(countries),
	}
	if len(rows) > 0 {
		today := s.now().UTC().Truncate(24 * time.Hour)
		first := rows[0].CreatedAt.UTC().Truncate(24 * time.Hour)
		sum.DaysActive = int(today.Sub(first).Hours()/24) + 1
	}
	return sum, nil
}
