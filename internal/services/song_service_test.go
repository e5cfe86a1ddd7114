package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/soundly/backend/internal/logging"
	"github.com/soundly/backend/internal/matching"
	"github.com/soundly/backend/internal/models"
	"github.com/soundly/backend/internal/spotify"
	"github.com/soundly/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload_ResolvesTrackAndParks(t *testing.T) {
	resolver := &fakeResolver{info: &spotify.TrackInfo{
		TrackID:         "abc123",
		Title:           "Midnight City",
		Artist:          "M83",
		Album:           "Hurry Up, We're Dreaming",
		Genres:          []string{"Electropop", "Shoegaze", "electropop"},
		DurationSeconds: 243,
		CoverImageURL:   "https://i.scdn.co/image/cover",
		ReleaseDate:     "2011-10-18",
	}}
	st := newStack(t, resolver)
	ctx := context.Background()
	alice := testutil.CreateUser(t, st.db, "alice")

	res, err := st.songs.Upload(ctx, alice.ID, UploadInput{URL: "https://open.spotify.com/track/abc123"})
	require.NoError(t, err)
	assert.False(t, res.Existing)
	assert.False(t, res.Match.Matched())
	assert.Equal(t, "Midnight City", res.Song.Title)
	assert.Equal(t, "abc123", res.Song.SpotifyTrackID)
	assert.Equal(t, 243, res.Song.DurationSeconds)
	assert.Equal(t, models.GenreList{"electropop", "shoegaze"}, res.Song.Genre)
	assert.Equal(t, []string{"https://open.spotify.com/track/abc123"}, resolver.urls)

	require.NotNil(t, res.Match.Exchange)
	assert.True(t, res.Match.Exchange.IsPending())

	var discoveries int64
	require.NoError(t, st.db.Model(&models.Activity{}).Where("type = ?", models.ActivityTypeSongDiscovery).Count(&discoveries).Error)
	assert.EqualValues(t, 1, discoveries)
}

func TestUpload_MatchFansOutAfterCommit(t *testing.T) {
	st := newStack(t, nil)
	ctx := context.Background()
	alice := testutil.CreateUser(t, st.db, "alice")
	bob := testutil.CreateUser(t, st.db, "bob")

	_, err := st.songs.Upload(ctx, alice.ID, UploadInput{Title: "Song A", Artist: "X", Genres: []string{"pop"}})
	require.NoError(t, err)

	res, err := st.songs.Upload(ctx, bob.ID, UploadInput{Title: "Song B", Artist: "Y", Genres: []string{"Pop", "Indie"}})
	require.NoError(t, err)
	require.True(t, res.Match.Matched())
	require.NotNil(t, res.MatchedUser)
	assert.Equal(t, alice.ID, res.MatchedUser.ID)
	assert.Equal(t, "Song A", res.Match.Song.Title)
	assert.Equal(t, 50.0, matching.RoundSimilarity(res.Match.Similarity))

	var exchangeActivities int64
	require.NoError(t, st.db.Model(&models.Activity{}).Where("type = ?", models.ActivityTypeSongExchange).Count(&exchangeActivities).Error)
	assert.EqualValues(t, 4, exchangeActivities)

	aliceNotes, total, err := st.notifications.List(ctx, alice.ID, false, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Contains(t, aliceNotes[0].Description, "Song B")

	bobNotes, _, err := st.notifications.List(ctx, bob.ID, false, 1, 10)
	require.NoError(t, err)
	require.Len(t, bobNotes, 1)
	assert.Contains(t, bobNotes[0].Description, "Song A")
}

func TestUpload_DuplicateReturnsExisting(t *testing.T) {
	st := newStack(t, nil)
	ctx := context.Background()
	alice := testutil.CreateUser(t, st.db, "alice")

	first, err := st.songs.Upload(ctx, alice.ID, UploadInput{Title: "Same", Artist: "Band", Genres: []string{"rock"}})
	require.NoError(t, err)
	second, err := st.songs.Upload(ctx, alice.ID, UploadInput{Title: "Same", Artist: "Band", Genres: []string{"jazz"}})
	require.NoError(t, err)

	assert.True(t, second.Existing)
	assert.Equal(t, first.Song.ID, second.Song.ID)
	assert.Len(t, testutil.Exchanges(t, st.db), 1)
}

func TestUpload_Validation(t *testing.T) {
	st := newStack(t, &fakeResolver{err: spotify.ErrNotConfigured})
	ctx := context.Background()
	alice := testutil.CreateUser(t, st.db, "alice")

	_, err := st.songs.Upload(ctx, alice.ID, UploadInput{URL: "https://open.spotify.com/track/x"})
	assert.ErrorIs(t, err, ErrMissingMetadata)

	_, err = st.songs.Upload(ctx, alice.ID, UploadInput{Title: "T", Artist: "A", Mode: "best"})
	assert.ErrorIs(t, err, matching.ErrUnknownMode)

	res, err := st.songs.Upload(ctx, alice.ID, UploadInput{URL: "https://open.spotify.com/track/x", Title: "T", Artist: "A"})
	require.NoError(t, err)
	assert.Equal(t, "https://open.spotify.com/track/x", res.Song.URL)
}

type failingMatcher struct {
	*matching.Engine
}

func (f failingMatcher) Match(context.Context, matching.Mode, uuid.UUID, *models.Song) (matching.Result, error) {
	return matching.Result{}, errors.New("database on fire")
}

func TestUpload_ParksWhenMatcherFails(t *testing.T) {
	st := newStack(t, nil)
	st.songs = NewSongService(st.db, nil, failingMatcher{st.engine}, st.activities, st.notifications, matching.ModeRandom, logging.Discard())
	ctx := context.Background()
	alice := testutil.CreateUser(t, st.db, "alice")

	res, err := st.songs.Upload(ctx, alice.ID, UploadInput{Title: "T", Artist: "A"})
	require.NoError(t, err)
	assert.False(t, res.Match.Matched())
	require.NotNil(t, res.Match.Exchange)
	assert.True(t, res.Match.Exchange.IsPending())
}

func TestGenreDistribution(t *testing.T) {
	st := newStack(t, nil)
	ctx := context.Background()
	alice := testutil.CreateUser(t, st.db, "alice")

	testutil.CreateSong(t, st.db, alice.ID, "one", "pop", "rock")
	testutil.CreateSong(t, st.db, alice.ID, "two", "pop")
	testutil.CreateSong(t, st.db, alice.ID, "three", "jazz", "pop")
	testutil.CreateSong(t, st.db, alice.ID, "four")

	dist, err := st.songs.GenreDistribution(ctx, 0)
	require.NoError(t, err)
	require.Len(t, dist, 3)
	assert.Equal(t, GenreCount{Genre: "pop", Count: 3, Percentage: "60%"}, dist[0])
	assert.Equal(t, GenreCount{Genre: "jazz", Count: 1, Percentage: "20%"}, dist[1])
	assert.Equal(t, GenreCount{Genre: "rock", Count: 1, Percentage: "20%"}, dist[2])

	limited, err := st.songs.GenreDistribution(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSongList(t *testing.T) {
	st := newStack(t, nil)
	ctx := context.Background()
	alice := testutil.CreateUser(t, st.db, "alice")
	bob := testutil.CreateUser(t, st.db, "bob")
	testutil.CreateSong(t, st.db, alice.ID, "a1")
	testutil.CreateSong(t, st.db, bob.ID, "b1")

	all, total, err := st.songs.List(ctx, nil, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, all, 2)

	mine, total, err := st.songs.List(ctx, &alice.ID, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "a1", mine[0].Title)

	_, err = st.songs.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrSongNotFound)
}
