package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/soundly/backend/internal/models"
	"github.com/soundly/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placeUser(t *testing.T, st *stack, name, country, city string) *models.User {
	t.Helper()
	u := testutil.CreateUser(t, st.db, name)
	require.NoError(t, st.db.Model(u).Updates(map[string]interface{}{"country": country, "city": city}).Error)
	u.Country, u.City = country, city
	return u
}

func TestExchangeViews(t *testing.T) {
	st := newStack(t, nil)
	ctx := context.Background()

	alice := placeUser(t, st, "alice", "Nepal", "Kathmandu")
	bob := placeUser(t, st, "bob", "Germany", "Berlin")
	carol := placeUser(t, st, "carol", "Germany", "Hamburg")

	// alice parks twice, bob and carol each claim one
	_, err := st.songs.Upload(ctx, alice.ID, UploadInput{Title: "A1", Artist: "x", Genres: []string{"pop"}})
	require.NoError(t, err)
	_, err = st.songs.Upload(ctx, alice.ID, UploadInput{Title: "A2", Artist: "x", Genres: []string{"rock"}})
	require.NoError(t, err)
	res, err := st.songs.Upload(ctx, bob.ID, UploadInput{Title: "B1", Artist: "y", Genres: []string{"pop"}})
	require.NoError(t, err)
	require.True(t, res.Match.Matched())
	_, err = st.songs.Upload(ctx, carol.ID, UploadInput{Title: "C1", Artist: "z", Genres: []string{"rock"}})
	require.NoError(t, err)

	received, total, err := st.exchanges.ReceivedSongs(ctx, alice.ID, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, received, 2)
	for _, ex := range received {
		require.NotNil(t, ex.ReceivedSong)
		require.NotNil(t, ex.Receiver)
	}

	stats, err := st.exchanges.Statistics(ctx, alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.SongsShared)
	assert.EqualValues(t, 2, stats.SongsReceived)
	assert.Equal(t, 2, stats.UsersExchangedWith)
	assert.Equal(t, 1, stats.CountriesInvolved)
	assert.Equal(t, []string{"Germany"}, stats.Countries)
	assert.Equal(t, []string{"Berlin", "Hamburg"}, stats.Cities)
	assert.Equal(t, 2, stats.ByCountry["Germany"].UsersCount)
	assert.Equal(t, "Germany", stats.ByCity["Berlin"].Country)
	require.Len(t, stats.TopCountries, 1)
	assert.Equal(t, "Germany", stats.TopCountries[0].Name)

	sum, err := st.exchanges.Summary(ctx, alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, sum.SongsShared)
	assert.Equal(t, 2, sum.Connections)
	assert.Equal(t, 1, sum.Countries)
	assert.Equal(t, 1, sum.DaysActive)

	st.exchanges.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	sum, err = st.exchanges.Summary(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.DaysActive)

	empty, err := st.exchanges.Summary(ctx, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, empty.DaysActive)
}

func TestExchangeReciprocal(t *testing.T) {
	st := newStack(t, nil)
	ctx := context.Background()

	alice := testutil.CreateUser(t, st.db, "alice")
	bob := testutil.CreateUser(t, st.db, "bob")
	mallory := testutil.CreateUser(t, st.db, "mallory")

	_, err := st.songs.Upload(ctx, alice.ID, UploadInput{Title: "A", Artist: "x", Genres: []string{"pop"}})
	require.NoError(t, err)
	res, err := st.songs.Upload(ctx, bob.ID, UploadInput{Title: "B", Artist: "y", Genres: []string{"pop"}})
	require.NoError(t, err)
	require.True(t, res.Match.Matched())

	ex, recip, err := st.exchanges.Reciprocal(ctx, alice.ID, res.Match.Exchange.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Match.Exchange.ID, ex.ID)
	assert.Equal(t, res.Match.Reciprocal.ID, recip.ID)

	_, _, err = st.exchanges.Reciprocal(ctx, mallory.ID, res.Match.Exchange.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, _, err = st.exchanges.Reciprocal(ctx, alice.ID, uuid.New())
	assert.ErrorIs(t, err, ErrExchangeNotFound)
}
