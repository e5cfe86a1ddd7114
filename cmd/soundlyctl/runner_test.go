package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/soundly/backend/internal/config"
	"github.com/soundly/backend/internal/logging"
	"github.com/soundly/backend/internal/matching"
	"github.com/soundly/backend/internal/models"
	"github.com/soundly/backend/internal/services"
	"github.com/soundly/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	out    *bytes.Buffer
	runner *Runner
	result matching.Result
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := testutil.NewDB(t)
	logger := logging.Discard()
	cfg := &config.Config{
		AdminUsername: "root",
		AdminPassword: "Admin1234",
		AdminEmail:    "root@example.com",
		BcryptCost:    bcrypt.MinCost,
	}

	ledger := matching.NewLedger(db)
	admin := services.NewAdminService(db, cfg, ledger, services.NewAuditService(db, logger), services.NewUserService(db, cfg), logger)
	admin.AttachActivityService(services.NewActivityService(db, logger))
	require.NoError(t, admin.CreateDefaultAdmin(ctx))

	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	engine := matching.NewEngine(db)
	_, err := engine.Park(ctx, alice.ID, testutil.CreateSong(t, db, alice.ID, "a", "jazz"))
	require.NoError(t, err)
	res, err := engine.AutomaticMatch(ctx, bob.ID, testutil.CreateSong(t, db, bob.ID, "b", "jazz"))
	require.NoError(t, err)
	require.True(t, res.Matched())

	out := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Admin: admin, Logger: logger, Output: out, DefaultAdmin: "root"})
	return &fixture{
		db:     db,
		out:    out,
		runner: runner,
		result: res,
	}
}

func (f *fixture) run(args ...string) error {
	f.out.Reset()
	// flags keep their parsed values, so every run gets a fresh tree
	app := &cli.Command{Name: "soundlyctl", Commands: f.runner.register()}
	return app.Run(context.Background(), append([]string{"soundlyctl"}, args...))
}

func TestExchangesCheck(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.run("exchanges", "check"))
	assert.Contains(t, f.out.String(), "consistent")

	dup := *f.result.Reciprocal
	dup.ID = uuid.Nil
	dup.CreatedAt = time.Now().Add(time.Minute)
	require.NoError(t, f.db.Create(&dup).Error)

	err := f.run("exchanges", "check")
	require.Error(t, err)
	assert.Contains(t, f.out.String(), "multiple reciprocals")
}

func TestExchangesDedup(t *testing.T) {
	f := newFixture(t)

	dup := *f.result.Exchange
	dup.ID = uuid.Nil
	dup.CreatedAt = time.Now().Add(time.Minute)
	require.NoError(t, f.db.Create(&dup).Error)

	require.NoError(t, f.run("exchanges", "dedup", "--dry-run"))
	assert.Contains(t, f.out.String(), "would remove 1 rows")
	assert.Len(t, testutil.Exchanges(t, f.db), 3)

	require.NoError(t, f.run("exchanges", "dedup"))
	assert.Contains(t, f.out.String(), dup.ID.String())
	assert.Len(t, testutil.Exchanges(t, f.db), 2)

	var audited int64
	require.NoError(t, f.db.Model(&models.AuditLog{}).Where("action = ?", services.ActionDedupExchanges).Count(&audited).Error)
	assert.EqualValues(t, 1, audited)

	require.NoError(t, f.run("exchanges", "check"))
}

func TestActivitiesDedup(t *testing.T) {
	f := newFixture(t)
	ex := f.result.Exchange
	feed := func(actor uuid.UUID, at time.Time) *models.Activity {
		a := &models.Activity{ActorID: actor, Type: models.ActivityTypeSongExchange, SongExchangeID: &ex.ID, CreatedAt: at}
		require.NoError(t, f.db.Create(a).Error)
		return a
	}
	now := time.Now()
	feed(ex.SenderID, now)
	feed(*ex.ReceiverID, now)
	repeat := feed(*ex.ReceiverID, now.Add(time.Minute))

	countFeed := func() int64 {
		var n int64
		require.NoError(t, f.db.Model(&models.Activity{}).Where("song_exchange_id = ?", ex.ID).Count(&n).Error)
		return n
	}

	require.NoError(t, f.run("activities", "dedup", "--dry-run"))
	assert.Contains(t, f.out.String(), "would remove 1 entries")
	assert.EqualValues(t, 3, countFeed())

	require.NoError(t, f.run("activities", "dedup"))
	assert.Contains(t, f.out.String(), repeat.ID.String())
	assert.EqualValues(t, 2, countFeed())

	require.NoError(t, f.run("activities", "dedup"))
	assert.Contains(t, f.out.String(), "0 exchanges with repeated activities")

	var audited int64
	require.NoError(t, f.db.Model(&models.AuditLog{}).Where("action = ?", services.ActionDedupActivities).Count(&audited).Error)
	assert.EqualValues(t, 2, audited)
}

func TestExchangesComplete(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.run("exchanges", "complete", "--id", f.result.Exchange.ID.String()))
	for _, ex := range testutil.Exchanges(t, f.db) {
		assert.Equal(t, models.ExchangeStatusCompleted, ex.Status)
	}

	assert.Error(t, f.run("exchanges", "complete", "--id", "not-a-uuid"))
	assert.Error(t, f.run("exchanges", "complete", "--id", f.result.Exchange.ID.String(), "--admin", "nobody"))
}

func TestUsersSetType(t *testing.T) {
	f := newFixture(t)
	var bob models.User
	require.NoError(t, f.db.First(&bob, "username = ?", "bob").Error)

	require.NoError(t, f.run("users", "set-type", "--id", bob.ID.String(), "--type", "premium"))
	require.NoError(t, f.db.First(&bob, "id = ?", bob.ID).Error)
	assert.Equal(t, models.UserTypePremium, bob.Type)

	assert.Error(t, f.run("users", "set-type", "--id", bob.ID.String(), "--type", "gold"))
}
