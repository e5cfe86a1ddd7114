package services

import (
	"context"
	"testing"
	"time"

	"github.com/soundly/backend/internal/config"
	"github.com/soundly/backend/internal/logging"
	"github.com/soundly/backend/internal/matching"
	"github.com/soundly/backend/internal/spotify"
	"github.com/soundly/backend/internal/testutil"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:               "test-secret",
		JWTAccessTokenDuration:  15 * time.Minute,
		JWTRefreshTokenDuration: 24 * time.Hour,
		AdminUsername:           "admin",
		AdminPassword:           "Admin1234",
		AdminEmail:              "admin@example.com",
		BcryptCost:              bcrypt.MinCost,
		BasicDailyUploadLimit:   3,
		MatchDefaultMode:        "automatic",
	}
}

type fakeResolver struct {
	info *spotify.TrackInfo
	err  error
	urls []string
}

func (f *fakeResolver) Resolve(_ context.Context, url string) (*spotify.TrackInfo, error) {
	f.urls = append(f.urls, url)
	return f.info, f.err
}

type stack struct {
	db            *gorm.DB
	engine        *matching.Engine
	ledger        *matching.Ledger
	activities    *ActivityService
	notifications *NotificationService
	songs         *SongService
	exchanges     *ExchangeService
	users         *UserService
	audit         *AuditService
	admin         *AdminService
}

func newStack(t *testing.T, resolver TrackResolver) *stack {
	t.Helper()
	db := testutil.NewDB(t)
	logger := logging.Discard()
	cfg := testConfig()

	st := &stack{db: db}
	st.engine = matching.NewEngine(db, matching.WithLogger(logger))
	st.ledger = matching.NewLedger(db)
	st.activities = NewActivityService(db, logger)
	st.notifications = NewNotificationService(db, nil, logger)
	st.songs = NewSongService(db, resolver, st.engine, st.activities, st.notifications, matching.ModeAutomatic, logger)
	st.exchanges = NewExchangeService(db, st.ledger)
	st.users = NewUserService(db, cfg)
	st.audit = NewAuditService(db, logger)
	st.admin = NewAdminService(db, cfg, st.ledger, st.audit, st.users, logger)
	st.admin.AttachActivityService(st.activities)
	return st
}
