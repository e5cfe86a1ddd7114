package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/soundly/backend/internal/config"
	"github.com/soundly/backend/internal/logging"
	"github.com/soundly/backend/internal/matching"
	"github.com/soundly/backend/internal/services"
	"github.com/soundly/backend/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router http.Handler
	svc    Services
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		Env:                     "development",
		JWTSecret:               "test-secret",
		JWTAccessTokenDuration:  15 * time.Minute,
		JWTRefreshTokenDuration: 24 * time.Hour,
		AdminUsername:           "admin",
		AdminPassword:           "Admin1234",
		AdminEmail:              "admin@example.com",
		AdminRateLimitActions:   10,
		AdminRateLimitWindow:    time.Hour,
		BasicDailyUploadLimit:   3,
		BcryptCost:              bcrypt.MinCost,
		RateLimitRequests:       1000,
		RateLimitDuration:       time.Minute,
		AllowedOrigins:          []string{"*"},
	}
	db := testutil.NewDB(t)
	logger := logging.Discard()

	engine := matching.NewEngine(db, matching.WithLogger(logger))
	ledger := matching.NewLedger(db)
	activities := services.NewActivityService(db, logger)
	notifications := services.NewNotificationService(db, nil, logger)
	users := services.NewUserService(db, cfg)
	audit := services.NewAuditService(db, logger)

	svc := Services{
		Auth:          services.NewAuthService(db, nil, cfg, logger),
		Users:         users,
		Songs:         services.NewSongService(db, nil, engine, activities, notifications, matching.ModeAutomatic, logger),
		Exchanges:     services.NewExchangeService(db, ledger),
		Activities:    activities,
		Notifications: notifications,
		Admin:         services.NewAdminService(db, cfg, ledger, audit, users, logger),
		Audit:         audit,
	}
	svc.Admin.AttachActivityService(activities)
	require.NoError(t, svc.Admin.CreateDefaultAdmin(context.Background()))

	return &testServer{router: NewRouter(cfg, nil, svc, logger), svc: svc}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	out := map[string]interface{}{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (s *testServer) signup(t *testing.T, username string) (string, string) {
	t.Helper()
	w, body := s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "Secret123",
		"name":     strings.ToUpper(username[:1]) + username[1:],
		"country":  "Germany",
		"city":     "Berlin",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := body["user"].(map[string]interface{})["id"].(string)
	return id, s.login(t, username, "Secret123")
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	w, body := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return body["access_token"].(string)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w, body := s.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestRegisterLoginProfile(t *testing.T) {
	s := newTestServer(t)
	_, token := s.signup(t, "alice")

	w, _ := s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "alice",
		"email":    "other@example.com",
		"password": "Secret123",
		"name":     "Alice",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "weak",
		"email":    "weak@example.com",
		"password": "alllowercase",
		"name":     "Weak",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "alice", "password": "Wrong1234"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body := s.do(t, http.MethodGet, "/api/v1/user/profile", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", body["username"])
	assert.EqualValues(t, 3, body["remaining_uploads"])

	w, body = s.do(t, http.MethodPut, "/api/v1/user/profile", token, gin.H{"profession": "DJ"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DJ", body["user"].(map[string]interface{})["profession"])

	w, _ = s.do(t, http.MethodGet, "/api/v1/user/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutRevokesRefresh(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "alice")

	w, body := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "alice", "password": "Secret123"})
	require.Equal(t, http.StatusOK, w.Code)
	access := body["access_token"].(string)
	refresh := body["refresh_token"].(string)

	w, _ = s.do(t, http.MethodPost, "/api/v1/auth/logout", access, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateSongMatchesAcrossUsers(t *testing.T) {
	s := newTestServer(t)
	aliceID, alice := s.signup(t, "alice")
	_, bob := s.signup(t, "bob")
	_, carol := s.signup(t, "carol")

	w, body := s.do(t, http.MethodPost, "/api/v1/songs", alice, gin.H{
		"title":  "Windowlicker",
		"artist": "Aphex Twin",
		"genres": []string{"IDM", "electronic"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, false, body["auto_matched"])
	assert.Equal(t, "Song imported successfully. No automatic match found, added to matching pool.", body["message"])

	w, body = s.do(t, http.MethodPost, "/api/v1/songs", bob, gin.H{
		"title":  "Teardrop",
		"artist": "Massive Attack",
		"genres": []string{"Electronic", "trip hop"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, true, body["auto_matched"])
	assert.Equal(t, "Song imported successfully", body["message"])
	matched := body["matched_with"].(map[string]interface{})
	assert.Equal(t, aliceID, matched["user"].(map[string]interface{})["id"])
	assert.Equal(t, "Windowlicker", matched["song"].(map[string]interface{})["title"])
	exchangeID := body["exchange_id"].(string)

	w, body = s.do(t, http.MethodPost, "/api/v1/songs", bob, gin.H{
		"title":  "Teardrop",
		"artist": "Massive Attack",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "You have already added this song", body["message"])

	w, body = s.do(t, http.MethodGet, "/api/v1/songs/received", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	received := body["received"].([]interface{})
	require.Len(t, received, 1)
	assert.Equal(t, "Teardrop", received[0].(map[string]interface{})["received_song"].(map[string]interface{})["title"])

	w, body = s.do(t, http.MethodGet, "/api/v1/exchanges/"+exchangeID+"/reciprocal", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, exchangeID, body["exchange"].(map[string]interface{})["id"])

	w, _ = s.do(t, http.MethodGet, "/api/v1/exchanges/"+exchangeID+"/reciprocal", carol, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = s.do(t, http.MethodGet, "/api/v1/notifications", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["unread_count"])

	w, body = s.do(t, http.MethodGet, "/api/v1/feed", carol, nil)
	require.Equal(t, http.StatusOK, w.Code)
	// two discoveries plus one entry per party for each exchange row
	assert.EqualValues(t, 6, body["pagination"].(map[string]interface{})["total"])
	activityID := body["activities"].([]interface{})[0].(map[string]interface{})["id"].(string)

	w, _ = s.do(t, http.MethodPost, "/api/v1/feed/"+activityID+"/reactions/"+url.PathEscape("🎸"), carol, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	w, _ = s.do(t, http.MethodPost, "/api/v1/feed/"+activityID+"/reactions/thumbsup", carol, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(t, http.MethodGet, "/api/v1/feed", carol, nil)
	require.Equal(t, http.StatusOK, w.Code)
	first := body["activities"].([]interface{})[0].(map[string]interface{})
	assert.EqualValues(t, 1, first["reactions"].(map[string]interface{})["🎸"])
	assert.Equal(t, []interface{}{"🎸"}, first["my_reactions"])

	w, body = s.do(t, http.MethodGet, "/api/v1/genre-distribution", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	genres := body["genres"].([]interface{})
	require.NotEmpty(t, genres)
	assert.Equal(t, "electronic", genres[0].(map[string]interface{})["genre"])
}

func TestCreateSongValidation(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signup(t, "alice")

	w, _ := s.do(t, http.MethodPost, "/api/v1/songs", alice, gin.H{"url": "https://example.com/track/1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/songs", alice, gin.H{"title": "Only title"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/songs", alice, gin.H{"title": "A", "artist": "B", "mode": "roulette"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadQuotaForBasicUsers(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signup(t, "alice")

	for i, title := range []string{"One", "Two", "Three"} {
		w, _ := s.do(t, http.MethodPost, "/api/v1/songs", alice, gin.H{"title": title, "artist": "Band"})
		require.Equal(t, http.StatusCreated, w.Code, "upload %d", i)
	}
	w, body := s.do(t, http.MethodPost, "/api/v1/songs", alice, gin.H{"title": "Four", "artist": "Band"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "upload_limit_exceeded", body["error"])
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signup(t, "alice")
	_, bob := s.signup(t, "bob")
	admin := s.login(t, "admin", "Admin1234")

	w, _ := s.do(t, http.MethodGet, "/api/v1/admin/overview", alice, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	s.do(t, http.MethodPost, "/api/v1/songs", alice, gin.H{"title": "A", "artist": "X", "genres": []string{"rock"}})
	_, body := s.do(t, http.MethodPost, "/api/v1/songs", bob, gin.H{"title": "B", "artist": "Y", "genres": []string{"rock"}})
	exchangeID := body["exchange_id"].(string)

	w, body = s.do(t, http.MethodGet, "/api/v1/admin/overview", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["matched"])
	assert.EqualValues(t, 0, body["pending"])

	w, body = s.do(t, http.MethodGet, "/api/v1/admin/exchanges/consistency", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["consistent"])

	w, body = s.do(t, http.MethodPost, "/api/v1/admin/exchanges/dedup?dry_run=true", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["dry_run"])
	assert.EqualValues(t, 0, body["groups"])

	w, _ = s.do(t, http.MethodPost, "/api/v1/admin/exchanges/"+exchangeID+"/complete", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodPost, "/api/v1/admin/exchanges/"+exchangeID+"/complete", admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = s.do(t, http.MethodPost, "/api/v1/admin/activities/dedup?dry_run=true", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["dry_run"])
	assert.Empty(t, body["removed"])

	w, body = s.do(t, http.MethodGet, "/api/v1/admin/audit/logs?action="+services.ActionCompleteExchange, admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["logs"], 1)
}

func TestFeedComments(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signup(t, "alice")
	_, bob := s.signup(t, "bob")

	w, _ := s.do(t, http.MethodPost, "/api/v1/songs", alice, gin.H{"title": "A", "artist": "X"})
	require.Equal(t, http.StatusCreated, w.Code)
	_, body := s.do(t, http.MethodGet, "/api/v1/feed", bob, nil)
	activityID := body["activities"].([]interface{})[0].(map[string]interface{})["id"].(string)
	commentsPath := "/api/v1/feed/" + activityID + "/comments"

	w, body = s.do(t, http.MethodPost, commentsPath, bob, gin.H{"text": " nice pick "})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "nice pick", body["text"])
	commentID := body["id"].(string)

	w, _ = s.do(t, http.MethodPost, commentsPath, bob, gin.H{"text": strings.Repeat("x", services.MaxCommentLength+1)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do(t, http.MethodPost, commentsPath, bob, gin.H{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do(t, http.MethodPost, "/api/v1/feed/"+uuid.NewString()+"/comments", bob, gin.H{"text": "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = s.do(t, http.MethodGet, commentsPath, alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])
	assert.Len(t, body["comments"], 1)

	w, _ = s.do(t, http.MethodDelete, "/api/v1/feed/comments/"+commentID, alice, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = s.do(t, http.MethodDelete, "/api/v1/feed/comments/"+commentID, bob, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodDelete, "/api/v1/feed/comments/"+commentID, bob, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestToggleNotifications(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signup(t, "alice")

	_, body := s.do(t, http.MethodGet, "/api/v1/user/profile", alice, nil)
	assert.Equal(t, true, body["notifications_enabled"])

	w, body := s.do(t, http.MethodPost, "/api/v1/user/notifications/toggle", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["notifications_enabled"])

	_, body = s.do(t, http.MethodGet, "/api/v1/user/profile", alice, nil)
	assert.Equal(t, false, body["notifications_enabled"])
}
