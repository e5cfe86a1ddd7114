package services

import (
	"context"
	"testing"

	"github.com/soundly/backend/internal/logging"
	"github.com/soundly/backend/internal/testutil"
	jwtpkg "github.com/soundly/backend/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuth(t *testing.T) *AuthService {
	t.Helper()
	return NewAuthService(testutil.NewDB(t), nil, testConfig(), logging.Discard())
}

func TestRegisterAndLogin(t *testing.T) {
	auth := newAuth(t)
	ctx := context.Background()

	user, err := auth.Register(ctx, RegisterInput{
		Username: "alice",
		Email:    "Alice@Example.com",
		Password: "Secret123",
		Name:     "Alice",
		Country:  "Nepal",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEqual(t, "Secret123", user.Password)

	_, err = auth.Register(ctx, RegisterInput{Username: "alice", Email: "other@example.com", Password: "Secret123"})
	assert.ErrorIs(t, err, ErrUsernameTaken)
	_, err = auth.Register(ctx, RegisterInput{Username: "alice2", Email: "alice@example.com", Password: "Secret123"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	pair, got, err := auth.Login(ctx, "alice@example.com", "Secret123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.EqualValues(t, 900, pair.ExpiresIn)

	claims, err := auth.ValidateAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)

	_, _, err = auth.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = auth.Login(ctx, "nobody", "Secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshRotatesToken(t *testing.T) {
	auth := newAuth(t)
	ctx := context.Background()

	_, err := auth.Register(ctx, RegisterInput{Username: "bob", Email: "bob@example.com", Password: "Secret123"})
	require.NoError(t, err)
	pair, _, err := auth.Login(ctx, "bob", "Secret123")
	require.NoError(t, err)

	next, err := auth.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	_, err = auth.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = auth.Refresh(ctx, next.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims, err := jwtpkg.ValidateToken(next.AccessToken, testConfig().JWTSecret, jwtpkg.AccessToken)
	require.NoError(t, err)
	id, err := claims.UserUUID()
	require.NoError(t, err)

	require.NoError(t, auth.Logout(ctx, id, next.AccessToken))
	_, err = auth.Refresh(ctx, next.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
