package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestGenerateAndValidate(t *testing.T) {
	sub := Subject{UserID: uuid.New(), Username: "alice", IsAdmin: true}

	token, err := GenerateToken(sub, AccessToken, secret, time.Minute)
	require.NoError(t, err)

	claims, err := ValidateToken(token, secret, AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.True(t, claims.IsAdmin)
	assert.NotEmpty(t, claims.ID)

	id, err := claims.UserUUID()
	require.NoError(t, err)
	assert.Equal(t, sub.UserID, id)
}

func TestValidateTokenRejects(t *testing.T) {
	sub := Subject{UserID: uuid.New(), Username: "bob"}

	refresh, err := GenerateToken(sub, RefreshToken, secret, time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken(refresh, secret, AccessToken)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	_, err = ValidateToken(refresh, "other-secret", RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := GenerateToken(sub, AccessToken, secret, -time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken(expired, secret, AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ValidateToken("garbage", secret, AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokensAreUnique(t *testing.T) {
	sub := Subject{UserID: uuid.New()}
	a, err := GenerateToken(sub, RefreshToken, secret, time.Hour)
	require.NoError(t, err)
	b, err := GenerateToken(sub, RefreshToken, secret, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
