package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepwise/prepwise-backend/internal/config"
)

func testAuthService(expiry time.Duration) *AuthService {
	return NewAuthService(&config.Config{
		JWTSecret:  "test-secret",
		JWTExpiry:  expiry,
		BcryptCost: 4, // min cost keeps the test fast
	}, nil)
}

func TestTokenRoundTrip(t *testing.T) {
	s := testAuthService(time.Hour)

	token, jti, err := s.GenerateToken(17)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotEmpty(t, jti)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, 17, claims.UserID)
	assert.Equal(t, jti, claims.ID)
	assert.Equal(t, "17", claims.Subject)
}

func TestExpiredTokenRejected(t *testing.T) {
	s := testAuthService(-time.Minute)

	token, _, err := s.GenerateToken(17)
	require.NoError(t, err)

	_, err = s.ValidateToken(token)
	assert.Error(t, err)
}

func TestTamperedTokenRejected(t *testing.T) {
	s := testAuthService(time.Hour)
	other := testAuthService(time.Hour)
	other.cfg.JWTSecret = "different-secret"

	token, _, err := other.GenerateToken(17)
	require.NoError(t, err)

	_, err = s.ValidateToken(token)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	s := testAuthService(time.Hour)

	hash, err := s.HashPassword("hunter2-but-longer")
	require.NoError(t, err)
	require.NotEqual(t, "hunter2-but-longer", hash)

	assert.NoError(t, s.CheckPassword(hash, "hunter2-but-longer"))
	assert.ErrorIs(t, s.CheckPassword(hash, "wrong"), ErrInvalidCredentials)
}
