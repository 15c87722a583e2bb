package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("s3cret", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}

func TestTokenRoundTrip(t *testing.T) {
	tok, err := GenerateToken(42, "key", "go-tgdisk", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(tok, "key", "go-tgdisk")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)

	_, err = ParseToken(tok, "other-key", "go-tgdisk")
	assert.Error(t, err)

	_, err = ParseToken(tok, "key", "someone-else")
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	tok, err := GenerateToken(1, "key", "", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(tok, "key", "")
	assert.Error(t, err)
}
