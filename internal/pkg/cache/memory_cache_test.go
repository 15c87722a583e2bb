package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCache()

	require.NoError(t, m.Set(ctx, GenerateFilePathKey("abc"), "documents/1.bin", 50*time.Millisecond))
	require.NoError(t, m.Set(ctx, GenerateFilePathKey("keep"), "documents/2.bin", 0))

	var got string
	require.NoError(t, m.Get(ctx, GenerateFilePathKey("abc"), &got))
	assert.Equal(t, "documents/1.bin", got)

	time.Sleep(100 * time.Millisecond)
	assert.ErrorIs(t, m.Get(ctx, GenerateFilePathKey("abc"), &got), ErrCacheMiss)
	require.NoError(t, m.Get(ctx, GenerateFilePathKey("keep"), &got))
	assert.Equal(t, "documents/2.bin", got)
}

func TestMemoryCacheSetNX(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCache()

	ok, err := m.SetNX(ctx, GenerateSweepLockKey(), 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.SetNX(ctx, GenerateSweepLockKey(), 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Del(ctx, GenerateSweepLockKey()))
	var v int
	assert.ErrorIs(t, m.Get(ctx, GenerateSweepLockKey(), &v), ErrCacheMiss)

	ok, err = m.SetNX(ctx, GenerateSweepLockKey(), 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheSetNXAfterExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCache()

	ok, err := m.SetNX(ctx, GenerateSweepLockKey(), 1, 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)
	ok, err = m.SetNX(ctx, GenerateSweepLockKey(), 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
