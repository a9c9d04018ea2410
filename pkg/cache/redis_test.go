//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"lightning-gateway/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = logger.Init("development")
}

// setupTestCache connects to a local Redis on DB 1 to keep test keys away
// from real data.
func setupTestCache(t *testing.T) *Cache {
	t.Helper()

	c, err := New(context.Background(), Config{
		Host: "localhost",
		Port: "6379",
		DB:   1,
	})
	require.NoError(t, err, "Failed to connect to test Redis")

	t.Cleanup(func() {
		_ = c.client.FlushDB(context.Background()).Err()
		_ = c.Close()
	})
	return c
}

func TestCache_SetAndGet(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	err := c.Set(ctx, "test:key", "test-value", 0)
	require.NoError(t, err)

	result, err := c.Get(ctx, "test:key")
	require.NoError(t, err)
	assert.Equal(t, "test-value", result)
}

func TestCache_Get_MissingKey(t *testing.T) {
	c := setupTestCache(t)

	result, err := c.Get(context.Background(), "non:existent:key")
	require.NoError(t, err)
	assert.Equal(t, "", result)
}

func TestCache_SetWithExpiration(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	err := c.Set(ctx, "test:expiring", "will-expire", 1*time.Second)
	require.NoError(t, err)

	result, err := c.Get(ctx, "test:expiring")
	require.NoError(t, err)
	assert.Equal(t, "will-expire", result)

	time.Sleep(1100 * time.Millisecond)

	result, err = c.Get(ctx, "test:expiring")
	require.NoError(t, err)
	assert.Equal(t, "", result)
}

func TestCache_Ping(t *testing.T) {
	c := setupTestCache(t)
	assert.NoError(t, c.Ping(context.Background()))
}
