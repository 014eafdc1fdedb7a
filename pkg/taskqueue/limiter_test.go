package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLimiter_SpacesExecutions(t *testing.T) {
	limiter := NewLocalLimiter()
	ctx := context.Background()

	started := time.Now()

	for range 3 {
		require.NoError(t, limiter.Wait(ctx, "importer.publish_resource", 20))
	}

	// Three admissions at 20/s need at least two 50ms intervals.
	assert.GreaterOrEqual(t, time.Since(started), 90*time.Millisecond)
}

func TestLocalLimiter_TasksAreIndependent(t *testing.T) {
	limiter := NewLocalLimiter()
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx, "a", 1))

	started := time.Now()
	require.NoError(t, limiter.Wait(ctx, "b", 1))
	assert.Less(t, time.Since(started), 100*time.Millisecond)
}

func TestLocalLimiter_Disabled(t *testing.T) {
	limiter := NewLocalLimiter()

	for range 100 {
		require.NoError(t, limiter.Wait(context.Background(), "a", 0))
	}
}

func TestLocalLimiter_ContextCancelled(t *testing.T) {
	limiter := NewLocalLimiter()
	require.NoError(t, limiter.Wait(context.Background(), "a", 0.5))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, limiter.Wait(ctx, "a", 0.5), context.DeadlineExceeded)
}

func TestRedisLimiter(t *testing.T) {
	client := setupRedis(t)
	limiter := NewRedisLimiter(client)
	ctx := context.Background()

	for range 2 {
		require.NoError(t, limiter.Wait(ctx, "importer.copy_raster_file", 2))
	}

	waitCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	started := time.Now()
	require.NoError(t, limiter.Wait(waitCtx, "importer.copy_raster_file", 2))
	assert.Greater(t, time.Since(started), time.Duration(0))

	assert.NoError(t, limiter.Wait(ctx, "disabled", 0))
}
