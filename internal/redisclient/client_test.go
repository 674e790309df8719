package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb), mr
}

func TestLock_ExclusiveUntilReleased(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	token, ok, err := c.AcquireLock(ctx, "reconcile:TXN-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	other, ok, err := c.AcquireLock(ctx, "reconcile:TXN-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, other)

	require.NoError(t, c.ReleaseLock(ctx, "reconcile:TXN-1", token))

	_, ok, err = c.AcquireLock(ctx, "reconcile:TXN-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_ExpiredHolderCannotReleaseSuccessor(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	stale, ok, err := c.AcquireLock(ctx, "event-lifecycle-scheduler", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	current, ok, err := c.AcquireLock(ctx, "event-lifecycle-scheduler", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// the first holder finishes late and releases with its old token
	require.NoError(t, c.ReleaseLock(ctx, "event-lifecycle-scheduler", stale))

	held, err := mr.Get("lock:event-lifecycle-scheduler")
	require.NoError(t, err)
	assert.Equal(t, current, held)

	_, ok, err = c.AcquireLock(ctx, "event-lifecycle-scheduler", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIdempotencyKey_FirstWriterWins(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	first, err := c.SetIdempotencyKey(ctx, "stripe-event:evt_1", "checkout.session.completed", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = c.SetIdempotencyKey(ctx, "stripe-event:evt_1", "checkout.session.completed", time.Hour)
	require.NoError(t, err)
	assert.False(t, first)

	require.NoError(t, c.DeleteIdempotencyKey(ctx, "stripe-event:evt_1"))

	first, err = c.SetIdempotencyKey(ctx, "stripe-event:evt_1", "checkout.session.completed", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)
}
