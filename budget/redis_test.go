package budget

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedisTracker_Limits(t *testing.T) {
	tracker := NewRedisTracker(newTestRedis(t), 10)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		assert.True(t, tracker.CanProceed(ctx, "acme"), "call %d should be allowed", i)
		tracker.Record(ctx, "acme", "ListWallets")
	}
	assert.False(t, tracker.CanProceed(ctx, "acme"))

	// Tenants are isolated.
	assert.True(t, tracker.CanProceed(ctx, "globex"))
}

func TestRedisTracker_Usage(t *testing.T) {
	tracker := NewRedisTracker(newTestRedis(t), 100)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		tracker.Record(ctx, "acme", "CreateTransfer")
	}

	usage := tracker.Usage(ctx, "acme")
	assert.Equal(t, 25, usage.TotalCalls)
	assert.Equal(t, 75, usage.RemainingCalls)
	assert.InDelta(t, 25.0, usage.UsagePercentage, 0.01)
	assert.True(t, usage.NextResetAt.After(time.Now()))
}

func TestRedisTracker_Throttle(t *testing.T) {
	tracker := NewRedisTracker(newTestRedis(t), 100)
	ctx := context.Background()

	assert.Equal(t, time.Duration(0), tracker.ThrottleDelay(ctx, "acme"))

	for i := 0; i < 80; i++ {
		tracker.Record(ctx, "acme", "ListWallets")
	}
	assert.Equal(t, 3*time.Second, tracker.ThrottleDelay(ctx, "acme"))
}

func TestRedisTracker_SharedCounters(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb1 := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rdb2 := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb1.Close(); rdb2.Close() })

	// Two processes drawing from one quota.
	first := NewRedisTracker(rdb1, 10)
	second := NewRedisTracker(rdb2, 10)
	ctx := context.Background()

	for range 5 {
		first.Record(ctx, "acme", "ListWallets")
		second.Record(ctx, "acme", "ListWallets")
	}

	assert.False(t, first.CanProceed(ctx, "acme"))
	assert.False(t, second.CanProceed(ctx, "acme"))
}

func TestRedisTracker_FailOpen(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	tracker := NewRedisTracker(rdb, 10)
	ctx := context.Background()

	// With redis unreachable, calls proceed unthrottled.
	mr.Close()

	assert.True(t, tracker.CanProceed(ctx, "acme"))
	assert.Equal(t, time.Duration(0), tracker.ThrottleDelay(ctx, "acme"))
	tracker.Record(ctx, "acme", "ListWallets")
}

func TestRedisTracker_Reset(t *testing.T) {
	tracker := NewRedisTracker(newTestRedis(t), 10)
	ctx := context.Background()

	for range 10 {
		tracker.Record(ctx, "acme", "ListWallets")
	}
	require.False(t, tracker.CanProceed(ctx, "acme"))

	tracker.Reset(ctx)

	assert.True(t, tracker.CanProceed(ctx, "acme"))
	assert.Equal(t, 0, tracker.Usage(ctx, "acme").TotalCalls)
}

func TestRedisTracker_KeyExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	tracker := NewRedisTracker(rdb, 10)

	tracker.Record(context.Background(), "acme", "ListWallets")

	key := usageKey("acme", time.Now())
	require.True(t, mr.Exists(key))
	ttl := mr.TTL(key)
	assert.True(t, ttl > 0 && ttl <= 48*time.Hour, "ttl = %v", ttl)
}
