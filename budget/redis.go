package budget

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// usageKey holds one tenant's counter for one UTC day.
func usageKey(tenant string, day time.Time) string {
	return fmt.Sprintf("budget:%s:%s", tenant, day.UTC().Format("2006-01-02"))
}

// DialRedis connects to redis and verifies the connection.
func DialRedis(url, password string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if password != "" {
		opts.Password = password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return rdb, nil
}

// RedisTracker implements Tracker on shared redis counters so every process
// serving a tenant draws from one quota. Counters live in daily keys that
// expire on their own, and the quota resets at UTC midnight. Redis failures
// fail open: the call is allowed and a warning is logged.
type RedisTracker struct {
	rdb        *redis.Client
	dailyQuota int
}

// NewRedisTracker creates a tracker backed by the given redis client.
func NewRedisTracker(rdb *redis.Client, dailyQuota int) *RedisTracker {
	return &RedisTracker{rdb: rdb, dailyQuota: dailyQuota}
}

// Record counts one call against today's counter.
func (rt *RedisTracker) Record(ctx context.Context, tenant, operation string) {
	key := usageKey(tenant, time.Now())
	count, err := rt.rdb.Incr(ctx, key).Result()
	if err != nil {
		slog.Warn("Budget record failed, failing open", "tenant", tenant, "error", err)
		return
	}
	if count == 1 {
		// Keep finished days around briefly for dashboards.
		rt.rdb.Expire(ctx, key, 48*time.Hour)
	}
	budgetUsed.WithLabelValues(tenant).Set(float64(count))
}

// CanProceed checks whether the tenant still has quota left.
func (rt *RedisTracker) CanProceed(ctx context.Context, tenant string) bool {
	if rt.dailyQuota <= 0 {
		return true
	}
	count, ok := rt.count(ctx, tenant)
	if !ok {
		return true
	}
	return count < rt.dailyQuota
}

// ThrottleDelay returns how long to wait before the next call.
func (rt *RedisTracker) ThrottleDelay(ctx context.Context, tenant string) time.Duration {
	if rt.dailyQuota <= 0 {
		return 0
	}
	count, ok := rt.count(ctx, tenant)
	if !ok {
		return 0
	}

	percent := float64(count) / float64(rt.dailyQuota) * 100
	return throttleFor(percent, nextUTCMidnight(time.Now()))
}

// Usage returns usage statistics for a tenant.
func (rt *RedisTracker) Usage(ctx context.Context, tenant string) UsageStats {
	count, _ := rt.count(ctx, tenant)

	remaining := rt.dailyQuota - count
	if remaining < 0 {
		remaining = 0
	}

	percent := 0.0
	if rt.dailyQuota > 0 {
		percent = float64(count) / float64(rt.dailyQuota) * 100
	}

	return UsageStats{
		TotalCalls:      count,
		DailyQuota:      rt.dailyQuota,
		RemainingCalls:  remaining,
		UsagePercentage: percent,
		NextResetAt:     nextUTCMidnight(time.Now()),
	}
}

// Reset deletes every budget counter.
func (rt *RedisTracker) Reset(ctx context.Context) {
	iter := rt.rdb.Scan(ctx, 0, "budget:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := rt.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			slog.Warn("Budget reset failed", "key", iter.Val(), "error", err)
			return
		}
	}
	if err := iter.Err(); err != nil {
		slog.Warn("Budget reset scan failed", "error", err)
	}
}

// count reads today's counter. The second return is false when redis was
// unreachable and the caller should fail open.
func (rt *RedisTracker) count(ctx context.Context, tenant string) (int, bool) {
	val, err := rt.rdb.Get(ctx, usageKey(tenant, time.Now())).Result()
	if err == redis.Nil {
		return 0, true
	}
	if err != nil {
		slog.Warn("Budget read failed, failing open", "tenant", tenant, "error", err)
		return 0, false
	}

	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, false
	}
	return count, true
}

func nextUTCMidnight(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}
