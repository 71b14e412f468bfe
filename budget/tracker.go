// Package budget tracks per-tenant API quota and applies local rate
// smoothing.
//
// This package contains:
//   - Tracker: interface for quota accounting
//   - MemoryTracker: in-process tracker with midnight reset
//   - RedisTracker: shared tracker backed by redis counters
//   - Limiter: token bucket smoothing for outbound requests
package budget

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// budgetUsed tracks calls recorded against each tenant's daily quota
var budgetUsed = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "custodian_budget_used",
		Help: "Calls recorded against the tenant's daily quota",
	},
	[]string{"tenant"},
)

// UsageStats holds quota usage for one tenant.
type UsageStats struct {
	TotalCalls      int
	CallsThisHour   int
	DailyQuota      int
	RemainingCalls  int
	UsagePercentage float64
	NextResetAt     time.Time
}

// Tracker accounts outbound calls against a per-tenant daily quota. The
// throttle delay grows as the quota fills so callers slow down before they
// hit the hard limit.
type Tracker interface {
	Record(ctx context.Context, tenant, operation string)
	CanProceed(ctx context.Context, tenant string) bool
	ThrottleDelay(ctx context.Context, tenant string) time.Duration
	Usage(ctx context.Context, tenant string) UsageStats
	Reset(ctx context.Context)
}

type tenantBudget struct {
	totalCalls     int
	callsThisHour  int
	hourStartTime  time.Time
	operationCalls map[string]int
}

// MemoryTracker implements Tracker in process. Counters reset at local
// midnight. A daily quota of zero disables enforcement.
type MemoryTracker struct {
	mu          sync.RWMutex
	tenantUsage map[string]*tenantBudget
	dailyQuota  int
	resetTime   time.Time
}

// NewMemoryTracker creates a tracker where every tenant gets dailyQuota
// calls per day.
func NewMemoryTracker(dailyQuota int) *MemoryTracker {
	return &MemoryTracker{
		tenantUsage: make(map[string]*tenantBudget),
		dailyQuota:  dailyQuota,
		resetTime:   nextMidnight(time.Now()),
	}
}

// Record counts one call for quota tracking.
func (mt *MemoryTracker) Record(_ context.Context, tenant, operation string) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if time.Now().After(mt.resetTime) {
		mt.resetLocked()
	}

	budget := mt.tenant(tenant)
	if time.Since(budget.hourStartTime) >= time.Hour {
		budget.callsThisHour = 0
		budget.hourStartTime = time.Now()
	}

	budget.totalCalls++
	budget.callsThisHour++
	budget.operationCalls[operation]++
	budgetUsed.WithLabelValues(tenant).Set(float64(budget.totalCalls))
}

// CanProceed checks whether the tenant still has quota left.
func (mt *MemoryTracker) CanProceed(_ context.Context, tenant string) bool {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	if mt.dailyQuota <= 0 {
		return true
	}
	budget, ok := mt.tenantUsage[tenant]
	if !ok {
		return true
	}
	return budget.totalCalls < mt.dailyQuota
}

// ThrottleDelay returns how long to wait before the next call.
func (mt *MemoryTracker) ThrottleDelay(_ context.Context, tenant string) time.Duration {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	if mt.dailyQuota <= 0 {
		return 0
	}
	budget, ok := mt.tenantUsage[tenant]
	if !ok {
		return 0
	}

	percent := float64(budget.totalCalls) / float64(mt.dailyQuota) * 100
	return throttleFor(percent, mt.resetTime)
}

// Usage returns usage statistics for a tenant.
func (mt *MemoryTracker) Usage(_ context.Context, tenant string) UsageStats {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	budget, ok := mt.tenantUsage[tenant]
	if !ok {
		return UsageStats{
			DailyQuota:     mt.dailyQuota,
			RemainingCalls: mt.dailyQuota,
			NextResetAt:    mt.resetTime,
		}
	}

	remaining := mt.dailyQuota - budget.totalCalls
	if remaining < 0 {
		remaining = 0
	}

	percent := 0.0
	if mt.dailyQuota > 0 {
		percent = float64(budget.totalCalls) / float64(mt.dailyQuota) * 100
	}

	return UsageStats{
		TotalCalls:      budget.totalCalls,
		CallsThisHour:   budget.callsThisHour,
		DailyQuota:      mt.dailyQuota,
		RemainingCalls:  remaining,
		UsagePercentage: percent,
		NextResetAt:     mt.resetTime,
	}
}

// Reset clears all usage counters.
func (mt *MemoryTracker) Reset(_ context.Context) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.resetLocked()
}

// OperationCalls returns the per-operation call counts for a tenant.
func (mt *MemoryTracker) OperationCalls(tenant string) map[string]int {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	budget, ok := mt.tenantUsage[tenant]
	if !ok {
		return nil
	}
	calls := make(map[string]int, len(budget.operationCalls))
	for op, n := range budget.operationCalls {
		calls[op] = n
	}
	return calls
}

// tenant returns the budget for a tenant, creating it on first use.
// Callers must hold mt.mu.
func (mt *MemoryTracker) tenant(name string) *tenantBudget {
	budget, ok := mt.tenantUsage[name]
	if !ok {
		budget = &tenantBudget{
			hourStartTime:  time.Now(),
			operationCalls: make(map[string]int),
		}
		mt.tenantUsage[name] = budget
	}
	return budget
}

func (mt *MemoryTracker) resetLocked() {
	for tenant, budget := range mt.tenantUsage {
		budget.totalCalls = 0
		budget.callsThisHour = 0
		budget.hourStartTime = time.Now()
		budget.operationCalls = make(map[string]int)
		budgetUsed.WithLabelValues(tenant).Set(0)
	}
	mt.resetTime = nextMidnight(time.Now())
}

// throttleFor maps quota usage to a pre-call delay. Past the quota the
// caller waits for the reset.
func throttleFor(percent float64, resetAt time.Time) time.Duration {
	switch {
	case percent < 50:
		return 0
	case percent < 70:
		return 1 * time.Second
	case percent < 90:
		return 3 * time.Second
	case percent < 100:
		return 10 * time.Second
	default:
		return time.Until(resetAt)
	}
}

func nextMidnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
}
