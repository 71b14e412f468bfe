package resilience

import "time"

// RetryPolicy defines retry behavior for guarded calls. A policy is treated
// as immutable once handed to a Retrier or Guard; build a new one instead of
// mutating a shared instance.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int

	// InitialDelay seeds the exponential backoff schedule.
	InitialDelay time.Duration

	// MaxDelay caps every computed delay, including server retry-after hints.
	MaxDelay time.Duration

	// ExponentialBase is the backoff multiplier between attempts.
	ExponentialBase float64

	// Jitter spreads each delay by up to ±10% to avoid thundering herds.
	Jitter bool

	// RetryableStatusCodes forces a retry for these HTTP statuses regardless
	// of category. Nil falls back to the defaults.
	RetryableStatusCodes []int

	// RetryableCategories overrides which categories are retried. Nil falls
	// back to the transient set.
	RetryableCategories []Category
}

// DefaultRetryPolicy returns the retry settings used when none are given.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:          3,
		InitialDelay:         1 * time.Second,
		MaxDelay:             60 * time.Second,
		ExponentialBase:      2.0,
		Jitter:               true,
		RetryableStatusCodes: append([]int(nil), defaultRetryableStatusCodes...),
	}
}

// BreakerPolicy defines circuit breaker behavior for one protected resource.
// Like RetryPolicy it is immutable once handed to a breaker.
type BreakerPolicy struct {
	// Name identifies the breaker in logs, metrics and stats.
	Name string

	// FailureThreshold is the number of counted failures since the circuit
	// last closed that opens it. Successes do not reset the count.
	FailureThreshold int

	// OpenTimeout is how long an open circuit rejects calls before letting a
	// probe through.
	OpenTimeout time.Duration

	// TripCategories lists the failure categories that count toward the
	// threshold. Nil falls back to the transient set.
	TripCategories []Category

	// HalfOpenMaxProbes caps concurrent trial calls while half-open.
	// Zero allows any number of probes.
	HalfOpenMaxProbes int
}

// DefaultBreakerPolicy returns the breaker settings used when none are given.
func DefaultBreakerPolicy(name string) *BreakerPolicy {
	return &BreakerPolicy{
		Name:             name,
		FailureThreshold: 5,
		OpenTimeout:      60 * time.Second,
	}
}

// transientCategories is the default set for both retrying and tripping.
var transientCategories = []Category{
	CategoryConnection,
	CategoryTimeout,
	CategoryRateLimit,
	CategoryServer,
}

var defaultRetryableStatusCodes = []int{429, 500, 502, 503, 504}

// categorySet materializes a category list for lookup. Nil means the
// transient defaults; an explicit empty list disables category matching.
func categorySet(categories []Category) map[Category]struct{} {
	if categories == nil {
		categories = transientCategories
	}
	set := make(map[Category]struct{}, len(categories))
	for _, c := range categories {
		set[c] = struct{}{}
	}
	return set
}

func statusSet(codes []int) map[int]struct{} {
	if codes == nil {
		codes = defaultRetryableStatusCodes
	}
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}
