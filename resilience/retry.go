package resilience

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Retrier re-executes failed operations with exponential backoff. It is
// stateless apart from its normalized policy copy and safe for concurrent
// use.
type Retrier struct {
	name         string
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	base         float64
	jitter       bool
	statusCodes  map[int]struct{}
	categories   map[Category]struct{}
}

// NewRetrier builds a retry executor from the given policy. A nil policy
// yields DefaultRetryPolicy. The name labels logs and metrics.
func NewRetrier(name string, policy *RetryPolicy) *Retrier {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}

	r := &Retrier{
		name:         name,
		maxAttempts:  policy.MaxAttempts,
		initialDelay: policy.InitialDelay,
		maxDelay:     policy.MaxDelay,
		base:         policy.ExponentialBase,
		jitter:       policy.Jitter,
		statusCodes:  statusSet(policy.RetryableStatusCodes),
		categories:   categorySet(policy.RetryableCategories),
	}
	if r.maxAttempts < 1 {
		r.maxAttempts = 1
	}
	if r.initialDelay <= 0 {
		r.initialDelay = 1 * time.Second
	}
	if r.maxDelay <= 0 {
		r.maxDelay = 60 * time.Second
	}
	if r.base <= 0 {
		r.base = 2.0
	}
	return r
}

// Execute runs op until it succeeds, fails permanently or exhausts the
// attempt budget. On exhaustion the last error is returned unchanged so the
// caller sees the original classified failure.
func (r *Retrier) Execute(ctx context.Context, op Operation) (any, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		lastErr = err

		// A canceled or expired context stops the loop immediately.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}

		retryable, hint := r.classify(err, attempt)
		if !retryable {
			break
		}

		delay := r.delay(attempt, hint)
		retryAttempts.WithLabelValues(r.name, string(Classify(err).Category)).Inc()
		slog.Warn("Retrying failed call",
			"circuit", r.name,
			"attempt", attempt+1,
			"max_attempts", r.maxAttempts,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, lastErr
}

// classify decides whether err deserves another attempt and surfaces any
// server wait hint. The final allowed attempt is never retried.
func (r *Retrier) classify(err error, attempt int) (bool, time.Duration) {
	if attempt >= r.maxAttempts-1 {
		return false, 0
	}

	ce := Classify(err)

	var hint time.Duration
	if ce.Category == CategoryRateLimit && ce.RetryAfter > 0 {
		hint = min(ce.RetryAfter, r.maxDelay)
	}

	if ce.StatusCode != 0 {
		if _, ok := r.statusCodes[ce.StatusCode]; ok {
			return true, hint
		}
	}
	if _, ok := r.categories[ce.Category]; ok {
		return true, hint
	}
	return false, 0
}

// delay computes the pause before the next attempt. A rate-limit hint
// replaces the exponential schedule and is never jittered.
func (r *Retrier) delay(attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		return hint
	}

	d := float64(r.initialDelay) * math.Pow(r.base, float64(attempt))
	if d > float64(r.maxDelay) || d <= 0 {
		d = float64(r.maxDelay)
	}

	delay := time.Duration(d)
	if r.jitter {
		delay += time.Duration((rand.Float64()*2 - 1) * 0.1 * float64(delay))
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}
