package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func succeedOp(ctx context.Context) (any, error) {
	return "ok", nil
}

func failOp(category Category) Operation {
	return func(ctx context.Context) (any, error) {
		return nil, &Error{Category: category, Message: "failure"}
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(&BreakerPolicy{Name: "api", FailureThreshold: 3, OpenTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), failOp(CategoryServer))
		if cb.State() != StateClosed {
			t.Fatalf("Breaker opened after %d failures", i+1)
		}
	}

	cb.Execute(context.Background(), failOp(CategoryServer))
	if cb.State() != StateOpen {
		t.Error("Breaker should open at the failure threshold")
	}
	if got := cb.Stats().FailureCount; got != 3 {
		t.Errorf("FailureCount = %d, want 3", got)
	}
}

func TestBreaker_RejectsWhileOpen(t *testing.T) {
	cb := NewCircuitBreaker(&BreakerPolicy{Name: "api", FailureThreshold: 1, OpenTimeout: time.Minute})
	cb.Execute(context.Background(), failOp(CategoryConnection))

	calls := 0
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (any, error) {
		calls++
		return "ok", nil
	})

	if calls != 0 {
		t.Error("Open breaker must not invoke the operation")
	}

	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("Expected a classified error, got %v", err)
	}
	if ce.Code != CodeCircuitOpen {
		t.Errorf("code = %s, want %s", ce.Code, CodeCircuitOpen)
	}
	if ce.Category != CategoryConnection {
		t.Errorf("category = %s, want %s", ce.Category, CategoryConnection)
	}
	if !IsCircuitOpen(err) {
		t.Error("IsCircuitOpen should detect the rejection")
	}

	if got := cb.Stats().Rejections; got != 1 {
		t.Errorf("Rejections = %d, want 1", got)
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(&BreakerPolicy{Name: "api", FailureThreshold: 2, OpenTimeout: 30 * time.Second})

	now := time.Unix(1700000000, 0)
	cb.now = func() time.Time { return now }

	cb.Execute(context.Background(), failOp(CategoryTimeout))
	cb.Execute(context.Background(), failOp(CategoryTimeout))
	if cb.State() != StateOpen {
		t.Fatal("Breaker should be open after reaching the threshold")
	}

	// Still rejecting just before the open timeout elapses.
	now = now.Add(29 * time.Second)
	if _, err := cb.Execute(context.Background(), succeedOp); !IsCircuitOpen(err) {
		t.Errorf("Expected rejection before the open timeout, got %v", err)
	}

	// Once the timeout elapses the next call probes, and success closes.
	now = now.Add(2 * time.Second)
	calls := 0
	result, err := cb.Execute(context.Background(), func(ctx context.Context) (any, error) {
		calls++
		return "pong", nil
	})
	if err != nil {
		t.Fatalf("Probe returned error: %v", err)
	}
	if result != "pong" {
		t.Errorf("result = %v, want pong", result)
	}
	if calls != 1 {
		t.Errorf("Probe invocations = %d, want 1", calls)
	}

	stats := cb.Stats()
	if stats.State != StateClosed {
		t.Errorf("State = %v, want closed", stats.State)
	}
	if stats.FailureCount != 0 {
		t.Errorf("FailureCount = %d, want 0 after recovery", stats.FailureCount)
	}

	// Open, half-open, closed: one log entry per transition.
	if len(stats.Transitions) != 3 {
		t.Fatalf("Transitions = %d entries, want 3", len(stats.Transitions))
	}
	if stats.Transitions[0].To != StateOpen ||
		stats.Transitions[1].To != StateHalfOpen ||
		stats.Transitions[2].To != StateClosed {
		t.Errorf("Unexpected transition sequence: %+v", stats.Transitions)
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(&BreakerPolicy{Name: "api", FailureThreshold: 1, OpenTimeout: 10 * time.Second})

	now := time.Unix(1700000000, 0)
	cb.now = func() time.Time { return now }

	cb.Execute(context.Background(), failOp(CategoryServer))
	if cb.State() != StateOpen {
		t.Fatal("Breaker should be open")
	}

	now = now.Add(11 * time.Second)
	cb.Execute(context.Background(), failOp(CategoryServer))

	if cb.State() != StateOpen {
		t.Error("Failed probe should reopen the breaker")
	}
	if got := cb.Stats().FailureCount; got != 2 {
		t.Errorf("FailureCount = %d, want 2", got)
	}
}

func TestBreaker_PermanentFailuresDoNotCount(t *testing.T) {
	cb := NewCircuitBreaker(&BreakerPolicy{Name: "api", FailureThreshold: 2, OpenTimeout: time.Minute})

	permanent := &Error{Category: CategoryValidation, StatusCode: 422, Message: "bad"}
	for i := 0; i < 5; i++ {
		_, err := cb.Execute(context.Background(), func(ctx context.Context) (any, error) {
			return nil, permanent
		})
		if err != permanent {
			t.Fatalf("Expected the original error back, got %v", err)
		}
	}

	if cb.State() != StateClosed {
		t.Error("Permanent failures must not open the breaker")
	}
	if got := cb.Stats().FailureCount; got != 0 {
		t.Errorf("FailureCount = %d, want 0", got)
	}
}

func TestBreaker_SuccessDoesNotResetCount(t *testing.T) {
	cb := NewCircuitBreaker(&BreakerPolicy{Name: "api", FailureThreshold: 3, OpenTimeout: time.Minute})

	cb.Execute(context.Background(), failOp(CategoryServer))
	cb.Execute(context.Background(), failOp(CategoryServer))
	cb.Execute(context.Background(), succeedOp)
	cb.Execute(context.Background(), failOp(CategoryServer))

	// The count only clears on entering closed, not on every success.
	if cb.State() != StateOpen {
		t.Error("Third counted failure should open the breaker")
	}
}

func TestBreaker_CustomTripCategories(t *testing.T) {
	cb := NewCircuitBreaker(&BreakerPolicy{
		Name:             "api",
		FailureThreshold: 1,
		OpenTimeout:      time.Minute,
		TripCategories:   []Category{CategoryServer},
	})

	cb.Execute(context.Background(), failOp(CategoryTimeout))
	if cb.State() != StateClosed {
		t.Error("Timeout should not trip a server-only breaker")
	}

	cb.Execute(context.Background(), failOp(CategoryServer))
	if cb.State() != StateOpen {
		t.Error("Server failure should trip the breaker")
	}
}

func TestBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(&BreakerPolicy{Name: "api", FailureThreshold: 1, OpenTimeout: time.Hour})

	cb.Execute(context.Background(), failOp(CategoryConnection))
	if cb.State() != StateOpen {
		t.Fatal("Breaker should be open")
	}

	cb.Reset()

	if cb.State() != StateClosed {
		t.Error("Reset should force the breaker closed")
	}
	stats := cb.Stats()
	if stats.FailureCount != 0 {
		t.Errorf("FailureCount = %d, want 0 after reset", stats.FailureCount)
	}
	if last := stats.Transitions[len(stats.Transitions)-1]; last.To != StateClosed {
		t.Errorf("Last transition = %v, want closed", last.To)
	}

	calls := 0
	cb.Execute(context.Background(), func(ctx context.Context) (any, error) {
		calls++
		return "ok", nil
	})
	if calls != 1 {
		t.Error("Calls should pass through after reset")
	}
}

func TestBreaker_HalfOpenProbeLimit(t *testing.T) {
	cb := NewCircuitBreaker(&BreakerPolicy{
		Name:              "api",
		FailureThreshold:  1,
		OpenTimeout:       time.Second,
		HalfOpenMaxProbes: 1,
	})

	now := time.Unix(1700000000, 0)
	cb.now = func() time.Time { return now }

	cb.Execute(context.Background(), failOp(CategoryServer))
	now = now.Add(2 * time.Second)

	entered := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cb.Execute(context.Background(), func(ctx context.Context) (any, error) {
			close(entered)
			<-release
			return "ok", nil
		})
	}()

	// While the first probe is in flight, further calls are rejected.
	<-entered
	_, err := cb.Execute(context.Background(), succeedOp)
	var ce *Error
	if !errors.As(err, &ce) || ce.Code != CodeHalfOpenLimit {
		t.Errorf("Expected a half-open probe rejection, got %v", err)
	}

	close(release)
	wg.Wait()

	if cb.State() != StateClosed {
		t.Error("Successful probe should close the breaker")
	}
}

func TestBreaker_TransitionLogBounded(t *testing.T) {
	cb := NewCircuitBreaker(&BreakerPolicy{Name: "api", FailureThreshold: 1, OpenTimeout: time.Second})

	now := time.Unix(1700000000, 0)
	cb.now = func() time.Time { return now }

	// Each cycle logs open, half-open and closed.
	for i := 0; i < 100; i++ {
		cb.Execute(context.Background(), failOp(CategoryServer))
		now = now.Add(2 * time.Second)
		cb.Execute(context.Background(), succeedOp)
	}

	if got := len(cb.Stats().Transitions); got != transitionLogSize {
		t.Errorf("Transition log holds %d entries, want %d", got, transitionLogSize)
	}
}

func TestBreaker_Concurrency(t *testing.T) {
	cb := NewCircuitBreaker(DefaultBreakerPolicy("api"))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cb.Execute(context.Background(), succeedOp)
			cb.Stats()
			cb.State()
		}()
	}
	wg.Wait()

	if got := cb.Stats().SuccessCount; got != 100 {
		t.Errorf("SuccessCount = %d, want 100", got)
	}
}
