package resilience

import "context"

// Operation is a single attempt against a guarded resource.
type Operation func(ctx context.Context) (any, error)

// Guard composes a retry executor around a circuit breaker. The retrier is
// the outer layer, so every attempt re-checks the breaker and an open
// circuit is observed as a retryable connection failure. Callers see one of
// three outcomes: the operation result, the original classified failure
// after retries, or a circuit-open rejection.
type Guard struct {
	name    string
	retrier *Retrier
	breaker *CircuitBreaker
}

// NewGuard builds a guard from the given policies. A nil retry policy runs
// each call exactly once; a nil breaker policy disables circuit breaking.
// The breaker inherits name when its policy does not set one.
func NewGuard(name string, retry *RetryPolicy, breaker *BreakerPolicy) *Guard {
	g := &Guard{name: name}
	if retry != nil {
		g.retrier = NewRetrier(name, retry)
	}
	if breaker != nil {
		if breaker.Name == "" {
			named := *breaker
			named.Name = name
			breaker = &named
		}
		g.breaker = NewCircuitBreaker(breaker)
	}
	return g
}

// NewGuardWithBreaker builds a guard around an existing breaker so several
// guards can share the state of one protected resource.
func NewGuardWithBreaker(name string, retry *RetryPolicy, breaker *CircuitBreaker) *Guard {
	g := &Guard{name: name, breaker: breaker}
	if retry != nil {
		g.retrier = NewRetrier(name, retry)
	}
	return g
}

// Name returns the guard identity used in logs and metrics.
func (g *Guard) Name() string {
	return g.name
}

// Breaker returns the underlying circuit breaker, or nil when breaking is
// disabled. Useful for stats dashboards and manual resets.
func (g *Guard) Breaker() *CircuitBreaker {
	return g.breaker
}

// Do runs op through the configured layers.
func (g *Guard) Do(ctx context.Context, op Operation) (any, error) {
	attempt := op
	if g.breaker != nil {
		attempt = func(ctx context.Context) (any, error) {
			return g.breaker.Execute(ctx, op)
		}
	}
	if g.retrier != nil {
		return g.retrier.Execute(ctx, attempt)
	}
	return attempt(ctx)
}

// Do runs op through g and returns its result with the concrete type
// preserved.
func Do[T any](ctx context.Context, g *Guard, op func(ctx context.Context) (T, error)) (T, error) {
	result, err := g.Do(ctx, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}
