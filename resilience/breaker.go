package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the position of a circuit breaker in its lifecycle.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Transition records a single state change.
type Transition struct {
	At time.Time
	To State
}

// BreakerStats is a point-in-time snapshot of a breaker.
type BreakerStats struct {
	Name            string
	State           State
	FailureCount    int
	SuccessCount    int64
	Rejections      int64
	LastFailureTime time.Time
	LastSuccessTime time.Time
	Transitions     []Transition
}

// transitionLogSize bounds the transition history kept per breaker.
const transitionLogSize = 128

// CircuitBreaker guards one remote resource. It starts closed, opens once
// FailureThreshold counted failures accumulate, rejects calls while open,
// and lets probes through half-open once OpenTimeout has elapsed since the
// last failure. All methods are safe for concurrent use.
type CircuitBreaker struct {
	name              string
	failureThreshold  int
	openTimeout       time.Duration
	tripCategories    map[Category]struct{}
	halfOpenMaxProbes int

	mu           sync.Mutex
	state        State
	failureCount int
	successCount int64
	rejections   int64
	lastFailure  time.Time
	lastSuccess  time.Time
	probes       int
	transitions  []Transition

	now func() time.Time
}

// NewCircuitBreaker creates a closed breaker from the given policy. A nil
// policy yields the defaults with an empty name.
func NewCircuitBreaker(policy *BreakerPolicy) *CircuitBreaker {
	if policy == nil {
		policy = DefaultBreakerPolicy("")
	}
	threshold := policy.FailureThreshold
	if threshold < 1 {
		threshold = 1
	}
	timeout := policy.OpenTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	cb := &CircuitBreaker{
		name:              policy.Name,
		failureThreshold:  threshold,
		openTimeout:       timeout,
		tripCategories:    categorySet(policy.TripCategories),
		halfOpenMaxProbes: policy.HalfOpenMaxProbes,
		now:               time.Now,
	}
	breakerState.WithLabelValues(cb.name).Set(float64(StateClosed))
	return cb
}

// Name returns the breaker identity.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs op if the breaker admits the call and records the outcome.
// While open it rejects immediately with a CIRCUIT_BREAKER_OPEN error and
// never invokes op.
func (cb *CircuitBreaker) Execute(ctx context.Context, op Operation) (any, error) {
	if err := cb.admit(); err != nil {
		return nil, err
	}

	result, err := op(ctx)
	if err != nil {
		cb.onFailure(err)
		return nil, err
	}

	cb.onSuccess()
	return result, nil
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot of the breaker counters and transition history.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	transitions := make([]Transition, len(cb.transitions))
	copy(transitions, cb.transitions)

	return BreakerStats{
		Name:            cb.name,
		State:           cb.state,
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		Rejections:      cb.rejections,
		LastFailureTime: cb.lastFailure,
		LastSuccessTime: cb.lastSuccess,
		Transitions:     transitions,
	}
}

// Reset forces the breaker closed and clears the failure count. Operators
// use this to recover manually instead of waiting out the open timeout.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateClosed {
		cb.transitionLocked(StateClosed)
	}
	cb.failureCount = 0
	cb.probes = 0
	slog.Info("Circuit breaker reset", "circuit", cb.name)
}

// admit decides whether a call may proceed, moving an expired open breaker
// to half-open first.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailure) < cb.openTimeout {
			cb.rejections++
			breakerRejections.WithLabelValues(cb.name).Inc()
			return &Error{
				Category: CategoryConnection,
				Code:     CodeCircuitOpen,
				Message:  fmt.Sprintf("circuit breaker %q is open", cb.name),
			}
		}
		// Timeout elapsed, this call becomes the first probe.
		cb.transitionLocked(StateHalfOpen)
	}

	if cb.state == StateHalfOpen {
		if cb.halfOpenMaxProbes > 0 && cb.probes >= cb.halfOpenMaxProbes {
			cb.rejections++
			breakerRejections.WithLabelValues(cb.name).Inc()
			return &Error{
				Category: CategoryConnection,
				Code:     CodeHalfOpenLimit,
				Message:  fmt.Sprintf("circuit breaker %q is half-open and at its probe limit", cb.name),
			}
		}
		cb.probes++
	}

	return nil
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successCount++
	cb.lastSuccess = cb.now()

	// A successful probe closes the circuit and clears the count. A success
	// while closed leaves the failure count alone.
	if cb.state == StateHalfOpen {
		cb.transitionLocked(StateClosed)
		cb.failureCount = 0
	}
}

func (cb *CircuitBreaker) onFailure(err error) {
	_, counts := cb.tripCategories[Classify(err).Category]

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && cb.probes > 0 {
		cb.probes--
	}
	if !counts {
		return
	}

	cb.failureCount++
	cb.lastFailure = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.failureCount >= cb.failureThreshold {
			cb.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		cb.transitionLocked(StateOpen)
	}
}

// transitionLocked moves the breaker to a new state, appends to the bounded
// transition log and updates metrics. Callers must hold cb.mu.
func (cb *CircuitBreaker) transitionLocked(to State) {
	from := cb.state
	cb.state = to
	cb.probes = 0

	cb.transitions = append(cb.transitions, Transition{At: cb.now(), To: to})
	if len(cb.transitions) > transitionLogSize {
		cb.transitions = cb.transitions[len(cb.transitions)-transitionLogSize:]
	}

	breakerState.WithLabelValues(cb.name).Set(float64(to))
	breakerTransitions.WithLabelValues(cb.name, to.String()).Inc()
	slog.Info("Circuit breaker state changed",
		"circuit", cb.name,
		"from", from.String(),
		"to", to.String())
}
