package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// breakerState tracks the current state per circuit (0=closed, 1=open, 2=half_open)
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "custodian_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"circuit"},
	)

	// breakerTransitions tracks state transitions per circuit
	breakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custodian_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"circuit", "to"},
	)

	// breakerRejections tracks calls rejected without dispatch
	breakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custodian_breaker_rejections_total",
			Help: "Total number of calls rejected by an open circuit breaker",
		},
		[]string{"circuit"},
	)

	// retryAttempts tracks retried attempts per circuit and failure category
	retryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custodian_retry_attempts_total",
			Help: "Total number of retried call attempts",
		},
		[]string{"circuit", "category"},
	)
)
