// Package resilience guards outbound calls to the Custodian API with
// retries, exponential backoff and named circuit breakers.
//
// A Guard composes the two layers, retry outside and breaker inside, so
// every attempt re-checks the circuit. Construct one Guard per remote
// resource and run every call through it. Failures flow through the package
// as classified *Error values; use Classify, IsRetryable and IsCircuitOpen
// to inspect them.
package resilience
