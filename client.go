// Package custodian is a Go client for the Custodian custody API.
// Every call runs through a resilience.Guard, so transient failures are
// retried with exponential backoff behind a named circuit breaker, and
// callers get back classified *resilience.Error values they can inspect.
package custodian

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/custodian/budget"
	"github.com/vietddude/custodian/resilience"
)

// Version is the client library version, sent in the User-Agent header.
const Version = "0.3.0"

const (
	defaultBaseURL = "https://api.custodian.io/v1"
	defaultTimeout = 30 * time.Second
)

// Config holds the settings for a Client.
type Config struct {
	// BaseURL is the API root. Defaults to the production endpoint.
	BaseURL string
	// APIKey authenticates the client. Required.
	APIKey string
	// Tenant scopes every call to one tenant. Required.
	Tenant string

	// Retry and Breaker tune the fault-tolerance layer. Nil fields fall
	// back to the package defaults.
	Retry   *resilience.RetryPolicy
	Breaker *resilience.BreakerPolicy
	// Guard overrides Retry and Breaker when set, for sharing one breaker
	// across several clients.
	Guard *resilience.Guard

	// Budget tracks daily quota usage per tenant. Optional.
	Budget budget.Tracker
	// Limiter smooths the outbound request rate. Optional.
	Limiter *budget.Limiter

	// HTTPClient replaces the default transport when set.
	HTTPClient *http.Client
	// Timeout bounds each HTTP request. Defaults to 30s. Ignored when
	// HTTPClient is set.
	Timeout time.Duration
}

// Client talks to the Custodian API on behalf of one tenant.
type Client struct {
	baseURL    string
	apiKey     string
	tenant     string
	httpClient *http.Client
	guard      *resilience.Guard
	budget     budget.Tracker
	limiter    *budget.Limiter
}

// New creates a Client from cfg.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Tenant == "" {
		return nil, fmt.Errorf("tenant is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	guard := cfg.Guard
	if guard == nil {
		retry := cfg.Retry
		if retry == nil {
			retry = resilience.DefaultRetryPolicy()
		}
		breaker := cfg.Breaker
		if breaker == nil {
			breaker = resilience.DefaultBreakerPolicy("custodian-api")
		}
		name := breaker.Name
		if name == "" {
			name = "custodian-api"
		}
		guard = resilience.NewGuard(name, retry, breaker)
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		tenant:     cfg.Tenant,
		httpClient: httpClient,
		guard:      guard,
		budget:     cfg.Budget,
		limiter:    cfg.Limiter,
	}, nil
}

// Tenant returns the tenant this client is scoped to.
func (c *Client) Tenant() string {
	return c.tenant
}

// Ping verifies connectivity and credentials.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "Ping", http.MethodGet, "/ping", nil, nil, nil)
}

// BreakerStats returns a snapshot of the underlying circuit breaker.
func (c *Client) BreakerStats() resilience.BreakerStats {
	if b := c.guard.Breaker(); b != nil {
		return b.Stats()
	}
	return resilience.BreakerStats{}
}

// ResetBreaker force-closes the underlying circuit breaker.
func (c *Client) ResetBreaker() {
	if b := c.guard.Breaker(); b != nil {
		b.Reset()
	}
}

// Usage returns current budget usage for the client's tenant.
func (c *Client) Usage(ctx context.Context) budget.UsageStats {
	if c.budget == nil {
		return budget.UsageStats{}
	}
	return c.budget.Usage(ctx, c.tenant)
}

// do runs one guarded API call and decodes the JSON response into out.
// The request body is marshaled once; each attempt gets a fresh request
// with its own X-Request-ID.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = data
	}

	// Mutating calls carry one idempotency key across all attempts.
	var idempotencyKey string
	if method == http.MethodPost {
		idempotencyKey = uuid.New().String()
	}

	// Pre-call budget gate
	if c.budget != nil && !c.budget.CanProceed(ctx, c.tenant) {
		delay := c.budget.ThrottleDelay(ctx, c.tenant)
		if delay > 0 {
			slog.Warn("Tenant near daily quota, throttling",
				"tenant", c.tenant,
				"delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	raw, err := c.guard.Do(ctx, func(ctx context.Context) (any, error) {
		return c.attempt(ctx, op, method, path, query, payload, idempotencyKey)
	})
	if err != nil {
		return err
	}

	if c.budget != nil {
		c.budget.Record(ctx, c.tenant, op)
	}

	if out == nil {
		return nil
	}
	data := raw.([]byte)
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &resilience.Error{
			Category: resilience.CategoryOther,
			Message:  "failed to decode response",
			Err:      err,
		}
	}
	return nil
}

// attempt performs one HTTP round trip and returns the raw response body.
func (c *Client) attempt(ctx context.Context, op, method, path string, query url.Values, payload []byte, idempotencyKey string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, method, path, query, payload, idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	apiRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		apiRequests.WithLabelValues(op, "error").Inc()
		return nil, resilience.Classify(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		apiRequests.WithLabelValues(op, "error").Inc()
		return nil, &resilience.Error{
			Category: resilience.CategoryConnection,
			Message:  "failed to read response body",
			Err:      err,
		}
	}

	apiRequests.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		return nil, responseError(resp, data)
	}
	return data, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, payload []byte, idempotencyKey string) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Tenant-ID", c.tenant)
	req.Header.Set("X-Request-ID", uuid.New().String())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "custodian-go/"+Version)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return req, nil
}

// apiError mirrors the API's error envelope.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// responseError converts a non-2xx response into a classified error.
func responseError(resp *http.Response, data []byte) *resilience.Error {
	e := &resilience.Error{
		Category:   resilience.CategoryForStatus(resp.StatusCode),
		Message:    strings.ToLower(http.StatusText(resp.StatusCode)),
		StatusCode: resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}

	var ae apiError
	if err := json.Unmarshal(data, &ae); err == nil && ae.Error.Message != "" {
		e.Code = ae.Error.Code
		e.Message = ae.Error.Message
	}
	return e
}

// parseRetryAfter reads a Retry-After header in either delta-seconds or
// HTTP-date form. Returns 0 when absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
