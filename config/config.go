// Package config loads YAML configuration for custodianctl and converts it
// into client and resilience settings.
package config

import (
	"time"

	"github.com/vietddude/custodian/resilience"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	API     APIConfig     `yaml:"api"`
	Retry   RetryConfig   `yaml:"retry"`
	Breaker BreakerConfig `yaml:"breaker"`
	Budget  BudgetConfig  `yaml:"budget"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig holds connection settings for the Custodian API.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Key     string        `yaml:"key"`
	Tenant  string        `yaml:"tenant"`
	Timeout time.Duration `yaml:"timeout"`
}

// RetryConfig holds retry policy settings. Zero values fall back to the
// resilience defaults.
type RetryConfig struct {
	MaxAttempts          int           `yaml:"max_attempts"`
	InitialDelay         time.Duration `yaml:"initial_delay"`
	MaxDelay             time.Duration `yaml:"max_delay"`
	ExponentialBase      float64       `yaml:"exponential_base"`
	Jitter               *bool         `yaml:"jitter"`                 // unset = on
	RetryableStatusCodes []int         `yaml:"retryable_status_codes"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	Name             string        `yaml:"name"`
	FailureThreshold int           `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

// BudgetConfig holds quota settings.
type BudgetConfig struct {
	DailyQuota int         `yaml:"daily_quota"` // 0 = unlimited
	RPS        float64     `yaml:"rps"`         // 0 = no local smoothing
	Burst      int         `yaml:"burst"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig holds the shared quota store settings.
type RedisConfig struct {
	URL      string `yaml:"url"`      // empty = in-process tracking
	Password string `yaml:"password"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Policy converts the retry section into a resilience policy, applying
// defaults for unset fields.
func (c RetryConfig) Policy() *resilience.RetryPolicy {
	p := resilience.DefaultRetryPolicy()
	if c.MaxAttempts > 0 {
		p.MaxAttempts = c.MaxAttempts
	}
	if c.InitialDelay > 0 {
		p.InitialDelay = c.InitialDelay
	}
	if c.MaxDelay > 0 {
		p.MaxDelay = c.MaxDelay
	}
	if c.ExponentialBase > 0 {
		p.ExponentialBase = c.ExponentialBase
	}
	if c.Jitter != nil {
		p.Jitter = *c.Jitter
	}
	if c.RetryableStatusCodes != nil {
		p.RetryableStatusCodes = c.RetryableStatusCodes
	}
	return p
}

// Policy converts the breaker section into a resilience policy, applying
// defaults for unset fields.
func (c BreakerConfig) Policy() *resilience.BreakerPolicy {
	p := resilience.DefaultBreakerPolicy(c.Name)
	if c.FailureThreshold > 0 {
		p.FailureThreshold = c.FailureThreshold
	}
	if c.OpenTimeout > 0 {
		p.OpenTimeout = c.OpenTimeout
	}
	return p
}
