package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("CUSTODIAN_API_KEY", "sk_test_123")

	path := writeConfig(t, `
api:
  base_url: https://api.custodian.example
  key: ${CUSTODIAN_API_KEY}
  tenant: acme
retry:
  max_attempts: 5
  initial_delay: 200ms
  max_delay: 10s
breaker:
  failure_threshold: 3
  open_timeout: 45s
budget:
  daily_quota: 5000
  rps: 20
logging:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.API.Key != "sk_test_123" {
		t.Errorf("Key = %q, env expansion failed", cfg.API.Key)
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want default 30s", cfg.API.Timeout)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.InitialDelay != 200*time.Millisecond {
		t.Errorf("InitialDelay = %v, want 200ms", cfg.Retry.InitialDelay)
	}
	if cfg.Breaker.Name != "custodian-api" {
		t.Errorf("Breaker name = %q, want default custodian-api", cfg.Breaker.Name)
	}
	if cfg.Breaker.OpenTimeout != 45*time.Second {
		t.Errorf("OpenTimeout = %v, want 45s", cfg.Breaker.OpenTimeout)
	}
	if cfg.Budget.DailyQuota != 5000 {
		t.Errorf("DailyQuota = %d, want 5000", cfg.Budget.DailyQuota)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestRetryConfigPolicy(t *testing.T) {
	// An empty section keeps the defaults.
	p := RetryConfig{}.Policy()
	if p.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", p.MaxAttempts)
	}
	if !p.Jitter {
		t.Error("Jitter should default to on")
	}

	off := false
	p = RetryConfig{MaxAttempts: 7, Jitter: &off}.Policy()
	if p.MaxAttempts != 7 {
		t.Errorf("MaxAttempts = %d, want 7", p.MaxAttempts)
	}
	if p.Jitter {
		t.Error("Jitter override should apply")
	}
}

func TestBreakerConfigPolicy(t *testing.T) {
	p := BreakerConfig{Name: "payments", FailureThreshold: 2, OpenTimeout: 10 * time.Second}.Policy()
	if p.Name != "payments" || p.FailureThreshold != 2 || p.OpenTimeout != 10*time.Second {
		t.Errorf("Overrides not applied: %+v", p)
	}

	if got := (BreakerConfig{}).Policy(); got.FailureThreshold != 5 {
		t.Errorf("Default threshold = %d, want 5", got.FailureThreshold)
	}
}
