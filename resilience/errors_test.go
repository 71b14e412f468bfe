package resilience

import (
	"errors"
	"fmt"
	"io"
	"testing"
	"time"
)

type fakeNetError struct{ timeout bool }

func (e *fakeNetError) Error() string   { return "fake net error" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return false }

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		expect Category
	}{
		{&fakeNetError{timeout: true}, CategoryTimeout},
		{&fakeNetError{}, CategoryConnection},
		{io.EOF, CategoryConnection},
		{io.ErrUnexpectedEOF, CategoryConnection},
		{errors.New("something odd"), CategoryOther},
		{&Error{Category: CategoryRateLimit}, CategoryRateLimit},
		{fmt.Errorf("wrapped: %w", &Error{Category: CategoryAuth}), CategoryAuth},
	}

	for _, tt := range tests {
		if got := Classify(tt.err).Category; got != tt.expect {
			t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}

func TestClassifyKeepsClassifiedError(t *testing.T) {
	ce := &Error{Category: CategoryServer, StatusCode: 503, RetryAfter: 5 * time.Second}
	if got := Classify(ce); got != ce {
		t.Errorf("Classify should return the original *Error, got %v", got)
	}
}

func TestCategoryForStatus(t *testing.T) {
	tests := []struct {
		status int
		expect Category
	}{
		{408, CategoryTimeout},
		{429, CategoryRateLimit},
		{401, CategoryAuth},
		{403, CategoryAuth},
		{404, CategoryNotFound},
		{400, CategoryValidation},
		{409, CategoryValidation},
		{422, CategoryValidation},
		{500, CategoryServer},
		{502, CategoryServer},
		{504, CategoryServer},
		{418, CategoryOther},
	}

	for _, tt := range tests {
		if got := CategoryForStatus(tt.status); got != tt.expect {
			t.Errorf("CategoryForStatus(%d) = %v, want %v", tt.status, got, tt.expect)
		}
	}
}

func TestCategoryTransient(t *testing.T) {
	transient := []Category{CategoryConnection, CategoryTimeout, CategoryRateLimit, CategoryServer}
	permanent := []Category{CategoryValidation, CategoryAuth, CategoryNotFound, CategoryOther}

	for _, c := range transient {
		if !c.Transient() {
			t.Errorf("%s should be transient", c)
		}
	}
	for _, c := range permanent {
		if c.Transient() {
			t.Errorf("%s should not be transient", c)
		}
	}
}

func TestErrorFormat(t *testing.T) {
	withCode := &Error{Category: CategoryRateLimit, Code: "RATE_LIMITED", Message: "slow down"}
	if got := withCode.Error(); got != "rate_limit (RATE_LIMITED): slow down" {
		t.Errorf("Unexpected error string: %q", got)
	}

	plain := &Error{Category: CategoryServer, Message: "boom"}
	if got := plain.Error(); got != "server: boom" {
		t.Errorf("Unexpected error string: %q", got)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := &Error{Category: CategoryConnection, Message: "dial failed", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the underlying cause")
	}
}

func TestIsCircuitOpen(t *testing.T) {
	open := &Error{Category: CategoryConnection, Code: CodeCircuitOpen, Message: "open"}
	if !IsCircuitOpen(open) {
		t.Error("Expected circuit-open rejection to be detected")
	}
	if !IsCircuitOpen(fmt.Errorf("wrapped: %w", open)) {
		t.Error("Expected wrapped rejection to be detected")
	}
	if IsCircuitOpen(errors.New("plain")) {
		t.Error("Plain error should not look like a rejection")
	}
}
