package core

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestTimeoutError_MatchesSentinel(t *testing.T) {
	err := &TimeoutError{Timeout: 5 * time.Second}

	if !errors.Is(err, ErrExecutionTimedOut) {
		t.Error("TimeoutError should match ErrExecutionTimedOut")
	}

	var te *TimeoutError
	wrapped := fmt.Errorf("turn failed: %w", err)
	if !errors.As(wrapped, &te) || te.Timeout != 5*time.Second {
		t.Error("errors.As should recover the timeout budget")
	}
}

func TestSentinelWrapping(t *testing.T) {
	err := fmt.Errorf("%w: %q", ErrAgentNotFound, "missing")

	if !errors.Is(err, ErrAgentNotFound) {
		t.Error("wrapped sentinel should match with errors.Is")
	}

	if errors.Is(err, ErrSessionNotFound) {
		t.Error("sentinels must not cross-match")
	}
}

func TestExecutionPolicy_Validate(t *testing.T) {
	if err := (ExecutionPolicy{}).Validate(); err != nil {
		t.Errorf("zero policy should be valid: %v", err)
	}

	bad := []ExecutionPolicy{
		{Retries: -1},
		{Timeout: -time.Second},
		{MaxToolCalls: -1},
		{MaxHistoryMessages: -1},
		{MaxHistoryTokens: -1},
	}
	for i, p := range bad {
		if err := p.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("policy %d should be invalid, got %v", i, err)
		}
	}
}

func TestExecutionPolicy_Attempts(t *testing.T) {
	if got := (ExecutionPolicy{}).Attempts(); got != 1 {
		t.Errorf("zero policy should allow 1 attempt, got %d", got)
	}

	if got := (ExecutionPolicy{Retries: 3}).Attempts(); got != 4 {
		t.Errorf("retries=3 should allow 4 attempts, got %d", got)
	}
}

func TestAgent_Validate(t *testing.T) {
	valid := Agent{ID: "a", Model: "m"}
	if err := valid.Validate(); err != nil {
		t.Errorf("agent should be valid: %v", err)
	}

	if err := (Agent{Model: "m"}).Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Error("empty id should be invalid")
	}

	if err := (Agent{ID: "a"}).Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Error("empty model should be invalid")
	}
}

func TestAgent_CloneIndependence(t *testing.T) {
	a := Agent{ID: "a", Model: "m", Tools: []string{"t1"}, PreHooks: []string{"h1"}}

	clone := a.Clone()
	clone.Tools[0] = "changed"
	clone.PreHooks[0] = "changed"

	if a.Tools[0] != "t1" || a.PreHooks[0] != "h1" {
		t.Error("clone should not alias the original's slices")
	}
}
