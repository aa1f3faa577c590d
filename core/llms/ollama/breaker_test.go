package ollama

import (
	"testing"
	"time"
)

func TestCircuitBreakerTransitions(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	breaker := NewCircuitBreaker(2, time.Minute)
	breaker.now = func() time.Time { return now }

	breaker.Failure()
	if !breaker.Allow() {
		t.Fatalf("expected breaker to stay closed below threshold")
	}
	breaker.Failure()
	if breaker.Allow() {
		t.Fatalf("expected breaker to open at threshold")
	}

	now = now.Add(2 * time.Minute)
	if !breaker.Allow() {
		t.Fatalf("expected a probe after recovery timeout")
	}
	if got := breaker.Snapshot().State; got != BreakerHalfOpen {
		t.Fatalf("expected half-open, got %s", got)
	}

	breaker.Failure()
	if breaker.Allow() {
		t.Fatalf("expected failed probe to reopen the breaker")
	}

	now = now.Add(2 * time.Minute)
	breaker.Allow()
	breaker.Success()
	snapshot := breaker.Snapshot()
	if snapshot.State != BreakerClosed || snapshot.Failures != 0 {
		t.Fatalf("expected closed breaker after success, got %+v", snapshot)
	}
}
