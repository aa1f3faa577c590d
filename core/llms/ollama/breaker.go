package ollama

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = errors.New("circuit breaker is open, llm service is unavailable")

type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// CircuitBreaker opens after a run of consecutive failures and lets a probe
// request through once the recovery timeout has passed.
type CircuitBreaker struct {
	mu              sync.Mutex
	threshold       int
	recoveryTimeout time.Duration
	failures        int
	lastFailure     time.Time
	state           BreakerState
	now             func() time.Time
}

func NewCircuitBreaker(threshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold:       max(threshold, 1),
		recoveryTimeout: recoveryTimeout,
		state:           BreakerClosed,
		now:             time.Now,
	}
}

// Allow reports whether a request may proceed.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.lastFailure) > b.recoveryTimeout {
			b.state = BreakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

func (b *CircuitBreaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = BreakerClosed
}

func (b *CircuitBreaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
	if b.failures >= b.threshold || b.state == BreakerHalfOpen {
		b.state = BreakerOpen
	}
}

type BreakerSnapshot struct {
	State       BreakerState
	Failures    int
	LastFailure time.Time
}

func (b *CircuitBreaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{State: b.state, Failures: b.failures, LastFailure: b.lastFailure}
}
