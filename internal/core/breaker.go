package core

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Fantasim/paysync/internal/config"
)

// CircuitBreaker stops the gateway from hammering a Core that keeps failing
// at the transport level.
//
//   - closed: every call passes; consecutive failures are counted and the
//     breaker opens at the threshold.
//   - open: calls fail fast with ErrCircuitOpen until the cooldown elapses.
//   - half_open: a limited number of probe calls pass; one success closes
//     the breaker, one failure reopens it.
type CircuitBreaker struct {
	mu       sync.Mutex
	now      func() time.Time
	state    string
	fails    int
	lastFail time.Time

	threshold   int
	cooldown    time.Duration
	probesMax   int
	probesTaken int
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		now:       time.Now,
		state:     config.CircuitClosed,
		threshold: threshold,
		cooldown:  cooldown,
		probesMax: config.CircuitBreakerHalfOpenMax,
	}
}

// Allow reports whether a call may go out now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case config.CircuitClosed:
		return true
	case config.CircuitOpen:
		if cb.now().Sub(cb.lastFail) < cb.cooldown {
			return false
		}
		slog.Debug("core circuit half-open",
			"consecutiveFails", cb.fails,
			"cooldown", cb.cooldown,
		)
		cb.state = config.CircuitHalfOpen
		cb.probesTaken = 1
		return true
	case config.CircuitHalfOpen:
		if cb.probesTaken < cb.probesMax {
			cb.probesTaken++
			return true
		}
		return false
	}
	return false
}

// RecordSuccess closes the breaker and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != config.CircuitClosed {
		slog.Info("core circuit closed", "previousState", cb.state)
	}
	cb.state = config.CircuitClosed
	cb.fails = 0
	cb.probesTaken = 0
}

// RecordFailure counts a failed call and opens the breaker when the
// threshold is reached or a half-open probe fails.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.fails++
	cb.lastFail = cb.now()

	switch {
	case cb.state == config.CircuitHalfOpen:
		slog.Warn("core circuit reopened after failed probe", "consecutiveFails", cb.fails)
	case cb.state == config.CircuitClosed && cb.fails >= cb.threshold:
		slog.Warn("core circuit opened",
			"consecutiveFails", cb.fails,
			"threshold", cb.threshold,
		)
	default:
		return
	}
	cb.state = config.CircuitOpen
	cb.probesTaken = 0
}

// State returns closed, open or half_open.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ConsecutiveFailures returns the current failure count.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.fails
}
