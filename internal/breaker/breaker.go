// Package breaker implements a three-state circuit breaker protecting a
// failure-prone upstream operation from cascading failures.
package breaker

import (
	"fmt"
	"sync"
	"time"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// OpenError is returned by Execute when the breaker fails fast without
// invoking fn.
type OpenError struct {
	Service          string
	RemainingSeconds float64
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit OPEN for %s, retry in %.0fs", e.Service, e.RemainingSeconds)
}

// Config holds the breaker's tunable thresholds.
type Config struct {
	Service             string
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxAttempts int
}

// Breaker wraps a failure-prone operation, tripping to Open once
// FailureThreshold consecutive failures occur in Closed state.
//
// Thread Safety: safe for concurrent use.
type Breaker struct {
	cfg Config

	mu                sync.Mutex
	state             State
	failureCount      int
	successCount      int
	lastFailureTime    time.Time
	lastStateChange    time.Time
}

func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	if cfg.HalfOpenMaxAttempts <= 0 {
		cfg.HalfOpenMaxAttempts = 2
	}
	return &Breaker{cfg: cfg, state: Closed, lastStateChange: time.Now()}
}

// Metrics is a snapshot for diagnostics.
type Metrics struct {
	State           State
	FailureCount    int
	SuccessCount    int
	LastFailureTime time.Time
	LastStateChange time.Time
}

func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Metrics{
		State:           b.state,
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		LastFailureTime: b.lastFailureTime,
		LastStateChange: b.lastStateChange,
	}
}

// Reset forces the breaker back to Closed for operator use.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(Closed)
	b.failureCount = 0
	b.successCount = 0
}

func (b *Breaker) transition(to State) {
	b.state = to
	b.lastStateChange = time.Now()
	if to == Closed || to == Open {
		b.successCount = 0
	}
}

// Execute runs fn, tracking its outcome against the breaker's state
// machine. When the breaker is Open and the reset timeout has not yet
// elapsed, fn is never invoked and Execute fails fast with an *OpenError.
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.admit(); err != nil {
		return zero, err
	}
	result, err := fn()
	if err != nil {
		b.recordFailure()
		return zero, err
	}
	b.recordSuccess()
	return result, nil
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Closed:
		return nil
	case Open:
		elapsed := time.Since(b.lastFailureTime)
		if elapsed >= b.cfg.ResetTimeout {
			b.transition(HalfOpen)
			return nil
		}
		remaining := (b.cfg.ResetTimeout - elapsed).Seconds()
		if remaining < 0 {
			remaining = 0
		}
		return &OpenError{Service: b.cfg.Service, RemainingSeconds: remaining}
	case HalfOpen:
		return nil
	default:
		return nil
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Closed:
		b.failureCount = 0
	case HalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.HalfOpenMaxAttempts {
			b.failureCount = 0
			b.transition(Closed)
		}
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailureTime = time.Now()
	switch b.state {
	case Closed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.transition(Open)
		}
	case HalfOpen:
		b.transition(Open)
	}
}
