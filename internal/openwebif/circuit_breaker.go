// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package openwebif

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/xg2g-epg/internal/metrics"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal operation, requests allowed
	StateOpen                  // Circuit open, requests blocked
	StateHalfOpen              // Testing if the receiver recovered
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calling a receiver that keeps failing. Only transport
// failures, timeouts and 5xx answers count; a 404 is a healthy receiver.
type CircuitBreaker struct {
	mu               sync.RWMutex
	component        string
	state            State
	failures         int
	failureThreshold int
	resetTimeout     time.Duration
	lastFailure      time.Time
}

// NewCircuitBreaker creates a closed breaker reporting as component.
func NewCircuitBreaker(component string, threshold int, resetTimeout time.Duration) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	cb := &CircuitBreaker{
		component:        component,
		state:            StateClosed,
		failureThreshold: threshold,
		resetTimeout:     resetTimeout,
	}
	metrics.SetCircuitBreakerState(component, cb.state.String())
	return cb
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allowRequest() {
		return ErrCircuitOpen
	}

	err := fn()
	switch {
	case err == nil:
		cb.recordSuccess()
	case trips(err):
		cb.recordFailure(statusLabel(err))
	}
	return err
}

func trips(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, ErrUpstreamError) ||
		errors.Is(err, ErrTimeout)
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	if cb.state != StateOpen {
		cb.mu.Unlock()
		return true
	}
	if time.Since(cb.lastFailure) <= cb.resetTimeout {
		cb.mu.Unlock()
		return false
	}
	// Half-open lets requests through until one of them settles the state.
	cb.state = StateHalfOpen
	cb.mu.Unlock()
	metrics.SetCircuitBreakerState(cb.component, StateHalfOpen.String())
	return true
}

func (cb *CircuitBreaker) recordFailure(reason string) {
	cb.mu.Lock()
	prev := cb.state
	cb.failures++
	cb.lastFailure = time.Now()
	if cb.state == StateHalfOpen || cb.failures >= cb.failureThreshold {
		cb.state = StateOpen
	}
	state := cb.state
	cb.mu.Unlock()

	if state != prev {
		metrics.SetCircuitBreakerState(cb.component, state.String())
		metrics.RecordCircuitBreakerTrip(cb.component, reason)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	prev := cb.state
	cb.failures = 0
	cb.state = StateClosed
	cb.mu.Unlock()
	if prev != StateClosed {
		metrics.SetCircuitBreakerState(cb.component, StateClosed.String())
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}
