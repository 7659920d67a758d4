// Package circuitbreaker guards outbound provider calls. Repeated failures
// open the breaker and subsequent calls fail fast instead of waiting out the
// provider's timeout with a credit already reserved.
package circuitbreaker

import (
	"fmt"
	"sync"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
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
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "HalfOpen"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

type Config struct {
	FailureThreshold int
	SuccessThreshold int
	ResetAfter       time.Duration
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		ResetAfter:       30 * time.Second,
	}
}

type CircuitBreaker struct {
	serviceName string
	config      Config

	mu           sync.Mutex
	state        State
	failureCount int
	successCount int
	openedAt     time.Time
}

func New(serviceName string) *CircuitBreaker {
	return NewWithConfig(serviceName, DefaultConfig())
}

func NewWithConfig(serviceName string, config Config) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 3
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.ResetAfter <= 0 {
		config.ResetAfter = 30 * time.Second
	}
	return &CircuitBreaker{
		serviceName: serviceName,
		config:      config,
		state:       Closed,
	}
}

// CanExecute reports whether a call may proceed. An open breaker transitions
// to half-open once ResetAfter has elapsed, letting a probe call through.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed, HalfOpen:
		return true
	case Open:
		if time.Since(cb.openedAt) >= cb.config.ResetAfter {
			cb.transition(HalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0

	if cb.state == HalfOpen {
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.transition(Closed)
		}
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++

	// A half-open probe failing reopens immediately.
	if cb.state == HalfOpen || (cb.state == Closed && cb.failureCount >= cb.config.FailureThreshold) {
		cb.transition(Open)
	}
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(Closed)
}

// transition assumes cb.mu is held.
func (cb *CircuitBreaker) transition(newState State) {
	if cb.state == newState {
		return
	}
	fiberlog.Infof("Circuit breaker %s: %s -> %s", cb.serviceName, cb.state, newState)
	cb.state = newState
	cb.failureCount = 0
	cb.successCount = 0
	if newState == Open {
		cb.openedAt = time.Now()
	}
}
