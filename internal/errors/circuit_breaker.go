package errors

import (
	"context"
	"errors"
	"sync"
	"time"

	"lhtl/internal/logging"
)

// ErrCircuitOpen is wrapped in the *UpstreamError returned while a breaker
// rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitState is the breaker position.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures when a breaker opens and recovers.
type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive failures that open the circuit
	SuccessThreshold int           // half-open successes that close it again
	Timeout          time.Duration // open time before a half-open probe
}

// DefaultCircuitBreakerConfig returns the upstream defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker fails fast after repeated upstream failures. A nil
// *CircuitBreaker allows every call.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger logging.Logger
	now    func() time.Time

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	probeInFlight   bool
}

// NewCircuitBreaker creates a closed breaker for the named upstream.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	d := DefaultCircuitBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = d.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = d.SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = d.Timeout
	}
	return &CircuitBreaker{
		name:   name,
		config: config,
		logger: logging.NewComponentLogger("CircuitBreaker"),
		now:    time.Now,
	}
}

// Allow reports whether a call may proceed. While open it returns an
// *UpstreamError wrapping ErrCircuitOpen.
func (cb *CircuitBreaker) Allow() error {
	if cb == nil {
		return nil
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		// One probe at a time; the rest fail fast until it is marked.
		if cb.probeInFlight {
			return &UpstreamError{Service: cb.name, Err: ErrCircuitOpen}
		}
		cb.probeInFlight = true
		return nil
	}
	if cb.now().Sub(cb.lastFailureTime) >= cb.config.Timeout {
		cb.state = StateHalfOpen
		cb.successCount = 0
		cb.probeInFlight = true
		cb.logger.Info("[%s] Circuit half-open, probing upstream", cb.name)
		return nil
	}
	return &UpstreamError{Service: cb.name, Err: ErrCircuitOpen}
}

// Mark records the outcome of an allowed call and releases the half-open
// probe slot. Cancellations and client-side errors do not count against the
// upstream.
func (cb *CircuitBreaker) Mark(err error) {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probeInFlight = false
	if err != nil && !countsAsFailure(err) {
		return
	}

	if err == nil {
		switch cb.state {
		case StateHalfOpen:
			cb.successCount++
			if cb.successCount >= cb.config.SuccessThreshold {
				cb.state = StateClosed
				cb.failureCount = 0
				cb.logger.Info("[%s] Circuit closed, upstream recovered", cb.name)
			}
		default:
			cb.failureCount = 0
		}
		return
	}

	cb.lastFailureTime = cb.now()
	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.logger.Warn("[%s] Circuit opened after %d consecutive failures", cb.name, cb.failureCount)
		}
	case StateHalfOpen:
		cb.state = StateOpen
		cb.logger.Warn("[%s] Circuit reopened, probe failed", cb.name)
	}
}

// State returns the current position.
func (cb *CircuitBreaker) State() CircuitState {
	if cb == nil {
		return StateClosed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func countsAsFailure(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindTooLarge:
		return false
	}
	return !errors.Is(err, context.Canceled)
}
