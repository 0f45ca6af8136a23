package worker

import (
	"errors"
	"sync"
	"time"
)

type breakerState string

const (
	stateClosed   breakerState = "closed"
	stateOpen     breakerState = "open"
	stateHalfOpen breakerState = "half-open"
)

// ErrCircuitOpen is returned by circuitBreaker.Execute while the breaker
// is open, standing in for the upstream AWS error so callers can turn it
// into a translationError/audioProcessError with a poolFullError-shaped
// message.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// circuitBreaker guards one outbound AWS call family (translate,
// transcribe, polly) against cascading failures, adapted from the
// teacher's circuit_breaker.go FSM: closed -> open after a run of
// failures -> half-open after a cooldown -> closed again after a run of
// successes.
type circuitBreaker struct {
	mu sync.Mutex

	name             string
	state            breakerState
	failureCount     int
	successCount     int
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	openedAt         time.Time
	halfOpenInFlight int
}

func newCircuitBreaker(name string) *circuitBreaker {
	return &circuitBreaker{
		name:             name,
		state:            stateClosed,
		failureThreshold: 5,
		successThreshold: 3,
		cooldown:         30 * time.Second,
	}
}

func (cb *circuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if !cb.allowLocked() {
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
	wasHalfOpen := cb.state == stateHalfOpen
	if wasHalfOpen {
		cb.halfOpenInFlight++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if wasHalfOpen {
		cb.halfOpenInFlight--
	}
	if err != nil {
		cb.recordFailureLocked()
		return err
	}
	cb.recordSuccessLocked()
	return nil
}

func (cb *circuitBreaker) allowLocked() bool {
	switch cb.state {
	case stateClosed:
		return true
	case stateOpen:
		if time.Since(cb.openedAt) > cb.cooldown {
			cb.state = stateHalfOpen
			cb.halfOpenInFlight = 0
			cb.successCount = 0
			return true
		}
		return false
	case stateHalfOpen:
		return cb.halfOpenInFlight < 1
	default:
		return true
	}
}

func (cb *circuitBreaker) recordFailureLocked() {
	cb.failureCount++
	cb.successCount = 0
	switch cb.state {
	case stateClosed:
		if cb.failureCount >= cb.failureThreshold {
			cb.tripLocked()
		}
	case stateHalfOpen:
		cb.tripLocked()
	}
}

func (cb *circuitBreaker) recordSuccessLocked() {
	cb.successCount++
	switch cb.state {
	case stateClosed:
		cb.failureCount = 0
	case stateHalfOpen:
		if cb.successCount >= cb.successThreshold {
			cb.state = stateClosed
			cb.failureCount = 0
			cb.successCount = 0
		}
	}
}

func (cb *circuitBreaker) tripLocked() {
	cb.state = stateOpen
	cb.openedAt = time.Now()
	cb.failureCount = 0
	cb.successCount = 0
}

func (cb *circuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return string(cb.state)
}
