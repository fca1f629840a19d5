package submit

import (
	"fmt"
	"sync"
	"time"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// CircuitBreakerConfig controls when a breaker trips and how long it stays
// open before probing again. Defaults mirror the original CircuitBreaker.
type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
}

// DefaultCircuitBreakerConfig matches the original's Default impl.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		ResetTimeout:     60 * time.Second,
	}
}

// CircuitBreaker wraps a named operation with closed/open/half-open state
// tracking: after FailureThreshold consecutive failures it stops letting
// calls through until ResetTimeout has elapsed, then allows a trial batch
// of calls through in half-open state before fully closing again.
type CircuitBreaker struct {
	name string
	cfg  CircuitBreakerConfig

	mu          sync.Mutex
	state       breakerState
	failures    int
	halfOpenOKs int
	lastFailure time.Time
	now         func() time.Time
}

// NewCircuitBreaker returns a closed breaker named name.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{name: name, cfg: cfg, now: time.Now}
}

// Execute runs op if the breaker allows it, recording the outcome.
func (b *CircuitBreaker) Execute(op func() error) error {
	if !b.allow() {
		return fmt.Errorf("circuit breaker %q is open", b.name)
	}
	err := op()
	if err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

func (b *CircuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateOpen:
		if b.now().Sub(b.lastFailure) >= b.cfg.ResetTimeout {
			b.state = stateHalfOpen
			b.halfOpenOKs = 0
			return true
		}
		return false
	default:
		return true
	}
}

func (b *CircuitBreaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateHalfOpen:
		b.halfOpenOKs++
		if b.halfOpenOKs >= b.cfg.SuccessThreshold {
			b.state = stateClosed
			b.failures = 0
		}
	default:
		b.failures = 0
	}
}

func (b *CircuitBreaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()
	if b.failures >= b.cfg.FailureThreshold {
		b.state = stateOpen
	}
}

// State returns the breaker's current state name: "closed", "open", or
// "half_open".
func (b *CircuitBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}
