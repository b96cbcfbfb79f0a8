package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned without calling the guarded function while the circuit is open.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls fail fast with ErrOpen
	StateHalfOpen              // one trial call at a time
)

func (s State) String() string {
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

type Config struct {
	FailureThreshold int           // consecutive failures that open the circuit
	SuccessThreshold int           // trial successes that close it again
	OpenTimeout      time.Duration // time spent open before a trial call
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		OpenTimeout:      10 * time.Second,
	}
}

type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	trialing  bool
	openedAt  time.Time

	onStateChange func(from, to State)
}

func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// OnStateChange registers fn to run after every transition. fn runs on the
// caller's goroutine without the breaker lock held.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Execute runs fn unless the circuit is open. fn's error is returned as is.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err == nil)
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	var from, to State
	changed := false

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.OpenTimeout {
			cb.mu.Unlock()
			return ErrOpen
		}
		from, to, changed = cb.transitionTo(StateHalfOpen)
		cb.trialing = true
	case StateHalfOpen:
		if cb.trialing {
			cb.mu.Unlock()
			return ErrOpen
		}
		cb.trialing = true
	}

	fn := cb.onStateChange
	cb.mu.Unlock()
	if changed && fn != nil {
		fn(from, to)
	}
	return nil
}

func (cb *CircuitBreaker) after(ok bool) {
	cb.mu.Lock()
	var from, to State
	changed := false

	switch cb.state {
	case StateClosed:
		if ok {
			cb.failures = 0
		} else if cb.failures++; cb.failures >= cb.cfg.FailureThreshold {
			from, to, changed = cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		cb.trialing = false
		if !ok {
			from, to, changed = cb.transitionTo(StateOpen)
		} else if cb.successes++; cb.successes >= cb.cfg.SuccessThreshold {
			from, to, changed = cb.transitionTo(StateClosed)
		}
	}

	fn := cb.onStateChange
	cb.mu.Unlock()
	if changed && fn != nil {
		fn(from, to)
	}
}

// transitionTo must be called with mu held.
func (cb *CircuitBreaker) transitionTo(next State) (State, State, bool) {
	prev := cb.state
	if prev == next {
		return prev, next, false
	}
	cb.state = next
	cb.failures = 0
	cb.successes = 0
	if next == StateOpen {
		cb.openedAt = cb.now()
	}
	return prev, next, true
}
