// Package circuit provides a circuit breaker that lets callers fail fast while the node
// or a sink is down instead of stacking retries on top of a dead endpoint.
package circuit

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/bardlex/gominer/pkg/errors"
)

// ErrOpen is the cause of every error returned while the circuit rejects calls
var ErrOpen = stderrors.New("circuit breaker is open")

// State is the breaker's position
type State int

const (
	// StateClosed lets every call through and counts failures
	StateClosed State = iota
	// StateOpen rejects calls until Timeout has passed since the last failure
	StateOpen
	// StateHalfOpen lets calls through to test whether the endpoint recovered
	StateHalfOpen
)

// String returns string representation of the state
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

// Config holds circuit breaker configuration
type Config struct {
	// MaxFailures within one ResetTimeout window opens the circuit
	MaxFailures int
	// SuccessRequired consecutive half-open successes close it again
	SuccessRequired int
	// Timeout is how long the circuit stays open after the last failure
	Timeout time.Duration
	// ResetTimeout is the window after which closed-state failures are forgotten
	ResetTimeout time.Duration

	// OnStateChange is called after every transition with the lock released
	OnStateChange func(from, to State)
}

// Breaker implements the circuit breaker pattern
type Breaker struct {
	config Config
	now    func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	openedAt    time.Time
	windowStart time.Time
}

// New creates a closed breaker. Zero limits are raised to 1.
func New(config *Config) *Breaker {
	cfg := *config
	cfg.MaxFailures = max(cfg.MaxFailures, 1)
	cfg.SuccessRequired = max(cfg.SuccessRequired, 1)

	return &Breaker{
		config:      cfg,
		now:         time.Now,
		windowStart: time.Now(),
	}
}

// State returns the current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn unless the circuit is open
func (b *Breaker) Execute(_ context.Context, fn func() error) error {
	if err := b.acquire(); err != nil {
		return err
	}
	err := fn()
	b.release(err)
	return err
}

// ExecuteWithResult runs fn unless the circuit is open
func ExecuteWithResult[T any](_ context.Context, b *Breaker, fn func() (T, error)) (T, error) {
	if err := b.acquire(); err != nil {
		var zero T
		return zero, err
	}
	result, err := fn()
	b.release(err)
	return result, err
}

// acquire admits a call or returns the fail-fast error
func (b *Breaker) acquire() error {
	b.mu.Lock()
	from := b.state
	now := b.now()

	switch b.state {
	case StateClosed:
		if now.Sub(b.windowStart) > b.config.ResetTimeout {
			b.failures = 0
			b.windowStart = now
		}
	case StateOpen:
		if now.Sub(b.openedAt) <= b.config.Timeout {
			b.mu.Unlock()
			return errors.Wrap(ErrOpen, errors.ErrorTypeNetwork, "circuit_breaker",
				"call rejected while circuit is open").
				With("retry_after", b.config.Timeout-now.Sub(b.openedAt))
		}
		b.state = StateHalfOpen
		b.successes = 0
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
	return nil
}

// release records the outcome of an admitted call. Cancellation by the caller says
// nothing about the endpoint and is not counted.
func (b *Breaker) release(err error) {
	if stderrors.Is(err, context.Canceled) {
		return
	}

	b.mu.Lock()
	from := b.state
	now := b.now()

	switch {
	case err != nil && b.state == StateHalfOpen:
		b.trip(now)
	case err != nil:
		b.failures++
		if b.failures >= b.config.MaxFailures {
			b.trip(now)
		}
	case b.state == StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessRequired {
			b.state = StateClosed
			b.failures = 0
			b.windowStart = now
		}
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

func (b *Breaker) trip(now time.Time) {
	b.state = StateOpen
	b.openedAt = now
	b.successes = 0
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
}
