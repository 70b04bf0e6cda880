// Package breaker implements a three-state circuit breaker (CLOSED, OPEN,
// HALF_OPEN) used to isolate faults in external dependencies. One breaker is
// created per dependency at process start and lives for the process lifetime.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.uber.org/zap"

	"github.com/hyp3rd/roomcast/internal/sentinel"
)

// State represents the breaker state.
type State int

// Breaker state enumeration.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	}

	return "UNKNOWN"
}

// Defaults mirror the historical service configuration.
const (
	defaultFailureThreshold  = 5
	defaultTimeout           = 60 * time.Second
	defaultHalfOpenSuccesses = 3
)

// Operation is a call into an external dependency guarded by the breaker.
type Operation func(ctx context.Context) error

// CircuitBreaker counts consecutive failures and trips to OPEN at the
// threshold. While OPEN, calls are rejected with sentinel.ErrBreakerOpen until
// the cooldown elapses; the first call afterwards transitions to HALF_OPEN
// before the operation is attempted. The breaker never swallows the underlying
// error: a failed call records the failure and returns the original error.
type CircuitBreaker struct {
	mu                sync.Mutex
	name              string
	state             State
	failureCount      int
	successCount      int // meaningful only while HALF_OPEN
	failureThreshold  int
	timeout           time.Duration
	halfOpenSuccesses int
	openUntil         time.Time
	now               func() time.Time
	logger            *zap.Logger
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithFailureThreshold sets the consecutive-failure count that trips the breaker (min 1).
func WithFailureThreshold(n int) Option {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.failureThreshold = n
		}
	}
}

// WithTimeout sets the OPEN cooldown duration.
func WithTimeout(d time.Duration) Option {
	return func(cb *CircuitBreaker) {
		if d > 0 {
			cb.timeout = d
		}
	}
}

// WithHalfOpenSuccesses sets the consecutive successes required to close from HALF_OPEN.
func WithHalfOpenSuccesses(n int) Option {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.halfOpenSuccesses = n
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		if now != nil {
			cb.now = now
		}
	}
}

// WithLogger sets the transition logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cb *CircuitBreaker) {
		if logger != nil {
			cb.logger = logger
		}
	}
}

// New creates a breaker for the named dependency.
func New(name string, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:              name,
		state:             StateClosed,
		failureThreshold:  defaultFailureThreshold,
		timeout:           defaultTimeout,
		halfOpenSuccesses: defaultHalfOpenSuccesses,
		now:               time.Now,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cb)
	}

	return cb
}

// Name returns the dependency name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs the operation under breaker protection. When the breaker is OPEN
// and the cooldown has not elapsed, it fails with sentinel.ErrBreakerOpen
// without invoking the operation.
func (cb *CircuitBreaker) Execute(ctx context.Context, op Operation) error {
	err := cb.beforeCall()
	if err != nil {
		return err
	}

	err = op(ctx)
	if err != nil {
		cb.onFailure()

		return err
	}

	cb.onSuccess()

	return nil
}

// Status is a read-only snapshot for observability.
type Status struct {
	Name                      string    `json:"name"`
	State                     string    `json:"state"`
	FailureCount              int       `json:"failureCount"`
	SuccessCount              int       `json:"successCount"`
	FailureThreshold          int       `json:"failureThreshold"`
	OpenUntil                 time.Time `json:"openUntil"`
	RequiredHalfOpenSuccesses int       `json:"requiredHalfOpenSuccesses"`
}

// GetStatus returns the current snapshot.
func (cb *CircuitBreaker) GetStatus() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Status{
		Name:                      cb.name,
		State:                     cb.state.String(),
		FailureCount:              cb.failureCount,
		SuccessCount:              cb.successCount,
		FailureThreshold:          cb.failureThreshold,
		OpenUntil:                 cb.openUntil,
		RequiredHalfOpenSuccesses: cb.halfOpenSuccesses,
	}
}

// beforeCall admits or rejects the call, moving OPEN to HALF_OPEN once the
// cooldown has elapsed.
func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}

	if cb.now().Before(cb.openUntil) {
		return ewrap.Wrap(sentinel.ErrBreakerOpen, cb.name)
	}

	cb.state = StateHalfOpen
	cb.successCount = 0
	cb.logger.Info("circuit breaker half-open", zap.String("breaker", cb.name))

	return nil
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0

	if cb.state != StateHalfOpen {
		return
	}

	cb.successCount++
	if cb.successCount >= cb.halfOpenSuccesses {
		cb.state = StateClosed
		cb.successCount = 0
		cb.logger.Info("circuit breaker closed", zap.String("breaker", cb.name))
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen { // single failure reopens
		cb.trip()

		return
	}

	cb.failureCount++
	if cb.failureCount >= cb.failureThreshold {
		cb.trip()
	}
}

// trip moves to OPEN with a fresh cooldown. Caller holds the lock.
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openUntil = cb.now().Add(cb.timeout)
	cb.successCount = 0
	cb.logger.Warn("circuit breaker open",
		zap.String("breaker", cb.name),
		zap.Int("failures", cb.failureCount),
		zap.Time("openUntil", cb.openUntil),
	)
}
