// Package resilience provides fault tolerance for upstream calls. Calls are
// never retried; an open breaker fails them fast instead.
package resilience

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/sony/gobreaker"
)

// State represents circuit breaker state
type State = gobreaker.State

const (
	Closed   = gobreaker.StateClosed   // Normal operation
	HalfOpen = gobreaker.StateHalfOpen // Testing recovery
	Open     = gobreaker.StateOpen     // Failing fast
)

// Errors
var (
	ErrOpen            = gobreaker.ErrOpenState
	ErrTooManyRequests = gobreaker.ErrTooManyRequests
)

// Hook observes state transitions (metrics, health, logging). Hooks run while
// the breaker holds its lock and must not call back into it.
type Hook func(name string, from, to State)

// Breaker is a named circuit breaker guarding one upstream service.
type Breaker struct {
	name  string
	cb    *gobreaker.CircuitBreaker
	mu    sync.RWMutex
	hooks []Hook
}

// New creates a breaker with config
func New(name string, cfg Config) *Breaker {
	cfg = cfg.withDefaults()
	b := &Breaker{name: name}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(cfg.HalfOpenSuccesses),
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.Threshold)
		},
		OnStateChange: b.transition,
	})
	return b
}

// WithHook adds a state change callback
func (b *Breaker) WithHook(fn Hook) *Breaker {
	b.mu.Lock()
	b.hooks = append(b.hooks, fn)
	b.mu.Unlock()
	return b
}

// Name returns the guarded service name
func (b *Breaker) Name() string { return b.name }

// State returns current state
func (b *Breaker) State() State { return b.cb.State() }

func (b *Breaker) transition(name string, from, to State) {
	switch to {
	case Closed:
		slog.Info("circuit breaker closed", "service", name)
	case Open:
		slog.Warn("circuit breaker opened", "service", name, "from", from.String())
	case HalfOpen:
		slog.Info("circuit breaker half-open", "service", name)
	}

	b.mu.RLock()
	hooks := b.hooks
	b.mu.RUnlock()
	for _, h := range hooks {
		h(name, from, to)
	}
}

// Execute runs fn with circuit breaker protection
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// ExecuteWithResult runs fn returning value and error with circuit protection
func ExecuteWithResult[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}

// IsRejected reports whether err came from the breaker rather than the call.
func IsRejected(err error) bool {
	return errors.Is(err, ErrOpen) || errors.Is(err, ErrTooManyRequests)
}
