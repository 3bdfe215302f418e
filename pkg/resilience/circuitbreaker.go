// Package resilience provides fault-tolerance primitives: a circuit breaker
// for the live event path, exponential-backoff retry for boot-time backend
// connections, and a context-based timeout wrapper for health probes.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/forumkit/searchsync/pkg/logger"
)

// ErrCircuitOpen is returned without running the protected call while the
// breaker is cooling down after repeated failures.
var ErrCircuitOpen = errors.New("circuit open")

// BreakerState is the phase a circuit breaker is in.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig controls when a breaker trips and how it recovers.
type BreakerConfig struct {
	// Threshold is how many consecutive failures open the circuit.
	Threshold int
	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration
	// Probes is how many calls may pass while half-open.
	Probes int
}

func defaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold: 5,
		Cooldown:  30 * time.Second,
		Probes:    1,
	}
}

// CircuitBreaker fails calls fast while a backend is down. The live event
// path wraps each routed mutation in one so a dead index engine or primary
// store does not stall the consume loop on every message; rebuilds do not
// use a breaker because they are operator-triggered and abort on the first
// failure anyway.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig
	log  *slog.Logger

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probes   int
}

// NewCircuitBreaker returns a closed breaker. Zero config fields take
// defaults.
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	defaults := defaultBreakerConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaults.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaults.Cooldown
	}
	if cfg.Probes <= 0 {
		cfg.Probes = defaults.Probes
	}
	return &CircuitBreaker{
		name:  name,
		cfg:   cfg,
		state: BreakerClosed,
		log:   logger.WithComponent("breaker").With("name", name),
	}
}

// Execute runs fn unless the circuit is open, then records the outcome.
// The error from fn passes through unchanged so callers keep their sentinel
// matching.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// State returns the breaker's current phase.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		remaining := cb.cfg.Cooldown - time.Since(cb.openedAt)
		if remaining > 0 {
			return fmt.Errorf("%w: %s for another %s", ErrCircuitOpen, cb.name, remaining.Round(time.Millisecond))
		}
		cb.state = BreakerHalfOpen
		cb.probes = 0
		cb.log.Info("circuit half-open, probing")
		fallthrough
	case BreakerHalfOpen:
		if cb.probes >= cb.cfg.Probes {
			return fmt.Errorf("%w: %s probe in flight", ErrCircuitOpen, cb.name)
		}
		cb.probes++
		return nil
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err == nil {
		if cb.state == BreakerHalfOpen {
			cb.log.Info("circuit closed, backend recovered")
		}
		cb.state = BreakerClosed
		cb.failures = 0
		return
	}

	cb.failures++
	cb.openedAt = time.Now()
	switch cb.state {
	case BreakerClosed:
		if cb.failures >= cb.cfg.Threshold {
			cb.state = BreakerOpen
			cb.log.Warn("circuit opened",
				"consecutive_failures", cb.failures,
				"cooldown", cb.cfg.Cooldown)
		}
	case BreakerHalfOpen:
		cb.state = BreakerOpen
		cb.log.Warn("circuit re-opened, probe failed")
	}
}
