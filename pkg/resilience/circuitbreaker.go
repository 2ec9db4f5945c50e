// Package resilience provides fault-tolerance primitives: circuit breakers
// (single and keyed per host), exponential-backoff retry, and a context-based
// timeout wrapper.
package resilience

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	apperrors "github.com/daqol/information-retrieval/pkg/errors"
)

var ErrCircuitOpen = apperrors.ErrCircuitOpen

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreakerConfig: zero values fall back to 5 failures and 30s.
type CircuitBreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// CircuitBreaker opens after FailureThreshold consecutive failures and
// rejects calls until ResetTimeout has passed. Then a single probe is let
// through; its outcome closes or reopens the circuit.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
		now:    time.Now,
	}
}

func (cb *CircuitBreaker) Execute(fn func() error) error {
	return cb.ExecuteCounting(fn, nil)
}

// ExecuteCounting is Execute with a classifier: only errors for which
// countable returns true are recorded as failures. A nil classifier counts
// every error.
func (cb *CircuitBreaker) ExecuteCounting(fn func() error, countable func(error) bool) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err != nil && (countable == nil || countable(err)))
	return err
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateOpen:
		wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
		}
		cb.state = StateHalfOpen
		cb.probing = true
		cb.logger.Info("circuit half-open, probing")
	case StateHalfOpen:
		if cb.probing {
			return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, cb.name)
		}
		cb.probing = true
	}
	return nil
}

func (cb *CircuitBreaker) record(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
	if !failed {
		if cb.state == StateHalfOpen {
			cb.logger.Info("circuit closed")
		}
		cb.state = StateClosed
		cb.failures = 0
		return
	}
	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
		if cb.state != StateOpen {
			cb.logger.Warn("circuit opened", "consecutive_failures", cb.failures)
		}
		cb.state = StateOpen
		cb.openedAt = cb.now()
	}
}

// BreakerGroup lazily creates one CircuitBreaker per key, all sharing the
// same config. The fetcher keys it by host.
type BreakerGroup struct {
	prefix   string
	cfg      CircuitBreakerConfig
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

func NewBreakerGroup(prefix string, cfg CircuitBreakerConfig) *BreakerGroup {
	return &BreakerGroup{
		prefix:   prefix,
		cfg:      cfg,
		breakers: make(map[string]*CircuitBreaker),
	}
}

func (g *BreakerGroup) Get(key string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	cb, ok := g.breakers[key]
	if !ok {
		cb = NewCircuitBreaker(g.prefix+":"+key, g.cfg)
		g.breakers[key] = cb
	}
	return cb
}

// Open lists, sorted, the keys whose breaker is open.
func (g *BreakerGroup) Open() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var keys []string
	for k, cb := range g.breakers {
		if cb.GetState() == StateOpen {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}
