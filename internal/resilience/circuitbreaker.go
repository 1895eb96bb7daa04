// Package resilience provides the circuit breaker guarding alert channel
// delivery and control-plane calls.
package resilience

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the circuit breaker state.
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
	default:
		return "unknown"
	}
}

// BreakerConfig tunes circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int `yaml:"failure_threshold"`

	// RecoveryTimeout is how long the circuit stays open before probing.
	RecoveryTimeout time.Duration `yaml:"recovery_timeout"`

	// SuccessThreshold successes in half-open close the circuit.
	SuccessThreshold int `yaml:"success_threshold"`
}

// DefaultBreakerConfig suits alert channel delivery: trip fast, probe after
// a minute.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  time.Minute,
		SuccessThreshold: 2,
	}
}

// BreakerStats is a point-in-time snapshot of breaker state.
type BreakerStats struct {
	State         State     `json:"state"`
	Failures      int64     `json:"failures"`
	Successes     int64     `json:"successes"`
	Requests      int64     `json:"requests"`
	LastFailure   time.Time `json:"last_failure,omitempty"`
	NextProbeTime time.Time `json:"next_probe_time,omitempty"`
}

// Breaker is a three-state circuit breaker. Closed passes requests through;
// open fails fast until the recovery timeout elapses; half-open probes until
// enough successes close it again. Safe for concurrent use.
type Breaker struct {
	cfg    BreakerConfig
	name   string
	logger *zap.Logger

	mu          sync.Mutex
	state       State
	failures    int64
	successes   int64
	requests    int64
	lastFailure time.Time
	nextProbe   time.Time
}

// NewBreaker creates a closed circuit breaker.
func NewBreaker(name string, cfg BreakerConfig, logger *zap.Logger) *Breaker {
	return &Breaker{
		cfg:    cfg,
		name:   name,
		logger: logger.Named("breaker").With(zap.String("name", name)),
		state:  StateClosed,
	}
}

// Do runs fn under breaker protection. When the circuit is open, fn is not
// invoked and an OpenError is returned.
func (b *Breaker) Do(fn func() error) error {
	if !b.allow() {
		return &OpenError{Name: b.name}
	}

	err := fn()
	if err != nil {
		b.recordFailure(err)
		return err
	}
	b.recordSuccess()
	return nil
}

// allow reports whether a request may proceed, moving open circuits to
// half-open once the recovery timeout has elapsed.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && !time.Now().Before(b.nextProbe) {
		b.setState(StateHalfOpen)
	}
	return b.state != StateOpen
}

func (b *Breaker) recordFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.requests++
	b.lastFailure = time.Now()

	switch b.state {
	case StateClosed:
		if b.failures >= int64(b.cfg.FailureThreshold) {
			b.logger.Warn("Circuit opened after repeated failures",
				zap.Int64("failures", b.failures),
				zap.Error(err))
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		// A failed probe reopens immediately.
		b.setState(StateOpen)
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes++
	b.requests++

	if b.state == StateHalfOpen && b.successes >= int64(b.cfg.SuccessThreshold) {
		b.setState(StateClosed)
	}
}

// setState transitions state; caller holds b.mu.
func (b *Breaker) setState(next State) {
	prev := b.state
	b.state = next

	switch next {
	case StateClosed:
		b.failures = 0
		b.successes = 0
	case StateOpen:
		b.nextProbe = time.Now().Add(b.cfg.RecoveryTimeout)
		b.successes = 0
	case StateHalfOpen:
		b.successes = 0
	}

	b.logger.Info("Circuit state changed",
		zap.String("from", prev.String()),
		zap.String("to", next.String()))
}

// State returns the current state, promoting expired open circuits to
// half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && !time.Now().Before(b.nextProbe) {
		b.setState(StateHalfOpen)
	}
	return b.state
}

// Stats returns a snapshot of the breaker counters.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		State:         b.state,
		Failures:      b.failures,
		Successes:     b.successes,
		Requests:      b.requests,
		LastFailure:   b.lastFailure,
		NextProbeTime: b.nextProbe,
	}
}

// Reset returns the breaker to closed. Used by operators after a known
// outage ends.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(StateClosed)
}

// OpenError reports a request rejected by an open circuit.
type OpenError struct {
	Name string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit %q is open", e.Name)
}
