// Package breaker implements per-service circuit breaking for criterion
// evaluations. One breaker exists per criterion name and is shared across
// runs: a streak of failures against the AI provider during one run keeps
// the circuit open for every following run until the cooldown elapses.
package breaker

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sitegauge/sitegauge/models"
)

// Circuit states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// Settings tunes every circuit in a Registry.
type Settings struct {
	// FailureThreshold is the consecutive-failure count that opens a circuit.
	FailureThreshold int

	// FailureWindow bounds a failure streak: failures further apart than
	// this from the streak's start reset the count.
	FailureWindow time.Duration

	// Cooldown is how long an open circuit rejects calls before probing.
	Cooldown time.Duration

	// HalfOpenSuccesses is the success count that closes a half-open circuit.
	HalfOpenSuccesses int
}

// circuit is the per-service state. Mutated only under Registry.mu.
type circuit struct {
	state             string
	failureCount      int
	streakStart       time.Time
	lastFailure       time.Time
	halfOpenSuccesses int
}

// Registry owns one circuit per service name. It is constructed once per
// process and injected wherever protection is needed; all state transitions
// for a given service are serialized under the registry lock.
type Registry struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	settings Settings
}

// NewRegistry creates a Registry with the given settings.
func NewRegistry(s Settings) *Registry {
	return &Registry{
		circuits: make(map[string]*circuit),
		settings: s,
	}
}

// Execute runs primary under circuit protection for the named service.
//
// Closed or half-open: primary is invoked. Success resets the failure
// streak (and, if half-open, counts toward closing). Failure increments
// the streak (and immediately re-opens a half-open circuit); the fallback
// result is returned if one is supplied, otherwise the error propagates.
//
// Open: primary is never invoked. The fallback is returned immediately,
// or a CIRCUIT_OPEN error if none was supplied. This is what bounds run
// latency when a dependency is known-bad.
func (r *Registry) Execute(
	service string,
	primary func() (models.CriterionResult, error),
	fallback func(cause error) models.CriterionResult,
) (models.CriterionResult, error) {
	if !r.allow(service) {
		err := models.NewScoreError(models.ErrCodeCircuitOpen,
			fmt.Sprintf("circuit open for %s", service), nil)
		if fallback == nil {
			return models.CriterionResult{}, err
		}
		slog.Debug("circuit open, using fallback", "service", service)
		return fallback(err), nil
	}

	result, err := primary()
	if err != nil {
		r.recordFailure(service)
		if fallback == nil {
			return models.CriterionResult{}, err
		}
		return fallback(err), nil
	}

	r.recordSuccess(service)
	return result, nil
}

// allow reports whether a call to the service may proceed, transitioning
// open → half-open when the cooldown has elapsed.
func (r *Registry) allow(service string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.circuit(service)
	switch c.state {
	case StateOpen:
		if time.Since(c.lastFailure) >= r.settings.Cooldown {
			c.state = StateHalfOpen
			c.halfOpenSuccesses = 0
			slog.Info("circuit half-open", "service", service)
			return true
		}
		return false
	default:
		return true
	}
}

func (r *Registry) recordSuccess(service string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.circuit(service)
	switch c.state {
	case StateHalfOpen:
		c.halfOpenSuccesses++
		if c.halfOpenSuccesses >= r.settings.HalfOpenSuccesses {
			c.state = StateClosed
			c.failureCount = 0
			slog.Info("circuit closed", "service", service)
		}
	default:
		c.failureCount = 0
	}
}

func (r *Registry) recordFailure(service string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.circuit(service)
	now := time.Now()

	if c.state == StateHalfOpen {
		// Any failure while probing re-opens immediately.
		c.state = StateOpen
		c.lastFailure = now
		slog.Warn("circuit re-opened from half-open", "service", service)
		return
	}

	// Failures outside the window start a fresh streak.
	if c.failureCount == 0 || now.Sub(c.streakStart) > r.settings.FailureWindow {
		c.streakStart = now
		c.failureCount = 0
	}
	c.failureCount++
	c.lastFailure = now

	if c.failureCount >= r.settings.FailureThreshold {
		c.state = StateOpen
		slog.Warn("circuit opened",
			"service", service,
			"failures", c.failureCount,
		)
	}
}

// circuit returns the named circuit, creating it closed. Callers hold r.mu.
func (r *Registry) circuit(service string) *circuit {
	c, ok := r.circuits[service]
	if !ok {
		c = &circuit{state: StateClosed}
		r.circuits[service] = c
	}
	return c
}

// State returns the current state of the named circuit.
func (r *Registry) State(service string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.circuits[service]; ok {
		return c.state
	}
	return StateClosed
}

// Snapshot returns every known circuit's state, for the health endpoint.
func (r *Registry) Snapshot() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.circuits))
	for name, c := range r.circuits {
		out[name] = c.state
	}
	return out
}
