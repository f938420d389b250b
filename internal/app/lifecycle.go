// Package app holds the lifecycle state machine of a record sink service.
package app

import (
	"sync"
	"time"

	"github.com/bft-labs/recordship/internal/domain"
	"github.com/bft-labs/recordship/pkg/log"
)

// DrainTimeout is the maximum time a disable waits for in-flight sends.
const DrainTimeout = 30 * time.Second

// State represents the lifecycle state of the sink.
type State int

const (
	StateDisabled State = iota
	StateEnabling
	StateEnabled
	StateDisabling
	StateInvalid
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateDisabled:
		return "Disabled"
	case StateEnabling:
		return "Enabling"
	case StateEnabled:
		return "Enabled"
	case StateDisabling:
		return "Disabling"
	case StateInvalid:
		return "Invalid"
	default:
		return "Unknown"
	}
}

// Lifecycle manages the state machine of the sink and tracks in-flight sends.
type Lifecycle struct {
	mu           sync.RWMutex
	state        State
	inflight     sync.WaitGroup
	logger       log.Logger
	eventEmitter EventEmitter
}

// EventEmitter is called when lifecycle state changes.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// EventEmitterFunc adapts a function to EventEmitter.
type EventEmitterFunc func(previous, current State, reason string)

// OnStateChange calls f.
func (f EventEmitterFunc) OnStateChange(previous, current State, reason string) {
	f(previous, current, reason)
}

// NewLifecycle creates a new lifecycle manager in the Disabled state.
func NewLifecycle(logger log.Logger, emitter EventEmitter) *Lifecycle {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Lifecycle{
		state:        StateDisabled,
		logger:       logger,
		eventEmitter: emitter,
	}
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// TransitionTo attempts to transition to a new state.
// Returns domain.ErrInvalidTransition if the current state forbids it.
func (l *Lifecycle) TransitionTo(newState State, reason string) error {
	l.mu.Lock()
	oldState := l.state

	if !allowed(oldState, newState) {
		l.mu.Unlock()
		return domain.ErrInvalidTransition
	}

	l.state = newState
	l.mu.Unlock()

	// Emit event outside of lock
	if l.eventEmitter != nil {
		l.eventEmitter.OnStateChange(oldState, newState, reason)
	}

	l.logger.Info("state transition",
		log.String("from", oldState.String()),
		log.String("to", newState.String()),
		log.String("reason", reason),
	)

	return nil
}

func allowed(from, to State) bool {
	switch from {
	case StateDisabled:
		return to == StateEnabling
	case StateEnabling:
		return to == StateEnabled || to == StateInvalid
	case StateEnabled:
		return to == StateDisabling
	case StateDisabling:
		return to == StateDisabled
	case StateInvalid:
		return to == StateEnabling || to == StateDisabled
	}
	return false
}

// CanEnable returns true if Enable can be called.
func (l *Lifecycle) CanEnable() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateDisabled || l.state == StateInvalid
}

// CanDisable returns true if Disable has something to release.
func (l *Lifecycle) CanDisable() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateEnabled
}

// Acquire registers an in-flight send. It fails unless the sink is Enabled,
// so Disable never races a send that has not started yet.
func (l *Lifecycle) Acquire() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state != StateEnabled {
		return false
	}
	l.inflight.Add(1)
	return true
}

// Release marks an in-flight send as finished.
func (l *Lifecycle) Release() {
	l.inflight.Done()
}

// WaitIdle waits for in-flight sends to finish.
// Returns domain.ErrDrainTimeout if the timeout expires.
func (l *Lifecycle) WaitIdle(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		l.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		l.logger.Warn("drain timeout, releasing session with sends in flight",
			log.Duration("timeout", timeout),
		)
		return domain.ErrDrainTimeout
	}
}
