package session

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a session.
type State int

const (
	// StateActive - audio is being forwarded to the backend.
	StateActive State = iota
	// StateDraining - all audio and the end-of-stream marker were sent,
	// waiting for the backend's last results.
	StateDraining
	// StateClosed - the backend signalled completion or closed normally.
	StateClosed
	// StateFailed - the session ended with an error event.
	StateFailed
	// StateCancelled - the caller stopped the session.
	StateCancelled
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateDraining:
		return "DRAINING"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true for CLOSED, FAILED and CANCELLED.
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateFailed || s == StateCancelled
}

// Errors for invalid state transitions.
var (
	ErrSessionClosed   = errors.New("session is closed")
	ErrAlreadyDraining = errors.New("session is already draining")
)

// Lifecycle manages the state machine for a single session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	ACTIVE → DRAINING → CLOSED
//	  │         │
//	  │         └──→ FAILED | CANCELLED
//	  │
//	  └──→ CLOSED | FAILED | CANCELLED
//
// Rules:
//   - ACTIVE: Drain() once the end-of-stream marker is sent
//   - DRAINING: Drain() again is rejected
//   - Terminal states never change; Finish() reports whether it won
type Lifecycle struct {
	mu    sync.RWMutex
	state State
}

// NewLifecycle creates a lifecycle in ACTIVE state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateActive}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsClosed returns true if the session reached a terminal state.
func (l *Lifecycle) IsClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.IsTerminal()
}

// Drain transitions ACTIVE to DRAINING.
func (l *Lifecycle) Drain() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateActive:
		l.state = StateDraining
		return nil
	case StateDraining:
		return ErrAlreadyDraining
	default:
		return ErrSessionClosed
	}
}

// Finish moves the session to the terminal state s. The first terminal
// state wins; later calls return false.
func (l *Lifecycle) Finish(s State) bool {
	if !s.IsTerminal() {
		panic(fmt.Sprintf("session: Finish with non-terminal state %v", s))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = s
	return true
}
