// Package session coordinates the single active recording session and its
// processing state.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the processing state of the service.
type State int

const (
	// StateIdle - No session has run yet.
	StateIdle State = iota
	// StateProcessing - A session is capturing and transcribing.
	StateProcessing
	// StateCompleted - The last session was stopped normally.
	StateCompleted
	// StateCancelled - The last session was cancelled. Its text is kept.
	StateCancelled
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Progress is the coarse completion percentage reported to clients.
func (s State) Progress() int {
	switch s {
	case StateProcessing:
		return 50
	case StateCompleted:
		return 100
	default:
		return 0
	}
}

// Errors for invalid state transitions.
var (
	ErrBusy          = errors.New("a recording session is already processing")
	ErrNotProcessing = errors.New("no recording session is processing")
)

// StateError reports a control operation refused in the current state. The
// state is left unchanged.
type StateError struct {
	Op    string
	State State
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %v (state=%s)", e.Op, e.Err, e.State)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// Lifecycle is the processing state machine.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	IDLE ──Begin──→ PROCESSING ──Finish──→ COMPLETED | CANCELLED
//	                    ↑                        │
//	                    └──────── Begin ─────────┘
//
// Rules:
//   - Begin is refused with ErrBusy while PROCESSING
//   - Finish is refused with ErrNotProcessing outside PROCESSING
type Lifecycle struct {
	mu    sync.RWMutex
	state State
}

// NewLifecycle creates a lifecycle in IDLE state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateIdle}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Begin transitions to PROCESSING.
func (l *Lifecycle) Begin(op string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateProcessing {
		return &StateError{Op: op, State: l.state, Err: ErrBusy}
	}
	l.state = StateProcessing
	return nil
}

// Finish transitions from PROCESSING to a terminal state.
func (l *Lifecycle) Finish(op string, to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateProcessing {
		return &StateError{Op: op, State: l.state, Err: ErrNotProcessing}
	}
	if to != StateCompleted && to != StateCancelled {
		return fmt.Errorf("%s: invalid terminal state %s", op, to)
	}
	l.state = to
	return nil
}

// CheckBegin reports whether Begin would be refused, without changing state.
func (l *Lifecycle) CheckBegin(op string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.state == StateProcessing {
		return &StateError{Op: op, State: l.state, Err: ErrBusy}
	}
	return nil
}

// CheckProcessing returns a StateError unless a session is processing.
func (l *Lifecycle) CheckProcessing(op string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.state != StateProcessing {
		return &StateError{Op: op, State: l.state, Err: ErrNotProcessing}
	}
	return nil
}
