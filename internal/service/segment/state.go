// Package segment loads segment manifests and tracks per-segment lifecycle.
package segment

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a segment.
type State int

const (
	// StatePending - Segment has not been submitted yet.
	StatePending State = iota
	// StateInFlight - Transcription attempts are running.
	StateInFlight
	// StateSucceeded - A transcript was produced. Terminal.
	StateSucceeded
	// StateFailed - Attempts were exhausted. Terminal.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateInFlight:
		return "IN_FLIGHT"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal (SUCCEEDED or FAILED).
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Errors for invalid state transitions.
var (
	ErrAlreadyStarted   = errors.New("segment already started")
	ErrNotInFlight      = errors.New("segment is not in flight")
	ErrAlreadyCompleted = errors.New("segment already completed")
)

// Lifecycle manages the state machine for a single segment.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	PENDING → IN_FLIGHT → SUCCEEDED
//	                  └──→ FAILED
//
// Each transition happens at most once, so a segment yields exactly one result.
type Lifecycle struct {
	mu        sync.RWMutex
	segmentID int
	state     State
}

// NewLifecycle creates a new segment lifecycle in PENDING state.
func NewLifecycle(segmentID int) *Lifecycle {
	return &Lifecycle{segmentID: segmentID}
}

// SegmentID returns the segment ID.
func (l *Lifecycle) SegmentID() int {
	return l.segmentID
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsDone returns true if the segment reached a terminal state.
func (l *Lifecycle) IsDone() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.IsTerminal()
}

// Start transitions PENDING to IN_FLIGHT.
func (l *Lifecycle) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StatePending:
		l.state = StateInFlight
		return nil
	case StateInFlight:
		return ErrAlreadyStarted
	default:
		return ErrAlreadyCompleted
	}
}

// Succeed transitions IN_FLIGHT to SUCCEEDED.
func (l *Lifecycle) Succeed() error {
	return l.complete(StateSucceeded)
}

// Fail transitions IN_FLIGHT to FAILED.
func (l *Lifecycle) Fail() error {
	return l.complete(StateFailed)
}

func (l *Lifecycle) complete(to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateInFlight:
		l.state = to
		return nil
	case StatePending:
		return ErrNotInFlight
	default:
		return ErrAlreadyCompleted
	}
}

// Tracker holds the lifecycles of a batch keyed by position.
type Tracker struct {
	lifecycles []*Lifecycle
}

// NewTracker creates PENDING lifecycles for the given segment ids.
func NewTracker(ids []int) *Tracker {
	t := &Tracker{lifecycles: make([]*Lifecycle, len(ids))}
	for i, id := range ids {
		t.lifecycles[i] = NewLifecycle(id)
	}
	return t
}

// At returns the lifecycle at batch position i.
func (t *Tracker) At(i int) *Lifecycle {
	return t.lifecycles[i]
}

// Counts returns the number of segments in each state.
func (t *Tracker) Counts() map[State]int {
	out := make(map[State]int, 4)
	for _, l := range t.lifecycles {
		out[l.State()]++
	}
	return out
}

// AllDone reports whether every segment reached a terminal state.
func (t *Tracker) AllDone() bool {
	for _, l := range t.lifecycles {
		if !l.IsDone() {
			return false
		}
	}
	return true
}
