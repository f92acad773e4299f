package graph

import (
	"fmt"

	"github.com/stewardlabs/steward"
)

// Status represents the aggregate lifecycle state of a job.
type Status string

const (
	// StatusCreated means the graph exists but execution has not started.
	StatusCreated Status = "created"
	// StatusRunning means all vertices are running or finished, with at
	// least one still running.
	StatusRunning Status = "running"
	// StatusFailing means a vertex has failed and the restart strategy is
	// being consulted (or a restart delay is counting down).
	StatusFailing Status = "failing"
	// StatusRestarting means the restart delay elapsed and a new execution
	// attempt is about to begin.
	StatusRestarting Status = "restarting"
	// StatusCancelling means cancellation was requested and vertices are
	// being torn down.
	StatusCancelling Status = "cancelling"
	// StatusCanceled means cancellation completed. Globally terminal.
	StatusCanceled Status = "canceled"
	// StatusFinished means all vertices finished. Globally terminal.
	StatusFinished Status = "finished"
	// StatusFailed means the restart strategy denied further attempts.
	// Globally terminal.
	StatusFailed Status = "failed"
	// StatusSuspended means the supervising leader lost leadership.
	// Absorbing, but not globally terminal: a newly elected leader may
	// resubmit the job.
	StatusSuspended Status = "suspended"
)

// GloballyTerminal reports whether s is a terminal outcome of the job
// itself: finished, canceled, or failed.
func (s Status) GloballyTerminal() bool {
	switch s {
	case StatusFinished, StatusCanceled, StatusFailed:
		return true
	default:
		return false
	}
}

// Absorbing reports whether s admits no outgoing transitions. All globally
// terminal statuses are absorbing, and so is suspended.
func (s Status) Absorbing() bool {
	return s.GloballyTerminal() || s == StatusSuspended
}

// transitions is the strict transition table. A transition absent here is
// illegal. Every non-absorbing status may transition to suspended — that
// row is the forced-suspension path, which bypasses the restart strategy.
var transitions = map[Status][]Status{
	StatusCreated:    {StatusRunning, StatusSuspended},
	StatusRunning:    {StatusFinished, StatusFailing, StatusCancelling, StatusSuspended},
	StatusFailing:    {StatusRestarting, StatusFailed, StatusCancelling, StatusSuspended},
	StatusRestarting: {StatusRunning, StatusCancelling, StatusSuspended},
	StatusCancelling: {StatusCanceled, StatusSuspended},
	StatusFinished:   nil,
	StatusCanceled:   nil,
	StatusFailed:     nil,
	StatusSuspended:  nil,
}

// CanTransition reports whether from → to is a legal status transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error wrapping
// steward.ErrInvalidTransition if from → to is not a legal status
// transition.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("graph: cannot transition %s to %s: %w", from, to, steward.ErrInvalidTransition)
	}
	return nil
}
