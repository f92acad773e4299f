package graph

import (
	"time"

	"github.com/stewardlabs/steward/id"
)

// VertexState represents the execution state of one vertex within the
// current execution attempt.
type VertexState string

const (
	// VertexCreated means the vertex has not been scheduled yet.
	VertexCreated VertexState = "created"
	// VertexRunning means the vertex's subtasks are executing.
	VertexRunning VertexState = "running"
	// VertexFinished means all subtasks completed successfully.
	VertexFinished VertexState = "finished"
	// VertexFailed means at least one subtask failed.
	VertexFailed VertexState = "failed"
	// VertexCancelling means the vertex is being torn down and the graph
	// is waiting for its cancellation acknowledgement.
	VertexCancelling VertexState = "cancelling"
	// VertexCanceled means the vertex's subtasks were torn down.
	VertexCanceled VertexState = "canceled"
)

// execution is the runtime record for one vertex. Reset on every restart
// attempt; only the event loop touches it.
type execution struct {
	vertex    Vertex
	state     VertexState
	failure   error
	updatedAt time.Time
}

func newExecution(v Vertex) *execution {
	return &execution{vertex: v, state: VertexCreated, updatedAt: time.Now().UTC()}
}

func (e *execution) transition(state VertexState) {
	e.state = state
	e.updatedAt = time.Now().UTC()
}

// reset returns the execution to its pre-scheduling state for a new
// attempt. The graph-level failure count is deliberately not touched.
func (e *execution) reset() {
	e.state = VertexCreated
	e.failure = nil
	e.updatedAt = time.Now().UTC()
}

// VertexReport is a snapshot of one vertex's execution state, exposed for
// observability and tests.
type VertexReport struct {
	ID        id.VertexID
	Name      string
	State     VertexState
	Failure   error
	UpdatedAt time.Time
}
