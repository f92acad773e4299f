// Package coordinator implements the job execution coordinator: the
// leadership contender that owns one execution graph per job submitted
// while it is leader.
//
// The coordinator is the only component that holds and mutates the
// "current session" value. Granting leadership records the new session;
// revoking invalidates it first — so any later-arriving event tagged with
// the old session is rejected — and then forces every owned non-terminal
// graph to suspended. All other components only compare session tokens and
// treat mismatches as advisory no-ops.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stewardlabs/steward"
	"github.com/stewardlabs/steward/graph"
	"github.com/stewardlabs/steward/id"
	"github.com/stewardlabs/steward/leader"
)

// Compile-time check that Coordinator implements the contender contract.
var _ leader.Contender = (*Coordinator)(nil)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithGraphOptions sets options applied to every execution graph the
// coordinator creates.
func WithGraphOptions(opts ...graph.Option) Option {
	return func(c *Coordinator) { c.graphOpts = opts }
}

// Coordinator bridges election callbacks into execution-graph events and
// owns the set of graphs active under its current leadership session.
type Coordinator struct {
	logger    *slog.Logger
	graphOpts []graph.Option

	mu      sync.RWMutex
	session id.SessionID // Nil while not leading
	graphs  map[string]*graph.ExecutionGraph
}

// New creates a Coordinator. It holds no session until an election grants
// one.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		logger: slog.Default(),
		graphs: make(map[string]*graph.ExecutionGraph),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ──────────────────────────────────────────────────
// leader.Contender
// ──────────────────────────────────────────────────

// GrantLeadership records the new session as current, making the
// coordinator eligible to accept submissions and session-tagged events.
// Graphs that reached an absorbing status under an earlier session are
// dropped; suspended jobs need explicit resubmission by the new leader.
func (c *Coordinator) GrantLeadership(_ context.Context, session id.SessionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !session.Newer(c.session) {
		return fmt.Errorf("coordinator: grant of session %s not newer than %s: %w",
			session, c.session, steward.ErrStaleSession)
	}
	c.session = session

	for key, g := range c.graphs {
		if g.Status().Absorbing() {
			delete(c.graphs, key)
		}
	}

	c.logger.Info("leadership granted", slog.String("session", session.String()))
	return nil
}

// RevokeLeadership invalidates the current session immediately and then
// issues a forced-suspension event to every owned non-terminal graph. The
// suspension jumps each graph's event queue, so no graph restarts or fails
// out of a pending recovery cycle after this call. Idempotent.
func (c *Coordinator) RevokeLeadership(_ context.Context) error {
	c.mu.Lock()
	session := c.session
	c.session = id.Nil
	owned := make([]*graph.ExecutionGraph, 0, len(c.graphs))
	for _, g := range c.graphs {
		owned = append(owned, g)
	}
	c.mu.Unlock()

	if session.IsNil() {
		return nil
	}

	c.logger.Info("leadership revoked, suspending owned jobs",
		slog.String("session", session.String()),
		slog.Int("jobs", len(owned)),
	)

	for _, g := range owned {
		if !g.Status().Absorbing() {
			g.Suspend()
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Submission and session-tagged events
// ──────────────────────────────────────────────────

// SubmitJob constructs an execution graph for the job and starts it.
// Valid only while holding a current session; otherwise it returns
// steward.ErrNotLeader and no graph is created.
func (c *Coordinator) SubmitJob(_ context.Context, job *graph.Job) (*graph.ExecutionGraph, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.IsNil() {
		return nil, fmt.Errorf("coordinator: submit job %s: %w", job.ID, steward.ErrNotLeader)
	}
	if _, exists := c.graphs[job.ID.String()]; exists {
		return nil, fmt.Errorf("coordinator: submit job %s: %w", job.ID, steward.ErrJobAlreadyExists)
	}

	opts := append([]graph.Option{graph.WithLogger(c.logger)}, c.graphOpts...)
	g, err := graph.New(job, opts...)
	if err != nil {
		return nil, err
	}
	if err := g.Start(); err != nil {
		return nil, err
	}
	c.graphs[job.ID.String()] = g

	c.logger.Info("job submitted",
		slog.String("job_id", job.ID.String()),
		slog.String("job_name", job.Name),
		slog.String("session", c.session.String()),
	)
	return g, nil
}

// ReportVertexFinished admits a vertex completion report tagged with the
// given session.
func (c *Coordinator) ReportVertexFinished(session id.SessionID, jobID id.JobID, vertexID id.VertexID) error {
	g, err := c.admit(session, jobID)
	if err != nil {
		return err
	}
	g.ReportVertexFinished(vertexID)
	return nil
}

// ReportVertexFailure admits a vertex failure report tagged with the given
// session.
func (c *Coordinator) ReportVertexFailure(session id.SessionID, jobID id.JobID, vertexID id.VertexID, cause error) error {
	g, err := c.admit(session, jobID)
	if err != nil {
		return err
	}
	g.ReportVertexFailure(vertexID, cause)
	return nil
}

// CancelJob requests cancellation of a job.
func (c *Coordinator) CancelJob(session id.SessionID, jobID id.JobID) error {
	g, err := c.admit(session, jobID)
	if err != nil {
		return err
	}
	g.Cancel()
	return nil
}

// AcknowledgeVertexCanceled admits a vertex cancellation acknowledgement.
func (c *Coordinator) AcknowledgeVertexCanceled(session id.SessionID, jobID id.JobID, vertexID id.VertexID) error {
	g, err := c.admit(session, jobID)
	if err != nil {
		return err
	}
	g.AcknowledgeVertexCanceled(vertexID)
	return nil
}

// admit validates a session-tagged event against the current session and
// resolves its graph. A mismatched session is stale: the event is dropped,
// logged as informational, and never surfaced as a job failure. Callers
// forwarding external reports should treat steward.ErrStaleSession as an
// advisory no-op.
func (c *Coordinator) admit(session id.SessionID, jobID id.JobID) (*graph.ExecutionGraph, error) {
	c.mu.RLock()
	current := c.session
	g := c.graphs[jobID.String()]
	c.mu.RUnlock()

	if current.IsNil() || session != current {
		c.logger.Info("dropping event with stale session",
			slog.String("job_id", jobID.String()),
			slog.String("session", session.String()),
			slog.String("current", current.String()),
		)
		return nil, fmt.Errorf("coordinator: job %s: session %s: %w",
			jobID, session, steward.ErrStaleSession)
	}
	if g == nil {
		return nil, fmt.Errorf("coordinator: job %s: %w", jobID, steward.ErrJobNotFound)
	}
	return g, nil
}

// ──────────────────────────────────────────────────
// Observation
// ──────────────────────────────────────────────────

// RegisterStatusListener registers a status listener on the matching
// execution graph. Listeners are external observers: registration does not
// require a session.
func (c *Coordinator) RegisterStatusListener(jobID id.JobID, l graph.StatusListener) error {
	c.mu.RLock()
	g := c.graphs[jobID.String()]
	c.mu.RUnlock()

	if g == nil {
		return fmt.Errorf("coordinator: job %s: %w", jobID, steward.ErrJobNotFound)
	}
	g.RegisterStatusListener(l)
	return nil
}

// JobStatus returns the current status of a job.
func (c *Coordinator) JobStatus(jobID id.JobID) (graph.Status, error) {
	c.mu.RLock()
	g := c.graphs[jobID.String()]
	c.mu.RUnlock()

	if g == nil {
		return "", fmt.Errorf("coordinator: job %s: %w", jobID, steward.ErrJobNotFound)
	}
	return g.Status(), nil
}

// Session returns the current leadership session, or the Nil ID when not
// leading.
func (c *Coordinator) Session() id.SessionID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// IsLeader reports whether the coordinator currently holds a session.
func (c *Coordinator) IsLeader() bool {
	return !c.Session().IsNil()
}

// Jobs returns the IDs of all currently owned jobs.
func (c *Coordinator) Jobs() []id.JobID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]id.JobID, 0, len(c.graphs))
	for _, g := range c.graphs {
		ids = append(ids, g.Job().ID)
	}
	return ids
}

// Close suspends all owned graphs and stops their event loops. The
// coordinator is unusable afterwards.
func (c *Coordinator) Close(ctx context.Context) error {
	if err := c.RevokeLeadership(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	owned := make([]*graph.ExecutionGraph, 0, len(c.graphs))
	for _, g := range c.graphs {
		owned = append(owned, g)
	}
	c.graphs = make(map[string]*graph.ExecutionGraph)
	c.mu.Unlock()

	var firstErr error
	for _, g := range owned {
		if err := g.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
