package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stewardlabs/steward"
	"github.com/stewardlabs/steward/id"
	"github.com/stewardlabs/steward/restart"
)

// StatusListener is notified of every job status change. Listeners are
// invoked synchronously within the graph's serialized processing step, in
// registration order; a slow listener delays subsequent event processing
// for that graph only.
//
// cause is populated only for failure-driven transitions. It is always nil
// for StatusSuspended.
type StatusListener interface {
	OnStatusChange(jobID id.JobID, status Status, at time.Time, cause error)
}

// StatusListenerFunc adapts a function to the StatusListener interface.
type StatusListenerFunc func(jobID id.JobID, status Status, at time.Time, cause error)

// OnStatusChange implements StatusListener.
func (f StatusListenerFunc) OnStatusChange(jobID id.JobID, status Status, at time.Time, cause error) {
	f(jobID, status, at, cause)
}

// ──────────────────────────────────────────────────
// Events
// ──────────────────────────────────────────────────

type eventKind int

const (
	evStart eventKind = iota
	evVertexFinished
	evVertexFailed
	evRestartDelayElapsed
	evRestartExecute
	evCancel
	evCancelAck
	evSuspend
)

// event is one unit of work on the graph's serialized queue.
type event struct {
	kind   eventKind
	vertex id.VertexID
	cause  error
}

// ──────────────────────────────────────────────────
// ExecutionGraph
// ──────────────────────────────────────────────────

// Option configures an ExecutionGraph.
type Option func(*ExecutionGraph)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *ExecutionGraph) { g.logger = l }
}

// WithStatusListener registers a status listener at construction time,
// before the graph emits its first transition.
func WithStatusListener(l StatusListener) Option {
	return func(g *ExecutionGraph) { g.listeners = append(g.listeners, l) }
}

// ExecutionGraph is the mutable runtime state machine bound to one Job.
// All events affecting it are serialized through a single per-graph queue
// drained by one goroutine; suspension events jump that queue.
type ExecutionGraph struct {
	job      *Job
	strategy restart.Strategy
	logger   *slog.Logger

	// Event queue. qMu guards queue, started, and closed.
	qMu     sync.Mutex
	qCond   *sync.Cond
	queue   []event
	started bool
	closed  bool
	wg      sync.WaitGroup

	// Runtime state. Written only by the event loop, under stateMu so
	// accessors may read concurrently.
	stateMu      sync.RWMutex
	status       Status
	statusAt     time.Time
	executions   map[string]*execution
	order        []id.VertexID
	failureCount int
	failureCause error
	attemptAt    time.Time

	// restartTimer counts down a policy-dictated delay. Touched only by
	// the event loop (and stopped once more on Close).
	restartTimer *time.Timer

	lisMu     sync.Mutex
	listeners []StatusListener
}

// New creates an ExecutionGraph for the given job. The job's topology is
// validated; its restart strategy defaults to restart.DefaultStrategy().
func New(job *Job, opts ...Option) (*ExecutionGraph, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	g := &ExecutionGraph{
		job:        job,
		strategy:   job.Restart,
		logger:     slog.Default(),
		status:     StatusCreated,
		statusAt:   time.Now().UTC(),
		executions: make(map[string]*execution, len(job.Vertices)),
	}
	if g.strategy == nil {
		g.strategy = restart.DefaultStrategy()
	}
	for _, v := range job.Vertices {
		g.executions[v.ID.String()] = newExecution(v)
		g.order = append(g.order, v.ID)
	}
	for _, opt := range opts {
		opt(g)
	}
	g.qCond = sync.NewCond(&g.qMu)
	return g, nil
}

// Job returns the immutable job this graph executes.
func (g *ExecutionGraph) Job() *Job { return g.job }

// Start launches the event loop and begins execution
// (created → running). It returns immediately.
func (g *ExecutionGraph) Start() error {
	g.qMu.Lock()
	if g.started {
		g.qMu.Unlock()
		return fmt.Errorf("graph: job %s: already started", g.job.ID)
	}
	g.started = true
	g.qMu.Unlock()

	g.wg.Add(1)
	go g.loop()

	g.enqueue(event{kind: evStart})
	return nil
}

// Close stops the event loop after draining already-queued events. If the
// context expires first, Close returns its error but the loop keeps
// draining in the background.
func (g *ExecutionGraph) Close(ctx context.Context) error {
	g.qMu.Lock()
	if !g.started || g.closed {
		g.closed = true
		g.qMu.Unlock()
		return nil
	}
	g.closed = true
	g.qCond.Broadcast()
	g.qMu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		if g.restartTimer != nil {
			g.restartTimer.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ──────────────────────────────────────────────────
// Event producers
// ──────────────────────────────────────────────────

// ReportVertexFinished records that every subtask of a vertex completed.
func (g *ExecutionGraph) ReportVertexFinished(vertexID id.VertexID) {
	g.enqueue(event{kind: evVertexFinished, vertex: vertexID})
}

// ReportVertexFailure records a vertex failure. The first failure in a
// running attempt drives the graph to failing and consults the restart
// strategy (fail-fast aggregation).
func (g *ExecutionGraph) ReportVertexFailure(vertexID id.VertexID, cause error) {
	g.enqueue(event{kind: evVertexFailed, vertex: vertexID, cause: cause})
}

// Cancel requests cancellation of the job.
func (g *ExecutionGraph) Cancel() {
	g.enqueue(event{kind: evCancel})
}

// AcknowledgeVertexCanceled records that a vertex finished tearing down
// after a cancel request. Once every vertex has acknowledged, the graph
// reaches canceled.
func (g *ExecutionGraph) AcknowledgeVertexCanceled(vertexID id.VertexID) {
	g.enqueue(event{kind: evCancelAck, vertex: vertexID})
}

// Suspend forces the graph to suspended because the supervising leader
// lost leadership. The event is enqueued ahead of every pending event and
// any scheduled restart timer is stopped; the restart strategy is never
// consulted on this path. Suspend is idempotent.
func (g *ExecutionGraph) Suspend() {
	g.enqueueFront(event{kind: evSuspend})
}

// RegisterStatusListener adds a listener. Listeners are notified in
// registration order.
func (g *ExecutionGraph) RegisterStatusListener(l StatusListener) {
	g.lisMu.Lock()
	g.listeners = append(g.listeners, l)
	g.lisMu.Unlock()
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Status returns the current aggregate job status.
func (g *ExecutionGraph) Status() Status {
	g.stateMu.RLock()
	defer g.stateMu.RUnlock()
	return g.status
}

// FailureCount returns the number of failures observed over the graph's
// lifetime. It is monotonic: restarts do not reset it.
func (g *ExecutionGraph) FailureCount() int {
	g.stateMu.RLock()
	defer g.stateMu.RUnlock()
	return g.failureCount
}

// FailureCause returns the most recent vertex failure, or nil.
func (g *ExecutionGraph) FailureCause() error {
	g.stateMu.RLock()
	defer g.stateMu.RUnlock()
	return g.failureCause
}

// Vertices returns a snapshot of all vertex execution states, in topology
// order.
func (g *ExecutionGraph) Vertices() []VertexReport {
	g.stateMu.RLock()
	defer g.stateMu.RUnlock()

	reports := make([]VertexReport, 0, len(g.order))
	for _, vID := range g.order {
		e := g.executions[vID.String()]
		reports = append(reports, VertexReport{
			ID:        e.vertex.ID,
			Name:      e.vertex.Name,
			State:     e.state,
			Failure:   e.failure,
			UpdatedAt: e.updatedAt,
		})
	}
	return reports
}

// ──────────────────────────────────────────────────
// Queue
// ──────────────────────────────────────────────────

func (g *ExecutionGraph) enqueue(ev event) {
	g.qMu.Lock()
	defer g.qMu.Unlock()
	if g.closed {
		g.logger.Debug("dropping event for closed graph",
			slog.String("job_id", g.job.ID.String()),
			slog.Int("event", int(ev.kind)),
		)
		return
	}
	g.queue = append(g.queue, ev)
	g.qCond.Signal()
}

// enqueueFront inserts an event ahead of everything already queued.
// Only suspension uses this: leadership loss must preempt queued failure
// and restart-timer events.
func (g *ExecutionGraph) enqueueFront(ev event) {
	g.qMu.Lock()
	defer g.qMu.Unlock()
	if g.closed {
		return
	}
	g.queue = append([]event{ev}, g.queue...)
	g.qCond.Signal()
}

func (g *ExecutionGraph) loop() {
	defer g.wg.Done()

	for {
		g.qMu.Lock()
		for len(g.queue) == 0 && !g.closed {
			g.qCond.Wait()
		}
		if len(g.queue) == 0 {
			g.qMu.Unlock()
			return
		}
		ev := g.queue[0]
		g.queue = g.queue[1:]
		g.qMu.Unlock()

		g.process(ev)
	}
}

func (g *ExecutionGraph) process(ev event) {
	switch ev.kind {
	case evStart:
		g.processStart()
	case evVertexFinished:
		g.processVertexFinished(ev.vertex)
	case evVertexFailed:
		g.processVertexFailed(ev.vertex, ev.cause)
	case evRestartDelayElapsed:
		g.processRestartDelayElapsed()
	case evRestartExecute:
		g.processRestartExecute()
	case evCancel:
		g.processCancel()
	case evCancelAck:
		g.processCancelAck(ev.vertex)
	case evSuspend:
		g.processSuspend()
	}
}

// ──────────────────────────────────────────────────
// Event handlers (event loop only)
// ──────────────────────────────────────────────────

func (g *ExecutionGraph) processStart() {
	g.stateMu.Lock()
	if g.status != StatusCreated {
		g.stateMu.Unlock()
		return
	}
	for _, e := range g.executions {
		e.transition(VertexRunning)
	}
	g.attemptAt = time.Now().UTC()
	g.stateMu.Unlock()

	g.transition(StatusRunning, nil)
}

func (g *ExecutionGraph) processVertexFinished(vertexID id.VertexID) {
	g.stateMu.Lock()
	e, ok := g.executions[vertexID.String()]
	if !ok || g.status != StatusRunning || e.state != VertexRunning {
		g.stateMu.Unlock()
		return
	}
	e.transition(VertexFinished)

	allFinished := true
	for _, other := range g.executions {
		if other.state != VertexFinished {
			allFinished = false
			break
		}
	}
	g.stateMu.Unlock()

	if allFinished {
		g.transition(StatusFinished, nil)
	}
}

func (g *ExecutionGraph) processVertexFailed(vertexID id.VertexID, cause error) {
	g.stateMu.Lock()
	e, ok := g.executions[vertexID.String()]
	if !ok {
		g.stateMu.Unlock()
		g.logger.Warn("failure report for unknown vertex",
			slog.String("job_id", g.job.ID.String()),
			slog.String("vertex_id", vertexID.String()),
		)
		return
	}

	switch g.status {
	case StatusRunning:
		// First failure of this attempt: fail fast, count it, and let the
		// restart strategy decide.
		e.state = VertexFailed
		e.failure = cause
		e.updatedAt = time.Now().UTC()
		g.failureCount++
		g.failureCause = cause
		count := g.failureCount
		elapsed := time.Since(g.attemptAt)
		g.stateMu.Unlock()

		g.transition(StatusFailing, cause)

		decision := g.strategy.Decide(count, elapsed)
		if !decision.Retry {
			g.transition(StatusFailed, fmt.Errorf("%w: %w", steward.ErrRestartExhausted, cause))
			return
		}

		g.logger.Info("restart scheduled",
			slog.String("job_id", g.job.ID.String()),
			slog.Int("failure_count", count),
			slog.Duration("delay", decision.Delay),
		)
		g.restartTimer = time.AfterFunc(decision.Delay, func() {
			g.enqueue(event{kind: evRestartDelayElapsed})
		})

	case StatusFailing, StatusRestarting, StatusCancelling:
		// Secondary failure while already recovering or tearing down:
		// record the vertex state, do not touch the failure count.
		if e.state == VertexRunning || e.state == VertexCancelling {
			e.state = VertexFailed
			e.failure = cause
			e.updatedAt = time.Now().UTC()
		}
		g.stateMu.Unlock()

	default:
		g.stateMu.Unlock()
	}
}

func (g *ExecutionGraph) processRestartDelayElapsed() {
	// The graph may have been suspended or canceled while the delay was
	// counting down; the timer firing is then stale.
	if g.Status() != StatusFailing {
		return
	}
	g.transition(StatusRestarting, nil)

	// The actual attempt start is a separate queued event so that a
	// suspension arriving now still preempts it.
	g.enqueue(event{kind: evRestartExecute})
}

func (g *ExecutionGraph) processRestartExecute() {
	g.stateMu.Lock()
	if g.status != StatusRestarting {
		g.stateMu.Unlock()
		return
	}
	for _, e := range g.executions {
		e.reset()
		e.transition(VertexRunning)
	}
	g.attemptAt = time.Now().UTC()
	g.stateMu.Unlock()

	g.transition(StatusRunning, nil)
}

func (g *ExecutionGraph) processCancel() {
	g.stateMu.Lock()
	switch g.status {
	case StatusRunning, StatusFailing, StatusRestarting:
	default:
		g.stateMu.Unlock()
		return
	}
	g.stopRestartTimer()

	pending := 0
	for _, e := range g.executions {
		if e.state == VertexRunning || e.state == VertexCreated {
			e.transition(VertexCancelling)
		}
		if e.state == VertexCancelling {
			pending++
		}
	}
	g.stateMu.Unlock()

	g.transition(StatusCancelling, nil)
	if pending == 0 {
		g.transition(StatusCanceled, nil)
	}
}

func (g *ExecutionGraph) processCancelAck(vertexID id.VertexID) {
	g.stateMu.Lock()
	e, ok := g.executions[vertexID.String()]
	if !ok || g.status != StatusCancelling || e.state != VertexCancelling {
		g.stateMu.Unlock()
		return
	}
	e.transition(VertexCanceled)

	pending := 0
	for _, other := range g.executions {
		if other.state == VertexCancelling {
			pending++
		}
	}
	g.stateMu.Unlock()

	if pending == 0 {
		g.transition(StatusCanceled, nil)
	}
}

func (g *ExecutionGraph) processSuspend() {
	g.stateMu.Lock()
	if g.status.Absorbing() {
		// Duplicate revoke or a race with a terminal transition: exactly
		// one suspension notification is ever delivered.
		g.stateMu.Unlock()
		return
	}
	g.stopRestartTimer()
	for _, e := range g.executions {
		switch e.state {
		case VertexFinished, VertexFailed, VertexCanceled:
		default:
			e.transition(VertexCanceled)
		}
	}
	g.stateMu.Unlock()

	g.transition(StatusSuspended, nil)
}

// stopRestartTimer cancels a pending restart countdown so it cannot fire
// after suspension or cancellation. Callers hold stateMu.
func (g *ExecutionGraph) stopRestartTimer() {
	if g.restartTimer != nil {
		g.restartTimer.Stop()
		g.restartTimer = nil
	}
}

// ──────────────────────────────────────────────────
// Transitions
// ──────────────────────────────────────────────────

func (g *ExecutionGraph) transition(to Status, cause error) {
	g.stateMu.Lock()
	from := g.status
	if err := ValidateTransition(from, to); err != nil {
		g.stateMu.Unlock()
		g.logger.Error("status transition rejected",
			slog.String("job_id", g.job.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	g.status = to
	g.statusAt = time.Now().UTC()
	at := g.statusAt
	g.stateMu.Unlock()

	g.logger.Info("job status changed",
		slog.String("job_id", g.job.ID.String()),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)

	g.lisMu.Lock()
	listeners := make([]StatusListener, len(g.listeners))
	copy(listeners, g.listeners)
	g.lisMu.Unlock()

	for _, l := range listeners {
		l.OnStatusChange(g.job.ID, to, at, cause)
	}
}
