package coordinator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stewardlabs/steward"
	"github.com/stewardlabs/steward/coordinator"
	"github.com/stewardlabs/steward/graph"
	"github.com/stewardlabs/steward/id"
	"github.com/stewardlabs/steward/leader"
	"github.com/stewardlabs/steward/restart"
)

// newLeadingCoordinator creates a coordinator holding a fresh session.
func newLeadingCoordinator(t *testing.T) (*coordinator.Coordinator, id.SessionID) {
	t.Helper()

	c := coordinator.New()
	session := id.NewSessionID()
	if err := c.GrantLeadership(context.Background(), session); err != nil {
		t.Fatalf("GrantLeadership: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c, session
}

func newTestJob(strategy restart.Strategy) *graph.Job {
	source := graph.NewVertex("source", 1)
	job := graph.NewJob("pipeline", source)
	job.Restart = strategy
	return job
}

// waitForJobStatus polls until the job reaches want or the deadline expires.
func waitForJobStatus(t *testing.T, c *coordinator.Coordinator, jobID id.JobID, want graph.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := c.JobStatus(jobID)
		if err != nil {
			t.Fatalf("JobStatus: %v", err)
		}
		if got == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	got, _ := c.JobStatus(jobID)
	t.Fatalf("job status = %s, want %s", got, want)
}

// ──────────────────────────────────────────────────
// Submission
// ──────────────────────────────────────────────────

func TestSubmitJob_RequiresLeadership(t *testing.T) {
	c := coordinator.New()

	_, err := c.SubmitJob(context.Background(), newTestJob(nil))
	if !errors.Is(err, steward.ErrNotLeader) {
		t.Fatalf("error = %v, want ErrNotLeader", err)
	}
	if got := len(c.Jobs()); got != 0 {
		t.Fatalf("owned jobs = %d, want 0 after rejected submission", got)
	}
}

func TestSubmitJob_Duplicate(t *testing.T) {
	c, _ := newLeadingCoordinator(t)
	job := newTestJob(nil)

	if _, err := c.SubmitJob(context.Background(), job); err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	_, err := c.SubmitJob(context.Background(), job)
	if !errors.Is(err, steward.ErrJobAlreadyExists) {
		t.Fatalf("error = %v, want ErrJobAlreadyExists", err)
	}
}

func TestSubmitJob_InvalidTopology(t *testing.T) {
	c, _ := newLeadingCoordinator(t)

	_, err := c.SubmitJob(context.Background(), graph.NewJob("empty"))
	if !errors.Is(err, steward.ErrEmptyTopology) {
		t.Fatalf("error = %v, want ErrEmptyTopology", err)
	}
}

func TestSubmitJob_RunsToCompletion(t *testing.T) {
	c, session := newLeadingCoordinator(t)
	job := newTestJob(nil)

	if _, err := c.SubmitJob(context.Background(), job); err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	waitForJobStatus(t, c, job.ID, graph.StatusRunning)

	if err := c.ReportVertexFinished(session, job.ID, job.Vertices[0].ID); err != nil {
		t.Fatalf("ReportVertexFinished: %v", err)
	}
	waitForJobStatus(t, c, job.ID, graph.StatusFinished)
}

// ──────────────────────────────────────────────────
// Session admission
// ──────────────────────────────────────────────────

func TestSessionTaggedEvents_StaleSessionRejected(t *testing.T) {
	c, _ := newLeadingCoordinator(t)
	job := newTestJob(nil)

	if _, err := c.SubmitJob(context.Background(), job); err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	waitForJobStatus(t, c, job.ID, graph.StatusRunning)

	stale := id.NewSessionID() // never granted
	err := c.ReportVertexFailure(stale, job.ID, job.Vertices[0].ID, errors.New("boom"))
	if !errors.Is(err, steward.ErrStaleSession) {
		t.Fatalf("error = %v, want ErrStaleSession", err)
	}

	// The graph is untouched by the dropped event.
	time.Sleep(10 * time.Millisecond)
	got, err := c.JobStatus(job.ID)
	if err != nil {
		t.Fatalf("JobStatus: %v", err)
	}
	if got != graph.StatusRunning {
		t.Fatalf("job status = %s, want running", got)
	}
}

func TestSessionTaggedEvents_RejectedWhileNotLeading(t *testing.T) {
	c, session := newLeadingCoordinator(t)
	job := newTestJob(nil)

	if _, err := c.SubmitJob(context.Background(), job); err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if err := c.RevokeLeadership(context.Background()); err != nil {
		t.Fatalf("RevokeLeadership: %v", err)
	}

	// Events tagged with the now-invalidated session are stale.
	err := c.ReportVertexFinished(session, job.ID, job.Vertices[0].ID)
	if !errors.Is(err, steward.ErrStaleSession) {
		t.Fatalf("error = %v, want ErrStaleSession", err)
	}
}

func TestSessionTaggedEvents_UnknownJob(t *testing.T) {
	c, session := newLeadingCoordinator(t)

	err := c.CancelJob(session, id.NewJobID())
	if !errors.Is(err, steward.ErrJobNotFound) {
		t.Fatalf("error = %v, want ErrJobNotFound", err)
	}
}

// ──────────────────────────────────────────────────
// Leadership lifecycle
// ──────────────────────────────────────────────────

func TestGrantLeadership_StaleSessionRejected(t *testing.T) {
	older := id.NewSessionID()
	newer := id.NewSessionID()

	c := coordinator.New()
	if err := c.GrantLeadership(context.Background(), newer); err != nil {
		t.Fatalf("GrantLeadership: %v", err)
	}

	err := c.GrantLeadership(context.Background(), older)
	if !errors.Is(err, steward.ErrStaleSession) {
		t.Fatalf("error = %v, want ErrStaleSession", err)
	}
	if c.Session() != newer {
		t.Fatalf("Session = %s, want %s", c.Session(), newer)
	}
}

func TestRevokeLeadership_SuspendsOwnedJobs(t *testing.T) {
	c, _ := newLeadingCoordinator(t)

	jobs := make([]*graph.Job, 3)
	for i := range jobs {
		jobs[i] = newTestJob(nil)
		if _, err := c.SubmitJob(context.Background(), jobs[i]); err != nil {
			t.Fatalf("SubmitJob %d: %v", i, err)
		}
		waitForJobStatus(t, c, jobs[i].ID, graph.StatusRunning)
	}

	if err := c.RevokeLeadership(context.Background()); err != nil {
		t.Fatalf("RevokeLeadership: %v", err)
	}
	if c.IsLeader() {
		t.Fatal("IsLeader = true after revoke")
	}
	for _, job := range jobs {
		waitForJobStatus(t, c, job.ID, graph.StatusSuspended)
	}
}

func TestRevokeLeadership_BypassesRestartPolicy(t *testing.T) {
	c, session := newLeadingCoordinator(t)
	job := newTestJob(restart.NewFixedDelay(30*time.Millisecond, 0))

	if _, err := c.SubmitJob(context.Background(), job); err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	waitForJobStatus(t, c, job.ID, graph.StatusRunning)

	// A failure schedules a restart; the revoke must win over it.
	if err := c.ReportVertexFailure(session, job.ID, job.Vertices[0].ID, errors.New("boom")); err != nil {
		t.Fatalf("ReportVertexFailure: %v", err)
	}
	waitForJobStatus(t, c, job.ID, graph.StatusFailing)

	if err := c.RevokeLeadership(context.Background()); err != nil {
		t.Fatalf("RevokeLeadership: %v", err)
	}
	waitForJobStatus(t, c, job.ID, graph.StatusSuspended)

	// Wait out the restart delay: the job must stay suspended.
	time.Sleep(60 * time.Millisecond)
	got, err := c.JobStatus(job.ID)
	if err != nil {
		t.Fatalf("JobStatus: %v", err)
	}
	if got != graph.StatusSuspended {
		t.Fatalf("job status = %s, want suspended", got)
	}
}

func TestRevokeLeadership_Idempotent(t *testing.T) {
	c, _ := newLeadingCoordinator(t)
	job := newTestJob(nil)

	if _, err := c.SubmitJob(context.Background(), job); err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	waitForJobStatus(t, c, job.ID, graph.StatusRunning)

	for i := 0; i < 3; i++ {
		if err := c.RevokeLeadership(context.Background()); err != nil {
			t.Fatalf("RevokeLeadership %d: %v", i, err)
		}
	}
	waitForJobStatus(t, c, job.ID, graph.StatusSuspended)
}

func TestGrantLeadership_PrunesAbsorbedGraphs(t *testing.T) {
	c, session := newLeadingCoordinator(t)

	finished := newTestJob(nil)
	if _, err := c.SubmitJob(context.Background(), finished); err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	waitForJobStatus(t, c, finished.ID, graph.StatusRunning)
	if err := c.ReportVertexFinished(session, finished.ID, finished.Vertices[0].ID); err != nil {
		t.Fatalf("ReportVertexFinished: %v", err)
	}
	waitForJobStatus(t, c, finished.ID, graph.StatusFinished)

	if err := c.RevokeLeadership(context.Background()); err != nil {
		t.Fatalf("RevokeLeadership: %v", err)
	}
	if err := c.GrantLeadership(context.Background(), id.NewSessionID()); err != nil {
		t.Fatalf("GrantLeadership: %v", err)
	}

	if got := len(c.Jobs()); got != 0 {
		t.Fatalf("owned jobs = %d, want 0 after re-grant", got)
	}
	if _, err := c.JobStatus(finished.ID); !errors.Is(err, steward.ErrJobNotFound) {
		t.Fatalf("error = %v, want ErrJobNotFound for pruned job", err)
	}

	// The same topology can be resubmitted under the new session.
	if _, err := c.SubmitJob(context.Background(), finished); err != nil {
		t.Fatalf("resubmit after prune: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Contender integration
// ──────────────────────────────────────────────────

func TestCoordinator_DrivenByStandaloneElection(t *testing.T) {
	c := coordinator.New()
	election := leader.NewStandaloneElection(nil)
	if err := election.RegisterContender(c); err != nil {
		t.Fatalf("RegisterContender: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})

	if err := election.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !c.IsLeader() {
		t.Fatal("expected coordinator to be leading after grant")
	}
	if c.Session() != election.Session() {
		t.Fatalf("Session = %s, want %s", c.Session(), election.Session())
	}

	job := newTestJob(nil)
	if _, err := c.SubmitJob(context.Background(), job); err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	waitForJobStatus(t, c, job.ID, graph.StatusRunning)

	if err := election.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c.IsLeader() {
		t.Fatal("expected coordinator to have lost leadership after stop")
	}
	waitForJobStatus(t, c, job.ID, graph.StatusSuspended)

	// Re-grant: suspended job is pruned, submissions accepted again.
	if err := election.Start(context.Background()); err != nil {
		t.Fatalf("restart election: %v", err)
	}
	if _, err := c.SubmitJob(context.Background(), job); err != nil {
		t.Fatalf("resubmit after new grant: %v", err)
	}
}

func TestCoordinator_RegisterStatusListener(t *testing.T) {
	c, session := newLeadingCoordinator(t)
	job := newTestJob(nil)

	if _, err := c.SubmitJob(context.Background(), job); err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	waitForJobStatus(t, c, job.ID, graph.StatusRunning)

	statusCh := make(chan graph.Status, 16)
	err := c.RegisterStatusListener(job.ID, graph.StatusListenerFunc(
		func(_ id.JobID, status graph.Status, _ time.Time, _ error) {
			statusCh <- status
		}))
	if err != nil {
		t.Fatalf("RegisterStatusListener: %v", err)
	}

	if err := c.ReportVertexFinished(session, job.ID, job.Vertices[0].ID); err != nil {
		t.Fatalf("ReportVertexFinished: %v", err)
	}

	select {
	case got := <-statusCh:
		if got != graph.StatusFinished {
			t.Fatalf("notified status = %s, want finished", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status notification")
	}
}
