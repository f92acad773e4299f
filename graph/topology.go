package graph

import (
	"fmt"

	"github.com/stewardlabs/steward"
	"github.com/stewardlabs/steward/id"
	"github.com/stewardlabs/steward/restart"
)

// DistributionPattern describes how a vertex's parallel subtasks connect
// to the subtasks of an upstream vertex.
type DistributionPattern string

const (
	// PatternPointwise connects each subtask to one upstream subtask.
	PatternPointwise DistributionPattern = "pointwise"
	// PatternAllToAll connects each subtask to every upstream subtask.
	PatternAllToAll DistributionPattern = "all-to-all"
)

// Connection describes one input edge of a vertex.
type Connection struct {
	// Source is the upstream vertex producing the input.
	Source id.VertexID `json:"source"`
	// Pattern is how subtasks of the two vertices are wired.
	Pattern DistributionPattern `json:"pattern"`
}

// Vertex is one node of a job topology.
type Vertex struct {
	ID          id.VertexID  `json:"id"`
	Name        string       `json:"name"`
	Parallelism int          `json:"parallelism"`
	Inputs      []Connection `json:"inputs,omitempty"`
}

// Job is the immutable description of a compute job: an identifier, a
// directed graph of vertices, and a restart policy. Created once at
// submission and never mutated; all runtime state lives in the
// ExecutionGraph.
type Job struct {
	ID       id.JobID
	Name     string
	Vertices []Vertex

	// Restart decides whether the job retries after vertex failures.
	// Nil means restart.DefaultStrategy().
	Restart restart.Strategy
}

// NewJob creates a job with a fresh ID and the given vertices.
func NewJob(name string, vertices ...Vertex) *Job {
	return &Job{
		ID:       id.NewJobID(),
		Name:     name,
		Vertices: vertices,
	}
}

// NewVertex creates a vertex with a fresh ID.
func NewVertex(name string, parallelism int, inputs ...Connection) Vertex {
	return Vertex{
		ID:          id.NewVertexID(),
		Name:        name,
		Parallelism: parallelism,
		Inputs:      inputs,
	}
}

// ConnectPointwise builds a pointwise input edge from the given vertex.
func ConnectPointwise(source Vertex) Connection {
	return Connection{Source: source.ID, Pattern: PatternPointwise}
}

// ConnectAllToAll builds an all-to-all input edge from the given vertex.
func ConnectAllToAll(source Vertex) Connection {
	return Connection{Source: source.ID, Pattern: PatternAllToAll}
}

// Validate checks the topology for structural errors: a missing ID, an
// empty vertex set, non-positive parallelism, duplicate vertices, or an
// input edge referencing an unknown vertex.
func (j *Job) Validate() error {
	if j.ID.IsNil() {
		return fmt.Errorf("graph: job %q: missing job id", j.Name)
	}
	if len(j.Vertices) == 0 {
		return fmt.Errorf("graph: job %q: %w", j.Name, steward.ErrEmptyTopology)
	}

	seen := make(map[string]struct{}, len(j.Vertices))
	for _, v := range j.Vertices {
		if v.ID.IsNil() {
			return fmt.Errorf("graph: job %q: vertex %q: missing vertex id", j.Name, v.Name)
		}
		if v.Parallelism < 1 {
			return fmt.Errorf("graph: job %q: vertex %q: parallelism %d < 1", j.Name, v.Name, v.Parallelism)
		}
		if _, dup := seen[v.ID.String()]; dup {
			return fmt.Errorf("graph: job %q: duplicate vertex %s", j.Name, v.ID)
		}
		seen[v.ID.String()] = struct{}{}
	}

	for _, v := range j.Vertices {
		for _, in := range v.Inputs {
			if _, ok := seen[in.Source.String()]; !ok {
				return fmt.Errorf("graph: job %q: vertex %q: input references unknown vertex %s",
					j.Name, v.Name, in.Source)
			}
		}
	}
	return nil
}
