// Package steward coordinates distributed job execution against a cluster
// whose controlling node can change at runtime. When the active leader loses
// leadership, every job it supervises stops making progress and reaches a
// well-defined SUSPENDED state — it is never silently restarted by a
// failure-recovery policy, and never left hanging for a terminal state that
// will not arrive.
//
// Steward is designed as a library, not a service. Import it, pick a lease
// store, and wire an election into a coordinator:
//
//	store := memory.New()
//	election := leader.NewElection(store, "node-a:6123")
//	coord := coordinator.New(coordinator.WithLogger(logger))
//
//	if err := election.RegisterContender(coord); err != nil { ... }
//	election.Start(ctx)
//
// # Architecture
//
// Steward follows a composable store pattern: leader election and retrieval
// are driven by a small lease Store interface with in-memory, Redis,
// Postgres, and Kubernetes backends. The coordinator is the single
// leadership contender; it owns one ExecutionGraph per submitted job. Each
// graph is a single-writer state machine — vertex failures, restart timers,
// and forced suspension are serialized through one per-graph event queue,
// with leadership revocation always jumping that queue.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers. Leadership sessions are TypeIDs too, which makes session
// generations totally ordered and stale sessions cheap to detect.
package steward
