// Package graph implements the per-job execution state machine.
//
// An [ExecutionGraph] is bound 1:1 to a submitted [Job]. It owns the
// per-vertex execution states, aggregates them into a job [Status], and
// reacts to two independent event sources: vertex failure/completion
// reports and forced suspension triggered by leadership loss.
//
// # Single-writer event queue
//
// Every event affecting a graph — vertex reports, restart-timer firings,
// cancellation, suspension — is serialized through one per-graph event
// queue drained by exactly one goroutine, so no two transitions race.
// Suspension is the one event class that preempts: it is pushed to the
// front of the queue and any pending restart timer is actively stopped,
// which bounds the time to reach [StatusSuspended] regardless of how many
// failure/restart cycles were in flight.
//
// # Status transitions
//
// The status set and its legal transitions form a strict state machine
// (see [CanTransition]); [StatusFinished], [StatusCanceled],
// [StatusFailed], and [StatusSuspended] are absorbing. Suspension carries
// no cause — that is what lets a newly elected leader tell "job needs
// resubmission" apart from "job genuinely failed".
package graph
