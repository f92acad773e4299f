// Package leader provides the leader election and retrieval services that
// drive a steward coordinator.
//
// # Election
//
// An [Election] campaigns for leadership over a lease [Store]
// (in-memory, Redis, Postgres, or Kubernetes — see the store subpackages).
// At most one [Contender] may be registered per election instance. When
// the lease is won, the election mints a fresh leadership session and
// invokes GrantLeadership exactly once for it; when renewal fails or the
// election stops, it invokes RevokeLeadership. Sessions are
// generation-ordered TypeIDs: a session minted later always compares
// newer, so every component can reject stale-tagged messages with a
// single comparison.
//
// [StandaloneElection] is the embedded/single-process variant: it grants
// immediately with no store behind it (useful for tests and dev mode).
//
// # Retrieval
//
// A [Retrieval] service broadcasts "who is currently leader" to any
// number of registered listeners, guaranteeing that no listener observes
// an older session after a newer one. It can be fed manually via Notify
// or poll a lease Store.
package leader
