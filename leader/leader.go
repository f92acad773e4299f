package leader

import (
	"context"
	"time"

	"github.com/stewardlabs/steward/id"
)

// Contender is the component that can be granted or stripped of leadership
// by an election service. The steward coordinator is the canonical
// implementation.
type Contender interface {
	// GrantLeadership is invoked exactly once per newly won session, with
	// the session strictly newer than any previously granted one.
	GrantLeadership(ctx context.Context, session id.SessionID) error

	// RevokeLeadership is invoked when leadership is lost. It must return
	// promptly: the election service calls it even while the contender is
	// mid-way through handling a grant or a job event, and the contender
	// must issue no further side effects tagged with the revoked session.
	RevokeLeadership(ctx context.Context) error
}

// Leadership is the record describing one node's hold on leadership.
type Leadership struct {
	// NodeID identifies the leading node.
	NodeID id.NodeID `json:"node_id"`
	// Address is where the leader can be reached.
	Address string `json:"address"`
	// Session is the leadership session minted for this hold.
	Session id.SessionID `json:"session"`
	// AcquiredAt is when the lease was first acquired.
	AcquiredAt time.Time `json:"acquired_at"`
	// ExpiresAt is when the lease lapses unless renewed.
	ExpiresAt time.Time `json:"expires_at"`
}

// Store defines the persistence contract for leadership leases. A store
// does not decide consensus itself — it is the already-decided source of
// truth an election campaigns against.
type Store interface {
	// AcquireLeadership attempts to take the lease for lease.NodeID.
	// Returns true if the node is now leader. The lease expires after ttl
	// if not renewed.
	AcquireLeadership(ctx context.Context, lease *Leadership, ttl time.Duration) (bool, error)

	// RenewLeadership extends the current leader's hold. Returns false if
	// the node no longer holds the lease.
	RenewLeadership(ctx context.Context, nodeID id.NodeID, ttl time.Duration) (bool, error)

	// ResignLeadership releases the lease if held by the given node.
	ResignLeadership(ctx context.Context, nodeID id.NodeID) error

	// Leader returns the current leadership record, or nil if there is no
	// unexpired leader.
	Leader(ctx context.Context) (*Leadership, error)
}
