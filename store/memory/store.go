// Package memory implements leader.Store in process memory. It is the
// backend for embedded single-process deployments and tests; leases are
// lost on restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/stewardlabs/steward/id"
	"github.com/stewardlabs/steward/leader"
)

// Compile-time interface check.
var _ leader.Store = (*Store)(nil)

// Store is an in-memory leadership lease store. Safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	lease       *leader.Leadership
	leaderUntil time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{}
}

// AcquireLeadership attempts to take the lease for lease.NodeID.
func (m *Store) AcquireLeadership(_ context.Context, lease *leader.Leadership, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()

	// An unexpired lease held by another node blocks acquisition.
	if m.lease != nil && m.leaderUntil.After(now) && m.lease.NodeID != lease.NodeID {
		return false, nil
	}

	held := *lease
	held.AcquiredAt = now
	held.ExpiresAt = now.Add(ttl)
	m.lease = &held
	m.leaderUntil = held.ExpiresAt
	return true, nil
}

// RenewLeadership extends the leader's hold. Returns false if the node no
// longer holds an unexpired lease.
func (m *Store) RenewLeadership(_ context.Context, nodeID id.NodeID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if m.lease == nil || m.lease.NodeID != nodeID || !m.leaderUntil.After(now) {
		return false, nil
	}

	m.leaderUntil = now.Add(ttl)
	m.lease.ExpiresAt = m.leaderUntil
	return true, nil
}

// ResignLeadership releases the lease if held by the given node.
func (m *Store) ResignLeadership(_ context.Context, nodeID id.NodeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lease != nil && m.lease.NodeID == nodeID {
		m.lease = nil
		m.leaderUntil = time.Time{}
	}
	return nil
}

// Leader returns the current unexpired leadership record, or nil.
func (m *Store) Leader(_ context.Context) (*leader.Leadership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lease == nil || !m.leaderUntil.After(time.Now().UTC()) {
		return nil, nil
	}
	lease := *m.lease
	return &lease, nil
}
