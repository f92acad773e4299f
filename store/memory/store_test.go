package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stewardlabs/steward/id"
	"github.com/stewardlabs/steward/leader"
	"github.com/stewardlabs/steward/store/memory"
)

func newLease(nodeID id.NodeID) *leader.Leadership {
	return &leader.Leadership{
		NodeID:  nodeID,
		Address: "127.0.0.1:6123",
		Session: id.NewSessionID(),
	}
}

func TestAcquireLeadership_FirstNodeWins(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	n1, n2 := id.NewNodeID(), id.NewNodeID()

	ok, err := s.AcquireLeadership(ctx, newLease(n1), time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Fatal("first acquire did not win")
	}

	ok, err = s.AcquireLeadership(ctx, newLease(n2), time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if ok {
		t.Fatal("second node acquired an unexpired lease")
	}
}

func TestAcquireLeadership_ExpiredLeaseIsTakeable(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	n1, n2 := id.NewNodeID(), id.NewNodeID()

	if ok, _ := s.AcquireLeadership(ctx, newLease(n1), 10*time.Millisecond); !ok {
		t.Fatal("first acquire did not win")
	}
	time.Sleep(20 * time.Millisecond)

	ok, err := s.AcquireLeadership(ctx, newLease(n2), time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Fatal("expired lease was not takeable")
	}
}

func TestRenewLeadership(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	n1, n2 := id.NewNodeID(), id.NewNodeID()

	if ok, _ := s.AcquireLeadership(ctx, newLease(n1), time.Minute); !ok {
		t.Fatal("acquire did not win")
	}

	ok, err := s.RenewLeadership(ctx, n1, time.Minute)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if !ok {
		t.Error("holder failed to renew")
	}

	if ok, _ := s.RenewLeadership(ctx, n2, time.Minute); ok {
		t.Error("non-holder renewed the lease")
	}
}

func TestRenewLeadership_ExpiredLeaseIsLost(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	n1 := id.NewNodeID()

	if ok, _ := s.AcquireLeadership(ctx, newLease(n1), 10*time.Millisecond); !ok {
		t.Fatal("acquire did not win")
	}
	time.Sleep(20 * time.Millisecond)

	if ok, _ := s.RenewLeadership(ctx, n1, time.Minute); ok {
		t.Error("renewed a lease that had already expired")
	}
}

func TestResignLeadership(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	n1, n2 := id.NewNodeID(), id.NewNodeID()

	if ok, _ := s.AcquireLeadership(ctx, newLease(n1), time.Minute); !ok {
		t.Fatal("acquire did not win")
	}

	// Resign by a non-holder is a no-op.
	if err := s.ResignLeadership(ctx, n2); err != nil {
		t.Fatalf("resign: %v", err)
	}
	if lead, _ := s.Leader(ctx); lead == nil {
		t.Fatal("non-holder resign cleared the lease")
	}

	if err := s.ResignLeadership(ctx, n1); err != nil {
		t.Fatalf("resign: %v", err)
	}
	lead, err := s.Leader(ctx)
	if err != nil {
		t.Fatalf("leader: %v", err)
	}
	if lead != nil {
		t.Error("lease survived holder resign")
	}

	// The lease is immediately takeable again.
	if ok, _ := s.AcquireLeadership(ctx, newLease(n2), time.Minute); !ok {
		t.Error("released lease was not takeable")
	}
}

func TestLeader_ReturnsRecord(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	lead, err := s.Leader(ctx)
	if err != nil {
		t.Fatalf("leader: %v", err)
	}
	if lead != nil {
		t.Fatal("empty store reported a leader")
	}

	in := newLease(id.NewNodeID())
	if ok, _ := s.AcquireLeadership(ctx, in, time.Minute); !ok {
		t.Fatal("acquire did not win")
	}

	lead, err = s.Leader(ctx)
	if err != nil {
		t.Fatalf("leader: %v", err)
	}
	if lead == nil {
		t.Fatal("no leader after acquire")
	}
	if lead.NodeID != in.NodeID {
		t.Errorf("leader node = %s, want %s", lead.NodeID, in.NodeID)
	}
	if lead.Session != in.Session {
		t.Errorf("leader session = %s, want %s", lead.Session, in.Session)
	}
	if lead.Address != in.Address {
		t.Errorf("leader address = %q, want %q", lead.Address, in.Address)
	}
	if !lead.ExpiresAt.After(time.Now().UTC()) {
		t.Error("lease expiry not in the future")
	}
}
