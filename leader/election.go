package leader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stewardlabs/steward"
	"github.com/stewardlabs/steward/id"
)

// Option configures an Election.
type Option func(*Election)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Election) { e.logger = l }
}

// WithConfig overrides the election's timing configuration.
func WithConfig(cfg steward.Config) Option {
	return func(e *Election) { e.cfg = cfg }
}

// WithNodeID sets the node identity used for lease ownership. A fresh
// node ID is generated if not set.
func WithNodeID(nodeID id.NodeID) Option {
	return func(e *Election) { e.nodeID = nodeID }
}

// Election campaigns for leadership over a lease Store and delivers
// grant/revoke callbacks to its registered contender.
type Election struct {
	store   Store
	nodeID  id.NodeID
	address string
	cfg     steward.Config
	logger  *slog.Logger

	mu        sync.Mutex
	contender Contender
	session   id.SessionID // session granted to the contender; Nil when not leading
	running   bool
	stopCh    chan struct{} // recreated on every Start

	// lastRenew is the time of the last successful acquire or renewal.
	// Touched only by the campaign goroutine.
	lastRenew time.Time

	wg sync.WaitGroup
}

// NewElection creates an election service. address is the advertised
// address of this node, published to the store so retrieval listeners can
// locate the leader.
func NewElection(store Store, address string, opts ...Option) *Election {
	e := &Election{
		store:   store,
		nodeID:  id.NewNodeID(),
		address: address,
		cfg:     steward.DefaultConfig(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NodeID returns the node identity this election campaigns as.
func (e *Election) NodeID() id.NodeID { return e.nodeID }

// RegisterContender registers the contender receiving grant/revoke
// callbacks. At most one contender may be registered at a time;
// registering a second returns steward.ErrContenderRegistered.
func (e *Election) RegisterContender(c Contender) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.contender != nil {
		return fmt.Errorf("leader: election for node %s: %w", e.nodeID, steward.ErrContenderRegistered)
	}
	e.contender = c
	return nil
}

// DeregisterContender removes the current contender, revoking its
// leadership first if it holds any.
func (e *Election) DeregisterContender(ctx context.Context) error {
	e.mu.Lock()
	c := e.contender
	leading := !e.session.IsNil()
	e.contender = nil
	e.session = id.Nil
	e.mu.Unlock()

	if c != nil && leading {
		return c.RevokeLeadership(ctx)
	}
	return nil
}

// Start launches the campaign loop. It returns immediately. An election
// stopped with Stop may be started again.
func (e *Election) Start(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.contender == nil {
		return fmt.Errorf("leader: election for node %s: no contender registered", e.nodeID)
	}
	if e.running {
		return nil
	}
	e.running = true
	e.stopCh = make(chan struct{})

	e.logger.Info("election starting",
		slog.String("node_id", e.nodeID.String()),
		slog.String("address", e.address),
	)

	e.wg.Add(1)
	go e.campaign(e.stopCh)
	return nil
}

// Stop halts the campaign, resigning and revoking leadership if held.
func (e *Election) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	stopCh := e.stopCh
	e.mu.Unlock()

	close(stopCh)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	e.mu.Lock()
	c := e.contender
	leading := !e.session.IsNil()
	e.session = id.Nil
	e.mu.Unlock()

	if leading {
		if err := e.store.ResignLeadership(ctx, e.nodeID); err != nil {
			e.logger.Warn("resign leadership failed", slog.String("error", err.Error()))
		}
		if c != nil {
			return c.RevokeLeadership(ctx)
		}
	}
	return nil
}

// campaign alternates between trying to acquire the lease and renewing it.
func (e *Election) campaign(stopCh <-chan struct{}) {
	defer e.wg.Done()

	for {
		leading := e.isLeading()

		interval := e.cfg.CampaignInterval
		if leading {
			interval = e.cfg.RenewInterval
		}

		select {
		case <-stopCh:
			return
		case <-time.After(interval):
		}

		if e.isLeading() {
			e.renew()
		} else {
			e.acquire()
		}
	}
}

func (e *Election) isLeading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.session.IsNil()
}

func (e *Election) acquire() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.LeaseTTL)
	defer cancel()

	session := id.NewSessionID()
	now := time.Now().UTC()
	lease := &Leadership{
		NodeID:     e.nodeID,
		Address:    e.address,
		Session:    session,
		AcquiredAt: now,
		ExpiresAt:  now.Add(e.cfg.LeaseTTL),
	}

	ok, err := e.store.AcquireLeadership(ctx, lease, e.cfg.LeaseTTL)
	if err != nil {
		e.logger.Warn("lease acquisition failed",
			slog.String("node_id", e.nodeID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if !ok {
		return
	}

	e.mu.Lock()
	c := e.contender
	e.session = session
	e.mu.Unlock()
	e.lastRenew = time.Now().UTC()

	e.logger.Info("leadership granted",
		slog.String("node_id", e.nodeID.String()),
		slog.String("session", session.String()),
	)

	if c != nil {
		if grantErr := c.GrantLeadership(ctx, session); grantErr != nil {
			e.logger.Error("contender rejected leadership grant",
				slog.String("session", session.String()),
				slog.String("error", grantErr.Error()),
			)
		}
	}
}

func (e *Election) renew() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.LeaseTTL)
	defer cancel()

	ok, err := e.store.RenewLeadership(ctx, e.nodeID, e.cfg.LeaseTTL)
	if err == nil && ok {
		e.lastRenew = time.Now().UTC()
		return
	}
	if err != nil {
		e.logger.Warn("lease renewal errored",
			slog.String("node_id", e.nodeID.String()),
			slog.String("error", err.Error()),
		)
		// A single failed round trip is not a revocation. But once a full
		// TTL passes without a successful renewal the lease has expired
		// server-side and another node may already hold it, so the store
		// being unreachable must demote us the same as a lost lease.
		if time.Since(e.lastRenew) < e.cfg.LeaseTTL {
			return
		}
	}

	// Lease lost: revoke before anything else can act on the old session.
	e.mu.Lock()
	c := e.contender
	session := e.session
	e.session = id.Nil
	e.mu.Unlock()

	e.logger.Warn("leadership lost",
		slog.String("node_id", e.nodeID.String()),
		slog.String("session", session.String()),
	)

	if c != nil {
		if revokeErr := c.RevokeLeadership(ctx); revokeErr != nil {
			e.logger.Error("contender revoke failed", slog.String("error", revokeErr.Error()))
		}
	}
}
