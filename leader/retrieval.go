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

// Listener receives leader-change notifications from a Retrieval service.
type Listener interface {
	// OnLeaderUpdate is called with the leader's address and session.
	// Notifications arrive in session order: a listener never observes an
	// older session after a newer one.
	OnLeaderUpdate(address string, session id.SessionID)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(address string, session id.SessionID)

// OnLeaderUpdate implements Listener.
func (f ListenerFunc) OnLeaderUpdate(address string, session id.SessionID) {
	f(address, session)
}

// RetrievalOption configures a Retrieval service.
type RetrievalOption func(*Retrieval)

// WithRetrievalLogger sets a custom logger.
func WithRetrievalLogger(l *slog.Logger) RetrievalOption {
	return func(r *Retrieval) { r.logger = l }
}

// WithRetrievalConfig overrides the retrieval timing configuration.
func WithRetrievalConfig(cfg steward.Config) RetrievalOption {
	return func(r *Retrieval) { r.cfg = cfg }
}

// Retrieval broadcasts the current leader's address and session to any
// number of registered listeners. It can be fed directly via Notify, or
// poll a lease Store via Start.
type Retrieval struct {
	store  Store // may be nil for push-only use
	cfg    steward.Config
	logger *slog.Logger

	// mu serializes registration and delivery, which is what guarantees
	// each listener an ordered receipt sequence.
	mu          sync.Mutex
	listeners   []Listener
	lastAddress string
	lastSession id.SessionID

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewRetrieval creates a retrieval service. store may be nil when all
// notifications arrive through Notify.
func NewRetrieval(store Store, opts ...RetrievalOption) *Retrieval {
	r := &Retrieval{
		store:  store,
		cfg:    steward.DefaultConfig(),
		logger: slog.Default(),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterListener adds a listener. Any number may register. A listener
// registered after a notification has been delivered receives the current
// leader immediately, so late joiners do not wait for the next change.
func (r *Retrieval) RegisterListener(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listeners = append(r.listeners, l)
	if !r.lastSession.IsNil() {
		l.OnLeaderUpdate(r.lastAddress, r.lastSession)
	}
}

// UnregisterListener removes a listener. Once it returns, no further
// delivery is guaranteed; a notification already in flight may still be
// delivered at most once more.
func (r *Retrieval) UnregisterListener(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, reg := range r.listeners {
		if reg == l {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return
		}
	}
}

// Notify broadcasts a leader update to all registered listeners. A
// notification carrying a session older than one already delivered is
// dropped, so concurrent callers cannot reorder the receipt sequence.
func (r *Retrieval) Notify(address string, session id.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lastSession.Newer(session) {
		r.logger.Debug("dropping stale leader notification",
			slog.String("session", session.String()),
			slog.String("current", r.lastSession.String()),
		)
		return
	}
	if session == r.lastSession && address == r.lastAddress {
		return
	}
	r.lastAddress = address
	r.lastSession = session

	for _, l := range r.listeners {
		l.OnLeaderUpdate(address, session)
	}
}

// Leader returns the current leader's address and session. When a lease
// store is configured it is consulted directly; otherwise the last
// notified leader is returned. Returns steward.ErrNoLeader if no leader
// is known.
func (r *Retrieval) Leader(ctx context.Context) (string, id.SessionID, error) {
	if r.store != nil {
		lead, err := r.store.Leader(ctx)
		if err != nil {
			return "", id.Nil, fmt.Errorf("leader: retrieval: %w", err)
		}
		if lead != nil {
			return lead.Address, lead.Session, nil
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastSession.IsNil() {
		return "", id.Nil, fmt.Errorf("leader: retrieval: %w", steward.ErrNoLeader)
	}
	return r.lastAddress, r.lastSession, nil
}

// Start launches a polling loop against the lease store, feeding Notify
// whenever the leader record changes. It returns immediately.
func (r *Retrieval) Start(_ context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.running {
		return nil
	}
	if r.store == nil {
		return nil // push-only: nothing to poll
	}
	r.running = true

	r.wg.Add(1)
	go r.pollLoop()
	return nil
}

// Stop halts the polling loop.
func (r *Retrieval) Stop(ctx context.Context) error {
	r.runMu.Lock()
	if !r.running {
		r.runMu.Unlock()
		return nil
	}
	r.running = false
	r.runMu.Unlock()

	close(r.stopCh)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Retrieval) pollLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.RetrievalPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.poll()
		}
	}
}

func (r *Retrieval) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.RetrievalPollInterval)
	defer cancel()

	lead, err := r.store.Leader(ctx)
	if err != nil {
		r.logger.Warn("leader poll failed", slog.String("error", err.Error()))
		return
	}
	if lead == nil {
		return
	}
	r.Notify(lead.Address, lead.Session)
}
