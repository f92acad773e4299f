package leader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stewardlabs/steward"
	"github.com/stewardlabs/steward/id"
)

// StandaloneElection is the single-process election: it has no store and
// no competition, so it grants leadership immediately on Start and only
// revokes on Stop or an explicit Revoke. Use it for embedded deployments
// and tests; the grant/revoke contract is identical to Election's.
type StandaloneElection struct {
	logger *slog.Logger

	mu        sync.Mutex
	contender Contender
	session   id.SessionID
}

// NewStandaloneElection creates a standalone election service.
func NewStandaloneElection(logger *slog.Logger) *StandaloneElection {
	if logger == nil {
		logger = slog.Default()
	}
	return &StandaloneElection{logger: logger}
}

// RegisterContender registers the contender. At most one may be
// registered; a second returns steward.ErrContenderRegistered.
func (s *StandaloneElection) RegisterContender(c Contender) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contender != nil {
		return fmt.Errorf("leader: standalone election: %w", steward.ErrContenderRegistered)
	}
	s.contender = c
	return nil
}

// Start grants leadership to the registered contender with a fresh
// session.
func (s *StandaloneElection) Start(ctx context.Context) error {
	return s.Grant(ctx)
}

// Stop revokes leadership if granted.
func (s *StandaloneElection) Stop(ctx context.Context) error {
	return s.Revoke(ctx)
}

// Grant mints a new session and grants it to the contender. Each call
// produces a session strictly newer than the previous one.
func (s *StandaloneElection) Grant(ctx context.Context) error {
	s.mu.Lock()
	c := s.contender
	if c == nil {
		s.mu.Unlock()
		return fmt.Errorf("leader: standalone election: no contender registered")
	}
	session := id.NewSessionID()
	s.session = session
	s.mu.Unlock()

	s.logger.Info("leadership granted", slog.String("session", session.String()))
	return c.GrantLeadership(ctx, session)
}

// Revoke strips the contender of leadership. Revoking without a prior
// grant is a no-op.
func (s *StandaloneElection) Revoke(ctx context.Context) error {
	s.mu.Lock()
	c := s.contender
	session := s.session
	s.session = id.Nil
	s.mu.Unlock()

	if c == nil || session.IsNil() {
		return nil
	}

	s.logger.Info("leadership revoked", slog.String("session", session.String()))
	return c.RevokeLeadership(ctx)
}

// Session returns the currently granted session, or the Nil ID.
func (s *StandaloneElection) Session() id.SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}
