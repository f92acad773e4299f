// Package redis implements leader.Store using Redis. The lease is a
// single key written with SET NX and a TTL, so expiry is enforced by
// Redis itself and a crashed leader frees the lease without any reaper.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	election := leader.NewElection(s, "node-a:6123")
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/stewardlabs/steward/id"
	"github.com/stewardlabs/steward/leader"
)

// Compile-time interface check.
var _ leader.Store = (*Store)(nil)

// leaderKey holds the JSON-encoded leadership record.
const leaderKey = "steward:leader"

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements leader.Store backed by Redis.
type Store struct {
	client goredis.Cmdable
	logger *slog.Logger
}

// New creates a Redis-backed lease store. The caller owns the Redis
// client lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// AcquireLeadership attempts to take the lease with SET NX + TTL.
func (s *Store) AcquireLeadership(ctx context.Context, lease *leader.Leadership, ttl time.Duration) (bool, error) {
	held := *lease
	now := time.Now().UTC()
	held.AcquiredAt = now
	held.ExpiresAt = now.Add(ttl)

	payload, err := json.Marshal(&held)
	if err != nil {
		return false, fmt.Errorf("steward/redis: marshal lease: %w", err)
	}

	ok, err := s.client.SetNX(ctx, leaderKey, payload, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("steward/redis: acquire leadership setnx: %w", err)
	}
	if ok {
		return true, nil
	}

	// Check if we already hold it; re-acquire extends the TTL but keeps
	// the stored session.
	current, err := s.leadership(ctx)
	if err != nil {
		return false, err
	}
	if current != nil && current.NodeID == lease.NodeID {
		if eErr := s.client.Expire(ctx, leaderKey, ttl).Err(); eErr != nil {
			s.logger.Warn("failed to extend leader key ttl", slog.String("error", eErr.Error()))
		}
		return true, nil
	}

	return false, nil
}

// RenewLeadership extends the leader's hold by refreshing the key TTL.
func (s *Store) RenewLeadership(ctx context.Context, nodeID id.NodeID, ttl time.Duration) (bool, error) {
	current, err := s.leadership(ctx)
	if err != nil {
		return false, err
	}
	if current == nil || current.NodeID != nodeID {
		return false, nil
	}

	current.ExpiresAt = time.Now().UTC().Add(ttl)
	payload, err := json.Marshal(current)
	if err != nil {
		return false, fmt.Errorf("steward/redis: marshal lease: %w", err)
	}
	if err := s.client.Set(ctx, leaderKey, payload, ttl).Err(); err != nil {
		return false, fmt.Errorf("steward/redis: renew leadership set: %w", err)
	}
	return true, nil
}

// ResignLeadership deletes the lease if held by the given node.
func (s *Store) ResignLeadership(ctx context.Context, nodeID id.NodeID) error {
	current, err := s.leadership(ctx)
	if err != nil {
		return err
	}
	if current == nil || current.NodeID != nodeID {
		return nil
	}
	if err := s.client.Del(ctx, leaderKey).Err(); err != nil {
		return fmt.Errorf("steward/redis: resign leadership del: %w", err)
	}
	return nil
}

// Leader returns the current leadership record, or nil if the key is
// absent (expired leases disappear with their TTL).
func (s *Store) Leader(ctx context.Context) (*leader.Leadership, error) {
	return s.leadership(ctx)
}

func (s *Store) leadership(ctx context.Context) (*leader.Leadership, error) {
	raw, err := s.client.Get(ctx, leaderKey).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil // no leader
		}
		return nil, fmt.Errorf("steward/redis: get leader: %w", err)
	}

	var lease leader.Leadership
	if err := json.Unmarshal(raw, &lease); err != nil {
		return nil, fmt.Errorf("steward/redis: decode lease: %w", err)
	}
	return &lease, nil
}
