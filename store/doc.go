// Package store groups the lease store backends for leader election and
// retrieval.
//
// The contract each backend implements is [leader.Store]: acquire, renew,
// and resign a single leadership lease, and read back the current leader
// record (node, address, session, expiry).
//
// # Available Backends
//
//   - store/memory — in-process store for embedded mode and testing
//   - store/redis — Redis backend (SET NX lease with TTL)
//   - store/postgres — PostgreSQL backend using pgx/v5
//   - store/k8s — Kubernetes backend using the coordination/v1 Lease API
//
// # Usage
//
//	import "github.com/stewardlabs/steward/store/redis"
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	election := leader.NewElection(s, "node-a:6123")
//
// The Postgres backend needs its schema created once at startup:
//
//	if err := s.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package store
