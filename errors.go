package steward

import "errors"

var (
	// Leadership errors.
	ErrNotLeader           = errors.New("steward: not the leader")
	ErrStaleSession        = errors.New("steward: stale leadership session")
	ErrNoLeader            = errors.New("steward: no leader elected")
	ErrContenderRegistered = errors.New("steward: contender already registered")

	// Job errors.
	ErrJobNotFound      = errors.New("steward: job not found")
	ErrJobAlreadyExists = errors.New("steward: job already exists")
	ErrEmptyTopology    = errors.New("steward: job topology has no vertices")

	// State errors.
	ErrInvalidTransition = errors.New("steward: invalid status transition")
	ErrRestartExhausted  = errors.New("steward: restart attempts exhausted")
)
