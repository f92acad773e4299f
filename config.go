package steward

import "time"

// Config holds timing configuration shared by the leader election and
// retrieval services.
type Config struct {
	// LeaseTTL is how long an acquired leadership lease remains valid
	// without renewal.
	LeaseTTL time.Duration

	// RenewInterval is how often the current leader renews its lease.
	// Must be shorter than LeaseTTL or leadership will flap.
	RenewInterval time.Duration

	// CampaignInterval is how often a non-leader retries lease acquisition.
	CampaignInterval time.Duration

	// RetrievalPollInterval is how often the retrieval service polls the
	// lease store for leader changes.
	RetrievalPollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LeaseTTL:              15 * time.Second,
		RenewInterval:         5 * time.Second,
		CampaignInterval:      2 * time.Second,
		RetrievalPollInterval: 2 * time.Second,
		ShutdownTimeout:       30 * time.Second,
	}
}
