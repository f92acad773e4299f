package observability

import (
	"log/slog"
	"time"

	"github.com/stewardlabs/steward/graph"
	"github.com/stewardlabs/steward/id"
)

// Compile-time interface check.
var _ graph.StatusListener = (*LoggingListener)(nil)

// LoggingListener logs every job status change.
type LoggingListener struct {
	logger *slog.Logger
}

// NewLoggingListener creates a listener that logs status changes to the
// given logger. A nil logger falls back to slog.Default.
func NewLoggingListener(logger *slog.Logger) *LoggingListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingListener{logger: logger}
}

// OnStatusChange implements graph.StatusListener.
func (l *LoggingListener) OnStatusChange(jobID id.JobID, status graph.Status, at time.Time, cause error) {
	attrs := []any{
		slog.String("job_id", jobID.String()),
		slog.String("status", string(status)),
		slog.Time("at", at),
	}

	switch {
	case cause != nil:
		attrs = append(attrs, slog.String("cause", cause.Error()))
		l.logger.Error("job status changed", attrs...)
	case status == graph.StatusSuspended:
		l.logger.Warn("job suspended", attrs...)
	default:
		l.logger.Info("job status changed", attrs...)
	}
}
