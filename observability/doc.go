// Package observability provides ready-made graph status listeners for
// logging and metrics.
//
// LoggingListener emits a structured slog record for every job status
// change. MetricsListener records transition counts and time-to-terminal
// histograms through OpenTelemetry. Both attach to an execution graph via
// RegisterStatusListener, or fleet-wide through the coordinator:
//
//	coord := coordinator.New(coordinator.WithGraphOptions(
//		graph.WithStatusListener(observability.NewLoggingListener(logger)),
//		graph.WithStatusListener(observability.NewMetricsListener()),
//	))
package observability
