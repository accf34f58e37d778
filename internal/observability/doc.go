// Package observability provides logging, metrics, and context helpers for
// the interaction miner.
//
// # Logging
//
// Create a logger from configuration and derive job-scoped children:
//
//	logger := observability.NewLogger(observability.DefaultLoggingConfig())
//	jobLog := observability.WithJobContext(logger, jobID, workspaceID, topic)
//	jobLog.Info().Msg("job started")
//
// Identifiers stored on a context can be attached to any logger:
//
//	ctx = observability.WithJob(ctx, jobID, workspaceID)
//	logger := observability.LoggerWithContext(ctx, base)
//	logger.Debug().Msg("node entered")
//
// # Metrics
//
//	metrics := observability.NewMetrics("interaction_miner")
//	metrics.RecordJobStarted()
//	metrics.RecordNode("check_relevance")
//
// # Standard Fields
//
//   - job_id: extraction job identifier
//   - workspace_id: grouping scope of the job
//   - topic: variable of interest
//   - node: workflow node name
//   - doi / pmid: paper identifiers
//   - workflow_id / workflow_run_id: Temporal execution identifiers
//
// All components are safe for concurrent use from multiple goroutines.
package observability
