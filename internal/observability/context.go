package observability

import (
	"context"

	"github.com/rs/zerolog"
)

// Context keys for observability data.
type contextKey string

const (
	jobIDKey       contextKey = "job_id"
	workspaceIDKey contextKey = "workspace_id"
	workflowIDKey  contextKey = "workflow_id"
	runIDKey       contextKey = "workflow_run_id"
)

// WithJob adds job and workspace IDs to the context.
func WithJob(ctx context.Context, jobID, workspaceID string) context.Context {
	ctx = context.WithValue(ctx, jobIDKey, jobID)
	ctx = context.WithValue(ctx, workspaceIDKey, workspaceID)
	return ctx
}

// JobFromContext retrieves job and workspace IDs from context.
// Returns empty strings if not present.
func JobFromContext(ctx context.Context) (jobID, workspaceID string) {
	return stringValue(ctx, jobIDKey), stringValue(ctx, workspaceIDKey)
}

// WithWorkflow adds workflow ID and run ID to the context.
func WithWorkflow(ctx context.Context, workflowID, runID string) context.Context {
	ctx = context.WithValue(ctx, workflowIDKey, workflowID)
	ctx = context.WithValue(ctx, runIDKey, runID)
	return ctx
}

// WorkflowFromContext retrieves workflow ID and run ID from context.
// Returns empty strings if not present.
func WorkflowFromContext(ctx context.Context) (workflowID, runID string) {
	return stringValue(ctx, workflowIDKey), stringValue(ctx, runIDKey)
}

// LoggerWithContext returns base enriched with every identifier carried by ctx.
func LoggerWithContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	lc := base.With()
	if id := stringValue(ctx, jobIDKey); id != "" {
		lc = lc.Str("job_id", id)
	}
	if id := stringValue(ctx, workspaceIDKey); id != "" {
		lc = lc.Str("workspace_id", id)
	}
	if id := stringValue(ctx, workflowIDKey); id != "" {
		lc = lc.Str("workflow_id", id)
	}
	if id := stringValue(ctx, runIDKey); id != "" {
		lc = lc.Str("workflow_run_id", id)
	}
	return lc.Logger()
}

func stringValue(ctx context.Context, key contextKey) string {
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
