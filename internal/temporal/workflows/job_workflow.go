package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/helixir/interaction-miner/internal/domain"
	litemporal "github.com/helixir/interaction-miner/internal/temporal"
	"github.com/helixir/interaction-miner/internal/temporal/activities"
	"github.com/helixir/interaction-miner/internal/temporal/resilience"
)

// Re-exported so callers of this package need not import the parent.
const (
	SignalStop  = litemporal.SignalStop
	QueryStatus = litemporal.QueryStatus
)

const (
	statusActivityTimeout = 30 * time.Second

	// defaultRunTimeout bounds ExecuteJob when the workflow has no
	// execution timeout of its own.
	defaultRunTimeout = 2 * time.Hour

	// runHeartbeatTimeout must comfortably exceed the activity's heartbeat
	// interval. It is how fast a dead worker is noticed.
	runHeartbeatTimeout = 2 * time.Minute
)

// JobWorkflowInput is the shared input type from the parent package.
type JobWorkflowInput = litemporal.JobWorkflowInput

// JobWorkflowResult is the shared result type from the parent package.
type JobWorkflowResult = litemporal.JobWorkflowResult

// workflowStatus is exposed via the status query.
type workflowStatus struct {
	Phase         string
	StopSignalled bool
	Result        *JobWorkflowResult
}

// JobWorkflow runs one job: it starts it, executes the engine in a single
// heartbeating activity and returns the terminal outcome. The stop signal
// sets the job's persisted stop flag, which the engine reads at its next
// node boundary. When the run activity is lost the job is recorded as
// interrupted so that it never stays running.
func JobWorkflow(ctx workflow.Context, input JobWorkflowInput) (*JobWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	status := &workflowStatus{Phase: "starting"}

	if err := workflow.SetQueryHandler(ctx, QueryStatus, func() (*workflowStatus, error) {
		return status, nil
	}); err != nil {
		return nil, fmt.Errorf("register query handler: %w", err)
	}

	var act *activities.JobActivities
	jobInput := activities.JobInput{JobID: input.JobID}

	statusCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: statusActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    500 * time.Millisecond,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    5,
		},
	})

	runTimeout := defaultRunTimeout
	if t := workflow.GetInfo(ctx).WorkflowExecutionTimeout; t > 0 {
		runTimeout = t
	}
	// The engine is not resumable mid-run, so ExecuteJob is never retried.
	runCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: runTimeout,
		HeartbeatTimeout:    runHeartbeatTimeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	if err := workflow.ExecuteActivity(statusCtx, act.StartJob, jobInput).Get(ctx, nil); err != nil {
		logger.Error("failed to start job", "jobID", input.JobID, "error", err)
		return nil, err
	}
	status.Phase = "running"

	stopCh := workflow.GetSignalChannel(ctx, SignalStop)
	workflow.Go(ctx, func(gCtx workflow.Context) {
		for {
			var sig StopSignal
			if !stopCh.Receive(gCtx, &sig) {
				return
			}
			if status.StopSignalled {
				continue
			}
			status.StopSignalled = true
			logger.Info("received stop signal", "jobID", input.JobID, "reason", sig.Reason)
			if err := workflow.ExecuteActivity(statusCtx, act.RequestStop, jobInput).Get(gCtx, nil); err != nil {
				logger.Warn("failed to set stop flag", "jobID", input.JobID, "error", err)
			}
		}
	})

	var result JobWorkflowResult
	err := workflow.ExecuteActivity(runCtx, act.ExecuteJob, jobInput).Get(ctx, &result)
	if err != nil {
		logger.Error("job run lost", "jobID", input.JobID, "error", err)
		status.Phase = "abandoned"

		// Someone else owns the job; leave its status alone.
		if resilience.IsErrorType(err, resilience.ErrTypeJobState) {
			return nil, err
		}
		if aerr := workflow.ExecuteActivity(statusCtx, act.AbandonJob, jobInput).Get(ctx, nil); aerr != nil {
			logger.Error("failed to record abandoned job", "jobID", input.JobID, "error", aerr)
		}
		return &JobWorkflowResult{
			Status:       domain.JobStatusFailed,
			ErrorMessage: domain.InterruptedMessage,
		}, nil
	}

	status.Phase = "finished"
	status.Result = &result
	logger.Info("job workflow finished",
		"jobID", input.JobID,
		"status", result.Status,
		"interactionsFound", result.InteractionsFound,
	)
	return &result, nil
}
