package temporal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/interaction-miner/internal/domain"
)

// workflowStarter is the part of JobClient the dispatcher needs.
type workflowStarter interface {
	StartJob(ctx context.Context, jobID uuid.UUID) (string, error)
}

// workflowRecorder stores the workflow ID on the job row.
type workflowRecorder interface {
	SetWorkflowID(ctx context.Context, id uuid.UUID, workflowID string) error
}

// Dispatcher hands pending jobs to Temporal. The job stays pending until
// the workflow's StartJob activity claims it.
type Dispatcher struct {
	starter  workflowStarter
	recorder workflowRecorder
	logger   zerolog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(starter workflowStarter, recorder workflowRecorder, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		starter:  starter,
		recorder: recorder,
		logger:   logger.With().Str("component", "temporal_dispatcher").Logger(),
	}
}

// Dispatch starts the job's workflow. A workflow that is already running
// for the job is not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, job *domain.Job) error {
	workflowID, err := d.starter.StartJob(ctx, job.ID)
	switch {
	case errors.Is(err, ErrWorkflowAlreadyStarted):
		d.logger.Debug().Str("job_id", job.ID.String()).Msg("workflow already started")
		return nil
	case err != nil:
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}

	if err := d.recorder.SetWorkflowID(ctx, job.ID, workflowID); err != nil {
		// The workflow runs regardless; the ID only aids inspection.
		d.logger.Warn().Err(err).Str("job_id", job.ID.String()).Msg("failed to record workflow id")
	}
	d.logger.Info().
		Str("job_id", job.ID.String()).
		Str("workflow_id", workflowID).
		Msg("job dispatched to temporal")
	return nil
}
