package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/interaction-miner/internal/domain"
)

// JobRepository persists extraction jobs and their progress.
type JobRepository interface {
	// Create inserts a new pending job.
	// Returns domain.ErrAlreadyExists if a job with the same ID exists and
	// domain.ErrNotFound if the workspace does not exist.
	Create(ctx context.Context, job *domain.Job) error

	// Get retrieves a job with its full log.
	// Returns domain.ErrNotFound if no matching job exists.
	Get(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// List retrieves jobs newest first. Logs are not loaded.
	List(ctx context.Context, filter JobFilter) ([]*domain.Job, int64, error)

	// Start moves a pending job to running and appends entry.
	// Returns domain.ErrInvalidStatusTransition if the job is not pending.
	Start(ctx context.Context, id uuid.UUID, entry domain.LogEntry) (*domain.Job, error)

	// ClaimPending atomically moves up to limit pending jobs, oldest first,
	// to running. Rows locked by another claimer are skipped.
	ClaimPending(ctx context.Context, limit int, entry domain.LogEntry) ([]*domain.Job, error)

	// AppendProgress appends the update's log entry, sets current_step to its
	// message and applies the counter deltas in one statement.
	AppendProgress(ctx context.Context, id uuid.UUID, update domain.ProgressUpdate) error

	// RequestStop sets stop_requested on a running job and appends entry.
	// Returns domain.ErrJobNotRunning if the job exists but is not running.
	RequestStop(ctx context.Context, id uuid.UUID, entry domain.LogEntry) error

	// IsStopRequested reads the stop flag.
	IsStopRequested(ctx context.Context, id uuid.UUID) (bool, error)

	// Finish moves a running job to its terminal status and appends entry.
	// Returns domain.ErrInvalidStatusTransition if the job is not running.
	Finish(ctx context.Context, id uuid.UUID, outcome domain.JobOutcome, entry domain.LogEntry) error

	// SetWorkflowID records the Temporal workflow that runs the job.
	SetWorkflowID(ctx context.Context, id uuid.UUID, workflowID string) error

	// Delete removes a job and, by cascade, its interactions. A running job
	// is only deleted when force is set; otherwise domain.ErrJobRunning.
	Delete(ctx context.Context, id uuid.UUID, force bool) error

	// ListStuck returns running jobs started before cutoff.
	ListStuck(ctx context.Context, cutoff time.Time) ([]*domain.Job, error)

	// FailStuck fails every running job started before cutoff with message
	// and returns the IDs it changed.
	FailStuck(ctx context.Context, cutoff time.Time, message string, entry domain.LogEntry) ([]uuid.UUID, error)
}

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	// WorkspaceID narrows to one workspace (optional).
	WorkspaceID *uuid.UUID

	// Status filters by one or more statuses (optional).
	Status []domain.JobStatus

	// Limit specifies maximum number of results (default: 100, max: 1000).
	Limit int

	// Offset specifies the starting position for pagination.
	Offset int
}

// Validate checks status values and applies pagination defaults.
func (f *JobFilter) Validate() error {
	for _, s := range f.Status {
		if !s.IsValid() {
			return domain.NewValidationError("status", "unknown job status "+string(s))
		}
	}
	applyPaginationDefaults(&f.Limit, &f.Offset)
	return nil
}
