package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/helixir/interaction-miner/internal/domain"
)

const jobColumns = `id, workspace_id, topic, min_interactions, status,
		interactions_found, papers_checked, current_step, error_message, logs,
		stop_requested, temporal_workflow_id,
		created_at, updated_at, started_at, completed_at`

// Compile-time interface verification.
var _ JobRepository = (*PgJobRepository)(nil)

// PgJobRepository is a PostgreSQL implementation of JobRepository.
type PgJobRepository struct {
	db  DBTX
	now func() time.Time
}

// NewPgJobRepository creates a new PostgreSQL job repository.
func NewPgJobRepository(db DBTX) *PgJobRepository {
	return &PgJobRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a new pending job.
func (r *PgJobRepository) Create(ctx context.Context, job *domain.Job) error {
	if job == nil {
		return domain.NewValidationError("job", "job cannot be nil")
	}
	if job.ID == uuid.Nil {
		return domain.NewValidationError("id", "job ID is required")
	}
	if job.WorkspaceID == uuid.Nil {
		return domain.NewValidationError("workspace_id", "workspace ID is required")
	}
	if strings.TrimSpace(job.Topic) == "" {
		return domain.NewValidationError("topic", "topic is required")
	}
	if job.MinInteractions <= 0 {
		return domain.NewValidationError("min_interactions", "must be positive")
	}

	logs, err := marshalLogs(job.Logs)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO jobs (
			id, workspace_id, topic, min_interactions, status,
			current_step, logs, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9)`

	_, err = r.db.Exec(ctx, query,
		job.ID, job.WorkspaceID, job.Topic, job.MinInteractions, job.Status,
		job.CurrentStep, logs, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		switch {
		case isPgUniqueViolation(err):
			return domain.NewAlreadyExistsError("job", job.ID.String())
		case isPgForeignKeyViolation(err):
			return domain.NewNotFoundError("workspace", job.WorkspaceID.String())
		}
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID.
func (r *PgJobRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("job", id.String())
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// List retrieves jobs matching the filter, newest first.
func (r *PgJobRepository) List(ctx context.Context, filter JobFilter) ([]*domain.Job, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	conditions := []string{"TRUE"}
	args := []interface{}{}
	argIndex := 1

	if filter.WorkspaceID != nil {
		conditions = append(conditions, fmt.Sprintf("workspace_id = $%d", argIndex))
		args = append(args, *filter.WorkspaceID)
		argIndex++
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, s)
			argIndex++
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}
	whereClause := strings.Join(conditions, " AND ")

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM jobs WHERE "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	// Logs are replaced by an empty array to keep list pages small.
	query := fmt.Sprintf(`
		SELECT id, workspace_id, topic, min_interactions, status,
			interactions_found, papers_checked, current_step, error_message, '[]'::jsonb,
			stop_requested, temporal_workflow_id,
			created_at, updated_at, started_at, completed_at
		FROM jobs
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, whereClause, argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan jobs: %w", err)
	}
	return jobs, total, nil
}

// Start moves a pending job to running.
func (r *PgJobRepository) Start(ctx context.Context, id uuid.UUID, entry domain.LogEntry) (*domain.Job, error) {
	logs, err := marshalLogs([]domain.LogEntry{entry})
	if err != nil {
		return nil, err
	}
	now := r.now()

	query := `
		UPDATE jobs SET
			status = 'running',
			started_at = $2,
			updated_at = $2,
			logs = logs || $3::jsonb,
			current_step = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + jobColumns

	job, err := scanJob(r.db.QueryRow(ctx, query, id, now, logs, entry.Message))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.transitionError(ctx, id, domain.JobStatusRunning)
		}
		return nil, fmt.Errorf("failed to start job: %w", err)
	}
	return job, nil
}

// ClaimPending moves up to limit pending jobs to running.
func (r *PgJobRepository) ClaimPending(ctx context.Context, limit int, entry domain.LogEntry) ([]*domain.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	logs, err := marshalLogs([]domain.LogEntry{entry})
	if err != nil {
		return nil, err
	}
	now := r.now()

	query := `
		UPDATE jobs SET
			status = 'running',
			started_at = $2,
			updated_at = $2,
			logs = logs || $3::jsonb,
			current_step = $4
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	rows, err := r.db.Query(ctx, query, limit, now, logs, entry.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending jobs: %w", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan claimed jobs: %w", err)
	}
	return jobs, nil
}

// AppendProgress applies one progress update atomically. Only running jobs
// accept progress; a job failed by the sweeper reports ErrJobNotRunning.
func (r *PgJobRepository) AppendProgress(ctx context.Context, id uuid.UUID, update domain.ProgressUpdate) error {
	if update.InteractionsFoundDelta < 0 || update.PapersCheckedDelta < 0 {
		return domain.NewValidationError("delta", "progress counters never decrease")
	}
	logs, err := marshalLogs([]domain.LogEntry{update.Entry})
	if err != nil {
		return err
	}

	query := `
		UPDATE jobs SET
			logs = logs || $2::jsonb,
			current_step = $3,
			interactions_found = interactions_found + $4,
			papers_checked = papers_checked + $5,
			updated_at = $6
		WHERE id = $1 AND status = 'running'`

	result, err := r.db.Exec(ctx, query,
		id, logs, update.Entry.Message,
		update.InteractionsFoundDelta, update.PapersCheckedDelta,
		r.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to append job progress: %w", err)
	}
	if result.RowsAffected() == 0 {
		status, err := r.statusOf(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("job %s is %s: %w", id, status, domain.ErrJobNotRunning)
	}
	return nil
}

// RequestStop flags a running job for cooperative cancellation.
func (r *PgJobRepository) RequestStop(ctx context.Context, id uuid.UUID, entry domain.LogEntry) error {
	logs, err := marshalLogs([]domain.LogEntry{entry})
	if err != nil {
		return err
	}

	query := `
		UPDATE jobs SET
			stop_requested = TRUE,
			logs = logs || $2::jsonb,
			current_step = $3,
			updated_at = $4
		WHERE id = $1 AND status = 'running'`

	result, err := r.db.Exec(ctx, query, id, logs, entry.Message, r.now())
	if err != nil {
		return fmt.Errorf("failed to request stop: %w", err)
	}
	if result.RowsAffected() == 0 {
		status, err := r.statusOf(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("job %s is %s: %w", id, status, domain.ErrJobNotRunning)
	}
	return nil
}

// IsStopRequested reads the stop flag.
func (r *PgJobRepository) IsStopRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var stop bool
	err := r.db.QueryRow(ctx, `SELECT stop_requested FROM jobs WHERE id = $1`, id).Scan(&stop)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, domain.NewNotFoundError("job", id.String())
		}
		return false, fmt.Errorf("failed to read stop flag: %w", err)
	}
	return stop, nil
}

// Finish records the terminal status of a running job.
func (r *PgJobRepository) Finish(ctx context.Context, id uuid.UUID, outcome domain.JobOutcome, entry domain.LogEntry) error {
	if !outcome.Status.IsTerminal() {
		return domain.NewValidationError("status", "finish requires a terminal status")
	}
	logs, err := marshalLogs([]domain.LogEntry{entry})
	if err != nil {
		return err
	}
	now := r.now()

	query := `
		UPDATE jobs SET
			status = $2,
			error_message = $3,
			logs = logs || $4::jsonb,
			current_step = $5,
			completed_at = $6,
			updated_at = $6
		WHERE id = $1 AND status = 'running'`

	result, err := r.db.Exec(ctx, query,
		id, outcome.Status, nullString(outcome.ErrorMessage),
		logs, entry.Message, now,
	)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.transitionError(ctx, id, outcome.Status)
	}
	return nil
}

// SetWorkflowID records the Temporal workflow ID.
func (r *PgJobRepository) SetWorkflowID(ctx context.Context, id uuid.UUID, workflowID string) error {
	result, err := r.db.Exec(ctx,
		`UPDATE jobs SET temporal_workflow_id = $2, updated_at = $3 WHERE id = $1`,
		id, nullString(workflowID), r.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to set workflow id: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("job", id.String())
	}
	return nil
}

// Delete removes a job and its interactions.
func (r *PgJobRepository) Delete(ctx context.Context, id uuid.UUID, force bool) error {
	result, err := r.db.Exec(ctx,
		`DELETE FROM jobs WHERE id = $1 AND ($2 OR status <> 'running')`,
		id, force,
	)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if result.RowsAffected() == 0 {
		if _, err := r.statusOf(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("job %s: %w", id, domain.ErrJobRunning)
	}
	return nil
}

// ListStuck returns running jobs started before cutoff.
func (r *PgJobRepository) ListStuck(ctx context.Context, cutoff time.Time) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = 'running' AND started_at < $1
		ORDER BY started_at`

	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck jobs: %w", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan stuck jobs: %w", err)
	}
	return jobs, nil
}

// FailStuck fails running jobs started before cutoff and raises their stop
// flag, so a worker still driving one halts at its next node boundary.
func (r *PgJobRepository) FailStuck(ctx context.Context, cutoff time.Time, message string, entry domain.LogEntry) ([]uuid.UUID, error) {
	logs, err := marshalLogs([]domain.LogEntry{entry})
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE jobs SET
			status = 'failed',
			stop_requested = TRUE,
			error_message = $2,
			logs = logs || $3::jsonb,
			current_step = $4,
			completed_at = $5,
			updated_at = $5
		WHERE status = 'running' AND started_at < $1
		RETURNING id`

	rows, err := r.db.Query(ctx, query, cutoff, message, logs, entry.Message, r.now())
	if err != nil {
		return nil, fmt.Errorf("failed to fail stuck jobs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan stuck job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stuck jobs: %w", err)
	}
	return ids, nil
}

// statusOf returns the job's status, or a not-found error.
func (r *PgJobRepository) statusOf(ctx context.Context, id uuid.UUID) (domain.JobStatus, error) {
	var status domain.JobStatus
	err := r.db.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.NewNotFoundError("job", id.String())
		}
		return "", fmt.Errorf("failed to read job status: %w", err)
	}
	return status, nil
}

func (r *PgJobRepository) transitionError(ctx context.Context, id uuid.UUID, to domain.JobStatus) error {
	from, err := r.statusOf(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("job %s from %s to %s: %w", id, from, to, domain.ErrInvalidStatusTransition)
}

func marshalLogs(entries []domain.LogEntry) (string, error) {
	if entries == nil {
		entries = []domain.LogEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job logs: %w", err)
	}
	return string(data), nil
}

// jobScanDest holds the destination pointers for scanning a job row.
type jobScanDest struct {
	job                domain.Job
	errorMessage       *string
	logsJSON           []byte
	temporalWorkflowID *string
}

func (d *jobScanDest) destinations() []interface{} {
	return []interface{}{
		&d.job.ID, &d.job.WorkspaceID, &d.job.Topic, &d.job.MinInteractions, &d.job.Status,
		&d.job.InteractionsFound, &d.job.PapersChecked, &d.job.CurrentStep, &d.errorMessage, &d.logsJSON,
		&d.job.StopRequested, &d.temporalWorkflowID,
		&d.job.CreatedAt, &d.job.UpdatedAt, &d.job.StartedAt, &d.job.CompletedAt,
	}
}

func (d *jobScanDest) finalize() (*domain.Job, error) {
	d.job.ErrorMessage = derefString(d.errorMessage)
	d.job.TemporalWorkflowID = derefString(d.temporalWorkflowID)
	d.job.Logs = []domain.LogEntry{}
	if len(d.logsJSON) > 0 {
		if err := json.Unmarshal(d.logsJSON, &d.job.Logs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job logs: %w", err)
		}
	}
	return &d.job, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var dest jobScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

func collectJobs(rows pgx.Rows) ([]*domain.Job, error) {
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		var dest jobScanDest
		if err := rows.Scan(dest.destinations()...); err != nil {
			return nil, err
		}
		job, err := dest.finalize()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
