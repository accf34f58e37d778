// Package jobs owns the job lifecycle: creation, dispatch onto a bounded
// pool or Temporal, cooperative stop, status reads, and the background
// poller and sweeper that keep the jobs table consistent.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/interaction-miner/internal/domain"
	"github.com/helixir/interaction-miner/internal/events"
	"github.com/helixir/interaction-miner/internal/repository"
)

// CreateJobInput is the request to create a job.
type CreateJobInput struct {
	Topic string `validate:"required,max=500"`
	// MinInteractions is the stop target. Zero uses the configured default.
	MinInteractions int `validate:"gte=0,lte=10000"`
	// WorkspaceID places the job. Nil uses the default workspace.
	WorkspaceID *uuid.UUID
}

// ControllerConfig holds job defaults.
type ControllerConfig struct {
	DefaultMinInteractions int
	DefaultWorkspace       string
}

// Controller is the entry point for managing jobs.
type Controller struct {
	jobs         repository.JobRepository
	interactions repository.InteractionRepository
	workspaces   repository.WorkspaceRepository
	dispatcher   Dispatcher
	events       *events.Emitter
	validate     *validator.Validate
	cfg          ControllerConfig
	logger       zerolog.Logger
	clock        func() time.Time
}

// NewController creates a Controller. dispatcher may be nil for read-only
// and administrative use, in which case RunJobAsync fails.
func NewController(
	jobs repository.JobRepository,
	interactions repository.InteractionRepository,
	workspaces repository.WorkspaceRepository,
	dispatcher Dispatcher,
	emitter *events.Emitter,
	cfg ControllerConfig,
	logger zerolog.Logger,
) *Controller {
	if cfg.DefaultMinInteractions <= 0 {
		cfg.DefaultMinInteractions = 5
	}
	if cfg.DefaultWorkspace == "" {
		cfg.DefaultWorkspace = domain.DefaultWorkspaceName
	}
	return &Controller{
		jobs:         jobs,
		interactions: interactions,
		workspaces:   workspaces,
		dispatcher:   dispatcher,
		events:       emitter,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		cfg:          cfg,
		logger:       logger.With().Str("component", "job_controller").Logger(),
		clock:        time.Now,
	}
}

// CreateJob persists a new pending job and returns it. It does not start it.
func (c *Controller) CreateJob(ctx context.Context, in CreateJobInput) (*domain.Job, error) {
	in.Topic = strings.TrimSpace(in.Topic)
	if err := c.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	if in.MinInteractions == 0 {
		in.MinInteractions = c.cfg.DefaultMinInteractions
	}

	var workspaceID uuid.UUID
	if in.WorkspaceID != nil {
		workspaceID = *in.WorkspaceID
	} else {
		ws, err := c.EnsureDefaultWorkspace(ctx)
		if err != nil {
			return nil, err
		}
		workspaceID = ws.ID
	}

	now := c.clock()
	job := &domain.Job{
		ID:              uuid.New(),
		WorkspaceID:     workspaceID,
		Topic:           in.Topic,
		MinInteractions: in.MinInteractions,
		Status:          domain.JobStatusPending,
		CurrentStep:     "Job created",
		Logs:            []domain.LogEntry{{At: now, Step: "CREATE", Message: fmt.Sprintf("Job created for %q (target %d interactions)", in.Topic, in.MinInteractions)}},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	c.logger.Info().
		Str("job_id", job.ID.String()).
		Str("workspace_id", job.WorkspaceID.String()).
		Str("topic", job.Topic).
		Int("min_interactions", job.MinInteractions).
		Msg("job created")
	c.events.JobCreated(ctx, job)
	return job, nil
}

// RunJobAsync hands a pending job to the dispatcher and returns at once.
func (c *Controller) RunJobAsync(ctx context.Context, id uuid.UUID) error {
	if c.dispatcher == nil {
		return fmt.Errorf("%w: no job dispatcher configured", domain.ErrServiceUnavailable)
	}
	job, err := c.jobs.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusPending {
		return fmt.Errorf("%w: job %s is %s", domain.ErrInvalidStatusTransition, id, job.Status)
	}
	if err := c.dispatcher.Dispatch(ctx, job); err != nil {
		return fmt.Errorf("dispatch job: %w", err)
	}
	return nil
}

// StartJob creates a job and dispatches it.
func (c *Controller) StartJob(ctx context.Context, in CreateJobInput) (*domain.Job, error) {
	job, err := c.CreateJob(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := c.RunJobAsync(ctx, job.ID); err != nil {
		return job, err
	}
	return job, nil
}

// RequestStop asks a running job to stop at its next node boundary.
// Returns domain.ErrJobNotRunning if the job is not running.
func (c *Controller) RequestStop(ctx context.Context, id uuid.UUID) error {
	entry := domain.LogEntry{At: c.clock(), Step: "STOP", Message: "Stop requested by user"}
	if err := c.jobs.RequestStop(ctx, id, entry); err != nil {
		return err
	}
	c.logger.Info().Str("job_id", id.String()).Msg("stop requested")
	return nil
}

// GetJobStatus returns the current read model of a job.
func (c *Controller) GetJobStatus(ctx context.Context, id uuid.UUID) (domain.JobStatusReport, error) {
	job, err := c.jobs.Get(ctx, id)
	if err != nil {
		return domain.JobStatusReport{}, err
	}
	return job.Report(), nil
}

// ListJobs returns jobs newest first.
func (c *Controller) ListJobs(ctx context.Context, filter repository.JobFilter) ([]*domain.Job, int64, error) {
	return c.jobs.List(ctx, filter)
}

// ListInteractions returns stored interactions for a job or a workspace.
func (c *Controller) ListInteractions(ctx context.Context, filter domain.InteractionFilter) ([]*domain.Interaction, int64, error) {
	return c.interactions.List(ctx, filter)
}

// DeleteJob removes a job and its interactions. A running job is refused
// with domain.ErrJobRunning unless force is set.
func (c *Controller) DeleteJob(ctx context.Context, id uuid.UUID, force bool) error {
	if err := c.jobs.Delete(ctx, id, force); err != nil {
		return err
	}
	c.logger.Info().Str("job_id", id.String()).Bool("force", force).Msg("job deleted")
	return nil
}

// EnsureDefaultWorkspace returns the default workspace, creating it on first use.
func (c *Controller) EnsureDefaultWorkspace(ctx context.Context) (*domain.Workspace, error) {
	ws, err := c.workspaces.EnsureByName(ctx, c.cfg.DefaultWorkspace, "Default workspace")
	if err != nil {
		return nil, fmt.Errorf("ensure default workspace: %w", err)
	}
	return ws, nil
}

// CreateWorkspace creates a named workspace.
func (c *Controller) CreateWorkspace(ctx context.Context, name, description string) (*domain.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewValidationError("name", "workspace name is required")
	}
	now := c.clock()
	ws := &domain.Workspace{ID: uuid.New(), Name: name, Description: description, CreatedAt: now, UpdatedAt: now}
	if err := c.workspaces.Create(ctx, ws); err != nil {
		return nil, err
	}
	return ws, nil
}

// ListWorkspaces returns every workspace with job and interaction counts.
func (c *Controller) ListWorkspaces(ctx context.Context) ([]domain.WorkspaceSummary, error) {
	return c.workspaces.List(ctx)
}

// validationError converts validator output to a domain.ValidationError on
// the first failing field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.NewValidationError("input", err.Error())
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	if fe.Field() == "MinInteractions" {
		field = "min_interactions"
	}
	switch fe.Tag() {
	case "required":
		return domain.NewValidationError(field, "is required")
	case "max", "lte":
		return domain.NewValidationError(field, "must be at most "+fe.Param())
	case "gte":
		return domain.NewValidationError(field, "must be at least "+fe.Param())
	default:
		return domain.NewValidationError(field, "failed "+fe.Tag()+" validation")
	}
}
