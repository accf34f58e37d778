package temporal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"

	"github.com/helixir/interaction-miner/internal/domain"
)

// Names shared by the workflow implementation and its callers. They live
// here rather than in the workflows package so callers do not depend on it.
const (
	// WorkflowTypeJob is the registered name of the job workflow.
	WorkflowTypeJob = "JobWorkflow"

	// SignalStop asks a job workflow to stop at the next node boundary.
	SignalStop = "stop"

	// QueryStatus returns the workflow's view of the job.
	QueryStatus = "status"
)

// DefaultHealthCheckTimeout is the timeout for Temporal server health checks.
const DefaultHealthCheckTimeout = 5 * time.Second

var (
	// ErrWorkflowNotFound indicates the workflow execution was not found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowAlreadyStarted indicates a workflow with the same ID is already running.
	ErrWorkflowAlreadyStarted = errors.New("workflow already started")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("client closed")

	// ErrConnectionFailed indicates a connection failure to the Temporal server.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrDeadlineExceeded indicates the operation deadline was exceeded.
	ErrDeadlineExceeded = errors.New("deadline exceeded")
)

// TemporalError wraps a Temporal error with the operation and workflow it
// concerns.
type TemporalError struct {
	Op         string
	Kind       error
	WorkflowID string
	Err        error
}

// Error returns the error message.
func (e *TemporalError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.WorkflowID != "" {
		msg += fmt.Sprintf(" [workflowID=%s]", e.WorkflowID)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *TemporalError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error's Kind.
func (e *TemporalError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

func wrapTemporalError(op string, err error, workflowID string) error {
	if err == nil {
		return nil
	}

	te := &TemporalError{Op: op, WorkflowID: workflowID, Err: err}

	var notFoundErr *serviceerror.NotFound
	var alreadyStartedErr *serviceerror.WorkflowExecutionAlreadyStarted
	var deadlineExceededErr *serviceerror.DeadlineExceeded

	switch {
	case errors.As(err, &notFoundErr):
		te.Kind = ErrWorkflowNotFound
	case errors.As(err, &alreadyStartedErr):
		te.Kind = ErrWorkflowAlreadyStarted
	case errors.As(err, &deadlineExceededErr), errors.Is(err, context.DeadlineExceeded):
		te.Kind = ErrDeadlineExceeded
	case errors.Is(err, context.Canceled):
		te.Kind = ErrClientClosed
	default:
		te.Kind = ErrConnectionFailed
	}
	return te
}

// IsWorkflowNotFound checks if the error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsWorkflowAlreadyStarted checks if the error indicates a workflow already started.
func IsWorkflowAlreadyStarted(err error) bool {
	return errors.Is(err, ErrWorkflowAlreadyStarted)
}

// ClientConfig contains configuration for the Temporal client.
type ClientConfig struct {
	// HostPort is the Temporal server address (e.g., "localhost:7233").
	HostPort string

	// Namespace is the Temporal namespace to use.
	Namespace string

	// TaskQueue is the task queue job workflows are started on.
	TaskQueue string

	// ExecutionTimeout caps a whole job workflow. It should match the stuck
	// job deadline so that Temporal and the sweeper agree.
	ExecutionTimeout time.Duration
}

// NewClient dials the Temporal server.
func NewClient(cfg ClientConfig, logger log.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create Temporal client: %w", err)
	}
	return c, nil
}

// JobWorkflowInput starts a job workflow. The job row must already exist.
type JobWorkflowInput struct {
	JobID uuid.UUID `json:"job_id"`
}

// JobWorkflowResult is the terminal outcome reported by a job workflow.
type JobWorkflowResult struct {
	Status            domain.JobStatus `json:"status"`
	InteractionsFound int              `json:"interactions_found"`
	PapersChecked     int              `json:"papers_checked"`
	ErrorMessage      string           `json:"error_message,omitempty"`
}

// JobWorkflowID returns the deterministic workflow ID for a job, so a
// second dispatch of the same job is rejected by Temporal.
func JobWorkflowID(jobID uuid.UUID) string {
	return "job-" + jobID.String()
}

// JobClient starts and signals job workflows.
type JobClient struct {
	mu                 sync.RWMutex
	client             client.Client
	taskQueue          string
	executionTimeout   time.Duration
	healthCheckTimeout time.Duration
	closed             bool
}

// NewJobClient creates a JobClient.
func NewJobClient(c client.Client, cfg ClientConfig) *JobClient {
	return &JobClient{
		client:             c,
		taskQueue:          cfg.TaskQueue,
		executionTimeout:   cfg.ExecutionTimeout,
		healthCheckTimeout: DefaultHealthCheckTimeout,
	}
}

// Close closes the underlying Temporal client connection.
func (c *JobClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && !c.closed {
		c.client.Close()
		c.closed = true
	}
}

func (c *JobClient) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Health checks the connection to the Temporal server.
func (c *JobClient) Health(ctx context.Context) error {
	if c.isClosed() {
		return &TemporalError{Op: "Health", Kind: ErrClientClosed}
	}
	checkCtx, cancel := context.WithTimeout(ctx, c.healthCheckTimeout)
	defer cancel()

	if _, err := c.client.CheckHealth(checkCtx, &client.CheckHealthRequest{}); err != nil {
		return wrapTemporalError("Health", err, "")
	}
	return nil
}

// StartJob starts the workflow for jobID and returns its workflow ID.
func (c *JobClient) StartJob(ctx context.Context, jobID uuid.UUID) (string, error) {
	workflowID := JobWorkflowID(jobID)
	if c.isClosed() {
		return "", &TemporalError{Op: "StartJob", Kind: ErrClientClosed, WorkflowID: workflowID}
	}

	options := client.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                c.taskQueue,
		WorkflowExecutionTimeout: c.executionTimeout,
	}
	if _, err := c.client.ExecuteWorkflow(ctx, options, WorkflowTypeJob, JobWorkflowInput{JobID: jobID}); err != nil {
		return "", wrapTemporalError("StartJob", err, workflowID)
	}
	return workflowID, nil
}

// SignalStop sends the stop signal to a job's workflow.
func (c *JobClient) SignalStop(ctx context.Context, workflowID string) error {
	if c.isClosed() {
		return &TemporalError{Op: "SignalStop", Kind: ErrClientClosed, WorkflowID: workflowID}
	}
	if err := c.client.SignalWorkflow(ctx, workflowID, "", SignalStop, nil); err != nil {
		return wrapTemporalError("SignalStop", err, workflowID)
	}
	return nil
}

// TaskQueue returns the configured task queue name.
func (c *JobClient) TaskQueue() string {
	return c.taskQueue
}
