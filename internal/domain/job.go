package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle states of an extraction job.
// These values must match the database enum job_status.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// StopMessage is the error message recorded on a job that ended because a
// stop was requested. It is the only thing that distinguishes a user stop
// from a genuine failure.
const StopMessage = "Stopped by user"

// StuckMessage is recorded by the sweeper on jobs that stayed running past
// the configured deadline.
const StuckMessage = "Job timed out or crashed"

// InterruptedMessage is recorded when the worker shut down mid-run.
const InterruptedMessage = "Job interrupted"

// IsTerminal returns true if the status will not change again.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsValid reports whether s is a known status.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// validJobTransitions lists the statuses reachable from each status.
// A pending job may fail directly when it could not be dispatched.
var validJobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending: {JobStatusRunning, JobStatusFailed},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed},
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range validJobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// LogEntry is one timestamped line in a job's user-visible log.
type LogEntry struct {
	At      time.Time `json:"at"`
	Step    string    `json:"step"`
	Message string    `json:"message"`
}

// String renders the entry as "[15:04:05] [STEP] message".
func (e LogEntry) String() string {
	return fmt.Sprintf("[%s] [%s] %s", e.At.Format("15:04:05"), e.Step, e.Message)
}

// Job is one user-initiated extraction run for a single topic.
type Job struct {
	ID              uuid.UUID `json:"id"`
	WorkspaceID     uuid.UUID `json:"workspace_id"`
	Topic           string    `json:"topic"`
	MinInteractions int       `json:"min_interactions"`

	Status            JobStatus  `json:"status"`
	InteractionsFound int        `json:"interactions_found"`
	PapersChecked     int        `json:"papers_checked"`
	CurrentStep       string     `json:"current_step"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	Logs              []LogEntry `json:"logs"`
	StopRequested     bool       `json:"stop_requested"`

	// TemporalWorkflowID is set when the job was dispatched to Temporal.
	TemporalWorkflowID string `json:"temporal_workflow_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsActive returns true while the job has not reached a terminal status.
func (j *Job) IsActive() bool {
	return !j.Status.IsTerminal()
}

// WasStopped reports whether the job ended because of a stop request.
func (j *Job) WasStopped() bool {
	return j.Status == JobStatusFailed && j.ErrorMessage == StopMessage
}

// Duration returns the elapsed run time, or zero if the job never started.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(*j.StartedAt)
	}
	return time.Since(*j.StartedAt)
}

// LogText joins all log entries into one newline-separated block.
func (j *Job) LogText() string {
	var b strings.Builder
	for _, e := range j.Logs {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// JobStatusReport is the read model returned to callers polling a job.
type JobStatusReport struct {
	ID                uuid.UUID  `json:"id"`
	Topic             string     `json:"topic"`
	Status            JobStatus  `json:"status"`
	InteractionsFound int        `json:"interactions_found"`
	MinInteractions   int        `json:"min_interactions"`
	PapersChecked     int        `json:"papers_checked"`
	CurrentStep       string     `json:"current_step"`
	Logs              []LogEntry `json:"logs"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	StopRequested     bool       `json:"stop_requested"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// Report builds the status read model for j.
func (j *Job) Report() JobStatusReport {
	return JobStatusReport{
		ID:                j.ID,
		Topic:             j.Topic,
		Status:            j.Status,
		InteractionsFound: j.InteractionsFound,
		MinInteractions:   j.MinInteractions,
		PapersChecked:     j.PapersChecked,
		CurrentStep:       j.CurrentStep,
		Logs:              j.Logs,
		ErrorMessage:      j.ErrorMessage,
		StopRequested:     j.StopRequested,
		StartedAt:         j.StartedAt,
		CompletedAt:       j.CompletedAt,
	}
}

// ProgressUpdate is one log-worthy event together with the counter deltas it
// causes. Repositories apply the entry and the deltas in a single write so a
// reader never sees one without the other.
type ProgressUpdate struct {
	Entry                  LogEntry
	InteractionsFoundDelta int
	PapersCheckedDelta     int
}

// JobOutcome is the terminal result of one job run.
type JobOutcome struct {
	Status            JobStatus
	ErrorMessage      string
	InteractionsFound int
	PapersChecked     int
	Summary           string
}
