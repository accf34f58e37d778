package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants for job lifecycle events.
const (
	EventTypeJobCreated        = "job.created"
	EventTypeJobStarted        = "job.started"
	EventTypeJobCompleted      = "job.completed"
	EventTypeJobFailed         = "job.failed"
	EventTypeInteractionStored = "interaction.stored"
)

// Event is a job lifecycle event published to the message bus.
type Event struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	JobID       uuid.UUID       `json:"job_id"`
	WorkspaceID uuid.UUID       `json:"workspace_id"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewEvent creates an event with a JSON-serialized payload.
func NewEvent(eventType string, job *Job, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		EventID:     uuid.New().String(),
		EventType:   eventType,
		JobID:       job.ID,
		WorkspaceID: job.WorkspaceID,
		Payload:     payloadBytes,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// JobCreatedPayload is the payload for job.created events.
type JobCreatedPayload struct {
	Topic           string `json:"topic"`
	MinInteractions int    `json:"min_interactions"`
}

// JobStartedPayload is the payload for job.started events.
type JobStartedPayload struct {
	Topic string `json:"topic"`
}

// JobFinishedPayload is the payload for job.completed and job.failed events.
type JobFinishedPayload struct {
	Status            JobStatus     `json:"status"`
	InteractionsFound int           `json:"interactions_found"`
	PapersChecked     int           `json:"papers_checked"`
	ErrorMessage      string        `json:"error_message,omitempty"`
	Stopped           bool          `json:"stopped"`
	Duration          time.Duration `json:"duration_ns"`
}

// InteractionStoredPayload is the payload for interaction.stored events.
type InteractionStoredPayload struct {
	InteractionID       uuid.UUID `json:"interaction_id"`
	IndependentVariable string    `json:"independent_variable"`
	DependentVariable   string    `json:"dependent_variable"`
	Effect              Effect    `json:"effect"`
	Reference           string    `json:"reference"`
}
