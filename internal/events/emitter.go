package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/interaction-miner/internal/domain"
)

// publishTimeout bounds each publish so a slow broker cannot hold a job.
const publishTimeout = 5 * time.Second

// Emitter builds typed job events and hands them to a Publisher.
type Emitter struct {
	publisher Publisher
	logger    zerolog.Logger
}

// NewEmitter creates an Emitter. A nil publisher behaves like NopPublisher.
func NewEmitter(publisher Publisher, logger zerolog.Logger) *Emitter {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Emitter{
		publisher: publisher,
		logger:    logger.With().Str("component", "event_emitter").Logger(),
	}
}

// Emit publishes one event for job. Failures are logged, not returned.
func (e *Emitter) Emit(ctx context.Context, eventType string, job *domain.Job, payload interface{}) {
	if e == nil {
		return
	}
	event, err := domain.NewEvent(eventType, job, payload)
	if err != nil {
		e.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to build event")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn().Err(err).
			Str("event_type", eventType).
			Str("job_id", job.ID.String()).
			Msg("failed to publish event")
	}
}

// JobCreated emits job.created.
func (e *Emitter) JobCreated(ctx context.Context, job *domain.Job) {
	e.Emit(ctx, domain.EventTypeJobCreated, job, domain.JobCreatedPayload{
		Topic:           job.Topic,
		MinInteractions: job.MinInteractions,
	})
}

// JobStarted emits job.started.
func (e *Emitter) JobStarted(ctx context.Context, job *domain.Job) {
	e.Emit(ctx, domain.EventTypeJobStarted, job, domain.JobStartedPayload{Topic: job.Topic})
}

// JobFinished emits job.completed or job.failed according to outcome.
func (e *Emitter) JobFinished(ctx context.Context, job *domain.Job, outcome domain.JobOutcome, duration time.Duration) {
	eventType := domain.EventTypeJobCompleted
	if outcome.Status == domain.JobStatusFailed {
		eventType = domain.EventTypeJobFailed
	}
	e.Emit(ctx, eventType, job, domain.JobFinishedPayload{
		Status:            outcome.Status,
		InteractionsFound: outcome.InteractionsFound,
		PapersChecked:     outcome.PapersChecked,
		ErrorMessage:      outcome.ErrorMessage,
		Stopped:           outcome.ErrorMessage == domain.StopMessage,
		Duration:          duration,
	})
}

// InteractionStored emits interaction.stored.
func (e *Emitter) InteractionStored(ctx context.Context, job *domain.Job, interaction domain.Interaction) {
	e.Emit(ctx, domain.EventTypeInteractionStored, job, domain.InteractionStoredPayload{
		InteractionID:       interaction.ID,
		IndependentVariable: interaction.IndependentVariable,
		DependentVariable:   interaction.DependentVariable,
		Effect:              interaction.Effect,
		Reference:           interaction.Reference,
	})
}
