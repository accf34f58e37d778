// Package control consumes job control commands from Kafka so that jobs can
// be stopped or started by processes that do not share the worker's
// database connection.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/interaction-miner/internal/domain"
)

// Command types accepted on the control topic.
const (
	CommandStop = "stop"
	CommandRun  = "run"
)

// Command is one control message.
type Command struct {
	Type  string    `json:"type"`
	JobID uuid.UUID `json:"job_id"`
}

// Handler applies control commands. *jobs.Controller satisfies it.
type Handler interface {
	RequestStop(ctx context.Context, id uuid.UUID) error
	RunJobAsync(ctx context.Context, id uuid.UUID) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Config holds configuration for the control listener.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the Kafka topic carrying control commands.
	Topic string
	// GroupID is the consumer group ID.
	GroupID string
}

// Listener consumes control commands and applies them through a Handler.
type Listener struct {
	reader  messageReader
	handler Handler
	logger  zerolog.Logger
}

// NewListener creates a control listener.
func NewListener(cfg Config, handler Handler, logger zerolog.Logger) *Listener {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})
	return newListener(reader, handler, logger)
}

func newListener(reader messageReader, handler Handler, logger zerolog.Logger) *Listener {
	return &Listener{
		reader:  reader,
		handler: handler,
		logger:  logger.With().Str("component", "control_listener").Logger(),
	}
}

// Run reads commands until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info().Msg("starting control listener")

	for {
		msg, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("control listener stopped via context cancellation")
				return ctx.Err()
			}
			l.logger.Error().Err(err).Msg("failed to read message from Kafka")
			continue
		}

		l.logger.Debug().
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("received control command")

		var cmd Command
		if err := json.Unmarshal(msg.Value, &cmd); err != nil {
			l.logger.Error().Err(err).
				Str("raw_value", string(msg.Value)).
				Msg("failed to unmarshal control command")
			continue
		}

		if err := l.Handle(ctx, cmd); err != nil {
			l.logger.Warn().Err(err).
				Str("type", cmd.Type).
				Str("job_id", cmd.JobID.String()).
				Msg("failed to apply control command")
		}
	}
}

// Handle applies one command. A stop for a job that already finished is
// not an error: the command raced the job's completion.
func (l *Listener) Handle(ctx context.Context, cmd Command) error {
	if cmd.JobID == uuid.Nil {
		return domain.NewValidationError("job_id", "is required")
	}

	switch cmd.Type {
	case CommandStop:
		err := l.handler.RequestStop(ctx, cmd.JobID)
		if errors.Is(err, domain.ErrJobNotRunning) {
			l.logger.Debug().Str("job_id", cmd.JobID.String()).Msg("stop ignored, job not running")
			return nil
		}
		if err != nil {
			return fmt.Errorf("stop job: %w", err)
		}
	case CommandRun:
		if err := l.handler.RunJobAsync(ctx, cmd.JobID); err != nil {
			return fmt.Errorf("run job: %w", err)
		}
	default:
		return domain.NewValidationError("type", fmt.Sprintf("unknown command %q", cmd.Type))
	}

	l.logger.Info().Str("type", cmd.Type).Str("job_id", cmd.JobID.String()).Msg("applied control command")
	return nil
}

// Close closes the Kafka reader.
func (l *Listener) Close() error {
	l.logger.Info().Msg("closing control listener")
	return l.reader.Close()
}
