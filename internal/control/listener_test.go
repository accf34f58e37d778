package control

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/helixir/interaction-miner/internal/domain"
)

type mockHandler struct {
	mock.Mock
}

func (m *mockHandler) RequestStop(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockHandler) RunJobAsync(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

// scriptedReader returns its messages in order and then blocks until the
// context is cancelled.
type scriptedReader struct {
	messages []kafka.Message
	errs     []error
	cancel   context.CancelFunc
	closed   bool
}

func (r *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return kafka.Message{}, err
	}
	if len(r.messages) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *scriptedReader) Close() error {
	r.closed = true
	return nil
}

func TestListener_Handle(t *testing.T) {
	id := uuid.New()

	t.Run("stop", func(t *testing.T) {
		h := &mockHandler{}
		h.On("RequestStop", mock.Anything, id).Return(nil)
		l := newListener(&scriptedReader{}, h, zerolog.Nop())

		require.NoError(t, l.Handle(context.Background(), Command{Type: CommandStop, JobID: id}))
		h.AssertExpectations(t)
	})

	t.Run("stop for finished job is ignored", func(t *testing.T) {
		h := &mockHandler{}
		h.On("RequestStop", mock.Anything, id).Return(domain.ErrJobNotRunning)
		l := newListener(&scriptedReader{}, h, zerolog.Nop())

		assert.NoError(t, l.Handle(context.Background(), Command{Type: CommandStop, JobID: id}))
	})

	t.Run("stop failure", func(t *testing.T) {
		h := &mockHandler{}
		h.On("RequestStop", mock.Anything, id).Return(errors.New("db down"))
		l := newListener(&scriptedReader{}, h, zerolog.Nop())

		assert.ErrorContains(t, l.Handle(context.Background(), Command{Type: CommandStop, JobID: id}), "stop job: db down")
	})

	t.Run("run", func(t *testing.T) {
		h := &mockHandler{}
		h.On("RunJobAsync", mock.Anything, id).Return(nil)
		l := newListener(&scriptedReader{}, h, zerolog.Nop())

		require.NoError(t, l.Handle(context.Background(), Command{Type: CommandRun, JobID: id}))
		h.AssertExpectations(t)
	})

	t.Run("unknown type", func(t *testing.T) {
		l := newListener(&scriptedReader{}, &mockHandler{}, zerolog.Nop())
		assert.ErrorIs(t, l.Handle(context.Background(), Command{Type: "pause", JobID: id}), domain.ErrInvalidInput)
	})

	t.Run("missing job id", func(t *testing.T) {
		l := newListener(&scriptedReader{}, &mockHandler{}, zerolog.Nop())
		assert.ErrorIs(t, l.Handle(context.Background(), Command{Type: CommandStop}), domain.ErrInvalidInput)
	})
}

func TestListener_Run(t *testing.T) {
	stopID := uuid.New()
	runID := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &scriptedReader{
		errs: []error{errors.New("broker unavailable")},
		messages: []kafka.Message{
			{Value: []byte(`{"type":"stop","job_id":"` + stopID.String() + `"}`)},
			{Value: []byte(`not json`)},
			{Value: []byte(`{"type":"run","job_id":"` + runID.String() + `"}`)},
		},
		cancel: cancel,
	}

	h := &mockHandler{}
	h.On("RequestStop", mock.Anything, stopID).Return(nil).Once()
	h.On("RunJobAsync", mock.Anything, runID).Return(nil).Once()

	l := newListener(reader, h, zerolog.Nop())
	err := l.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	h.AssertExpectations(t)

	require.NoError(t, l.Close())
	assert.True(t, reader.closed)
}
