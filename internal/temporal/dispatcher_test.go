package temporal

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/helixir/interaction-miner/internal/domain"
)

type mockStarter struct{ mock.Mock }

func (m *mockStarter) StartJob(ctx context.Context, jobID uuid.UUID) (string, error) {
	args := m.Called(ctx, jobID)
	return args.String(0), args.Error(1)
}

type mockRecorder struct{ mock.Mock }

func (m *mockRecorder) SetWorkflowID(ctx context.Context, id uuid.UUID, workflowID string) error {
	return m.Called(ctx, id, workflowID).Error(0)
}

func TestDispatcher_Dispatch(t *testing.T) {
	job := &domain.Job{ID: uuid.New(), Status: domain.JobStatusPending}

	t.Run("records workflow id", func(t *testing.T) {
		starter, recorder := &mockStarter{}, &mockRecorder{}
		starter.On("StartJob", mock.Anything, job.ID).Return(JobWorkflowID(job.ID), nil)
		recorder.On("SetWorkflowID", mock.Anything, job.ID, JobWorkflowID(job.ID)).Return(nil)

		d := NewDispatcher(starter, recorder, zerolog.Nop())
		require.NoError(t, d.Dispatch(context.Background(), job))
		starter.AssertExpectations(t)
		recorder.AssertExpectations(t)
	})

	t.Run("already started is ignored", func(t *testing.T) {
		starter, recorder := &mockStarter{}, &mockRecorder{}
		starter.On("StartJob", mock.Anything, job.ID).Return("",
			&TemporalError{Op: "StartJob", Kind: ErrWorkflowAlreadyStarted})

		d := NewDispatcher(starter, recorder, zerolog.Nop())
		require.NoError(t, d.Dispatch(context.Background(), job))
		recorder.AssertNotCalled(t, "SetWorkflowID", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("connection failure is unavailable", func(t *testing.T) {
		starter := &mockStarter{}
		starter.On("StartJob", mock.Anything, job.ID).Return("",
			&TemporalError{Op: "StartJob", Kind: ErrConnectionFailed, Err: errors.New("dial")})

		d := NewDispatcher(starter, &mockRecorder{}, zerolog.Nop())
		assert.ErrorIs(t, d.Dispatch(context.Background(), job), domain.ErrServiceUnavailable)
	})

	t.Run("record failure is logged only", func(t *testing.T) {
		starter, recorder := &mockStarter{}, &mockRecorder{}
		starter.On("StartJob", mock.Anything, job.ID).Return("job-x", nil)
		recorder.On("SetWorkflowID", mock.Anything, job.ID, "job-x").Return(errors.New("db down"))

		d := NewDispatcher(starter, recorder, zerolog.Nop())
		assert.NoError(t, d.Dispatch(context.Background(), job))
	})
}
