package temporal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
)

func TestTemporalError(t *testing.T) {
	t.Run("Error includes operation, kind and workflow", func(t *testing.T) {
		err := &TemporalError{
			Op:         "StartJob",
			Kind:       ErrWorkflowAlreadyStarted,
			WorkflowID: "job-123",
			Err:        errors.New("underlying error"),
		}

		msg := err.Error()
		assert.Contains(t, msg, "StartJob")
		assert.Contains(t, msg, "workflow already started")
		assert.Contains(t, msg, "job-123")
		assert.Contains(t, msg, "underlying error")
	})

	t.Run("Is matches Kind", func(t *testing.T) {
		err := &TemporalError{Op: "Test", Kind: ErrWorkflowNotFound}
		assert.True(t, errors.Is(err, ErrWorkflowNotFound))
		assert.False(t, errors.Is(err, ErrConnectionFailed))
	})
}

func TestWrapTemporalError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"not found", serviceerror.NewNotFound("not found"), ErrWorkflowNotFound},
		{"already started", serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "", ""), ErrWorkflowAlreadyStarted},
		{"deadline", context.DeadlineExceeded, ErrDeadlineExceeded},
		{"canceled", context.Canceled, ErrClientClosed},
		{"unknown", errors.New("boom"), ErrConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var te *TemporalError
			require.True(t, errors.As(wrapTemporalError("Test", tt.err, "wf"), &te))
			assert.Equal(t, tt.kind, te.Kind)
		})
	}

	assert.Nil(t, wrapTemporalError("Test", nil, ""))
}

func TestJobWorkflowID(t *testing.T) {
	id := uuid.MustParse("6f1c2f0e-3e55-4f2a-9d0b-0c9a7f6b5a10")
	assert.Equal(t, "job-6f1c2f0e-3e55-4f2a-9d0b-0c9a7f6b5a10", JobWorkflowID(id))
}

func TestJobClient_StartJob(t *testing.T) {
	c := &mocks.Client{}
	jc := NewJobClient(c, ClientConfig{TaskQueue: "jobs", ExecutionTimeout: 2 * time.Hour})
	jobID := uuid.New()

	run := &mocks.WorkflowRun{}
	c.On("ExecuteWorkflow", mock.Anything,
		mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
			return o.ID == JobWorkflowID(jobID) && o.TaskQueue == "jobs" && o.WorkflowExecutionTimeout == 2*time.Hour
		}),
		WorkflowTypeJob, JobWorkflowInput{JobID: jobID},
	).Return(run, nil)

	workflowID, err := jc.StartJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, JobWorkflowID(jobID), workflowID)
	c.AssertExpectations(t)
}

func TestJobClient_StartJobAlreadyStarted(t *testing.T) {
	c := &mocks.Client{}
	jc := NewJobClient(c, ClientConfig{TaskQueue: "jobs"})
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("exists", "", ""))

	_, err := jc.StartJob(context.Background(), uuid.New())
	assert.True(t, IsWorkflowAlreadyStarted(err))
}

func TestJobClient_SignalStop(t *testing.T) {
	c := &mocks.Client{}
	jc := NewJobClient(c, ClientConfig{})
	c.On("SignalWorkflow", mock.Anything, "job-1", "", SignalStop, nil).Return(nil).Once()
	c.On("SignalWorkflow", mock.Anything, "job-2", "", SignalStop, nil).Return(serviceerror.NewNotFound("gone")).Once()

	require.NoError(t, jc.SignalStop(context.Background(), "job-1"))
	assert.True(t, IsWorkflowNotFound(jc.SignalStop(context.Background(), "job-2")))
}

func TestJobClient_Closed(t *testing.T) {
	c := &mocks.Client{}
	c.On("Close").Return().Once()
	jc := NewJobClient(c, ClientConfig{})
	jc.Close()
	jc.Close()

	assert.ErrorIs(t, jc.Health(context.Background()), ErrClientClosed)
	_, err := jc.StartJob(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.ErrorIs(t, jc.SignalStop(context.Background(), "job-1"), ErrClientClosed)
	c.AssertExpectations(t)
}
