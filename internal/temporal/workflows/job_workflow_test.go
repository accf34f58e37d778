package workflows

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/helixir/interaction-miner/internal/domain"
	"github.com/helixir/interaction-miner/internal/temporal/activities"
	"github.com/helixir/interaction-miner/internal/temporal/resilience"
)

var act *activities.JobActivities

func newWorkflowEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivity(&activities.JobActivities{})
	return env
}

func TestJobWorkflow_Completes(t *testing.T) {
	env := newWorkflowEnv(t)
	input := JobWorkflowInput{JobID: uuid.New()}

	env.OnActivity(act.StartJob, mock.Anything, activities.JobInput{JobID: input.JobID}).Return(nil)
	env.OnActivity(act.ExecuteJob, mock.Anything, activities.JobInput{JobID: input.JobID}).Return(&JobWorkflowResult{
		Status:            domain.JobStatusCompleted,
		InteractionsFound: 5,
		PapersChecked:     3,
	}, nil)

	env.ExecuteWorkflow(JobWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result JobWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, domain.JobStatusCompleted, result.Status)
	assert.Equal(t, 5, result.InteractionsFound)
	assert.Equal(t, 3, result.PapersChecked)
	env.AssertExpectations(t)
}

func TestJobWorkflow_StartFails(t *testing.T) {
	env := newWorkflowEnv(t)
	input := JobWorkflowInput{JobID: uuid.New()}

	env.OnActivity(act.StartJob, mock.Anything, mock.Anything).Return(
		temporal.NewNonRetryableApplicationError("job is running", resilience.ErrTypeJobState, nil))

	env.ExecuteWorkflow(JobWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	env.AssertNotCalled(t, "ExecuteJob", mock.Anything, mock.Anything)
}

func TestJobWorkflow_LostRunIsAbandoned(t *testing.T) {
	env := newWorkflowEnv(t)
	input := JobWorkflowInput{JobID: uuid.New()}

	env.OnActivity(act.StartJob, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(act.ExecuteJob, mock.Anything, mock.Anything).Return(nil, errors.New("heartbeat timeout"))
	env.OnActivity(act.AbandonJob, mock.Anything, activities.JobInput{JobID: input.JobID}).Return(nil).Once()

	env.ExecuteWorkflow(JobWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result JobWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, domain.JobStatusFailed, result.Status)
	assert.Equal(t, domain.InterruptedMessage, result.ErrorMessage)
	env.AssertExpectations(t)
}

func TestJobWorkflow_JobStateErrorIsNotAbandoned(t *testing.T) {
	env := newWorkflowEnv(t)
	input := JobWorkflowInput{JobID: uuid.New()}

	env.OnActivity(act.StartJob, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(act.ExecuteJob, mock.Anything, mock.Anything).Return(nil,
		temporal.NewNonRetryableApplicationError("job is completed", resilience.ErrTypeJobState, nil))

	env.ExecuteWorkflow(JobWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	env.AssertNotCalled(t, "AbandonJob", mock.Anything, mock.Anything)
}

func TestJobWorkflow_StopSignal(t *testing.T) {
	env := newWorkflowEnv(t)
	input := JobWorkflowInput{JobID: uuid.New()}

	env.OnActivity(act.StartJob, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(act.RequestStop, mock.Anything, activities.JobInput{JobID: input.JobID}).Return(nil).Once()
	env.OnActivity(act.ExecuteJob, mock.Anything, mock.Anything).After(time.Minute).Return(&JobWorkflowResult{
		Status:       domain.JobStatusFailed,
		ErrorMessage: domain.StopMessage,
	}, nil)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalStop, StopSignal{Reason: "user"})
	}, 10*time.Second)
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalStop, StopSignal{Reason: "again"})
	}, 20*time.Second)
	env.RegisterDelayedCallback(func() {
		val, err := env.QueryWorkflow(QueryStatus)
		require.NoError(t, err)
		var status workflowStatus
		require.NoError(t, val.Get(&status))
		assert.Equal(t, "running", status.Phase)
		assert.True(t, status.StopSignalled)
	}, 30*time.Second)

	env.ExecuteWorkflow(JobWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result JobWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, domain.StopMessage, result.ErrorMessage)
	env.AssertExpectations(t)
}
