package temporal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorker(t *testing.T) {
	t.Run("errors when task queue is empty", func(t *testing.T) {
		_, err := NewWorker(nil, WorkerConfig{}, func() {})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "task queue is required")
	})
}

func TestWorkerOptionsFromConfig(t *testing.T) {
	t.Run("zero values get defaults", func(t *testing.T) {
		opts := workerOptionsFromConfig(WorkerConfig{})

		assert.Equal(t, 4, opts.MaxConcurrentActivityExecutionSize)
		assert.Equal(t, 50, opts.MaxConcurrentWorkflowTaskExecutionSize)
		assert.Equal(t, 2, opts.MaxConcurrentActivityTaskPollers)
	})

	t.Run("job limit bounds activities", func(t *testing.T) {
		opts := workerOptionsFromConfig(WorkerConfig{MaxConcurrentJobs: 8, MaxConcurrentWorkflowTaskExecutionSize: 10})

		assert.Equal(t, 8, opts.MaxConcurrentActivityExecutionSize)
		assert.Equal(t, 10, opts.MaxConcurrentWorkflowTaskExecutionSize)
	})
}

func TestWorkflowRegisterOptions(t *testing.T) {
	assert.Equal(t, WorkflowTypeJob, workflowRegisterOptions().Name)
}
