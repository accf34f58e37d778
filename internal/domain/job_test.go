package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from JobStatus
		to   JobStatus
		ok   bool
	}{
		{JobStatusPending, JobStatusRunning, true},
		{JobStatusPending, JobStatusFailed, true},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusRunning, JobStatusCompleted, true},
		{JobStatusRunning, JobStatusFailed, true},
		{JobStatusRunning, JobStatusPending, false},
		{JobStatusCompleted, JobStatusRunning, false},
		{JobStatusFailed, JobStatusRunning, false},
		{JobStatusCompleted, JobStatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.IsTerminal())
	assert.False(t, JobStatusRunning.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.False(t, JobStatus("paused").IsValid())
}

func TestLogEntry_String(t *testing.T) {
	e := LogEntry{
		At:      time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC),
		Step:    "QUERY",
		Message: "Generated: creatine AND randomized",
	}
	assert.Equal(t, "[14:05:09] [QUERY] Generated: creatine AND randomized", e.String())
}

func TestJob_WasStopped(t *testing.T) {
	j := &Job{Status: JobStatusFailed, ErrorMessage: StopMessage}
	assert.True(t, j.WasStopped())

	j.ErrorMessage = "llm: unauthorized"
	assert.False(t, j.WasStopped())

	j = &Job{Status: JobStatusCompleted}
	assert.False(t, j.WasStopped())
}

func TestJob_Duration(t *testing.T) {
	j := &Job{}
	assert.Zero(t, j.Duration())

	start := time.Now().Add(-time.Minute)
	end := start.Add(30 * time.Second)
	j.StartedAt = &start
	j.CompletedAt = &end
	assert.Equal(t, 30*time.Second, j.Duration())
}

func TestJob_LogText(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	j := &Job{Logs: []LogEntry{
		{At: at, Step: "QUERY", Message: "a"},
		{At: at, Step: "SEARCH", Message: "b"},
	}}
	assert.Equal(t, "[09:00:00] [QUERY] a\n[09:00:00] [SEARCH] b\n", j.LogText())
}

func TestErrors_Unwrap(t *testing.T) {
	assert.True(t, errors.Is(NewNotFoundError("job", "x"), ErrNotFound))
	assert.True(t, errors.Is(NewValidationError("topic", "required"), ErrInvalidInput))
	assert.True(t, errors.Is(NewAlreadyExistsError("workspace", "x"), ErrAlreadyExists))

	cause := errors.New("boom")
	assert.True(t, errors.Is(NewExternalAPIError("pubmed", 500, "oops", cause), cause))
	assert.Equal(t, "pubmed API error (status 500): oops", NewExternalAPIError("pubmed", 500, "oops", nil).Error())
}
