package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, StatusSubmitted.Terminal())
	assert.False(t, StatusInProgress.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusExpired.Terminal())
}

func TestJobStatusCanTransition(t *testing.T) {
	// Forward steps.
	assert.True(t, StatusSubmitted.CanTransition(StatusInProgress))
	assert.True(t, StatusSubmitted.CanTransition(StatusCompleted))
	assert.True(t, StatusInProgress.CanTransition(StatusCompleted))
	assert.True(t, StatusInProgress.CanTransition(StatusFailed))
	assert.True(t, StatusInProgress.CanTransition(StatusExpired))

	// Re-polling an unchanged job is a no-op, not an error.
	assert.True(t, StatusInProgress.CanTransition(StatusInProgress))
	assert.True(t, StatusCompleted.CanTransition(StatusCompleted))

	// Terminal states are sticky.
	assert.False(t, StatusCompleted.CanTransition(StatusInProgress))
	assert.False(t, StatusFailed.CanTransition(StatusSubmitted))
	assert.False(t, StatusExpired.CanTransition(StatusCompleted))

	// Backward steps never happen.
	assert.False(t, StatusInProgress.CanTransition(StatusSubmitted))

	// Unknown statuses are rejected.
	assert.False(t, StatusSubmitted.CanTransition(JobStatus("finalizing")))
}

func TestJobStatusValid(t *testing.T) {
	assert.True(t, StatusSubmitted.Valid())
	assert.True(t, StatusExpired.Valid())
	assert.False(t, JobStatus("").Valid())
	assert.False(t, JobStatus("running").Valid())
}
