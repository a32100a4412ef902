package batchapi

import (
	"context"
	"io"

	"github.com/poiesic/embatch/core"
)

// JobState is a point-in-time view of an external job.
type JobState struct {
	ID string

	// Status is the external state mapped onto the ledger state machine.
	Status core.JobStatus

	// RawStatus is the service's native status string, kept for logging.
	RawStatus string

	// OutputReference is the handle to the result payload, set once the job
	// completes.
	OutputReference string

	// Message carries failure detail when the service reports any.
	Message string
}

// Service is the opaque asynchronous batch-computation endpoint.
// Implementations own their rate limiting and transient-error retries;
// errors returned here are either terminal or worth surfacing.
type Service interface {
	// SubmitJob uploads a request file and registers an asynchronous job
	// against it, returning the service-assigned job id.
	SubmitJob(ctx context.Context, name string, payload []byte) (string, error)

	// JobState polls the current state of a job by id.
	JobState(ctx context.Context, jobID string) (JobState, error)

	// FetchOutput streams the result payload of a completed job.
	// The caller closes the reader.
	FetchOutput(ctx context.Context, outputReference string) (io.ReadCloser, error)
}
