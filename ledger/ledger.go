package ledger

import (
	"context"

	"github.com/poiesic/embatch/core"
)

// Store persists the batch job ledger as one atomically-rewritten document.
// Implementations must never expose a partially-written document.
type Store interface {
	// Load returns every job in the ledger, in ledger order.
	// A ledger that has never been written loads as empty, not as an error.
	Load(ctx context.Context) ([]core.BatchJob, error)

	// Save atomically replaces the entire ledger with jobs.
	Save(ctx context.Context, jobs []core.BatchJob) error

	// Close releases backend resources.
	Close() error
}

// Find returns the index of the job for (collection, chunkIndex), or -1.
func Find(jobs []core.BatchJob, collection core.Collection, chunkIndex int) int {
	for i := range jobs {
		if jobs[i].Collection == collection && jobs[i].ChunkIndex == chunkIndex {
			return i
		}
	}
	return -1
}

// FindByID returns the index of the job with the given external id, or -1.
func FindByID(jobs []core.BatchJob, id string) int {
	for i := range jobs {
		if jobs[i].ID == id {
			return i
		}
	}
	return -1
}
