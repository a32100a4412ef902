package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/poiesic/embatch/core"
	"github.com/poiesic/embatch/ledger"
)

// CleanupResult summarizes one cleanup pass.
type CleanupResult struct {
	Removed      []core.BatchJob
	FilesDeleted int
}

// Cleanup evicts every ledger entry stuck in an unrecoverable terminal
// state (failed, cancelled or expired) and deletes its chunk file, so the
// chunks can be rebuilt and resubmitted cleanly. Completed and in-flight
// entries are never touched. A chunk file already gone is not an error.
func Cleanup(ctx context.Context, store ledger.Store) (*CleanupResult, error) {
	logger := slog.Default().With("component", "cleanup")

	jobs, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	result := &CleanupResult{}
	kept := jobs[:0]
	for _, job := range jobs {
		if !job.Status.Terminal() || job.Status == core.StatusCompleted {
			kept = append(kept, job)
			continue
		}

		logger.Info("removing failed job",
			"jobID", job.ID, "collection", job.Collection,
			"chunkIndex", job.ChunkIndex, "status", job.Status)
		result.Removed = append(result.Removed, job)

		if job.ChunkFile == "" {
			continue
		}
		if err := os.Remove(job.ChunkFile); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to delete chunk file %s: %w", job.ChunkFile, err)
			}
			continue
		}
		result.FilesDeleted++
	}

	if len(result.Removed) == 0 {
		return result, nil
	}
	if err := store.Save(ctx, kept); err != nil {
		return nil, fmt.Errorf("failed to save ledger: %w", err)
	}
	return result, nil
}
