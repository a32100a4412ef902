// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/poiesic/embatch/batchapi"
	"github.com/poiesic/embatch/core"
	"github.com/poiesic/embatch/ledger"
)

// Submitter uploads chunk files and registers them as asynchronous jobs.
type Submitter struct {
	ledger ledger.Store
	svc    batchapi.Service
	logger *slog.Logger
}

// NewSubmitter creates a submitter writing to the given ledger.
func NewSubmitter(l ledger.Store, svc batchapi.Service) *Submitter {
	return &Submitter{
		ledger: l,
		svc:    svc,
		logger: slog.Default().With("component", "submitter"),
	}
}

// SubmitResult summarizes one submission pass.
type SubmitResult struct {
	Submitted int
	Skipped   int
}

// SubmitChunks submits each chunk in order and appends a ledger entry per
// job. The ledger is persisted after every submission, before the next one
// starts, so a crash mid-pass still leaves every registered job traceable.
//
// A (collection, chunkIndex) pair already present in the ledger is never
// resubmitted: in-flight and completed work is simply skipped, and entries
// in a failure state require explicit cleanup first so the external side is
// never handed duplicate work.
func (s *Submitter) SubmitChunks(ctx context.Context, chunks []core.Chunk) (*SubmitResult, error) {
	jobs, err := s.ledger.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	result := &SubmitResult{}
	for _, chunk := range chunks {
		if i := ledger.Find(jobs, chunk.Collection, chunk.Index); i >= 0 {
			existing := jobs[i]
			if existing.Status.Terminal() && existing.Status != core.StatusCompleted {
				s.logger.Warn("chunk has a failed ledger entry, run cleanup before resubmitting",
					"collection", chunk.Collection, "chunkIndex", chunk.Index,
					"jobID", existing.ID, "status", existing.Status)
			} else {
				s.logger.Info("chunk already submitted, skipping",
					"collection", chunk.Collection, "chunkIndex", chunk.Index,
					"jobID", existing.ID, "status", existing.Status)
			}
			if existing.InputDigest != "" && existing.InputDigest != chunk.Digest {
				s.logger.Warn("rebuilt chunk differs from submitted input",
					"collection", chunk.Collection, "chunkIndex", chunk.Index,
					"submittedDigest", existing.InputDigest, "rebuiltDigest", chunk.Digest)
			}
			result.Skipped++
			continue
		}

		payload, err := os.ReadFile(chunk.Path)
		if err != nil {
			return result, fmt.Errorf("failed to read chunk file: %w", err)
		}
		if digest := core.ContentDigest(payload); digest != chunk.Digest {
			return result, fmt.Errorf("chunk %s changed on disk: digest %s, expected %s",
				chunk.Path, digest, chunk.Digest)
		}

		jobID, err := s.svc.SubmitJob(ctx, filepath.Base(chunk.Path), payload)
		if err != nil {
			return result, fmt.Errorf("failed to submit chunk %d of %s: %w",
				chunk.Index, chunk.Collection, err)
		}

		jobs = append(jobs, core.BatchJob{
			ID:          jobID,
			Collection:  chunk.Collection,
			ChunkIndex:  chunk.Index,
			ItemCount:   chunk.ItemCount,
			Status:      core.StatusSubmitted,
			ChunkFile:   chunk.Path,
			InputDigest: chunk.Digest,
			SubmittedAt: time.Now().UTC(),
		})
		if err := s.ledger.Save(ctx, jobs); err != nil {
			return result, fmt.Errorf("job %s submitted but ledger write failed, entry is orphaned externally: %w",
				jobID, err)
		}

		s.logger.Info("chunk submitted",
			"collection", chunk.Collection, "chunkIndex", chunk.Index,
			"jobID", jobID, "items", chunk.ItemCount)
		result.Submitted++
	}

	return result, nil
}
