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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/embatch/batchapi"
	"github.com/poiesic/embatch/core"
	"github.com/poiesic/embatch/ledger"
	"github.com/poiesic/embatch/store"
)

// scannerBufferSize accommodates result lines carrying wide embedding
// vectors; a 1536-dim vector serializes to tens of kilobytes.
const scannerBufferSize = 4 * 1024 * 1024

// Applier downloads completed job outputs and writes the embeddings back to
// the record store, one bulk transaction per job, each job applied at most
// once.
type Applier struct {
	ledger ledger.Store
	svc    batchapi.Service
	items  store.ItemStore
	specs  map[core.Collection]core.CollectionSpec
	logger *slog.Logger
}

// NewApplier creates a result applier. specs must cover every collection
// present in the ledger.
func NewApplier(l ledger.Store, svc batchapi.Service, items store.ItemStore, specs map[core.Collection]core.CollectionSpec) *Applier {
	return &Applier{
		ledger: l,
		svc:    svc,
		items:  items,
		specs:  specs,
		logger: slog.Default().With("component", "applier"),
	}
}

// ApplyResult summarizes one application pass.
type ApplyResult struct {
	JobsApplied  int
	RowsUpdated  int
	LinesSkipped int
}

// Apply processes every completed, unprocessed ledger entry. Each job's
// updates land in a single transaction; on commit the job is marked
// processed and the ledger persisted before the next job starts. Re-running
// Apply never re-applies a processed job.
func (a *Applier) Apply(ctx context.Context) (*ApplyResult, error) {
	jobs, err := a.ledger.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	result := &ApplyResult{}
	for i := range jobs {
		job := &jobs[i]
		if job.Status != core.StatusCompleted || job.Processed {
			continue
		}

		spec, ok := a.specs[job.Collection]
		if !ok {
			return result, fmt.Errorf("%w: %s (job %s)",
				core.ErrUnknownCollection, job.Collection, job.ID)
		}
		if job.OutputReference == "" {
			return result, fmt.Errorf("%w: job %s", ErrMissingOutputReference, job.ID)
		}

		updates, skipped, err := a.collectUpdates(ctx, job)
		if err != nil {
			return result, err
		}
		result.LinesSkipped += skipped

		if len(updates) > 0 {
			if err := a.items.UpdateEmbeddings(ctx, spec, updates); err != nil {
				return result, fmt.Errorf("failed to apply job %s: %w", job.ID, err)
			}
		} else {
			a.logger.Warn("job output contained no applicable results",
				"jobID", job.ID, "collection", job.Collection, "chunkIndex", job.ChunkIndex)
		}

		now := time.Now().UTC()
		job.Processed = true
		job.ProcessedAt = &now
		if err := a.ledger.Save(ctx, jobs); err != nil {
			// The transaction committed; re-applying these rows on the next
			// run writes the same vectors again, which is harmless.
			return result, fmt.Errorf("job %s applied but ledger write failed: %w", job.ID, err)
		}

		a.logger.Info("job results applied",
			"jobID", job.ID, "collection", job.Collection,
			"chunkIndex", job.ChunkIndex,
			"rows", len(updates), "skipped", skipped)
		result.JobsApplied++
		result.RowsUpdated += len(updates)
	}

	return result, nil
}

// collectUpdates downloads and decodes one job's output payload. Lines
// carrying an item-level error are logged with their decoded identity and
// skipped without failing the job.
func (a *Applier) collectUpdates(ctx context.Context, job *core.BatchJob) ([]core.EmbeddingUpdate, int, error) {
	rc, err := a.svc.FetchOutput(ctx, job.OutputReference)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch output of job %s: %w", job.ID, err)
	}
	defer rc.Close()

	var updates []core.EmbeddingUpdate
	skipped := 0

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerBufferSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec batchapi.ResultRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			a.logger.Warn("skipping undecodable result line",
				"jobID", job.ID, "err", err)
			skipped++
			continue
		}

		token, err := core.DecodeToken(rec.CustomID)
		if err != nil {
			a.logger.Warn("skipping result line with bad token",
				"jobID", job.ID, "customID", rec.CustomID, "err", err)
			skipped++
			continue
		}
		if token.Collection != job.Collection {
			a.logger.Warn("skipping result line from foreign collection",
				"jobID", job.ID, "collection", token.Collection, "identity", token.Identity)
			skipped++
			continue
		}

		vector, err := rec.Vector()
		if err != nil {
			a.logger.Warn("skipping failed item",
				"jobID", job.ID, "collection", token.Collection,
				"identity", token.Identity, "err", err)
			skipped++
			continue
		}

		updates = append(updates, core.EmbeddingUpdate{
			Identity: token.Identity,
			Vector:   vector,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("failed reading output of job %s: %w", job.ID, err)
	}

	return updates, skipped, nil
}
