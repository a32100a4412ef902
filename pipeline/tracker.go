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
	"time"

	"github.com/poiesic/embatch/batchapi"
	"github.com/poiesic/embatch/core"
	"github.com/poiesic/embatch/ledger"
)

// Tracker polls the external service for every non-terminal ledger entry
// and advances its status. Terminal entries are never polled again.
type Tracker struct {
	ledger ledger.Store
	svc    batchapi.Service
	logger *slog.Logger
}

// NewTracker creates a status tracker over the given ledger.
func NewTracker(l ledger.Store, svc batchapi.Service) *Tracker {
	return &Tracker{
		ledger: l,
		svc:    svc,
		logger: slog.Default().With("component", "tracker"),
	}
}

// TrackResult summarizes one polling pass.
type TrackResult struct {
	Polled    int
	Updated   int
	Completed int
	Failed    int
	Unreached int
	InFlight  int
}

// Poll runs one full pass over the ledger. A job whose external record is
// temporarily unreachable is logged and left unchanged; it is retried on
// the next invocation. The updated ledger is written atomically once at the
// end of the pass.
func (t *Tracker) Poll(ctx context.Context) (*TrackResult, error) {
	jobs, err := t.ledger.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	result := &TrackResult{}
	for i := range jobs {
		job := &jobs[i]
		if job.Status.Terminal() {
			continue
		}

		state, err := t.svc.JobState(ctx, job.ID)
		if err != nil {
			t.logger.Warn("job state unreachable, leaving status unchanged",
				"jobID", job.ID, "collection", job.Collection,
				"chunkIndex", job.ChunkIndex, "err", err)
			result.Unreached++
			continue
		}
		result.Polled++

		if !job.Status.CanTransition(state.Status) {
			t.logger.Warn("ignoring backward status transition",
				"jobID", job.ID, "from", job.Status, "to", state.Status,
				"rawStatus", state.RawStatus)
			continue
		}
		if state.Status != job.Status {
			t.logger.Info("job status changed",
				"jobID", job.ID, "collection", job.Collection,
				"chunkIndex", job.ChunkIndex,
				"from", job.Status, "to", state.Status)
			job.Status = state.Status
			result.Updated++
		}

		switch {
		case state.Status == core.StatusCompleted:
			if job.CompletedAt == nil {
				now := time.Now().UTC()
				job.CompletedAt = &now
			}
			job.OutputReference = state.OutputReference
			result.Completed++
		case state.Status.Terminal():
			t.logger.Error("job ended without results, cleanup and resubmit to recover",
				"jobID", job.ID, "collection", job.Collection,
				"chunkIndex", job.ChunkIndex, "status", state.Status,
				"detail", state.Message)
			result.Failed++
		default:
			result.InFlight++
		}
	}

	if err := t.ledger.Save(ctx, jobs); err != nil {
		return nil, fmt.Errorf("failed to save ledger: %w", err)
	}
	return result, nil
}
