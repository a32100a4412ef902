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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/embatch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeChunk materializes a chunk file on disk and returns its descriptor.
func writeChunk(t *testing.T, dir string, collection core.Collection, index int, content string) core.Chunk {
	t.Helper()
	path := filepath.Join(dir, ChunkFileName(collection, index))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return core.Chunk{
		Collection: collection,
		Index:      index,
		Path:       path,
		ItemCount:  1,
		Digest:     core.ContentDigest([]byte(content)),
	}
}

func TestSubmitter_RegistersEveryChunk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	led := openTestLedger(t)
	svc := newFakeService()

	chunks := []core.Chunk{
		writeChunk(t, dir, "posts", 0, "{\"custom_id\":\"a\"}\n"),
		writeChunk(t, dir, "posts", 1, "{\"custom_id\":\"b\"}\n"),
	}

	result, err := NewSubmitter(led, svc).SubmitChunks(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Submitted)
	assert.Equal(t, 0, result.Skipped)

	jobs, err := led.Load(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	for i, job := range jobs {
		assert.NotEmpty(t, job.ID)
		assert.Equal(t, core.Collection("posts"), job.Collection)
		assert.Equal(t, i, job.ChunkIndex)
		assert.Equal(t, core.StatusSubmitted, job.Status)
		assert.Equal(t, chunks[i].Digest, job.InputDigest)
		assert.WithinDuration(t, time.Now().UTC(), job.SubmittedAt, time.Minute)
	}

	assert.Equal(t, []byte("{\"custom_id\":\"a\"}\n"), svc.submissions[jobs[0].ID])
}

func TestSubmitter_SkipsKnownChunks(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	led := openTestLedger(t)
	svc := newFakeService()

	chunks := []core.Chunk{
		writeChunk(t, dir, "events", 0, "line one\n"),
		writeChunk(t, dir, "events", 1, "line two\n"),
	}

	sub := NewSubmitter(led, svc)
	first, err := sub.SubmitChunks(ctx, chunks)
	require.NoError(t, err)
	require.Equal(t, 2, first.Submitted)

	// A second pass over the same chunks must not touch the service.
	second, err := sub.SubmitChunks(ctx, chunks)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Submitted)
	assert.Equal(t, 2, second.Skipped)
	assert.Len(t, svc.submissions, 2)

	jobs, err := led.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestSubmitter_PersistsBeforeNextSubmission(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	led := openTestLedger(t)
	svc := newFakeService()
	sub := NewSubmitter(led, svc)

	first, err := sub.SubmitChunks(ctx, []core.Chunk{
		writeChunk(t, dir, "posts", 0, "ok\n"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, first.Submitted)

	// The second chunk fails to submit; the first must already be durable.
	svc.submitErr = errors.New("service unavailable")
	result, err := sub.SubmitChunks(ctx, []core.Chunk{
		writeChunk(t, dir, "posts", 0, "ok\n"),
		writeChunk(t, dir, "posts", 1, "boom\n"),
	})
	require.Error(t, err)
	assert.Equal(t, 0, result.Submitted)
	assert.Equal(t, 1, result.Skipped)

	jobs, err := led.Load(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, core.Collection("posts"), jobs[0].Collection)
	assert.Equal(t, 0, jobs[0].ChunkIndex)
}

func TestSubmitter_RejectsModifiedChunkFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	led := openTestLedger(t)
	svc := newFakeService()

	chunk := writeChunk(t, dir, "actors", 0, "original content\n")
	require.NoError(t, os.WriteFile(chunk.Path, []byte("tampered content\n"), 0644))

	_, err := NewSubmitter(led, svc).SubmitChunks(ctx, []core.Chunk{chunk})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "changed on disk")
	assert.Empty(t, svc.submissions)
}

func TestSubmitter_MissingChunkFile(t *testing.T) {
	ctx := context.Background()
	led := openTestLedger(t)
	svc := newFakeService()

	chunk := core.Chunk{
		Collection: "posts",
		Index:      0,
		Path:       filepath.Join(t.TempDir(), "posts-chunk-0000.jsonl"),
		Digest:     "deadbeef",
	}

	_, err := NewSubmitter(led, svc).SubmitChunks(ctx, []core.Chunk{chunk})
	require.Error(t, err)

	jobs, err := led.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSubmitter_FailedEntryStillSkipped(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	led := openTestLedger(t)
	svc := newFakeService()

	chunk := writeChunk(t, dir, "posts", 3, "payload\n")
	require.NoError(t, led.Save(ctx, []core.BatchJob{{
		ID:          "batch_old",
		Collection:  "posts",
		ChunkIndex:  3,
		Status:      core.StatusFailed,
		ChunkFile:   chunk.Path,
		InputDigest: chunk.Digest,
		SubmittedAt: time.Now().UTC(),
	}}))

	result, err := NewSubmitter(led, svc).SubmitChunks(ctx, []core.Chunk{chunk})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Submitted)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, svc.submissions)
}
