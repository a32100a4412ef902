package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/embatch/core"
	"github.com/poiesic/embatch/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJobs() []core.BatchJob {
	completed := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	return []core.BatchJob{
		{
			ID:          "batch_abc",
			Collection:  "posts",
			ChunkIndex:  0,
			ItemCount:   50000,
			Status:      core.StatusCompleted,
			ChunkFile:   "posts-chunk-0000.jsonl",
			InputDigest: "deadbeefdeadbeef",
			SubmittedAt: time.Date(2026, 2, 3, 1, 0, 0, 0, time.UTC),
			CompletedAt: &completed,
		},
		{
			ID:          "batch_def",
			Collection:  "posts",
			ChunkIndex:  1,
			ItemCount:   20000,
			Status:      core.StatusSubmitted,
			ChunkFile:   "posts-chunk-0001.jsonl",
			SubmittedAt: time.Date(2026, 2, 3, 1, 0, 5, 0, time.UTC),
		},
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)
	defer store.Close()

	jobs, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, testJobs()))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, testJobs(), loaded)
}

func TestSaveIsFullRewrite(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, testJobs()))
	require.NoError(t, store.Save(ctx, testJobs()[:1]))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
	assert.Equal(t, "batch_abc", loaded[0].ID)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "ledger.json"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(context.Background(), testJobs()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ledger.json", entries[0].Name())
}

func TestDocumentIsReadableJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(context.Background(), testJobs()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc []map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc, 2)
	assert.Equal(t, "completed", doc[0]["status"])
	assert.Equal(t, float64(50000), doc[0]["item_count"])
}

func TestCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrCorrupt)
}

func TestClosedStore(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, ledger.ErrClosed)
	assert.ErrorIs(t, store.Save(context.Background(), nil), ledger.ErrClosed)
}
