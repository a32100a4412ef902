package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/poiesic/embatch/batchapi"
	"github.com/poiesic/embatch/core"
	"github.com/poiesic/embatch/ledger"
	"github.com/poiesic/embatch/ledger/jsonfile"
	"github.com/stretchr/testify/require"
)

// fakeItemStore is an in-memory store.ItemStore.
type fakeItemStore struct {
	items map[core.Collection][]core.Item

	// vectors holds the applied embeddings by identity, per collection.
	vectors map[core.Collection]map[string][]float32

	updateCalls int
	updateErr   error
	countErr    error
}

func newFakeItemStore() *fakeItemStore {
	return &fakeItemStore{
		items:   make(map[core.Collection][]core.Item),
		vectors: make(map[core.Collection]map[string][]float32),
	}
}

func (f *fakeItemStore) FetchMissing(ctx context.Context, spec core.CollectionSpec, pageSize int, fn func(items []core.Item) error) error {
	all := f.items[spec.Name]
	for start := 0; start < len(all); start += pageSize {
		end := min(start+pageSize, len(all))
		if err := fn(all[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeItemStore) CountMissing(ctx context.Context, spec core.CollectionSpec) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return int64(len(f.items[spec.Name])), nil
}

func (f *fakeItemStore) UpdateEmbeddings(ctx context.Context, spec core.CollectionSpec, updates []core.EmbeddingUpdate) error {
	f.updateCalls++
	if f.updateErr != nil {
		return f.updateErr
	}
	applied := f.vectors[spec.Name]
	if applied == nil {
		applied = make(map[string][]float32)
		f.vectors[spec.Name] = applied
	}
	for _, u := range updates {
		applied[u.Identity] = u.Vector
	}
	return nil
}

func (f *fakeItemStore) Close() error { return nil }

// fakeService is a scripted batchapi.Service.
type fakeService struct {
	nextJobID int
	submitErr error

	// submissions records uploaded payloads keyed by job id.
	submissions map[string][]byte

	states    map[string]batchapi.JobState
	stateErrs map[string]error

	outputs    map[string]string
	fetchCalls int
}

func newFakeService() *fakeService {
	return &fakeService{
		submissions: make(map[string][]byte),
		states:      make(map[string]batchapi.JobState),
		stateErrs:   make(map[string]error),
		outputs:     make(map[string]string),
	}
}

func (f *fakeService) SubmitJob(ctx context.Context, name string, payload []byte) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.nextJobID++
	id := fmt.Sprintf("batch_%03d", f.nextJobID)
	f.submissions[id] = append([]byte(nil), payload...)
	return id, nil
}

func (f *fakeService) JobState(ctx context.Context, jobID string) (batchapi.JobState, error) {
	if err := f.stateErrs[jobID]; err != nil {
		return batchapi.JobState{}, err
	}
	state, ok := f.states[jobID]
	if !ok {
		return batchapi.JobState{}, fmt.Errorf("unknown job %s", jobID)
	}
	return state, nil
}

func (f *fakeService) FetchOutput(ctx context.Context, outputReference string) (io.ReadCloser, error) {
	f.fetchCalls++
	payload, ok := f.outputs[outputReference]
	if !ok {
		return nil, fmt.Errorf("unknown output %s", outputReference)
	}
	return io.NopCloser(bytes.NewReader([]byte(payload))), nil
}

// openTestLedger creates a file-backed ledger in a temp dir so tests
// exercise the real atomic-rewrite path.
func openTestLedger(t *testing.T) ledger.Store {
	t.Helper()
	store, err := jsonfile.Open(filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// testSpec returns a minimal collection spec for tests.
func testSpec(name core.Collection, dims int) core.CollectionSpec {
	return core.CollectionSpec{
		Name:            name,
		Table:           string(name),
		IDColumn:        "id",
		TextExpression:  "coalesce(text, '')",
		EmbeddingColumn: "embedding",
		Dimensions:      dims,
	}
}

// testConfig returns a small Config writing chunks under a temp dir.
func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.WorkDir = t.TempDir()
	return cfg
}
