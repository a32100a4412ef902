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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/poiesic/embatch/batchapi"
	"github.com/poiesic/embatch/core"
	"github.com/poiesic/embatch/store"
)

// ChunkBuilder splits a collection's pending rows into bounded request
// files. For a given input ordering and page size the produced chunk
// boundaries and contents are identical run to run, which is what makes
// cleanup-and-resubmit safe.
type ChunkBuilder struct {
	items  store.ItemStore
	cfg    *Config
	logger *slog.Logger
}

// NewChunkBuilder creates a chunk builder over the given record store.
func NewChunkBuilder(items store.ItemStore, cfg *Config) *ChunkBuilder {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &ChunkBuilder{
		items:  items,
		cfg:    cfg,
		logger: slog.Default().With("component", "chunk-builder"),
	}
}

// BuildResult summarizes one collection's chunking pass.
type BuildResult struct {
	Chunks         []core.Chunk
	InputCount     int
	RetainedCount  int
	DuplicateCount int
}

// Build streams every pending row of the collection into chunk files of at
// most MaxItemsPerChunk request records each. Rows whose identity repeats
// within the submission are dropped and counted, never double-submitted.
func (b *ChunkBuilder) Build(ctx context.Context, spec core.CollectionSpec) (*BuildResult, error) {
	if err := os.MkdirAll(b.cfg.WorkDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	result := &BuildResult{}
	seen := make(map[string]struct{})
	var current *chunkFile

	err := b.items.FetchMissing(ctx, spec, b.cfg.FetchPageSize, func(items []core.Item) error {
		for _, item := range items {
			result.InputCount++

			if _, dup := seen[item.Identity]; dup {
				result.DuplicateCount++
				b.logger.Debug("dropping duplicate item",
					"collection", spec.Name, "identity", item.Identity)
				continue
			}
			seen[item.Identity] = struct{}{}

			if current != nil && current.count >= b.cfg.MaxItemsPerChunk {
				chunk, err := current.finalize()
				if err != nil {
					return err
				}
				result.Chunks = append(result.Chunks, chunk)
				current = nil
			}
			if current == nil {
				var err error
				current, err = b.openChunk(spec, len(result.Chunks))
				if err != nil {
					return err
				}
			}

			token := core.EncodeToken(spec.Name, item.Identity, current.index, current.count)
			record := batchapi.NewEmbeddingRequest(
				token, b.cfg.Model, truncate(item.Text, b.cfg.MaxInputChars), spec.Dimensions)
			if err := current.writeRecord(record); err != nil {
				return err
			}
			result.RetainedCount++
		}
		return nil
	})
	if err != nil {
		if current != nil {
			current.discard()
		}
		return nil, err
	}

	if current != nil {
		chunk, err := current.finalize()
		if err != nil {
			return nil, err
		}
		result.Chunks = append(result.Chunks, chunk)
	}

	b.logger.Info("chunking finished",
		"collection", spec.Name,
		"input", result.InputCount,
		"retained", result.RetainedCount,
		"duplicates", result.DuplicateCount,
		"chunks", len(result.Chunks))
	return result, nil
}

// chunkFile is one request file being written.
type chunkFile struct {
	collection core.Collection
	index      int
	path       string
	file       *os.File
	out        io.Writer
	digest     *core.DigestWriter
	count      int
}

func (b *ChunkBuilder) openChunk(spec core.CollectionSpec, index int) (*chunkFile, error) {
	path := filepath.Join(b.cfg.WorkDir, ChunkFileName(spec.Name, index))
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk file: %w", err)
	}
	digest := core.NewDigestWriter()
	return &chunkFile{
		collection: spec.Name,
		index:      index,
		path:       path,
		file:       file,
		out:        io.MultiWriter(file, digest),
		digest:     digest,
	}, nil
}

func (c *chunkFile) writeRecord(record batchapi.RequestRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode request record: %w", err)
	}
	data = append(data, '\n')
	if _, err := c.out.Write(data); err != nil {
		return fmt.Errorf("failed to write chunk %s: %w", c.path, err)
	}
	c.count++
	return nil
}

func (c *chunkFile) finalize() (core.Chunk, error) {
	if err := c.file.Sync(); err != nil {
		c.file.Close()
		return core.Chunk{}, fmt.Errorf("failed to sync chunk %s: %w", c.path, err)
	}
	if err := c.file.Close(); err != nil {
		return core.Chunk{}, fmt.Errorf("failed to close chunk %s: %w", c.path, err)
	}
	return core.Chunk{
		Collection: c.collection,
		Index:      c.index,
		Path:       c.path,
		ItemCount:  c.count,
		Digest:     c.digest.Digest(),
	}, nil
}

func (c *chunkFile) discard() {
	c.file.Close()
	os.Remove(c.path)
}

// ChunkFileName returns the deterministic file name for a chunk.
func ChunkFileName(collection core.Collection, index int) string {
	return fmt.Sprintf("%s-chunk-%04d.jsonl", collection, index)
}

// truncate cuts text to at most maxChars runes. The cut is a silent,
// deterministic prefix so rebuilt chunks stay byte-identical.
func truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}
