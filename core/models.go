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


package core

import (
	"encoding/hex"
	"hash"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// Collection identifies a source record set, e.g. "posts" or "actors".
type Collection string

// CollectionSpec is the explicit schema for one collection. Each collection
// declares where its rows live, how a row is flattened into embedding input,
// and the output dimensionality its embedding column expects. Missing-field
// handling lives in the TextExpression, not in Go code.
type CollectionSpec struct {
	// Name is the collection identifier used in request tokens and the ledger.
	Name Collection

	// Table is the backing table in the record store.
	Table string

	// IDColumn is the primary key column; values round-trip as strings.
	IDColumn string

	// TextExpression is a SQL expression over the table's columns producing
	// the text submitted for embedding.
	TextExpression string

	// EmbeddingColumn is the vector column written by the Result Applier.
	EmbeddingColumn string

	// Dimensions is the embedding width requested for this collection.
	// Different collections legitimately use different widths.
	Dimensions int
}

// DefaultSpecs returns the built-in collection schemas keyed by name.
func DefaultSpecs() map[Collection]CollectionSpec {
	specs := map[Collection]CollectionSpec{}
	for _, s := range []CollectionSpec{
		{
			Name:            "posts",
			Table:           "posts",
			IDColumn:        "id",
			TextExpression:  "coalesce(text, '')",
			EmbeddingColumn: "embedding",
			Dimensions:      1536,
		},
		{
			Name:            "events",
			Table:           "events",
			IDColumn:        "id",
			TextExpression:  "coalesce(title, '') || ' ' || coalesce(description, '')",
			EmbeddingColumn: "embedding",
			Dimensions:      768,
		},
		{
			Name:            "actors",
			Table:           "actors",
			IDColumn:        "id",
			TextExpression:  "coalesce(display_name, '') || ' ' || coalesce(bio, '')",
			EmbeddingColumn: "embedding",
			Dimensions:      768,
		},
	} {
		specs[s.Name] = s
	}
	return specs
}

// Item is one row lacking an embedding.
type Item struct {
	Collection Collection
	Identity   string
	Text       string
}

// Chunk describes one bounded request file produced by the chunk builder.
type Chunk struct {
	Collection Collection
	Index      int
	Path       string
	ItemCount  int
	Digest     string
}

// BatchJob is the ledger record for one submitted chunk. It is created by the
// submitter, advanced by the status tracker, and flagged processed by the
// result applier. Normal operation never deletes a job; only explicit cleanup
// evicts failed ones.
type BatchJob struct {
	// ID is the identifier assigned by the external service on submission.
	ID         string     `json:"id"`
	Collection Collection `json:"collection"`
	ChunkIndex int        `json:"chunk_index"`
	ItemCount  int        `json:"item_count"`
	Status     JobStatus  `json:"status"`

	// OutputReference is the handle to the result payload, set only once the
	// job completes.
	OutputReference string `json:"output_reference,omitempty"`

	// Processed is true once the job's output has been durably applied.
	Processed bool `json:"processed"`

	// ChunkFile is the local request file this job was submitted from.
	ChunkFile string `json:"chunk_file"`

	// InputDigest is the content digest of the request file at submission
	// time, kept so a rebuilt chunk can be verified before resubmission.
	InputDigest string `json:"input_digest,omitempty"`

	SubmittedAt time.Time  `json:"submitted_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// EmbeddingUpdate pairs an item identity with its computed vector.
type EmbeddingUpdate struct {
	Identity string
	Vector   []float32
}

// ContentDigest returns a short BLAKE2b digest of data in hex form.
// Identical request files always produce identical digests, which is what
// makes cleanup-and-resubmit verifiable.
func ContentDigest(data []byte) string {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DigestWriter incrementally computes a ContentDigest over streamed writes.
type DigestWriter struct {
	h hash.Hash
}

// NewDigestWriter returns a DigestWriter ready for use.
func NewDigestWriter() *DigestWriter {
	h, _ := blake2b.New(8, nil)
	return &DigestWriter{h: h}
}

// Write feeds data into the digest.
func (w *DigestWriter) Write(p []byte) (int, error) {
	return w.h.Write(p)
}

// Digest returns the hex digest of everything written so far.
func (w *DigestWriter) Digest() string {
	return hex.EncodeToString(w.h.Sum(nil))
}
