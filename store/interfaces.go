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


package store

import (
	"context"

	"github.com/poiesic/embatch/core"
)

// ItemStore is the record store seen by the pipeline.
type ItemStore interface {
	// FetchMissing streams every row of the collection lacking an embedding,
	// in bounded pages of at most pageSize items, calling fn once per page.
	// The tail page may be short; that is end of data, not an error.
	// Iteration stops on the first error from fn. Read-only.
	FetchMissing(ctx context.Context, spec core.CollectionSpec, pageSize int, fn func(items []core.Item) error) error

	// CountMissing returns the number of rows lacking an embedding.
	CountMissing(ctx context.Context, spec core.CollectionSpec) (int64, error)

	// UpdateEmbeddings applies all updates for one collection in a single
	// transaction, as bulk statements over pages of rows rather than one
	// update per row. Either every update commits or none do.
	UpdateEmbeddings(ctx context.Context, spec core.CollectionSpec, updates []core.EmbeddingUpdate) error

	// Close releases the underlying connections.
	Close() error
}
