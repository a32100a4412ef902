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


// Package jsonfile stores the ledger as a single indented JSON document,
// rewritten in full on every save via write-to-temp-then-rename.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/poiesic/embatch/core"
	"github.com/poiesic/embatch/ledger"
)

// Store is a file-backed ledger.Store.
type Store struct {
	path   string
	closed bool
}

var _ ledger.Store = (*Store)(nil)

// Open creates a store for the ledger file at path. The file need not exist
// yet; a missing file loads as an empty ledger.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	return &Store{path: path}, nil
}

// Load reads the full ledger document.
func (s *Store) Load(ctx context.Context) ([]core.BatchJob, error) {
	if s.closed {
		return nil, ledger.ErrClosed
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []core.BatchJob{}, nil
		}
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	var jobs []core.BatchJob
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrCorrupt, err)
	}
	return jobs, nil
}

// Save atomically replaces the ledger document. The new document is written
// to a temp file in the same directory, synced, then renamed over the old
// one, so a crash at any point leaves the previous document readable.
func (s *Store) Save(ctx context.Context, jobs []core.BatchJob) error {
	if s.closed {
		return ledger.ErrClosed
	}
	if jobs == nil {
		jobs = []core.BatchJob{}
	}
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}

// Close marks the store closed. The file itself needs no teardown.
func (s *Store) Close() error {
	s.closed = true
	return nil
}
