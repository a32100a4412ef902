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


// Package postgres implements store.ItemStore over PostgreSQL with pgvector
// embedding columns.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/poiesic/embatch/core"
	"github.com/poiesic/embatch/store"
)

const (
	// defaultUpdatePageSize bounds the rows per bulk update statement so a
	// job's transaction stays a sequence of modest statements.
	defaultUpdatePageSize = 1000
)

// Store is a pgx-backed record store.
type Store struct {
	pool           *pgxpool.Pool
	updatePageSize int
	logger         *slog.Logger
}

var _ store.ItemStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithUpdatePageSize overrides the rows-per-statement bound for bulk updates.
func WithUpdatePageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.updatePageSize = n
		}
	}
}

// New connects to the record store and verifies the connection.
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnreachable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrUnreachable, err)
	}
	s := &Store{
		pool:           pool,
		updatePageSize: defaultUpdatePageSize,
		logger:         slog.Default().With("component", "postgres-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FetchMissing pages through rows lacking an embedding using keyset
// pagination on the id column, so a restarted fetch never rescans pages it
// already produced. A short tail page is end of data.
func (s *Store) FetchMissing(ctx context.Context, spec core.CollectionSpec, pageSize int, fn func(items []core.Item) error) error {
	if pageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", pageSize)
	}
	query := buildFetchQuery(spec)
	lastID := ""
	for {
		items, err := s.fetchPage(ctx, query, spec, lastID, pageSize)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		if err := fn(items); err != nil {
			return err
		}
		if len(items) < pageSize {
			return nil
		}
		lastID = items[len(items)-1].Identity
	}
}

func (s *Store) fetchPage(ctx context.Context, query string, spec core.CollectionSpec, lastID string, pageSize int) ([]core.Item, error) {
	rows, err := s.pool.Query(ctx, query, lastID, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s page: %w", spec.Name, err)
	}
	defer rows.Close()

	var items []core.Item
	for rows.Next() {
		var identity, text string
		if err := rows.Scan(&identity, &text); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", spec.Name, err)
		}
		items = append(items, core.Item{
			Collection: spec.Name,
			Identity:   identity,
			Text:       text,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading %s rows: %w", spec.Name, err)
	}
	return items, nil
}

// CountMissing returns the pending row count for the collection.
func (s *Store) CountMissing(ctx context.Context, spec core.CollectionSpec) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, buildCountQuery(spec)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending %s rows: %w", spec.Name, err)
	}
	return count, nil
}

// UpdateEmbeddings writes all updates in one transaction, as bulk
// UPDATE … FROM (VALUES …) statements over pages of rows.
func (s *Store) UpdateEmbeddings(ctx context.Context, spec core.CollectionSpec, updates []core.EmbeddingUpdate) error {
	if len(updates) == 0 {
		return store.ErrEmptyUpdate
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for start := 0; start < len(updates); start += s.updatePageSize {
		end := min(start+s.updatePageSize, len(updates))
		page := updates[start:end]
		query, args := buildBulkUpdate(spec, page)
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed bulk update of %s: %w", spec.Name, err)
		}
		if tag.RowsAffected() != int64(len(page)) {
			s.logger.Warn("bulk update matched fewer rows than submitted",
				"collection", spec.Name,
				"submitted", len(page),
				"updated", tag.RowsAffected())
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit %s updates: %w", spec.Name, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
