// Package badger backs the ledger with an embedded transactional store.
// The document model is unchanged from the jsonfile backend: one key holds
// the full JSON array of jobs, replaced in a single write transaction, so
// the read-modify-write-atomic contract is preserved by the storage engine.
package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/embatch/core"
	"github.com/poiesic/embatch/ledger"
)

// ledgerKey is the single key holding the ledger document.
var ledgerKey = []byte("ledger:jobs")

// Store is a BadgerDB-backed ledger.Store.
type Store struct {
	db     *badgerdb.DB
	logger *slog.Logger
}

var _ ledger.Store = (*Store)(nil)

// badgerLoggerAdapter adapts slog.Logger to badger.Logger.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badgerdb.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens a ledger store at the given directory, creating it if needed.
// With inMemory set, no files are written; used by tests.
func Open(path string, inMemory bool) (*Store, error) {
	var opts badgerdb.Options
	if inMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			if err := os.MkdirAll(path, 0755); err != nil {
				return nil, err
			}
		} else if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", path)
		}
		opts = badgerdb.DefaultOptions(path)
	}

	opts.Logger = &badgerLoggerAdapter{logger: slog.Default()}
	opts.Compression = options.None

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:     db,
		logger: slog.Default().With("component", "badger-ledger"),
	}, nil
}

// Load reads the ledger document in a read transaction.
func (s *Store) Load(ctx context.Context) ([]core.BatchJob, error) {
	if s.db.IsClosed() {
		return nil, ledger.ErrClosed
	}
	var jobs []core.BatchJob
	err := s.db.View(func(tx *badgerdb.Txn) error {
		item, err := tx.Get(ledgerKey)
		if err != nil {
			if err == badgerdb.ErrKeyNotFound {
				jobs = []core.BatchJob{}
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &jobs); err != nil {
				return fmt.Errorf("%w: %v", ledger.ErrCorrupt, err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// Save replaces the ledger document in one write transaction.
func (s *Store) Save(ctx context.Context, jobs []core.BatchJob) error {
	if s.db.IsClosed() {
		return ledger.ErrClosed
	}
	if jobs == nil {
		jobs = []core.BatchJob{}
	}
	data, err := json.Marshal(jobs)
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}
	return s.db.Update(func(tx *badgerdb.Txn) error {
		return tx.Set(ledgerKey, data)
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
