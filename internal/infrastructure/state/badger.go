package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/dgraph-io/badger/v4"

	"AlertEnricher/internal/domain"
	"AlertEnricher/internal/ports"
	"AlertEnricher/pkg/logger"
)

var (
	checkpointKey = []byte("checkpoint")
	pendingPrefix = []byte("pending/")
)

// BadgerConfig holds configuration for the embedded state database.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM; for tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives badger's internal logging. Nil disables it.
	Logger *slog.Logger
}

// BadgerStore keeps checkpoint and pending markers in one BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

var _ ports.StateStore = (*BadgerStore)(nil)

// OpenBadger opens (creating if needed) the state database.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required for persistent state")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create state directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(logger.New("badger", cfg.Logger))
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger state: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Read returns 0 when no checkpoint is stored or the value is not an id.
func (s *BadgerStore) Read(_ context.Context) (int64, error) {
	var value int64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(checkpointKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		value = parseCheckpoint(string(raw))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}
	return value, nil
}

func (s *BadgerStore) Write(_ context.Context, value int64) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(checkpointKey, []byte(strconv.FormatInt(value, 10)))
	})
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

func (s *BadgerStore) Enqueue(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pendingKey(key), []byte(key))
	})
	if err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}

func (s *BadgerStore) Remove(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(pendingKey(key))
	})
	if err != nil {
		return fmt.Errorf("remove marker: %w", err)
	}
	return nil
}

func (s *BadgerStore) Pending(_ context.Context) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = pendingPrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key()[len(pendingPrefix):])
			if _, ok := domain.KeySeq(key); !ok {
				continue
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	domain.SortKeys(keys)
	return keys, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func pendingKey(key string) []byte {
	return append(append([]byte(nil), pendingPrefix...), key...)
}
