package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"cipherlog/internal/domain"
)

// BadgerStore keeps keys in an embedded Badger database. Swaps run inside
// a read-write transaction, so concurrent writers are serialised by
// Badger's conflict detection.
type BadgerStore struct {
	db *badger.DB
}

var (
	_ domain.KVStore = (*BadgerStore)(nil)
	_ domain.Swapper = (*BadgerStore)(nil)
)

// BadgerConfig configures OpenBadgerStore.
type BadgerConfig struct {
	// Dir holds the database files. Ignored when InMemory is set.
	Dir      string
	InMemory bool
	// Logger receives Badger's own log output. Nil silences it.
	Logger *logrus.Entry
}

// OpenBadgerStore opens or creates the database described by cfg.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	opts.Logger = nil
	if cfg.Logger != nil {
		opts.Logger = cfg.Logger
	}
	opts.ValueLogFileSize = 1024 * 1024 * 64
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Get(key string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if out == nil {
		out = []byte{}
	}
	return out, true, nil
}

func (s *BadgerStore) Set(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (s *BadgerStore) Remove(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (s *BadgerStore) CompareAndSwap(key string, old, new []byte) (bool, error) {
	swapped := false
	err := s.db.Update(func(txn *badger.Txn) error {
		var cur []byte
		present := true
		item, err := txn.Get([]byte(key))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			present = false
		case err != nil:
			return err
		default:
			if cur, err = item.ValueCopy(nil); err != nil {
				return err
			}
		}
		if !matches(cur, present, old) {
			return nil
		}
		swapped = true
		if new == nil {
			return txn.Delete([]byte(key))
		}
		return txn.Set([]byte(key), new)
	})
	if errors.Is(err, badger.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return swapped, nil
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error { return s.db.Close() }
