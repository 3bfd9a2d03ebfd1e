package blob

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

var badgerPrefix = []byte("blob/")

// BadgerConfig configures the embedded badger backend.
type BadgerConfig struct {
	Path       string
	InMemory   bool
	SyncWrites bool
}

// BadgerBackend stores objects in an embedded badger database.
// Badger rejects transactions larger than its batch limit, so very large
// uploads belong on the fs or gcs backends.
type BadgerBackend struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a badger database for blob storage.
func OpenBadger(cfg BadgerConfig) (*BadgerBackend, error) {
	var opts badger.Options

	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badger path is required for a persistent store")
		}

		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("creating badger directory %s: %w", cfg.Path, err)
		}

		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}

	return &BadgerBackend{db: db}, nil
}

func badgerKey(key string) []byte {
	return append(append([]byte{}, badgerPrefix...), key...)
}

// Write stores data under key.
func (b *BadgerBackend) Write(ctx context.Context, key string, data []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(key), data)
	})
	if err != nil {
		return 0, fmt.Errorf("badger set: %w", err)
	}

	return int64(len(data)), nil
}

// Read returns a copy of the value for key.
func (b *BadgerBackend) Read(_ context.Context, key string) ([]byte, error) {
	var data []byte

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(key))
		if err != nil {
			return err
		}

		data, err = item.ValueCopy(nil)

		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errNotExist
	}

	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}

	return data, nil
}

// Size returns the stored value size for key.
func (b *BadgerBackend) Size(_ context.Context, key string) (int64, error) {
	var size int64

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(key))
		if err != nil {
			return err
		}

		size = item.ValueSize()

		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, errNotExist
	}

	if err != nil {
		return 0, fmt.Errorf("badger stat: %w", err)
	}

	return size, nil
}

// Delete removes key.
func (b *BadgerBackend) Delete(_ context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(key))
	})
	if err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}

	return nil
}

// Walk iterates keys without fetching values.
func (b *BadgerBackend) Walk(ctx context.Context, fn func(key string, size int64) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = badgerPrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(badgerPrefix); it.ValidForPrefix(badgerPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			key := string(item.Key()[len(badgerPrefix):])

			if err := fn(key, item.ValueSize()); err != nil {
				return err
			}
		}

		return nil
	})
}

// Close closes the database.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
