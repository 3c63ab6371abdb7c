// Package badger provides an embedded key-value cache backend on BadgerDB.
// Entries with an expiry carry a native Badger TTL, so expired results
// disappear without a sweep.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/scrypster/lingua/internal/storage"
	"github.com/scrypster/lingua/pkg/types"
)

// Config configures the Badger database.
type Config struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string

	// InMemory runs without touching disk (tests, ephemeral caches).
	InMemory bool

	// Logger receives Badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// CacheStore implements storage.CacheBackend on Badger.
type CacheStore struct {
	db  *badger.DB
	now func() time.Time
}

var _ storage.CacheBackend = (*CacheStore)(nil)

// Open opens (or creates) a Badger-backed cache store.
func Open(cfg Config) (*CacheStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("badger: create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open database: %w", err)
	}
	return &CacheStore{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *CacheStore) Close() error {
	return s.db.Close()
}

func entryKey(collection, key string) []byte {
	return []byte(collection + "\x00" + key)
}

// GetEntry returns the stored entry. Entries whose Badger TTL has passed are
// reported as storage.ErrNotFound.
func (s *CacheStore) GetEntry(ctx context.Context, collection, key string) (*types.CachedEntry, error) {
	var entry types.CachedEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(collection, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger: get cache entry: %w", err)
	}
	return &entry, nil
}

// PutEntry creates or replaces an entry, attaching a native TTL when the
// entry expires in the future.
func (s *CacheStore) PutEntry(ctx context.Context, entry *types.CachedEntry) error {
	if entry == nil || entry.Collection == "" || entry.Key == "" {
		return fmt.Errorf("%w: collection and key are required", storage.ErrInvalidInput)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("badger: encode cache entry: %w", err)
	}

	e := badger.NewEntry(entryKey(entry.Collection, entry.Key), data)
	if entry.ExpiresAt != nil {
		if ttl := entry.ExpiresAt.Sub(s.now()); ttl > 0 {
			e = e.WithTTL(ttl)
		}
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(e)
	}); err != nil {
		return fmt.Errorf("badger: put cache entry: %w", err)
	}
	return nil
}

// DeleteEntry removes an entry if present.
func (s *CacheStore) DeleteEntry(ctx context.Context, collection, key string) error {
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey(collection, key))
	}); err != nil {
		return fmt.Errorf("badger: delete cache entry: %w", err)
	}
	return nil
}

// DeleteExpired removes visible entries whose recorded expiry is at or
// before now. Entries already past their Badger TTL are gone and are not
// counted.
func (s *CacheStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	var expired [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var entry types.CachedEntry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}
			if entry.Expired(now) {
				expired = append(expired, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger: scan cache entries: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range expired {
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("badger: delete expired entry: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("badger: flush deletes: %w", err)
	}
	return len(expired), nil
}
