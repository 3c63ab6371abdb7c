// Package cache is the shared result store in front of every model-backed
// feature. Entries live in a storage.CacheBackend keyed by (collection, key);
// expired entries read as absent and cache failures never fail a request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/scrypster/lingua/internal/metrics"
	"github.com/scrypster/lingua/internal/storage"
	"github.com/scrypster/lingua/pkg/types"
)

// Store reads and writes cached feature results.
type Store struct {
	backend storage.CacheBackend
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	flight  singleflight.Group

	mu      sync.Mutex
	flights map[string]*flightCtl
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for swallowed failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records lookups and write failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock overrides time.Now, for expiry tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store on backend.
func New(backend storage.CacheBackend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get decodes the live entry for (collection, key) into dst and reports
// whether one was found. Expired entries are deleted and read as absent.
// Backend and decode failures are logged and read as absent; the only
// error returned is the caller's context error.
func (s *Store) Get(ctx context.Context, collection, key string, dst any) (bool, error) {
	raw, ok := s.getRaw(ctx, collection, key)
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.logger.Warn("cache: undecodable entry treated as miss",
			"collection", collection, "key", key, "error", err)
		s.metrics.CacheLookup(collection, metrics.CacheError)
		return false, nil
	}
	return true, nil
}

func (s *Store) getRaw(ctx context.Context, collection, key string) (json.RawMessage, bool) {
	entry, err := s.backend.GetEntry(ctx, collection, key)
	if errors.Is(err, storage.ErrNotFound) {
		s.metrics.CacheLookup(collection, metrics.CacheMiss)
		return nil, false
	}
	if err != nil {
		s.logger.Warn("cache: read failed, treating as miss",
			"collection", collection, "key", key, "error", err)
		s.metrics.CacheLookup(collection, metrics.CacheError)
		return nil, false
	}
	if entry.Expired(s.now()) {
		s.metrics.CacheLookup(collection, metrics.CacheExpired)
		if err := s.backend.DeleteEntry(ctx, collection, key); err != nil {
			s.logger.Debug("cache: failed to delete expired entry",
				"collection", collection, "key", key, "error", err)
		}
		return nil, false
	}
	s.metrics.CacheLookup(collection, metrics.CacheHit)
	return entry.Value, true
}

// Set stores value under (collection, key). A ttl <= 0 never expires.
// Failures are logged and swallowed.
func (s *Store) Set(ctx context.Context, collection, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.writeFailed(collection, key, fmt.Errorf("encode: %w", err))
		return
	}
	s.setRaw(ctx, collection, key, raw, ttl)
}

func (s *Store) setRaw(ctx context.Context, collection, key string, raw json.RawMessage, ttl time.Duration) {
	now := s.now().UTC()
	entry := &types.CachedEntry{
		Collection: collection,
		Key:        key,
		Value:      raw,
		CachedAt:   now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		entry.ExpiresAt = &exp
	}
	if err := s.backend.PutEntry(ctx, entry); err != nil {
		s.writeFailed(collection, key, err)
	}
}

func (s *Store) writeFailed(collection, key string, err error) {
	s.logger.Warn("cache: write failed, result not cached",
		"collection", collection, "key", key, "error", err)
	s.metrics.CacheWriteFailure(collection)
}

// Delete removes an entry.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	return s.backend.DeleteEntry(ctx, collection, key)
}

// Sweep removes every expired entry and returns how many were removed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	n, err := s.backend.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cache: sweep: %w", err)
	}
	return n, nil
}

// GetOrCompute returns the cached value for (collection, key), or runs
// compute, caches its result for ttl and returns it. The bool reports a
// cache hit. Concurrent misses on the same key in this process share one
// compute call. Compute errors are returned unchanged and nothing is cached.
//
// The shared compute runs on a context owned by the flight, not by the
// caller that started it: one waiter giving up does not fail the others,
// and the compute is cancelled only once every waiter has gone.
func GetOrCompute[T any](ctx context.Context, s *Store, collection, key string, ttl time.Duration,
	compute func(ctx context.Context) (T, error)) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}

	var cached T
	hit, err := s.Get(ctx, collection, key, &cached)
	if err != nil {
		return zero, false, err
	}
	if hit {
		return cached, true, nil
	}

	fk := collection + "\x00" + key
	for {
		f := s.join(ctx, fk)
		ch := s.flight.DoChan(fk, func() (any, error) {
			v, err := compute(f.ctx)
			if err != nil {
				if f.ctx.Err() != nil {
					return nil, errAbandoned
				}
				return nil, err
			}
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("cache: encode %s result: %w", collection, err)
			}
			s.setRaw(f.ctx, collection, key, raw, ttl)
			return json.RawMessage(raw), nil
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			s.leave(fk, f)
			return zero, false, ctx.Err()
		case res = <-ch:
			s.leave(fk, f)
		}
		if errors.Is(res.Err, errAbandoned) {
			if err := ctx.Err(); err != nil {
				return zero, false, err
			}
			// Every earlier waiter left before the compute finished.
			continue
		}
		if res.Err != nil {
			return zero, false, res.Err
		}
		// Each caller decodes its own copy of the shared result.
		var out T
		if err := json.Unmarshal(res.Val.(json.RawMessage), &out); err != nil {
			return zero, false, fmt.Errorf("cache: decode %s result: %w", collection, err)
		}
		return out, false, nil
	}
}

var errAbandoned = errors.New("cache: shared compute abandoned by all callers")

// flightCtl is the context shared by the callers waiting on one key.
type flightCtl struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (s *Store) join(ctx context.Context, fk string) *flightCtl {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flights == nil {
		s.flights = make(map[string]*flightCtl)
	}
	f, ok := s.flights[fk]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flightCtl{ctx: fctx, cancel: cancel}
		s.flights[fk] = f
	}
	f.waiters++
	return f
}

func (s *Store) leave(fk string, f *flightCtl) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if s.flights[fk] == f {
		delete(s.flights, fk)
	}
}
