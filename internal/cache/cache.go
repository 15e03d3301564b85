package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"poolScope/internal/model"
)

// defaultTTL applies when a caller passes a non-positive TTL.
const defaultTTL = 30 * time.Second

// Fingerprint is the cache key: a SHA-256 digest over the chain family
// tag and the raw address bytes. Two pools with identical address bytes
// on different chains never share a key.
type Fingerprint [sha256.Size]byte

// KeyFor derives the fingerprint for a pool identifier.
func KeyFor(id model.PoolIdentifier) Fingerprint {
	h := sha256.New()
	h.Write([]byte{byte(id.Chain)})
	h.Write([]byte(id.Address))
	var fp Fingerprint
	h.Sum(fp[:0])
	return fp
}

// FetchFunc produces a fresh snapshot on a cache miss.
type FetchFunc func(ctx context.Context) (*model.PoolSnapshot, error)

type entry struct {
	snapshot  *model.PoolSnapshot
	expiresAt time.Time
}

// flight is a claimed single-flight slot. The owner closes done after
// publishing snap and err; waiters read both only after done closes.
type flight struct {
	done chan struct{}
	snap *model.PoolSnapshot
	err  error
}

// Cache stores pool snapshots keyed by fingerprint with per-entry TTL
// and per-key single-flight fetch deduplication. Expired entries are
// reclaimed lazily on access and by the Sweep loop. The mutex is never
// held across a fetch.
type Cache struct {
	mu      sync.Mutex
	entries map[Fingerprint]*entry
	flights map[Fingerprint]*flight

	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// Option tunes a Cache at construction.
type Option func(*Cache)

// WithClock replaces the time source, letting tests drive expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithDefaultTTL sets the TTL used when a caller passes none.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger attaches a logger for sweep and corruption events.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[Fingerprint]*entry),
		flights: make(map[Fingerprint]*flight),
		ttl:     defaultTTL,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached snapshot for id when present and fresh. A miss
// returns (nil, nil). Expired entries are reclaimed on the way through.
// A corrupted entry is dropped and reported as ErrCacheCorruption; its
// data is never served.
func (c *Cache) Get(id model.PoolIdentifier) (*model.PoolSnapshot, error) {
	key := KeyFor(id)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(key, id)
}

// lookupLocked checks key under the held mutex, reclaiming expired and
// corrupted entries. Miss is (nil, nil).
func (c *Cache) lookupLocked(key Fingerprint, id model.PoolIdentifier) (*model.PoolSnapshot, error) {
	ent, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if KeyFor(ent.snapshot.Identifier) != key {
		delete(c.entries, key)
		c.logger.Error("dropped corrupted cache entry",
			zap.String("requested", id.String()),
			zap.String("stored", ent.snapshot.Identifier.String()))
		return nil, fmt.Errorf("%w: entry for %s holds %s", model.ErrCacheCorruption, id, ent.snapshot.Identifier)
	}
	if !c.now().Before(ent.expiresAt) {
		delete(c.entries, key)
		return nil, nil
	}
	return ent.snapshot, nil
}

// Insert stores snap under its own identifier, replacing any previous
// entry wholesale. A non-positive ttl uses the cache default.
func (c *Cache) Insert(snap *model.PoolSnapshot, ttl time.Duration) {
	if snap == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	key := KeyFor(snap.Identifier)

	c.mu.Lock()
	c.entries[key] = &entry{snapshot: snap, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Invalidate removes the entry for id. An in-flight fetch for the same
// key is not interrupted; its completion will re-insert.
func (c *Cache) Invalidate(id model.PoolIdentifier) {
	c.mu.Lock()
	delete(c.entries, KeyFor(id))
	c.mu.Unlock()
}

// GetOrFetch returns the fresh cached snapshot for id, or runs fetch to
// produce one. Concurrent calls for the same key share a single fetch:
// the first caller claims the in-flight slot, later callers wait on it
// and receive the identical outcome. Waiters give up when their own
// context ends; the in-flight fetch itself keeps running. Failures are
// returned to every sharer but never cached.
func (c *Cache) GetOrFetch(ctx context.Context, id model.PoolIdentifier, ttl time.Duration, fetch FetchFunc) (*model.PoolSnapshot, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	key := KeyFor(id)

	c.mu.Lock()
	snap, err := c.lookupLocked(key, id)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if snap != nil {
		c.mu.Unlock()
		return snap, nil
	}
	if fl, inFlight := c.flights[key]; inFlight {
		c.mu.Unlock()
		select {
		case <-fl.done:
			return fl.snap, fl.err
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: waiting on in-flight fetch of %s: %v", model.ErrTimeout, id, ctx.Err())
		}
	}
	fl := &flight{done: make(chan struct{})}
	c.flights[key] = fl
	c.mu.Unlock()

	fl.snap, fl.err = fetch(ctx)

	c.mu.Lock()
	if fl.err == nil && fl.snap != nil {
		c.entries[key] = &entry{snapshot: fl.snap, expiresAt: c.now().Add(ttl)}
	}
	delete(c.flights, key)
	c.mu.Unlock()
	close(fl.done)

	return fl.snap, fl.err
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep reclaims expired entries every interval until ctx ends. The
// serve wiring runs this in its own goroutine.
func (c *Cache) Sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.removeExpired(); n > 0 {
				c.logger.Debug("cache sweep reclaimed entries", zap.Int("count", n))
			}
		}
	}
}

func (c *Cache) removeExpired() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, ent := range c.entries {
		if !now.Before(ent.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}
