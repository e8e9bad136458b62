// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/pakforge/pakforge/lib/fingerprint"
	"github.com/pakforge/pakforge/lib/itempath"
)

// ErrCacheInconsistency reports that the cache's bookkeeping no longer
// agrees with its contents. It indicates a bug, not a user error.
var ErrCacheInconsistency = errors.New("cache inconsistency")

// Key identifies one cached computation. Item and Type form the
// identity; Fingerprint and Schema must both match for a stored entry
// to be returned.
type Key struct {
	Item        itempath.Path
	Type        string
	Fingerprint fingerprint.Hash
	Schema      string
}

func (k Key) identity() string {
	return k.Item.Key() + "\x00" + k.Type
}

func (k Key) flight() string {
	return k.identity() + "\x00" + k.Fingerprint.String() + "\x00" + k.Schema
}

func (k Key) String() string {
	return fmt.Sprintf("%s as %s (%s, schema %s)", k.Item, k.Type, k.Fingerprint.Short(), k.Schema)
}

// Config configures a Cache.
type Config[V any] struct {
	// Name labels the cache's metrics.
	Name string

	// MaxEntries bounds the number of stored entries. Zero means no
	// entry limit.
	MaxEntries int

	// MaxBytes bounds the sum of Size over stored entries. Zero means
	// no byte limit. A single value larger than MaxBytes is returned
	// but not stored.
	MaxBytes int64

	// Size reports the memory a value accounts for. Nil counts every
	// value as zero bytes.
	Size func(V) int64

	// Clone returns a copy of a value the caller may mutate. Nil hands
	// out the stored value itself.
	Clone func(V) V

	// Registerer receives the cache's metrics. Nil skips registration.
	Registerer prometheus.Registerer

	// Logger receives debug output. Nil discards everything below
	// error level.
	Logger *slog.Logger
}

type entry[V any] struct {
	key   Key
	value V
	size  int64
}

// Cache is a bounded, concurrency-safe store of computed values.
type Cache[V any] struct {
	size   func(V) int64
	clone  func(V) V
	logger *slog.Logger

	maxBytes int64
	metrics  *metrics
	group    singleflight.Group

	mu         sync.Mutex
	lru        *lru.Cache
	entries    map[string]*entry[V]
	byItem     map[string]map[string]struct{}
	bytes      int64
	generation uint64

	// removing is set while the cache drops entries on request, so
	// the eviction hook can tell invalidation from capacity pressure.
	removing bool
}

// New creates a cache from config.
func New[V any](config Config[V]) (*Cache[V], error) {
	if config.MaxEntries < 0 || config.MaxBytes < 0 {
		return nil, fmt.Errorf("cache limits must not be negative (entries %d, bytes %d)", config.MaxEntries, config.MaxBytes)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	name := config.Name
	if name == "" {
		name = "default"
	}

	c := &Cache[V]{
		size:     config.Size,
		clone:    config.Clone,
		logger:   logger.With("cache", name),
		maxBytes: config.MaxBytes,
		metrics:  newMetrics(name),
		lru:      lru.New(config.MaxEntries),
		entries:  make(map[string]*entry[V]),
		byItem:   make(map[string]map[string]struct{}),
	}
	c.lru.OnEvicted = c.evicted

	if config.Registerer != nil {
		err := c.metrics.register(config.Registerer, name,
			func() float64 { return float64(c.Len()) },
			func() float64 { return float64(c.Bytes()) },
		)
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// evicted runs under mu for every entry the lru drops, whether through
// its own entry limit or through our Remove and Clear calls.
func (c *Cache[V]) evicted(key lru.Key, _ any) {
	identity := key.(string)
	stored, ok := c.entries[identity]
	if !ok {
		return
	}
	delete(c.entries, identity)
	c.bytes -= stored.size
	itemKey := stored.key.Item.Key()
	if identities := c.byItem[itemKey]; identities != nil {
		delete(identities, identity)
		if len(identities) == 0 {
			delete(c.byItem, itemKey)
		}
	}
	if !c.removing {
		c.metrics.evictions.Inc()
		c.logger.Debug("evicted cache entry", "key", stored.key.String(), "size", stored.size)
	}
}

func (c *Cache[V]) hand(value V) V {
	if c.clone == nil {
		return value
	}
	return c.clone(value)
}

// lookup returns the stored value for key if its fingerprint and
// schema still match.
func (c *Cache[V]) lookup(key Key) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	value, ok := c.lru.Get(key.identity())
	if !ok {
		return zero, false
	}
	stored := value.(*entry[V])
	if stored.key.Fingerprint != key.Fingerprint || stored.key.Schema != key.Schema {
		return zero, false
	}
	return stored.value, true
}

// GetOrCompute returns the value stored for key, or calls compute,
// stores its result and returns it. Concurrent calls with the same key
// share one call to compute. Each caller receives its own clone.
//
// The result of compute is not stored when compute fails, when the
// context it ran under is done, or when the cache was invalidated
// while it ran.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key Key, compute func(context.Context) (V, error)) (V, error) {
	var zero V
	for {
		if value, ok := c.lookup(key); ok {
			c.metrics.hits.Inc()
			return c.hand(value), nil
		}

		result := c.group.DoChan(key.flight(), func() (any, error) {
			return c.compute(ctx, key, compute)
		})

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case outcome := <-result:
			if outcome.Err != nil {
				// A shared computation cancelled by another caller's
				// context is retried under ours.
				if outcome.Shared && isContextError(outcome.Err) && ctx.Err() == nil {
					continue
				}
				return zero, outcome.Err
			}
			return c.hand(outcome.Val.(V)), nil
		}
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Cache[V]) compute(ctx context.Context, key Key, compute func(context.Context) (V, error)) (V, error) {
	// A flight for this key may have stored its result between our
	// lookup and joining the group.
	if value, ok := c.lookup(key); ok {
		c.metrics.hits.Inc()
		return value, nil
	}
	c.metrics.misses.Inc()

	c.mu.Lock()
	generation := c.generation
	c.mu.Unlock()

	value, err := compute(ctx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		c.metrics.computeErrors.Inc()
		c.logger.Debug("cache computation failed", "key", key.String(), "error", err)
		var zero V
		return zero, err
	}
	c.store(key, value, generation)
	return value, nil
}

func (c *Cache[V]) store(key Key, value V, generation uint64) {
	var size int64
	if c.size != nil {
		size = c.size(value)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return
	}
	if c.maxBytes > 0 && size > c.maxBytes {
		c.logger.Debug("value exceeds cache byte limit", "key", key.String(), "size", size, "limit", c.maxBytes)
		c.metrics.evictions.Inc()
		return
	}

	identity := key.identity()
	if _, ok := c.entries[identity]; ok {
		c.removing = true
		c.lru.Remove(identity)
		c.removing = false
	}

	c.entries[identity] = &entry[V]{key: key, value: value, size: size}
	c.bytes += size
	itemKey := key.Item.Key()
	if c.byItem[itemKey] == nil {
		c.byItem[itemKey] = make(map[string]struct{})
	}
	c.byItem[itemKey][identity] = struct{}{}
	c.lru.Add(identity, c.entries[identity])

	for c.maxBytes > 0 && c.bytes > c.maxBytes && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}
}

// Invalidate drops every entry for item, under any type.
func (c *Cache[V]) Invalidate(item itempath.Path) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.removing = true
	defer func() { c.removing = false }()
	for identity := range c.byItem[item.Key()] {
		c.lru.Remove(identity)
	}
}

// InvalidateAll drops every entry.
func (c *Cache[V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.removing = true
	defer func() { c.removing = false }()
	c.lru.Clear()
}

// Len returns the number of stored entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Bytes returns the sum of the sizes of stored entries.
func (c *Cache[V]) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Check verifies the cache's bookkeeping. Any disagreement is returned
// wrapped in ErrCacheInconsistency.
func (c *Cache[V]) Check() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var problems []error
	if c.lru.Len() != len(c.entries) {
		problems = append(problems, fmt.Errorf("%w: lru holds %d entries, index holds %d",
			ErrCacheInconsistency, c.lru.Len(), len(c.entries)))
	}
	var total int64
	indexed := 0
	for identity, stored := range c.entries {
		total += stored.size
		if identity != stored.key.identity() {
			problems = append(problems, fmt.Errorf("%w: entry %s filed under %q",
				ErrCacheInconsistency, stored.key, identity))
		}
		if _, ok := c.byItem[stored.key.Item.Key()][identity]; !ok {
			problems = append(problems, fmt.Errorf("%w: entry %s missing from item index",
				ErrCacheInconsistency, stored.key))
		}
	}
	for _, identities := range c.byItem {
		indexed += len(identities)
	}
	if indexed != len(c.entries) {
		problems = append(problems, fmt.Errorf("%w: item index holds %d entries, want %d",
			ErrCacheInconsistency, indexed, len(c.entries)))
	}
	if total != c.bytes {
		problems = append(problems, fmt.Errorf("%w: entries total %d bytes, counter says %d",
			ErrCacheInconsistency, total, c.bytes))
	}
	if c.maxBytes > 0 && c.bytes > c.maxBytes {
		problems = append(problems, fmt.Errorf("%w: %d bytes stored over a limit of %d",
			ErrCacheInconsistency, c.bytes, c.maxBytes))
	}
	return errors.Join(problems...)
}

// Close drops every entry and removes the cache's gauges from the
// registerer it was created with. Counters stay registered.
func (c *Cache[V]) Close() {
	c.InvalidateAll()
	c.metrics.unregister()
}
