// Package cache provides the small get/set/TTL abstraction that components
// take as a dependency instead of keeping their own maps.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/pvledger/pvledger/pkg/metrics"
)

// Cache stores values by key for a bounded time. Implementations must be safe
// for concurrent use.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V, ttl time.Duration)
}

type entry[V any] struct {
	value   V
	expires time.Time
}

// TTL is a size-bounded LRU cache whose entries also expire after the TTL they
// were set with.
type TTL[V any] struct {
	name string
	lru  *lru.Cache
	now  func() time.Time
}

// NewTTL creates a TTL cache holding at most size entries. The name is used as
// the metrics label.
func NewTTL[V any](name string, size int) (*TTL[V], error) {
	l, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &TTL[V]{
		name: name,
		lru:  l,
		now:  time.Now,
	}, nil
}

// WithClock replaces the clock used to expire entries.
func (c *TTL[V]) WithClock(now func() time.Time) *TTL[V] {
	c.now = now
	return c
}

// Get returns the value for key if it is present and not expired.
func (c *TTL[V]) Get(key string) (V, bool) {
	var zero V
	v, ok := c.lru.Get(key)
	if !ok {
		metrics.CacheRequests.WithLabelValues(c.name, "miss").Inc()
		return zero, false
	}
	e := v.(entry[V])
	if !c.now().Before(e.expires) {
		c.lru.Remove(key)
		metrics.CacheRequests.WithLabelValues(c.name, "expired").Inc()
		return zero, false
	}
	metrics.CacheRequests.WithLabelValues(c.name, "hit").Inc()
	return e.value, true
}

// Set stores value under key for ttl. A non-positive ttl is a no-op.
func (c *TTL[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.lru.Add(key, entry[V]{
		value:   value,
		expires: c.now().Add(ttl),
	})
}

// Len returns the number of entries, including ones that expired but were not
// looked up since.
func (c *TTL[V]) Len() int {
	return c.lru.Len()
}

// Purge removes every entry.
func (c *TTL[V]) Purge() {
	c.lru.Purge()
}

// Nop is a cache that never stores anything.
type Nop[V any] struct{}

func (Nop[V]) Get(string) (V, bool) {
	var zero V
	return zero, false
}

func (Nop[V]) Set(string, V, time.Duration) {}
