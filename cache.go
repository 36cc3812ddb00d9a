package rbld

import (
	"context"
	"expvar"
	"net"
	"time"
)

// ListedState is the classification stored in a cache entry.
type ListedState int

const (
	NotListed ListedState = iota
	Listed
	ErrState
)

func (s ListedState) String() string {
	switch s {
	case Listed:
		return "listed"
	case ErrState:
		return "error"
	default:
		return "not_listed"
	}
}

// CacheEntry is one row of the two-tier cache, keyed by (IP, RBLHost). IP
// is stored in canonical form so two lexical representations of the same
// address collide as the same key.
type CacheEntry struct {
	IP        string
	RBLHost   string
	Listed    ListedState
	Response  net.IP
	ErrorKind ErrorKind
	HasError  bool
	TTL       uint32
	CachedAt  time.Time
	ExpiresAt time.Time
}

func newCacheEntry(ip net.IP, rblHost string, state ListedState, response net.IP, errKind ErrorKind, hasError bool, ttl uint32) *CacheEntry {
	if ttl == 0 {
		ttl = 1
	}
	now := time.Now()
	return &CacheEntry{
		IP:        canonicalIP(ip),
		RBLHost:   rblHost,
		Listed:    state,
		Response:  response,
		ErrorKind: errKind,
		HasError:  hasError,
		TTL:       ttl,
		CachedAt:  now,
		ExpiresAt: now.Add(time.Duration(ttl) * time.Second),
	}
}

func (e *CacheEntry) expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

func (e *CacheEntry) remainingTTL(now time.Time) uint32 {
	remaining := e.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return uint32(remaining.Seconds())
}

// CacheStats summarises the current content of a cache tier.
type CacheStats struct {
	Total     int
	Valid     int
	Expired   int
	Listed    int
	NotListed int
	Errors    int
}

// CacheBackend is implemented by both the L1 (in-memory) and L2 (durable)
// tiers. Lookup/store errors from the durable tier propagate as
// StoreUnavailable; the in-memory tier never errors.
type CacheBackend interface {
	Get(ctx context.Context, ip, rblHost string) (*CacheEntry, bool, error)
	Put(ctx context.Context, entry *CacheEntry) error
	CleanExpired(ctx context.Context) (int, error)
	ClearAll(ctx context.Context) (int, error)
	ClearByIP(ctx context.Context, ip string) (int, error)
	Stats(ctx context.Context) (CacheStats, error)
	Size(ctx context.Context) (int, error)
	Close() error
}

// CacheMetrics exposes hit/miss/error counters via expvar, namespaced the
// way the rest of the package's stats are.
type CacheMetrics struct {
	hit        *expvar.Int
	miss       *expvar.Int
	storeError *expvar.Int
}

// Cache is the two-tier lookup cache described by the component design: a
// fast process-local L1 in front of an authoritative durable L2. L1 is
// optional; when nil the cache collapses to L2-only.
type Cache struct {
	l1      CacheBackend
	l2      CacheBackend
	metrics *CacheMetrics
}

// NewCache returns a Cache backed by l2 (required, authoritative) and
// optionally l1 (the fast tier; pass nil to disable it).
func NewCache(l1, l2 CacheBackend) *Cache {
	return &Cache{
		l1: l1,
		l2: l2,
		metrics: &CacheMetrics{
			hit:        getVarInt("cache", "rbld", "hit"),
			miss:       getVarInt("cache", "rbld", "miss"),
			storeError: getVarInt("cache", "rbld", "store-error"),
		},
	}
}

// Get implements the read protocol: L1 hit returns immediately; an L1 miss
// falls through to L2 and, on an L2 hit, backfills L1 with the remaining
// TTL before returning.
func (c *Cache) Get(ctx context.Context, ip net.IP, rblHost string) (*CacheEntry, bool) {
	canonical := canonicalIP(ip)

	if c.l1 != nil {
		if entry, ok, _ := c.l1.Get(ctx, canonical, rblHost); ok {
			c.metrics.hit.Add(1)
			return entry, true
		}
	}

	entry, ok, err := c.l2.Get(ctx, canonical, rblHost)
	if err != nil {
		Log.WithError(err).Debug("durable cache lookup failed, treating as cache miss")
		c.metrics.miss.Add(1)
		return nil, false
	}
	if !ok {
		c.metrics.miss.Add(1)
		return nil, false
	}

	c.metrics.hit.Add(1)
	if c.l1 != nil {
		if err := c.l1.Put(ctx, entry); err != nil {
			Log.WithError(err).Debug("failed to backfill L1 cache")
		}
	}
	return entry, true
}

// Put implements the write protocol: a best-effort, non-blocking L1 set
// followed by a synchronous durable L2 upsert. An L1 failure is logged and
// never surfaced; an L2 failure is logged and returned so the caller can
// classify the lookup as a store-unavailable degrade.
func (c *Cache) Put(ctx context.Context, entry *CacheEntry) error {
	if c.l1 != nil {
		go func() {
			if err := c.l1.Put(context.Background(), entry); err != nil {
				Log.WithError(err).Debug("failed to write to L1 cache")
			}
		}()
	}

	if err := c.l2.Put(ctx, entry); err != nil {
		c.metrics.storeError.Add(1)
		Log.WithError(err).Warn("failed to write to durable cache")
		return NewLookupError("cache.put", ErrStoreUnavailable, err)
	}
	return nil
}

// CleanExpired removes expired entries from both tiers and returns the
// total number removed.
func (c *Cache) CleanExpired(ctx context.Context) int {
	var total int
	if c.l1 != nil {
		if n, err := c.l1.CleanExpired(ctx); err == nil {
			total += n
		}
	}
	if n, err := c.l2.CleanExpired(ctx); err != nil {
		Log.WithError(err).Warn("failed to sweep durable cache")
	} else {
		total += n
	}
	return total
}

// ClearAll empties both tiers and returns the total number of entries
// removed.
func (c *Cache) ClearAll(ctx context.Context) int {
	var total int
	if c.l1 != nil {
		if n, err := c.l1.ClearAll(ctx); err == nil {
			total += n
		}
	}
	if n, err := c.l2.ClearAll(ctx); err != nil {
		Log.WithError(err).Warn("failed to flush durable cache")
	} else {
		total += n
	}
	return total
}

// ClearByIP removes every entry whose key's IP canonicalises equal to ip,
// regardless of the lexical form it was queried with, from both tiers.
func (c *Cache) ClearByIP(ctx context.Context, ip net.IP) int {
	canonical := canonicalIP(ip)
	var total int
	if c.l1 != nil {
		if n, err := c.l1.ClearByIP(ctx, canonical); err == nil {
			total += n
		}
	}
	if n, err := c.l2.ClearByIP(ctx, canonical); err != nil {
		Log.WithError(err).Warn("failed to clear durable cache entries by IP")
	} else {
		total += n
	}
	return total
}

// Stats returns a snapshot of the durable tier, which is authoritative for
// the full entry set; L1 is a subset of it by construction.
func (c *Cache) Stats(ctx context.Context) CacheStats {
	stats, err := c.l2.Stats(ctx)
	if err != nil {
		Log.WithError(err).Warn("failed to collect durable cache stats")
	}
	return stats
}

// Close releases both backends' resources.
func (c *Cache) Close() error {
	var firstErr error
	if c.l1 != nil {
		if err := c.l1.Close(); err != nil {
			firstErr = err
		}
	}
	if err := c.l2.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
