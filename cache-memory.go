package rbld

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend is the L1 tier: a process-local, concurrency-safe
// key-value store with per-entry absolute-time expiry. It never returns an
// error; lookups and writes are effectively non-blocking.
type MemoryBackend struct {
	lru *lruCache
	mu  sync.Mutex
}

type MemoryBackendOptions struct {
	// Capacity bounds the number of entries kept; the least-recently used
	// entry is evicted once exceeded. 0 means unlimited.
	Capacity int

	// GCPeriod is how often the background sweep runs. Defaults to one
	// minute if zero.
	GCPeriod time.Duration
}

var _ CacheBackend = (*MemoryBackend)(nil)

// NewMemoryBackend starts a MemoryBackend and its background GC loop.
func NewMemoryBackend(opt MemoryBackendOptions) *MemoryBackend {
	if opt.GCPeriod == 0 {
		opt.GCPeriod = time.Minute
	}
	b := &MemoryBackend{
		lru: newLRUCache(opt.Capacity),
	}
	go b.startGC(opt.GCPeriod)
	return b
}

func (b *MemoryBackend) Get(_ context.Context, ip, rblHost string) (*CacheEntry, bool, error) {
	key := cacheKey{IP: ip, RBLHost: rblHost}

	b.mu.Lock()
	entry := b.lru.get(key)
	b.mu.Unlock()

	if entry == nil {
		return nil, false, nil
	}
	if entry.expired(time.Now()) {
		b.mu.Lock()
		b.lru.delete(key)
		b.mu.Unlock()
		return nil, false, nil
	}
	return entry, true, nil
}

func (b *MemoryBackend) Put(_ context.Context, entry *CacheEntry) error {
	key := cacheKey{IP: entry.IP, RBLHost: entry.RBLHost}
	b.mu.Lock()
	b.lru.add(key, entry)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) CleanExpired(_ context.Context) (int, error) {
	now := time.Now()
	b.mu.Lock()
	removed := b.lru.deleteFunc(func(e *CacheEntry) bool {
		return e.expired(now)
	})
	b.mu.Unlock()
	return removed, nil
}

func (b *MemoryBackend) ClearAll(_ context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.lru.size()
	b.lru.reset()
	return n, nil
}

func (b *MemoryBackend) ClearByIP(_ context.Context, ip string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := b.lru.deleteFunc(func(e *CacheEntry) bool {
		return e.IP == ip
	})
	return removed, nil
}

func (b *MemoryBackend) Stats(_ context.Context) (CacheStats, error) {
	now := time.Now()
	var s CacheStats

	b.mu.Lock()
	defer b.mu.Unlock()

	item := b.lru.head.next
	for item != b.lru.tail {
		s.Total++
		if item.Entry.expired(now) {
			s.Expired++
		} else {
			s.Valid++
			switch item.Entry.Listed {
			case Listed:
				s.Listed++
			case ErrState:
				s.Errors++
			default:
				s.NotListed++
			}
		}
		item = item.next
	}
	return s, nil
}

func (b *MemoryBackend) Size(_ context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lru.size(), nil
}

func (b *MemoryBackend) Close() error { return nil }

// startGC runs every period and evicts entries that have expired,
// regardless of whether they've been looked up since. Entries can
// otherwise sit expired-but-present until the next read evicts them.
func (b *MemoryBackend) startGC(period time.Duration) {
	for {
		time.Sleep(period)
		now := time.Now()
		b.mu.Lock()
		removed := b.lru.deleteFunc(func(e *CacheEntry) bool {
			return e.expired(now)
		})
		total := b.lru.size()
		b.mu.Unlock()

		Log.WithFields(map[string]interface{}{
			"total":   total,
			"removed": removed,
		}).Debug("L1 cache garbage collection")
	}
}
