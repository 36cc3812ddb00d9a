package rbld

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory CacheBackend stand-in used to exercise the
// two-tier Cache orchestration without a real durable store.
type fakeBackend struct {
	mu      sync.Mutex
	entries map[cacheKey]*CacheEntry
	gets    int
	puts    int
	failGet bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{entries: make(map[cacheKey]*CacheEntry)}
}

func (f *fakeBackend) Get(_ context.Context, ip, rblHost string) (*CacheEntry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.failGet {
		return nil, false, NewLookupError("fake.get", ErrStoreUnavailable, errFakeBackend)
	}
	e, ok := f.entries[cacheKey{IP: ip, RBLHost: rblHost}]
	return e, ok, nil
}

func (f *fakeBackend) Put(_ context.Context, entry *CacheEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	f.entries[cacheKey{IP: entry.IP, RBLHost: entry.RBLHost}] = entry
	return nil
}

func (f *fakeBackend) CleanExpired(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	var n int
	for k, e := range f.entries {
		if e.expired(now) {
			delete(f.entries, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeBackend) ClearAll(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.entries)
	f.entries = make(map[cacheKey]*CacheEntry)
	return n, nil
}

func (f *fakeBackend) ClearByIP(_ context.Context, ip string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	for k := range f.entries {
		if k.IP == ip {
			delete(f.entries, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeBackend) Stats(_ context.Context) (CacheStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return CacheStats{Total: len(f.entries)}, nil
}

func (f *fakeBackend) Size(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries), nil
}

func (f *fakeBackend) Close() error { return nil }

var errFakeBackend = fakeErr("fake backend unavailable")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func TestCacheGetFallsThroughToL2AndBackfillsL1(t *testing.T) {
	l1 := NewMemoryBackend(MemoryBackendOptions{})
	l2 := newFakeBackend()
	c := NewCache(l1, l2)
	ctx := context.Background()

	entry := newCacheEntry(net.ParseIP("1.2.3.4"), "bl.example.org", Listed, net.ParseIP("127.0.0.2"), 0, false, 600)
	require.NoError(t, l2.Put(ctx, entry))

	got, ok := c.Get(ctx, net.ParseIP("1.2.3.4"), "bl.example.org")
	require.True(t, ok)
	require.Equal(t, Listed, got.Listed)

	l1Entry, ok, _ := l1.Get(ctx, "1.2.3.4", "bl.example.org")
	require.True(t, ok)
	require.Equal(t, entry.Response, l1Entry.Response)
}

func TestCacheGetMissOnBothTiers(t *testing.T) {
	c := NewCache(NewMemoryBackend(MemoryBackendOptions{}), newFakeBackend())
	_, ok := c.Get(context.Background(), net.ParseIP("8.8.8.8"), "zen.spamhaus.org")
	require.False(t, ok)
}

func TestCacheGetDegradesToMissOnL2Failure(t *testing.T) {
	l2 := newFakeBackend()
	l2.failGet = true
	c := NewCache(NewMemoryBackend(MemoryBackendOptions{}), l2)

	_, ok := c.Get(context.Background(), net.ParseIP("9.9.9.9"), "bl.example.org")
	require.False(t, ok)
}

func TestCachePutWritesBothTiers(t *testing.T) {
	l1 := NewMemoryBackend(MemoryBackendOptions{})
	l2 := newFakeBackend()
	c := NewCache(l1, l2)
	ctx := context.Background()

	entry := newCacheEntry(net.ParseIP("4.3.2.1"), "bl.example.org", NotListed, nil, 0, false, 3600)
	require.NoError(t, c.Put(ctx, entry))

	_, ok, _ := l2.Get(ctx, entry.IP, entry.RBLHost)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok, _ := l1.Get(ctx, entry.IP, entry.RBLHost)
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestCacheClearByIPCanonicalisesAcrossLexicalForms(t *testing.T) {
	c := NewCache(nil, newFakeBackend())
	ctx := context.Background()

	entry := newCacheEntry(net.ParseIP("::ffff:1.2.3.4"), "bl.example.org", NotListed, nil, 0, false, 600)
	require.NoError(t, c.Put(ctx, entry))

	n := c.ClearByIP(ctx, net.ParseIP("1.2.3.4"))
	require.Equal(t, 1, n)
}

func TestCacheWithoutL1CollapsesToL2Only(t *testing.T) {
	l2 := newFakeBackend()
	c := NewCache(nil, l2)
	ctx := context.Background()

	entry := newCacheEntry(net.ParseIP("1.1.1.1"), "bl.example.org", Listed, net.ParseIP("127.0.0.2"), 0, false, 600)
	require.NoError(t, c.Put(ctx, entry))
	_, ok := c.Get(ctx, net.ParseIP("1.1.1.1"), "bl.example.org")
	require.True(t, ok)
}
