package rbld

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryBackendGetPutRoundTrip(t *testing.T) {
	b := NewMemoryBackend(MemoryBackendOptions{})
	ctx := context.Background()

	entry := newCacheEntry(net.ParseIP("127.0.0.2"), "zen.spamhaus.org", Listed, net.ParseIP("127.0.0.2"), 0, false, 900)
	require.NoError(t, b.Put(ctx, entry))

	got, ok, err := b.Get(ctx, entry.IP, entry.RBLHost)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Listed, got.Listed)
	require.True(t, got.Response.Equal(net.ParseIP("127.0.0.2")))
}

func TestMemoryBackendGetMiss(t *testing.T) {
	b := NewMemoryBackend(MemoryBackendOptions{})
	_, ok, err := b.Get(context.Background(), "8.8.8.8", "zen.spamhaus.org")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryBackendExpiredEntryIsMiss(t *testing.T) {
	b := NewMemoryBackend(MemoryBackendOptions{})
	ctx := context.Background()

	entry := newCacheEntry(net.ParseIP("1.2.3.4"), "bl.example.org", NotListed, nil, 0, false, 1)
	entry.ExpiresAt = time.Now().Add(-time.Second)
	require.NoError(t, b.Put(ctx, entry))

	_, ok, err := b.Get(ctx, entry.IP, entry.RBLHost)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryBackendClearByIP(t *testing.T) {
	b := NewMemoryBackend(MemoryBackendOptions{})
	ctx := context.Background()

	e1 := newCacheEntry(net.ParseIP("1.2.3.4"), "bl1.example.org", NotListed, nil, 0, false, 600)
	e2 := newCacheEntry(net.ParseIP("1.2.3.4"), "bl2.example.org", Listed, net.ParseIP("127.0.0.2"), 0, false, 600)
	e3 := newCacheEntry(net.ParseIP("5.6.7.8"), "bl1.example.org", NotListed, nil, 0, false, 600)
	require.NoError(t, b.Put(ctx, e1))
	require.NoError(t, b.Put(ctx, e2))
	require.NoError(t, b.Put(ctx, e3))

	n, err := b.ClearByIP(ctx, "1.2.3.4")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, ok, _ := b.Get(ctx, "1.2.3.4", "bl1.example.org")
	require.False(t, ok)
	_, ok, _ = b.Get(ctx, "5.6.7.8", "bl1.example.org")
	require.True(t, ok)
}

func TestMemoryBackendStats(t *testing.T) {
	b := NewMemoryBackend(MemoryBackendOptions{})
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, newCacheEntry(net.ParseIP("1.1.1.1"), "bl.example.org", Listed, net.ParseIP("127.0.0.2"), 0, false, 600)))
	require.NoError(t, b.Put(ctx, newCacheEntry(net.ParseIP("2.2.2.2"), "bl.example.org", NotListed, nil, 0, false, 600)))
	require.NoError(t, b.Put(ctx, newCacheEntry(net.ParseIP("3.3.3.3"), "bl.example.org", ErrState, nil, ErrTimeout, true, 300)))

	stats, err := b.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.Total)
	require.Equal(t, 1, stats.Listed)
	require.Equal(t, 1, stats.NotListed)
	require.Equal(t, 1, stats.Errors)
}

func TestMemoryBackendCapacityEvictsLRU(t *testing.T) {
	b := NewMemoryBackend(MemoryBackendOptions{Capacity: 2})
	ctx := context.Background()

	e1 := newCacheEntry(net.ParseIP("1.1.1.1"), "bl.example.org", NotListed, nil, 0, false, 600)
	e2 := newCacheEntry(net.ParseIP("2.2.2.2"), "bl.example.org", NotListed, nil, 0, false, 600)
	e3 := newCacheEntry(net.ParseIP("3.3.3.3"), "bl.example.org", NotListed, nil, 0, false, 600)
	require.NoError(t, b.Put(ctx, e1))
	require.NoError(t, b.Put(ctx, e2))
	require.NoError(t, b.Put(ctx, e3))

	size, err := b.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, size)

	_, ok, _ := b.Get(ctx, e1.IP, e1.RBLHost)
	require.False(t, ok)
}
