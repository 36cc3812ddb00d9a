package rbld

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend is the L2 tier: the durable, authoritative store. It is
// addressed by the same (ip, rblHost) key as L1, stored under a single
// Redis key per entry so an exact-match GET serves lookups directly.
type RedisBackend struct {
	client    *redis.Client
	keyPrefix string
}

type RedisBackendOptions struct {
	Options   redis.Options
	KeyPrefix string
}

var _ CacheBackend = (*RedisBackend)(nil)

// redisEntry is the JSON wire shape for a CacheEntry in Redis. Response is
// carried as its string form since net.IP doesn't round-trip through JSON
// the way callers expect.
type redisEntry struct {
	IP        string    `json:"ip"`
	RBLHost   string    `json:"rbl_host"`
	Listed    int       `json:"listed"`
	Response  string    `json:"response,omitempty"`
	ErrorKind int       `json:"error_kind,omitempty"`
	HasError  bool      `json:"has_error,omitempty"`
	TTL       uint32    `json:"ttl"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toRedisEntry(e *CacheEntry) redisEntry {
	r := redisEntry{
		IP:        e.IP,
		RBLHost:   e.RBLHost,
		Listed:    int(e.Listed),
		ErrorKind: int(e.ErrorKind),
		HasError:  e.HasError,
		TTL:       e.TTL,
		CachedAt:  e.CachedAt,
		ExpiresAt: e.ExpiresAt,
	}
	if e.Response != nil {
		r.Response = e.Response.String()
	}
	return r
}

func (r redisEntry) toCacheEntry() *CacheEntry {
	e := &CacheEntry{
		IP:        r.IP,
		RBLHost:   r.RBLHost,
		Listed:    ListedState(r.Listed),
		ErrorKind: ErrorKind(r.ErrorKind),
		HasError:  r.HasError,
		TTL:       r.TTL,
		CachedAt:  r.CachedAt,
		ExpiresAt: r.ExpiresAt,
	}
	if r.Response != "" {
		e.Response = net.ParseIP(r.Response)
	}
	return e
}

// NewRedisBackend creates a Redis client without dialing; connection errors
// surface on first use rather than at construction, matching go-redis's
// lazy-pool behavior.
func NewRedisBackend(opt RedisBackendOptions) *RedisBackend {
	return &RedisBackend{
		client:    redis.NewClient(&opt.Options),
		keyPrefix: opt.KeyPrefix,
	}
}

func (b *RedisBackend) key(ip, rblHost string) string {
	var k strings.Builder
	k.WriteString(b.keyPrefix)
	k.WriteString(strings.ToLower(ip))
	k.WriteByte(':')
	k.WriteString(strings.ToLower(rblHost))
	return k.String()
}

func (b *RedisBackend) Get(ctx context.Context, ip, rblHost string) (*CacheEntry, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	raw, err := b.client.Get(ctx, b.key(ip, rblHost)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, NewLookupError("cache.get", ErrStoreUnavailable, err)
	}

	var re redisEntry
	if err := json.Unmarshal(raw, &re); err != nil {
		return nil, false, NewLookupError("cache.get", ErrStoreUnavailable, fmt.Errorf("decode cache entry: %w", err))
	}
	entry := re.toCacheEntry()
	if entry.expired(time.Now()) {
		return nil, false, nil
	}
	return entry, true, nil
}

func (b *RedisBackend) Put(ctx context.Context, entry *CacheEntry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	raw, err := json.Marshal(toRedisEntry(entry))
	if err != nil {
		return NewLookupError("cache.put", ErrStoreUnavailable, fmt.Errorf("encode cache entry: %w", err))
	}
	if err := b.client.Set(ctx, b.key(entry.IP, entry.RBLHost), raw, ttl).Err(); err != nil {
		return NewLookupError("cache.put", ErrStoreUnavailable, err)
	}
	return nil
}

// CleanExpired is a no-op for Redis: per-key TTL already expires entries.
// It exists to satisfy the CacheBackend contract and to report zero
// deterministically rather than scanning the whole keyspace.
func (b *RedisBackend) CleanExpired(_ context.Context) (int, error) {
	return 0, nil
}

func (b *RedisBackend) ClearAll(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	keys, err := b.scanKeys(ctx, b.keyPrefix+"*")
	if err != nil {
		return 0, NewLookupError("cache.clear_all", ErrStoreUnavailable, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return 0, NewLookupError("cache.clear_all", ErrStoreUnavailable, err)
	}
	return len(keys), nil
}

func (b *RedisBackend) ClearByIP(ctx context.Context, ip string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	keys, err := b.scanKeys(ctx, b.keyPrefix+strings.ToLower(ip)+":*")
	if err != nil {
		return 0, NewLookupError("cache.clear_by_ip", ErrStoreUnavailable, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return 0, NewLookupError("cache.clear_by_ip", ErrStoreUnavailable, err)
	}
	return len(keys), nil
}

func (b *RedisBackend) Stats(ctx context.Context) (CacheStats, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	keys, err := b.scanKeys(ctx, b.keyPrefix+"*")
	if err != nil {
		return CacheStats{}, NewLookupError("cache.stats", ErrStoreUnavailable, err)
	}

	var s CacheStats
	now := time.Now()
	for _, k := range keys {
		raw, err := b.client.Get(ctx, k).Bytes()
		if err != nil {
			continue
		}
		var re redisEntry
		if err := json.Unmarshal(raw, &re); err != nil {
			continue
		}
		entry := re.toCacheEntry()
		s.Total++
		if entry.expired(now) {
			s.Expired++
			continue
		}
		s.Valid++
		switch entry.Listed {
		case Listed:
			s.Listed++
		case ErrState:
			s.Errors++
		default:
			s.NotListed++
		}
	}
	return s, nil
}

func (b *RedisBackend) Size(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	keys, err := b.scanKeys(ctx, b.keyPrefix+"*")
	if err != nil {
		return 0, NewLookupError("cache.size", ErrStoreUnavailable, err)
	}
	return len(keys), nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) scanKeys(ctx context.Context, match string) ([]string, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, match, 1000).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}
