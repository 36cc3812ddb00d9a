package rbld

import (
	"context"
	"errors"
	"sync"

	"github.com/miekg/dns"
)

// TestResolver is a configurable Resolver used for testing. It counts the
// number of queries, can be set to fail, and the resolve function can be
// defined externally to simulate upstream latency via the context.
type TestResolver struct {
	ResolveFunc func(ctx context.Context, q *dns.Msg, ci ClientInfo) (*dns.Msg, error)

	mu         sync.Mutex
	hitCount   int
	shouldFail bool
}

func (r *TestResolver) Resolve(ctx context.Context, q *dns.Msg, ci ClientInfo) (*dns.Msg, error) {
	r.mu.Lock()
	r.hitCount++
	fail := r.shouldFail
	r.mu.Unlock()

	if fail {
		return nil, errors.New("failed")
	}
	if r.ResolveFunc != nil {
		return r.ResolveFunc(ctx, q, ci)
	}
	return q, nil
}

func (r *TestResolver) String() string {
	return "TestResolver()"
}

func (r *TestResolver) HitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hitCount
}

func (r *TestResolver) SetFail(f bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shouldFail = f
}
