package rbld

import (
	"context"
	"time"
)

const (
	expirySweepInterval = 5 * time.Minute
	statsSnapshotPeriod = time.Hour
)

// Maintenance runs the two background loops component I describes: a
// periodic expiry sweep across both cache tiers, and an hourly statistics
// snapshot logged for operational visibility. Both loops stop when ctx is
// canceled.
type Maintenance struct {
	cache *Cache

	sweepInterval time.Duration
	statsInterval time.Duration
}

// NewMaintenance wires a Maintenance loop against cache using the default
// intervals (5m expiry sweep, 1h stats snapshot).
func NewMaintenance(cache *Cache) *Maintenance {
	return &Maintenance{
		cache:         cache,
		sweepInterval: expirySweepInterval,
		statsInterval: statsSnapshotPeriod,
	}
}

// Run blocks until ctx is canceled, running both loops concurrently.
func (m *Maintenance) Run(ctx context.Context) {
	done := make(chan struct{}, 2)
	go func() { m.sweepLoop(ctx); done <- struct{}{} }()
	go func() { m.statsLoop(ctx); done <- struct{}{} }()
	<-done
	<-done
}

func (m *Maintenance) sweepLoop(ctx context.Context) {
	t := time.NewTicker(m.sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			removed := m.cache.CleanExpired(ctx)
			Log.WithFields(map[string]interface{}{
				"removed": removed,
			}).Debug("cache expiry sweep")
		}
	}
}

func (m *Maintenance) statsLoop(ctx context.Context) {
	t := time.NewTicker(m.statsInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			stats := m.cache.Stats(ctx)
			Log.WithFields(map[string]interface{}{
				"total":      stats.Total,
				"valid":      stats.Valid,
				"expired":    stats.Expired,
				"listed":     stats.Listed,
				"not_listed": stats.NotListed,
				"errors":     stats.Errors,
			}).Info("cache statistics snapshot")
		}
	}
}
