package holdings

import (
	"context"
	"fmt"
	"log"
	"time"

	"mintwatch/internal/eventbus"
	"mintwatch/internal/observability"
)

// Default sweeper timing.
const (
	DefaultSweepInterval  = 30 * time.Second
	DefaultSweepRetention = 10 * time.Minute
)

// Sweeper periodically evicts mints that have stayed below the activity
// threshold for longer than the retention window, emitting one batched
// mint_cleanup event per sweep.
type Sweeper struct {
	cache     *Cache
	bus       *eventbus.Bus
	interval  time.Duration
	retention time.Duration
	logger    *log.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// SweeperOptions configures a Sweeper. Zero values fall back to defaults.
type SweeperOptions struct {
	Interval  time.Duration
	Retention time.Duration
	Logger    *log.Logger
	Metrics   *observability.Metrics
}

// NewSweeper creates a sweeper over the given cache and bus.
func NewSweeper(cache *Cache, bus *eventbus.Bus, opts SweeperOptions) *Sweeper {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = DefaultSweepRetention
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}
	return &Sweeper{
		cache:     cache,
		bus:       bus,
		interval:  interval,
		retention: retention,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (s *Sweeper) SetNowFunc(now func() time.Time) { s.now = now }

// Run executes sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce runs one cleanup pass and returns the removed mints. When any
// mint was removed, a single mint_cleanup event listing all of them is
// published.
func (s *Sweeper) SweepOnce() []RemovedMint {
	removed := s.cache.CleanupStale(s.retention)
	s.metrics.CleanupsRun.Inc()
	s.metrics.MintsEvicted.Add(float64(len(removed)))
	s.metrics.TrackedMints.Set(float64(s.cache.Len()))
	s.metrics.TrackedWallets.Set(float64(s.cache.WalletCount()))
	if len(removed) == 0 {
		return nil
	}

	mints := make([]string, len(removed))
	for i, r := range removed {
		mints[i] = r.Mint
	}
	s.logger.Printf("cache cleanup: removed %d mints under total < %g for > %s",
		len(removed), s.cache.MinTotal(), s.retention)

	ts := s.now().Unix()
	s.bus.Publish(fmt.Sprintf("cleanup-%d-%d", ts, len(mints)), CleanupEvent{
		Type:        EventMintCleanup,
		Mints:       mints,
		Details:     removed,
		Threshold:   s.cache.MinTotal(),
		OlderThanMS: s.retention.Milliseconds(),
		Timestamp:   ts,
	})
	return removed
}
