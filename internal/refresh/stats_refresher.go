package refresh

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/eventbus"
	"mintwatch/internal/holdings"
	"mintwatch/internal/observability"
	"mintwatch/internal/provider"
)

// Defaults for the metadata/stats refresher.
const (
	DefaultStatsBatchSize     = 50
	DefaultStatsSlicesPerTick = 3
	DefaultStatsBackoff       = 30 * time.Second
)

// BatchSearcher resolves token metadata and trading stats for many mints at
// once.
type BatchSearcher interface {
	BatchSearch(ctx context.Context, queries []string) ([]*domain.TokenInfo, error)
}

// StatsRefresher keeps card metadata and windowed trading stats current. It
// walks the active mints with a persistent cursor, querying the search
// provider in fixed-size slices, and re-emits a card update for every mint
// it touched so subscribers see fresh stats even when holdings are idle.
//
// The backoff gate is shared with the wallet loop: both lean on the same
// provider, so a rate limit hit by either side pauses both.
type StatsRefresher struct {
	cache    *holdings.Cache
	bus      *eventbus.Bus
	searcher BatchSearcher
	backoff  *Backoff

	interval      time.Duration
	batchSize     int
	slicesPerTick int
	backoffWindow time.Duration
	logger        *log.Logger
	metrics       *observability.Metrics

	mu      sync.Mutex
	running bool
	mints   []string
	cursor  int
}

// StatsRefresherOptions configures a StatsRefresher. Zero values select
// defaults.
type StatsRefresherOptions struct {
	Interval      time.Duration
	BatchSize     int
	SlicesPerTick int
	BackoffWindow time.Duration
	Logger        *log.Logger
	Metrics       *observability.Metrics
}

// NewStatsRefresher creates the metadata refresher. backoff must be the same
// gate the wallet loop uses.
func NewStatsRefresher(cache *holdings.Cache, bus *eventbus.Bus, s BatchSearcher, backoff *Backoff, opts StatsRefresherOptions) *StatsRefresher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultTickInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultStatsBatchSize
	}
	if opts.SlicesPerTick <= 0 {
		opts.SlicesPerTick = DefaultStatsSlicesPerTick
	}
	if opts.BackoffWindow <= 0 {
		opts.BackoffWindow = DefaultStatsBackoff
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.DefaultMetrics
	}
	return &StatsRefresher{
		cache:         cache,
		bus:           bus,
		searcher:      s,
		backoff:       backoff,
		interval:      opts.Interval,
		batchSize:     opts.BatchSize,
		slicesPerTick: opts.SlicesPerTick,
		backoffWindow: opts.BackoffWindow,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
	}
}

// Run ticks until ctx is done.
func (r *StatsRefresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick refreshes up to slicesPerTick batches of mints. A tick is skipped
// while the provider backoff gate is closed or while a previous cycle is
// still in flight.
func (r *StatsRefresher) Tick(ctx context.Context) {
	if r.backoff.Active() {
		return
	}
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	for i := 0; i < r.slicesPerTick; i++ {
		batch, done := r.nextSlice()
		if len(batch) == 0 {
			return
		}
		infos, err := r.searcher.BatchSearch(ctx, batch)
		if err != nil {
			if errors.Is(err, provider.ErrRateLimited) {
				r.backoff.Open(r.backoffWindow)
				r.metrics.ProviderBackoffs.WithLabelValues("jupiter").Inc()
				r.logger.Printf("stats search rate limited, backing off %s", r.backoffWindow)
				return
			}
			r.logger.Printf("stats batch search failed: %v", err)
			return
		}
		for _, info := range infos {
			if info == nil {
				continue
			}
			r.cache.ApplyTokenInfo(info)
		}
		// Every queried mint gets a fresh card event, not just the ones the
		// search returned, so stale stats still reach subscribers as-is.
		for _, mint := range batch {
			holdings.EmitCardUpdate(r.bus, r.cache, mint)
		}
		if done {
			return
		}
	}
}

// nextSlice drains up to batchSize mints from the cursor, rebuilding the
// active-mint snapshot when the previous walk is exhausted. done reports
// that this slice finished the walk; the caller ends its tick there so a
// short mint list is not re-queried several times per second.
func (r *StatsRefresher) nextSlice() (batch []string, done bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor >= len(r.mints) {
		r.mints = r.cache.ActiveMints()
		r.cursor = 0
	}
	if len(r.mints) == 0 {
		return nil, true
	}
	batch = make([]string, 0, r.batchSize)
	for len(batch) < r.batchSize && r.cursor < len(r.mints) {
		batch = append(batch, r.mints[r.cursor])
		r.cursor++
	}
	return batch, r.cursor >= len(r.mints)
}
