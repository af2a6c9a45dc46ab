package refresh

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"mintwatch/internal/eventbus"
	"mintwatch/internal/holdings"
	"mintwatch/internal/observability"
	"mintwatch/internal/provider"
)

// Defaults for the primary per-wallet loop.
const (
	DefaultTickInterval  = 1 * time.Second
	DefaultWalletBudget  = 3
	DefaultWalletBackoff = 30 * time.Second
)

// HoldingsProvider answers what a wallet currently holds.
type HoldingsProvider interface {
	WalletHoldings(ctx context.Context, wallet string) (map[string]float64, error)
}

// WalletLoop is the primary refresh loop. Each tick drains up to its budget
// of wallets from a recency-priority list and writes their observed balances
// into the cache, zero for tracked mints the provider no longer reports.
type WalletLoop struct {
	cache    *holdings.Cache
	bus      *eventbus.Bus
	provider HoldingsProvider
	backoff  *Backoff
	counters *Counters

	interval      time.Duration
	budget        int
	backoffWindow time.Duration
	logger        *log.Logger
	metrics       *observability.Metrics

	mu       sync.Mutex
	running  bool
	priority []string
	cursor   int
}

// WalletLoopOptions configures a WalletLoop. Zero values select defaults.
type WalletLoopOptions struct {
	Interval      time.Duration
	Budget        int
	BackoffWindow time.Duration
	Counters      *Counters
	Logger        *log.Logger
	Metrics       *observability.Metrics
}

// NewWalletLoop creates the primary refresh loop. backoff is the gate shared
// with every other consumer of the same provider.
func NewWalletLoop(cache *holdings.Cache, bus *eventbus.Bus, p HoldingsProvider, backoff *Backoff, opts WalletLoopOptions) *WalletLoop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultTickInterval
	}
	if opts.Budget <= 0 {
		opts.Budget = DefaultWalletBudget
	}
	if opts.BackoffWindow <= 0 {
		opts.BackoffWindow = DefaultWalletBackoff
	}
	if opts.Counters == nil {
		opts.Counters = NewCounters()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.DefaultMetrics
	}
	return &WalletLoop{
		cache:         cache,
		bus:           bus,
		provider:      p,
		backoff:       backoff,
		counters:      opts.Counters,
		interval:      opts.Interval,
		budget:        opts.Budget,
		backoffWindow: opts.BackoffWindow,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
	}
}

// Run ticks until ctx is done.
func (l *WalletLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick runs one refresh cycle. A tick is skipped while the provider backoff
// gate is closed or while a previous cycle is still in flight.
func (l *WalletLoop) Tick(ctx context.Context) {
	if l.backoff.Active() {
		return
	}
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true

	if l.cursor >= len(l.priority) {
		l.priority = l.cache.WalletPriorityList()
		l.cursor = 0
	}
	batch := make([]string, 0, l.budget)
	for len(batch) < l.budget && l.cursor < len(l.priority) {
		batch = append(batch, l.priority[l.cursor])
		l.cursor++
	}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	if len(batch) == 0 {
		return
	}

	updated := 0
	changedMints := make(map[string]struct{})
	for _, wallet := range batch {
		balances, err := l.provider.WalletHoldings(ctx, wallet)
		if err != nil {
			if errors.Is(err, provider.ErrRateLimited) {
				l.backoff.Open(l.backoffWindow)
				l.metrics.ProviderBackoffs.WithLabelValues("jupiter").Inc()
				l.logger.Printf("primary holdings provider rate limited, backing off %s", l.backoffWindow)
				break
			}
			l.logger.Printf("wallet holdings lookup failed for %s: %v", wallet, err)
			continue
		}
		l.metrics.WalletsChecked.WithLabelValues("jupiter").Inc()

		for _, mint := range l.cache.MintsTracking(wallet) {
			amount := balances[mint] // zero when the provider reports no position
			if l.cache.SetWalletAmount(mint, wallet, amount) {
				holdings.EmitHoldingUpdate(l.bus, mint, wallet, amount)
				l.metrics.HoldingsUpdated.WithLabelValues("jupiter").Inc()
				updated++
				changedMints[mint] = struct{}{}
			}
		}
	}
	l.counters.addPrimary(len(batch), updated, len(changedMints))
}
