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

// Defaults for the fallback per-mint sweep.
const (
	DefaultMintBudget  = 8
	DefaultSweepFloor  = 60 * time.Second
	DefaultMintBackoff = 60 * time.Second
)

// AccountsProvider answers who currently holds a mint.
type AccountsProvider interface {
	TokenAccounts(ctx context.Context, mint string) (map[string]float64, error)
}

// MintSweep is the fallback refresh loop: a periodic broad consistency pass
// walking every active mint and reconciling all of its tracked wallets
// against the provider's owner list. Sweeps start no more often than the
// configured interval (never below the 60s floor) and span multiple ticks
// via a persistent cursor.
type MintSweep struct {
	cache    *holdings.Cache
	bus      *eventbus.Bus
	provider AccountsProvider
	backoff  *Backoff
	counters *Counters

	interval      time.Duration
	sweepInterval time.Duration
	budget        int
	backoffWindow time.Duration
	logger        *log.Logger
	metrics       *observability.Metrics
	now           func() time.Time

	mu        sync.Mutex
	running   bool
	active    bool
	mints     []string
	cursor    int
	lastStart time.Time
}

// MintSweepOptions configures a MintSweep. Zero values select defaults.
type MintSweepOptions struct {
	Interval      time.Duration // tick cadence
	SweepInterval time.Duration // min gap between sweep starts, floored at 60s
	Budget        int
	BackoffWindow time.Duration
	Counters      *Counters
	Logger        *log.Logger
	Metrics       *observability.Metrics
}

// NewMintSweep creates the fallback refresh loop.
func NewMintSweep(cache *holdings.Cache, bus *eventbus.Bus, p AccountsProvider, backoff *Backoff, opts MintSweepOptions) *MintSweep {
	if opts.Interval <= 0 {
		opts.Interval = DefaultTickInterval
	}
	if opts.SweepInterval < DefaultSweepFloor {
		opts.SweepInterval = DefaultSweepFloor
	}
	if opts.Budget <= 0 {
		opts.Budget = DefaultMintBudget
	}
	if opts.BackoffWindow <= 0 {
		opts.BackoffWindow = DefaultMintBackoff
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
	return &MintSweep{
		cache:         cache,
		bus:           bus,
		provider:      p,
		backoff:       backoff,
		counters:      opts.Counters,
		interval:      opts.Interval,
		sweepInterval: opts.SweepInterval,
		budget:        opts.Budget,
		backoffWindow: opts.BackoffWindow,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		now:           time.Now,
	}
}

// SetNowFunc overrides the clock. Test hook.
func (s *MintSweep) SetNowFunc(now func() time.Time) {
	s.now = now
}

// Run ticks until ctx is done.
func (s *MintSweep) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick advances the current sweep by up to the per-tick budget of mints, or
// starts a new sweep when none is active and the interval gate allows it.
func (s *MintSweep) Tick(ctx context.Context) {
	if s.backoff.Active() {
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	now := s.now()
	if !s.active {
		if now.Sub(s.lastStart) < s.sweepInterval {
			s.mu.Unlock()
			return
		}
		s.mints = s.cache.ActiveMints()
		s.cursor = 0
		s.active = true
		s.lastStart = now
	}
	if len(s.mints) == 0 {
		s.active = false
		s.mu.Unlock()
		return
	}
	batch := make([]string, 0, s.budget)
	for len(batch) < s.budget && s.cursor < len(s.mints) {
		batch = append(batch, s.mints[s.cursor])
		s.cursor++
	}
	done := s.cursor >= len(s.mints)
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		if done {
			s.active = false
		}
		s.mu.Unlock()
	}()

	updated := 0
	changedMints := make(map[string]struct{})
	for _, mint := range batch {
		owners, err := s.provider.TokenAccounts(ctx, mint)
		if err != nil {
			if errors.Is(err, provider.ErrRateLimited) {
				s.backoff.Open(s.backoffWindow)
				s.metrics.ProviderBackoffs.WithLabelValues("helius").Inc()
				s.logger.Printf("fallback accounts provider rate limited, backing off %s", s.backoffWindow)
				break
			}
			s.logger.Printf("token accounts lookup failed for %s: %v", mint, err)
			continue
		}

		for _, wallet := range s.cache.WalletsOf(mint) {
			amount := owners[wallet] // zero when the wallet no longer appears
			if s.cache.SetWalletAmount(mint, wallet, amount) {
				holdings.EmitHoldingUpdate(s.bus, mint, wallet, amount)
				s.metrics.HoldingsUpdated.WithLabelValues("helius").Inc()
				updated++
				changedMints[mint] = struct{}{}
			}
		}
	}
	s.counters.addFallback(len(batch), updated, len(changedMints))
}
