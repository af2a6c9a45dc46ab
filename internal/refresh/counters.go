package refresh

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultSummaryInterval is how often the aggregate refresh summary is
// logged.
const DefaultSummaryInterval = 10 * time.Second

// Counters aggregates refresh activity between summary logs.
type Counters struct {
	mu sync.Mutex

	walletsChecked  int
	walletsUpdated  int
	walletMints     int
	mintsScanned    int
	fallbackUpdated int
	fallbackMints   int
}

// NewCounters creates zeroed counters.
func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) addPrimary(checked, updated, mints int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.walletsChecked += checked
	c.walletsUpdated += updated
	c.walletMints += mints
}

func (c *Counters) addFallback(scanned, updated, mints int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mintsScanned += scanned
	c.fallbackUpdated += updated
	c.fallbackMints += mints
}

// LogSummary writes one aggregate line and resets the counters.
func (c *Counters) LogSummary(logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	logger.Printf("refresh summary: primary wallets checked=%d, updated=%d, mints=%d | fallback mints scanned=%d, wallets updated=%d, mints=%d",
		c.walletsChecked, c.walletsUpdated, c.walletMints,
		c.mintsScanned, c.fallbackUpdated, c.fallbackMints)
	c.walletsChecked = 0
	c.walletsUpdated = 0
	c.walletMints = 0
	c.mintsScanned = 0
	c.fallbackUpdated = 0
	c.fallbackMints = 0
}

// RunSummary logs the aggregate counters on a fixed interval until ctx is
// done.
func (c *Counters) RunSummary(ctx context.Context, interval time.Duration, logger *log.Logger) {
	if interval <= 0 {
		interval = DefaultSummaryInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.LogSummary(logger)
		}
	}
}
