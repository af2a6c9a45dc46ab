// Package holdings implements the in-memory mint/wallet holdings cache, its
// field-merge policy, and the threshold-based cleanup sweeper. The cache is
// the only canonical state in the system; every component receives a handle
// at construction.
package holdings

import (
	"math"
	"sort"
	"sync"
	"time"

	"mintwatch/internal/domain"
)

// Cache is the mint/wallet data store. All methods are safe for concurrent
// use; the merge rules are commutative enough that interleaved writers
// (ingestion, both refresh loops, the sweeper) converge on the same state.
type Cache struct {
	mu    sync.RWMutex
	cards map[string]*domain.MintCard

	// minTotal is the activity threshold: the aggregate holding a mint must
	// keep to stay eligible for refresh and retention.
	minTotal float64

	now func() time.Time
}

// NewCache creates an empty cache with the given activity threshold.
func NewCache(minTotal float64) *Cache {
	return &Cache{
		cards:    make(map[string]*domain.MintCard),
		minTotal: minTotal,
		now:      time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (c *Cache) SetNowFunc(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// MinTotal returns the activity threshold.
func (c *Cache) MinTotal() float64 { return c.minTotal }

// Upsert merges one enrichment observation into the store using the
// field-merge rules (fill-if-absent for descriptive metadata,
// overwrite-if-newer for current-state metrics, monotonic provenance).
// It returns true when the observation carried a mint and was applied.
// Callers are responsible for emitting the matching feed event.
func (c *Cache) Upsert(rec *domain.TransactionRecord) bool {
	if rec == nil || !rec.HasTokenTransfer() {
		return false
	}
	mint := *rec.Mint
	ts := domain.SanitizeTimestamp(rec.Timestamp)
	if ts == 0 {
		ts = c.nowUnix()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	card, ok := c.cards[mint]
	if !ok {
		card = newCardFromRecord(mint, rec, ts)
		c.cards[mint] = card
	} else {
		mergeCardMetadata(card, rec)
		mergeCardProvenance(card, rec, ts)
	}

	if rec.Wallet != nil && *rec.Wallet != "" {
		upsertWalletEntry(card, rec, ts)
	}
	c.updateThresholdLocked(card)
	return true
}

// SetWalletAmount is the single write path used by the refresh scheduler.
// It is a no-op when the wallet is not already tracked for the mint: the
// cache never learns new wallets from refresh, only from ingestion. It
// returns true when the stored amount actually changed, so callers can
// suppress redundant events.
func (c *Cache) SetWalletAmount(mint, wallet string, uiAmount float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	card, ok := c.cards[mint]
	if !ok {
		return false
	}
	entry, ok := card.Accounts[wallet]
	if !ok {
		return false
	}

	prev := 0.0
	if entry.LastAmount != nil && isFinite(*entry.LastAmount) {
		prev = *entry.LastAmount
	}
	next := uiAmount
	if !isFinite(next) {
		next = 0
	}
	if prev == next {
		return false
	}

	nowSec := c.nowUnix()
	entry.LastAmount = &next
	if nowSec > entry.LastSeen {
		entry.LastSeen = nowSec
	}
	if next <= 0 {
		soldAt := nowSec
		entry.SoldAt = &soldAt
	} else {
		entry.SoldAt = nil
	}
	c.updateThresholdLocked(card)
	return true
}

// Total returns the sum of last_amount across all wallets of a mint,
// treating missing or non-finite amounts as zero.
func (c *Cache) Total(mint string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	card, ok := c.cards[mint]
	if !ok {
		return 0
	}
	return cardTotal(card)
}

// Len returns the number of tracked mints.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cards)
}

// WalletCount returns the number of wallet entries across all cards.
func (c *Cache) WalletCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, card := range c.cards {
		n += len(card.Accounts)
	}
	return n
}

// ApplyTokenInfo merges a token-search result into an existing card using the
// same field groups as Upsert. It returns false when the mint is not tracked.
func (c *Cache) ApplyTokenInfo(info *domain.TokenInfo) bool {
	if info == nil || info.Mint == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	card, ok := c.cards[info.Mint]
	if !ok {
		return false
	}
	mergeTokenInfo(card, info)
	return true
}

// Card returns an immutable snapshot of one mint card, or false when absent.
func (c *Cache) Card(mint string) (*CardSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	card, ok := c.cards[mint]
	if !ok {
		return nil, false
	}
	return snapshotCard(card), true
}

// Snapshot returns immutable copies of up to limit cards ordered by
// last_timestamp descending.
func (c *Cache) Snapshot(limit int) []*CardSnapshot {
	c.mu.RLock()
	cards := make([]*domain.MintCard, 0, len(c.cards))
	for _, card := range c.cards {
		cards = append(cards, card)
	}
	sort.Slice(cards, func(i, j int) bool {
		return cards[i].LastTimestamp > cards[j].LastTimestamp
	})
	if limit > 0 && len(cards) > limit {
		cards = cards[:limit]
	}
	out := make([]*CardSnapshot, len(cards))
	for i, card := range cards {
		out[i] = snapshotCard(card)
	}
	c.mu.RUnlock()
	return out
}

// ActiveMints returns the mints whose total meets the activity threshold,
// ordered by last_timestamp descending. Used by the fallback sweep and the
// stats refresher.
func (c *Cache) ActiveMints() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	type entry struct {
		mint string
		ts   int64
	}
	var active []entry
	for mint, card := range c.cards {
		if cardTotal(card) < c.minTotal {
			continue
		}
		active = append(active, entry{mint, card.LastTimestamp})
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ts > active[j].ts })
	out := make([]string, len(active))
	for i, e := range active {
		out[i] = e.mint
	}
	return out
}

// WalletPriorityList builds the primary refresh loop's target list: every
// wallet of every mint meeting the activity threshold, scored by the max of
// the mint's last_timestamp and the wallet's own last_seen, descending.
func (c *Cache) WalletPriorityList() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	scores := make(map[string]int64)
	for _, card := range c.cards {
		if cardTotal(card) < c.minTotal {
			continue
		}
		base := card.LastTimestamp
		for _, entry := range card.Accounts {
			score := base
			if entry.LastSeen > score {
				score = entry.LastSeen
			}
			if prev, ok := scores[entry.Account]; !ok || score > prev {
				scores[entry.Account] = score
			}
		}
	}
	wallets := make([]string, 0, len(scores))
	for w := range scores {
		wallets = append(wallets, w)
	}
	sort.Slice(wallets, func(i, j int) bool {
		if scores[wallets[i]] != scores[wallets[j]] {
			return scores[wallets[i]] > scores[wallets[j]]
		}
		return wallets[i] < wallets[j]
	})
	return wallets
}

// MintsTracking returns the mints that already track the given wallet. The
// primary refresh loop writes observed amounts only for these.
func (c *Cache) MintsTracking(wallet string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for mint, card := range c.cards {
		if _, ok := card.Accounts[wallet]; ok {
			out = append(out, mint)
		}
	}
	sort.Strings(out)
	return out
}

// WalletsOf returns the wallet addresses tracked under a mint.
func (c *Cache) WalletsOf(mint string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	card, ok := c.cards[mint]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(card.Accounts))
	for w := range card.Accounts {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// RemovedMint describes one mint deleted by a cleanup pass.
type RemovedMint struct {
	Mint  string  `json:"mint"`
	Total float64 `json:"total"`
}

// CleanupStale deletes every card whose total has stayed below the activity
// threshold for at least retention, and returns the removed mints. Cards at
// or above the threshold get their marker cleared; cards newly below it get
// the marker set. A transient recovery above the threshold resets the clock.
func (c *Cache) CleanupStale(retention time.Duration) []RemovedMint {
	c.mu.Lock()
	defer c.mu.Unlock()

	nowMS := c.now().UnixMilli()
	var removed []RemovedMint
	for mint, card := range c.cards {
		total := cardTotal(card)
		if total >= c.minTotal {
			card.UnderThresholdSince = nil
			continue
		}
		if card.UnderThresholdSince == nil {
			since := nowMS
			card.UnderThresholdSince = &since
			continue
		}
		if nowMS-*card.UnderThresholdSince >= retention.Milliseconds() {
			delete(c.cards, mint)
			removed = append(removed, RemovedMint{Mint: mint, Total: total})
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].Mint < removed[j].Mint })
	return removed
}

// updateThresholdLocked maintains the under_threshold_since marker after a
// write. Caller holds the write lock.
func (c *Cache) updateThresholdLocked(card *domain.MintCard) {
	if cardTotal(card) >= c.minTotal {
		card.UnderThresholdSince = nil
		return
	}
	if card.UnderThresholdSince == nil {
		since := c.now().UnixMilli()
		card.UnderThresholdSince = &since
	}
}

func (c *Cache) nowUnix() int64 { return c.now().Unix() }

func cardTotal(card *domain.MintCard) float64 {
	var sum float64
	for _, entry := range card.Accounts {
		if entry.LastAmount != nil && isFinite(*entry.LastAmount) {
			sum += *entry.LastAmount
		}
	}
	return sum
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
