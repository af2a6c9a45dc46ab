package holdings

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintwatch/internal/domain"
)

func strp(s string) *string   { return &s }
func f64p(f float64) *float64 { return &f }
func i64p(i int64) *int64     { return &i }

// obs builds a minimal ingestion observation.
func obs(sig, mint, wallet string, amount float64, ts int64) *domain.TransactionRecord {
	return &domain.TransactionRecord{
		Signature:     sig,
		Timestamp:     ts,
		Mint:          strp(mint),
		Wallet:        strp(wallet),
		TokenAmount:   f64p(amount),
		TokenStandard: strp("Fungible"),
	}
}

func fixedClock(sec int64) func() time.Time {
	return func() time.Time { return time.Unix(sec, 0) }
}

func TestCache_UpsertCreatesCardAndWallet(t *testing.T) {
	c := NewCache(0)
	require.True(t, c.Upsert(obs("S1", "M", "W", 100, 1000)))

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 100.0, c.Total("M"))

	snap, ok := c.Card("M")
	require.True(t, ok)
	require.Len(t, snap.Wallets, 1)
	w := snap.Wallets[0]
	assert.Equal(t, "W", w.Account)
	assert.Equal(t, int64(1000), w.FirstSeen)
	assert.Equal(t, int64(1000), w.LastSeen)
	assert.Equal(t, 100.0, *w.LastAmount)
	assert.Equal(t, 1, w.TxCount)
	assert.Nil(t, w.SoldAt)
}

func TestCache_UpsertIgnoresRecordWithoutMint(t *testing.T) {
	c := NewCache(0)
	rec := &domain.TransactionRecord{Signature: "S1", Timestamp: 1000}
	assert.False(t, c.Upsert(rec))
	assert.Equal(t, 0, c.Len())
}

func TestCache_MetadataFillIfAbsent(t *testing.T) {
	c := NewCache(0)
	first := obs("S1", "M", "W", 1, 1000)
	first.TokenSymbol = strp("AAA")
	require.True(t, c.Upsert(first))

	second := obs("S2", "M", "W", 1, 1001)
	second.TokenSymbol = strp("BBB")
	second.TokenName = strp("Token B")
	require.True(t, c.Upsert(second))

	snap, _ := c.Card("M")
	assert.Equal(t, "AAA", *snap.TokenSymbol, "symbol set first wins")
	assert.Equal(t, "Token B", *snap.TokenName, "name fills in when absent")
}

func TestCache_CurrentMetricsOverwrite(t *testing.T) {
	c := NewCache(0)
	first := obs("S1", "M", "W", 1, 1000)
	first.UsdPrice = f64p(1.5)
	first.HolderCount = i64p(10)
	require.True(t, c.Upsert(first))

	second := obs("S2", "M", "W", 1, 900) // older timestamp
	second.UsdPrice = f64p(2.5)
	second.HolderCount = i64p(20)
	require.True(t, c.Upsert(second))

	snap, _ := c.Card("M")
	assert.Equal(t, 2.5, *snap.UsdPrice, "price overwritten regardless of recency")
	assert.Equal(t, int64(20), *snap.HolderCount)
}

func TestCache_LastTimestampMonotonic(t *testing.T) {
	c := NewCache(0)
	require.True(t, c.Upsert(obs("S1", "M", "W", 1, 1000)))
	require.True(t, c.Upsert(obs("S2", "M", "W", 1, 900)))

	snap, _ := c.Card("M")
	assert.Equal(t, int64(1000), snap.LastTimestamp)
	assert.Equal(t, "S1", *snap.LastSignature, "stale observation does not move provenance")

	require.True(t, c.Upsert(obs("S3", "M", "W", 1, 1100)))
	snap, _ = c.Card("M")
	assert.Equal(t, int64(1100), snap.LastTimestamp)
	assert.Equal(t, "S3", *snap.LastSignature)
}

func TestCache_TotalTreatsNonFiniteAsZero(t *testing.T) {
	c := NewCache(0)
	require.True(t, c.Upsert(obs("S1", "M", "W1", 100, 1000)))
	require.True(t, c.Upsert(obs("S2", "M", "W2", math.Inf(1), 1000)))
	require.True(t, c.Upsert(obs("S3", "M", "W3", math.NaN(), 1000)))

	assert.Equal(t, 100.0, c.Total("M"))
	assert.Equal(t, 0.0, c.Total("unknown"))
}

func TestCache_SetWalletAmountUnknownTargetsNoop(t *testing.T) {
	c := NewCache(0)
	require.True(t, c.Upsert(obs("S1", "M", "W", 100, 1000)))

	assert.False(t, c.SetWalletAmount("other-mint", "W", 5), "unknown mint")
	assert.False(t, c.SetWalletAmount("M", "other-wallet", 5), "refresh never learns new wallets")
	assert.Equal(t, 100.0, c.Total("M"))
}

func TestCache_SetWalletAmountIdempotent(t *testing.T) {
	c := NewCache(0)
	require.True(t, c.Upsert(obs("S1", "M", "W", 100, 1000)))

	assert.True(t, c.SetWalletAmount("M", "W", 50))
	assert.False(t, c.SetWalletAmount("M", "W", 50), "same amount twice signals no change")
	assert.Equal(t, 50.0, c.Total("M"))
}

func TestCache_SoldAtToggling(t *testing.T) {
	c := NewCache(0)
	c.SetNowFunc(fixedClock(1005))
	require.True(t, c.Upsert(obs("S1", "M", "W", 100, 1000)))

	// Amount drops to zero: sold_at set to now.
	require.True(t, c.SetWalletAmount("M", "W", 0))
	snap, _ := c.Card("M")
	require.NotNil(t, snap.Wallets[0].SoldAt)
	assert.Equal(t, int64(1005), *snap.Wallets[0].SoldAt)
	assert.Equal(t, 0.0, c.Total("M"))

	// Amount recovers: sold_at cleared.
	require.True(t, c.SetWalletAmount("M", "W", 10))
	snap, _ = c.Card("M")
	assert.Nil(t, snap.Wallets[0].SoldAt)
	assert.Equal(t, int64(10), int64(*snap.Wallets[0].LastAmount))
}

func TestCache_SoldAtClearedByIngestion(t *testing.T) {
	c := NewCache(0)
	c.SetNowFunc(fixedClock(1005))
	require.True(t, c.Upsert(obs("S1", "M", "W", 100, 1000)))
	require.True(t, c.SetWalletAmount("M", "W", 0))

	require.True(t, c.Upsert(obs("S2", "M", "W", 25, 1010)))
	snap, _ := c.Card("M")
	assert.Nil(t, snap.Wallets[0].SoldAt)
	assert.Equal(t, 2, snap.Wallets[0].TxCount)
}

func TestCache_LastSeenNeverDecreases(t *testing.T) {
	c := NewCache(0)
	require.True(t, c.Upsert(obs("S1", "M", "W", 100, 1000)))
	require.True(t, c.Upsert(obs("S2", "M", "W", 100, 900)))

	snap, _ := c.Card("M")
	assert.Equal(t, int64(1000), snap.Wallets[0].LastSeen)
}

func TestCache_SnapshotOrderAndLimit(t *testing.T) {
	c := NewCache(0)
	require.True(t, c.Upsert(obs("S1", "M1", "W", 1, 1000)))
	require.True(t, c.Upsert(obs("S2", "M2", "W", 1, 3000)))
	require.True(t, c.Upsert(obs("S3", "M3", "W", 1, 2000)))

	snaps := c.Snapshot(2)
	require.Len(t, snaps, 2)
	assert.Equal(t, "M2", snaps[0].Mint)
	assert.Equal(t, "M3", snaps[1].Mint)
}

func TestCache_SnapshotIsDetached(t *testing.T) {
	c := NewCache(0)
	rec := obs("S1", "M", "W", 100, 1000)
	rec.UsdPrice = f64p(1.5)
	require.True(t, c.Upsert(rec))

	snap, _ := c.Card("M")
	*snap.Wallets[0].LastAmount = 999
	*snap.UsdPrice = 42

	assert.Equal(t, 100.0, c.Total("M"), "mutating a snapshot does not touch the cache")
	fresh, _ := c.Card("M")
	assert.Equal(t, 1.5, *fresh.UsdPrice, "card pointer fields are detached too")
}

func TestCache_UpsertZeroAmountMarksSold(t *testing.T) {
	c := NewCache(0)
	require.True(t, c.Upsert(obs("S1", "M", "W", 100, 1000)))
	require.True(t, c.Upsert(obs("S2", "M", "W", 0, 1005)))

	snap, _ := c.Card("M")
	w := snap.Wallets[0]
	require.NotNil(t, w.SoldAt)
	assert.Equal(t, int64(1005), *w.SoldAt)
	assert.Equal(t, 0.0, c.Total("M"))

	// A later positive amount clears the marker again.
	require.True(t, c.Upsert(obs("S3", "M", "W", 5, 1010)))
	snap, _ = c.Card("M")
	assert.Nil(t, snap.Wallets[0].SoldAt)
}

func TestCache_UpsertFirstObservationAlreadySold(t *testing.T) {
	c := NewCache(0)
	require.True(t, c.Upsert(obs("S1", "M", "W", 0, 1000)))

	snap, _ := c.Card("M")
	require.NotNil(t, snap.Wallets[0].SoldAt)
	assert.Equal(t, int64(1000), *snap.Wallets[0].SoldAt)
}

func TestCache_WalletPriorityList(t *testing.T) {
	c := NewCache(10)
	// M1 total 100, recent; M2 total 5 (under threshold).
	require.True(t, c.Upsert(obs("S1", "M1", "W1", 60, 2000)))
	require.True(t, c.Upsert(obs("S2", "M1", "W2", 40, 1000)))
	require.True(t, c.Upsert(obs("S3", "M2", "W3", 5, 5000)))

	wallets := c.WalletPriorityList()
	assert.Equal(t, []string{"W1", "W2"}, wallets,
		"only wallets of mints meeting the threshold, best score first")
}

func TestCache_WalletPriorityScoreIsMaxOfMintAndWallet(t *testing.T) {
	c := NewCache(0)
	require.True(t, c.Upsert(obs("S1", "M1", "W1", 10, 1000)))
	require.True(t, c.Upsert(obs("S2", "M2", "W2", 10, 500)))
	// W2 seen again recently under M2: its own last_seen beats M1's timestamp.
	require.True(t, c.Upsert(obs("S3", "M2", "W2", 10, 1500)))

	wallets := c.WalletPriorityList()
	assert.Equal(t, []string{"W2", "W1"}, wallets)
}

func TestCache_ActiveMintsSortedByRecency(t *testing.T) {
	c := NewCache(10)
	require.True(t, c.Upsert(obs("S1", "M1", "W1", 50, 1000)))
	require.True(t, c.Upsert(obs("S2", "M2", "W2", 50, 2000)))
	require.True(t, c.Upsert(obs("S3", "M3", "W3", 1, 3000))) // under threshold

	assert.Equal(t, []string{"M2", "M1"}, c.ActiveMints())
}

func TestCache_MintsTrackingWallet(t *testing.T) {
	c := NewCache(0)
	require.True(t, c.Upsert(obs("S1", "M1", "W", 1, 1000)))
	require.True(t, c.Upsert(obs("S2", "M2", "W", 1, 1000)))
	require.True(t, c.Upsert(obs("S3", "M3", "other", 1, 1000)))

	assert.Equal(t, []string{"M1", "M2"}, c.MintsTracking("W"))
	assert.Empty(t, c.MintsTracking("missing"))
}

func TestCache_ApplyTokenInfo(t *testing.T) {
	c := NewCache(0)
	first := obs("S1", "M", "W", 1, 1000)
	first.TokenSymbol = strp("AAA")
	require.True(t, c.Upsert(first))

	ok := c.ApplyTokenInfo(&domain.TokenInfo{
		Mint:     "M",
		Symbol:   strp("BBB"),
		UsdPrice: f64p(4.2),
		Mcap:     f64p(1e6),
	})
	require.True(t, ok)

	snap, _ := c.Card("M")
	assert.Equal(t, "AAA", *snap.TokenSymbol, "descriptive fields stay fill-if-absent")
	assert.Equal(t, 4.2, *snap.UsdPrice)
	assert.Equal(t, 1e6, *snap.Mcap)

	assert.False(t, c.ApplyTokenInfo(&domain.TokenInfo{Mint: "unknown"}))
}

func TestCache_TypeLabelsAndTags(t *testing.T) {
	src := "https://discord.com/channels/1372291116853887077/1382098297891717252/1"
	c := NewCache(0)
	rec := obs("S1", "M", "W", 1, 1000)
	rec.SourceURL = strp(src)
	require.True(t, c.Upsert(rec))

	other := "https://discord.com/channels/958046672473194556/1241009019494072370/2"
	rec2 := obs("S2", "M", "W", 1, 1001)
	rec2.SourceURL = strp(other)
	require.True(t, c.Upsert(rec2))

	snap, _ := c.Card("M")
	assert.Equal(t, "Fresh", *snap.TypeLabel, "card label keeps first match")
	w := snap.Wallets[0]
	assert.Equal(t, "Fresh", *w.TypeLabel)
	assert.Equal(t, []string{"Fresh", "AG"}, w.TypeTags, "tags accumulate")
}
