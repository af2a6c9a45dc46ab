package holdings

import (
	"fmt"
	"time"

	"mintwatch/internal/eventbus"
)

// Feed event kinds.
const (
	EventMintCardUpdate = "mint_card_update"
	EventHoldingUpdate  = "holding_update"
	EventMintCleanup    = "mint_cleanup"
)

// CardUpdateEvent is the payload of a mint_card_update event: the full card
// snapshot plus the event kind and emission time.
type CardUpdateEvent struct {
	Type string `json:"type"`
	*CardSnapshot
	Timestamp int64 `json:"timestamp"`
}

// HoldingUpdateEvent is the payload of a holding_update event.
type HoldingUpdateEvent struct {
	Type       string  `json:"type"`
	Mint       string  `json:"mint"`
	Wallet     string  `json:"wallet"`
	LastAmount float64 `json:"last_amount"`
	Timestamp  int64   `json:"timestamp"`
}

// CleanupEvent is the payload of a mint_cleanup event; one event lists every
// mint removed by a sweep.
type CleanupEvent struct {
	Type        string        `json:"type"`
	Mints       []string      `json:"mints"`
	Details     []RemovedMint `json:"details"`
	Threshold   float64       `json:"threshold"`
	OlderThanMS int64         `json:"older_than_ms"`
	Timestamp   int64         `json:"timestamp"`
}

// EmitCardUpdate publishes a mint_card_update for a tracked mint. It is a
// no-op when the mint is not in the cache.
func EmitCardUpdate(bus *eventbus.Bus, cache *Cache, mint string) {
	snap, ok := cache.Card(mint)
	if !ok {
		return
	}
	ts := time.Now().Unix()
	bus.Publish(fmt.Sprintf("mint-card-%s-%d", mint, ts), CardUpdateEvent{
		Type:         EventMintCardUpdate,
		CardSnapshot: snap,
		Timestamp:    ts,
	})
}

// EmitHoldingUpdate publishes a holding_update for one (mint, wallet) change.
func EmitHoldingUpdate(bus *eventbus.Bus, mint, wallet string, amount float64) {
	ts := time.Now().Unix()
	bus.Publish(fmt.Sprintf("hold-%s-%s-%d", mint, wallet, ts), HoldingUpdateEvent{
		Type:       EventHoldingUpdate,
		Mint:       mint,
		Wallet:     wallet,
		LastAmount: amount,
		Timestamp:  ts,
	})
}
