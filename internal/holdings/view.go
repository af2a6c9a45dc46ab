package holdings

import (
	"sort"

	"mintwatch/internal/domain"
)

// CardSnapshot is an immutable, serializable view of one mint card with its
// wallet entries ordered by last_seen descending. Snapshots share no memory
// with the live cache.
type CardSnapshot struct {
	domain.MintCard
	WalletsCount int                   `json:"wallets_count"`
	Wallets      []*domain.WalletEntry `json:"fee_payers"`
}

// Total returns the sum of wallet amounts in the snapshot, non-finite and
// missing amounts counted as zero.
func (s *CardSnapshot) Total() float64 {
	var sum float64
	for _, w := range s.Wallets {
		if w.LastAmount != nil && isFinite(*w.LastAmount) {
			sum += *w.LastAmount
		}
	}
	return sum
}

// snapshotCard deep-copies a card under the cache lock.
func snapshotCard(card *domain.MintCard) *CardSnapshot {
	snap := &CardSnapshot{MintCard: *card.Clone()}
	snap.Wallets = make([]*domain.WalletEntry, 0, len(card.Accounts))
	for _, entry := range card.Accounts {
		snap.Wallets = append(snap.Wallets, entry.Clone())
	}
	sort.Slice(snap.Wallets, func(i, j int) bool {
		if snap.Wallets[i].LastSeen != snap.Wallets[j].LastSeen {
			return snap.Wallets[i].LastSeen > snap.Wallets[j].LastSeen
		}
		return snap.Wallets[i].Account < snap.Wallets[j].Account
	})
	snap.WalletsCount = len(snap.Wallets)
	return snap
}
