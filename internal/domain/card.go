package domain

// WalletEntry tracks one (mint, wallet) pair inside a MintCard.
// LastAmount is the current holding in unit-adjusted (UI) terms.
type WalletEntry struct {
	Account          string   `json:"wallet"`
	FirstSeen        int64    `json:"first_seen"` // unix seconds
	LastSeen         int64    `json:"last_seen"`  // unix seconds, never decreases
	LastSignature    *string  `json:"last_signature"`
	LastSlot         *int64   `json:"last_slot"`
	LastAmount       *float64 `json:"last_amount"`
	SoldAt           *int64   `json:"sold_at"` // set when amount drops to <= 0, cleared when > 0
	TxCount          int      `json:"txCount"`
	FundingOrigin    *string  `json:"funding_origin"`
	FundAgeLiteral   *string  `json:"fund_age_literal"`
	FundAgeSeconds   *int64   `json:"fund_age_seconds"`
	FundingSignature *string  `json:"funding_signature"`
	TypeLabel        *string  `json:"type_label"`
	TypeTags         []string `json:"type_tags"`
}

// Clone returns a deep copy of the entry. Pointer fields are copied by
// value so a clone holder cannot write through into the original.
func (w *WalletEntry) Clone() *WalletEntry {
	if w == nil {
		return nil
	}
	cp := *w
	cp.LastSignature = copyPtr(w.LastSignature)
	cp.LastSlot = copyPtr(w.LastSlot)
	cp.LastAmount = copyPtr(w.LastAmount)
	cp.SoldAt = copyPtr(w.SoldAt)
	cp.FundingOrigin = copyPtr(w.FundingOrigin)
	cp.FundAgeLiteral = copyPtr(w.FundAgeLiteral)
	cp.FundAgeSeconds = copyPtr(w.FundAgeSeconds)
	cp.FundingSignature = copyPtr(w.FundingSignature)
	cp.TypeLabel = copyPtr(w.TypeLabel)
	cp.TypeTags = append([]string(nil), w.TypeTags...)
	return &cp
}

// MintCard is the per-mint record: token metadata, provenance, funding
// metadata and all tracked wallet entries. There is at most one card per
// mint; the holdings cache owns every card.
type MintCard struct {
	Mint string `json:"mint"`

	TokenSymbol          *string  `json:"token_symbol"`
	TokenName            *string  `json:"token_name"`
	TokenIcon            *string  `json:"token_icon"`
	UsdPrice             *float64 `json:"usd_price"`
	Liquidity            *float64 `json:"liquidity"`
	HolderCount          *int64   `json:"holder_count"`
	Mcap                 *float64 `json:"mcap"`
	TopHoldersPercentage *float64 `json:"top_holders_percentage"`
	DevMigrations        *int64   `json:"dev_migrations"`
	Dev                  *string  `json:"dev"`
	Launchpad            *string  `json:"launchpad"`
	FirstPoolCreatedAt   *string  `json:"first_pool_created_at"`
	Twitter              *string  `json:"twitter"`
	Website              *string  `json:"website"`

	LastSignature *string `json:"last_signature"`
	LastSlot      *int64  `json:"last_slot"`
	LastTimestamp int64   `json:"last_timestamp"` // unix seconds, monotonic max over writes
	SourceURL     *string `json:"source_url"`
	TypeLabel     *string `json:"type_label"`

	FundOrigin     *string `json:"fund_origin"`
	FundAgeLiteral *string `json:"fund_age_literal"`
	FundAgeSeconds *int64  `json:"fund_age_seconds"`

	// UnderThresholdSince marks when the card's total first dropped below the
	// activity threshold (unix ms); nil while at or above it.
	UnderThresholdSince *int64 `json:"-"`

	Accounts map[string]*WalletEntry `json:"-"`
}

// Clone returns a deep copy of the card's scalar and pointer fields. The
// accounts map is left nil; callers clone entries separately.
func (c *MintCard) Clone() *MintCard {
	if c == nil {
		return nil
	}
	cp := *c
	cp.TokenSymbol = copyPtr(c.TokenSymbol)
	cp.TokenName = copyPtr(c.TokenName)
	cp.TokenIcon = copyPtr(c.TokenIcon)
	cp.UsdPrice = copyPtr(c.UsdPrice)
	cp.Liquidity = copyPtr(c.Liquidity)
	cp.HolderCount = copyPtr(c.HolderCount)
	cp.Mcap = copyPtr(c.Mcap)
	cp.TopHoldersPercentage = copyPtr(c.TopHoldersPercentage)
	cp.DevMigrations = copyPtr(c.DevMigrations)
	cp.Dev = copyPtr(c.Dev)
	cp.Launchpad = copyPtr(c.Launchpad)
	cp.FirstPoolCreatedAt = copyPtr(c.FirstPoolCreatedAt)
	cp.Twitter = copyPtr(c.Twitter)
	cp.Website = copyPtr(c.Website)
	cp.LastSignature = copyPtr(c.LastSignature)
	cp.LastSlot = copyPtr(c.LastSlot)
	cp.SourceURL = copyPtr(c.SourceURL)
	cp.TypeLabel = copyPtr(c.TypeLabel)
	cp.FundOrigin = copyPtr(c.FundOrigin)
	cp.FundAgeLiteral = copyPtr(c.FundAgeLiteral)
	cp.FundAgeSeconds = copyPtr(c.FundAgeSeconds)
	cp.UnderThresholdSince = copyPtr(c.UnderThresholdSince)
	cp.Accounts = nil
	return &cp
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// TokenInfo is the canonical token-search result shape. Provider responses of
// any shape are normalized into this before they reach the cache or batcher.
type TokenInfo struct {
	Mint                    string
	Name                    *string
	Symbol                  *string
	Icon                    *string
	Dev                     *string
	DevMigrations           *int64
	Launchpad               *string
	FirstPoolCreatedAt      *string
	HolderCount             *int64
	Mcap                    *float64
	UsdPrice                *float64
	Liquidity               *float64
	TopHoldersPercentage    *float64
	Twitter                 *string
	Website                 *string
	MintAuthorityDisabled   *bool
	FreezeAuthorityDisabled *bool
	Stats                   map[string]*WindowStats
}

// RawTransaction is the canonical enriched-transaction shape returned by the
// fallback indexer's batch lookup.
type RawTransaction struct {
	Signature      string
	Type           *string
	Source         *string
	Fee            *int64
	FeePayer       *string
	Slot           *int64
	Timestamp      int64 // unix seconds
	TokenTransfers []TokenTransfer
}

// TokenTransfer is one token movement inside a RawTransaction.
type TokenTransfer struct {
	Mint          string
	TokenAmount   *float64
	TokenStandard string
}

// FirstFungibleTransfer returns the first transfer with the Fungible token
// standard, or nil when the transaction moved no fungible token.
func (t *RawTransaction) FirstFungibleTransfer() *TokenTransfer {
	for i := range t.TokenTransfers {
		if t.TokenTransfers[i].TokenStandard == "Fungible" {
			return &t.TokenTransfers[i]
		}
	}
	return nil
}
