package domain

// StatsWindows lists the trading-stat windows reported by the token search API.
var StatsWindows = []string{"5m", "1h", "6h", "24h"}

// WindowStats holds windowed trading statistics for one token.
type WindowStats struct {
	PriceChange     *float64 `json:"priceChange,omitempty"`
	HolderChange    *float64 `json:"holderChange,omitempty"`
	LiquidityChange *float64 `json:"liquidityChange,omitempty"`
	BuyVolume       *float64 `json:"buyVolume,omitempty"`
	SellVolume      *float64 `json:"sellVolume,omitempty"`
	NumBuys         *int64   `json:"numBuys,omitempty"`
	NumSells        *int64   `json:"numSells,omitempty"`
	NumTraders      *int64   `json:"numTraders,omitempty"`
	NumNetBuyers    *int64   `json:"numNetBuyers,omitempty"`
}

// TransactionRecord is one fully-assembled signature: indexer fields, the
// first fungible token transfer (if any), market metadata and funding
// metadata. It is the row persisted to the durable store, the observation
// merged into the holdings cache, and the payload of a transaction feed
// event. Nullable fields are pointers; nil means the enrichment step had no
// value for them.
type TransactionRecord struct {
	Signature string  `json:"signature"`
	SourceURL *string `json:"source_url"`
	Timestamp int64   `json:"timestamp"` // unix seconds

	// Indexer fields.
	Type        *string `json:"type"`
	SourceLabel *string `json:"source_label"`
	Fee         *int64  `json:"fee"`
	FeePayer    *string `json:"fee_payer"`
	Slot        *int64  `json:"slot"`

	// First fungible token transfer. Wallet is the fee payer; it identifies
	// the holder for this system.
	Mint          *string  `json:"mint"`
	Wallet        *string  `json:"to_user_account"`
	TokenAmount   *float64 `json:"token_amount"`
	TokenStandard *string  `json:"token_standard"`

	// Market metadata from the token search provider.
	TokenName            *string  `json:"token_name"`
	TokenSymbol          *string  `json:"token_symbol"`
	TokenIcon            *string  `json:"token_icon"`
	Dev                  *string  `json:"dev"`
	DevMigrations        *int64   `json:"dev_migrations"`
	Launchpad            *string  `json:"launchpad"`
	FirstPoolCreatedAt   *string  `json:"first_pool_created_at"`
	HolderCount          *int64   `json:"holder_count"`
	Mcap                 *float64 `json:"mcap"`
	UsdPrice             *float64 `json:"usd_price"`
	Liquidity            *float64 `json:"liquidity"`
	TopHoldersPercentage *float64 `json:"top_holders_percentage"`
	Twitter              *string  `json:"twitter"`
	Website              *string  `json:"website"`

	// Audit flags: 1 disabled, 0 enabled, nil unknown.
	AuditMintAuthorityDisabled   *int `json:"audit_mint_authority_disabled"`
	AuditFreezeAuthorityDisabled *int `json:"audit_freeze_authority_disabled"`

	// Trading stats keyed by window ("5m", "1h", "6h", "24h").
	Stats map[string]*WindowStats `json:"stats,omitempty"`

	// Funding metadata staged by the ingestion source.
	FundOrigin     *string  `json:"fund_origin"`
	FundAgeLiteral *string  `json:"fund_age_literal"`
	FundAgeSeconds *int64   `json:"fund_age_seconds"`
	FundSourceTags []string `json:"fund_source_tags,omitempty"`
}

// HasTokenTransfer reports whether a fungible token transfer was resolved.
func (r *TransactionRecord) HasTokenTransfer() bool {
	return r != nil && r.Mint != nil && *r.Mint != ""
}
