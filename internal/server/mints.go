package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mintwatch/internal/domain"
	"mintwatch/internal/holdings"
)

// defaultPageLimit applies when a list endpoint gets no limit parameter.
const defaultPageLimit = 100

// mintSummary is one /mints row: card fields without the wallet list unless
// the caller asks for it.
type mintSummary struct {
	Mint               string   `json:"mint"`
	TypeLabel          *string  `json:"type_label"`
	TokenSymbol        *string  `json:"token_symbol"`
	TokenName          *string  `json:"token_name"`
	TokenIcon          *string  `json:"token_icon"`
	UsdPrice           *float64 `json:"usd_price"`
	Liquidity          *float64 `json:"liquidity"`
	Mcap               *float64 `json:"mcap"`
	HolderCount        *int64   `json:"holder_count"`
	Dev                *string  `json:"dev"`
	Launchpad          *string  `json:"launchpad"`
	FirstPoolCreatedAt *string  `json:"first_pool_created_at"`
	Twitter            *string  `json:"twitter"`
	Website            *string  `json:"website"`
	LastSignature      *string  `json:"last_signature"`
	LastSlot           *int64   `json:"last_slot"`
	LastTimestamp      int64    `json:"last_timestamp"`
	FundOrigin         *string  `json:"fund_origin"`
	FundAgeLiteral     *string  `json:"fund_age_literal"`
	FundAgeSeconds     *int64   `json:"fund_age_seconds"`
	WalletsCount       int      `json:"wallets_count"`

	Wallets []*domain.WalletEntry `json:"wallets,omitempty"`
}

func summarize(snap *holdings.CardSnapshot, includeWallets bool) mintSummary {
	out := mintSummary{
		Mint:               snap.Mint,
		TypeLabel:          snap.TypeLabel,
		TokenSymbol:        snap.TokenSymbol,
		TokenName:          snap.TokenName,
		TokenIcon:          snap.TokenIcon,
		UsdPrice:           snap.UsdPrice,
		Liquidity:          snap.Liquidity,
		Mcap:               snap.Mcap,
		HolderCount:        snap.HolderCount,
		Dev:                snap.Dev,
		Launchpad:          snap.Launchpad,
		FirstPoolCreatedAt: snap.FirstPoolCreatedAt,
		Twitter:            snap.Twitter,
		Website:            snap.Website,
		LastSignature:      snap.LastSignature,
		LastSlot:           snap.LastSlot,
		LastTimestamp:      snap.LastTimestamp,
		FundOrigin:         snap.FundOrigin,
		FundAgeLiteral:     snap.FundAgeLiteral,
		FundAgeSeconds:     snap.FundAgeSeconds,
		WalletsCount:       snap.WalletsCount,
	}
	if includeWallets {
		out.Wallets = snap.Wallets
	}
	return out
}

func (s *Server) handleMints(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPageLimit)
	includeWallets := r.URL.Query().Get("includeWallets") == "true"

	snaps := s.cache.Snapshot(limit)
	data := make([]mintSummary, len(snaps))
	for i, snap := range snaps {
		data[i] = summarize(snap, includeWallets)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"count": len(data), "data": data})
}

func (s *Server) handleMintDetail(w http.ResponseWriter, r *http.Request) {
	mint := chi.URLParam(r, "mint")
	limit := queryInt(r, "limit", defaultPageLimit)
	offset := queryInt(r, "offset", 0)

	snap, ok := s.cache.Card(mint)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Mint not found", nil)
		return
	}

	wallets := snap.Wallets // already ordered last_seen descending
	total := len(wallets)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}

	detail := summarize(snap, true)
	detail.Wallets = wallets[offset:end]
	s.writeJSON(w, http.StatusOK, map[string]any{
		"mint":                  detail.Mint,
		"type_label":            detail.TypeLabel,
		"token_symbol":          detail.TokenSymbol,
		"token_name":            detail.TokenName,
		"token_icon":            detail.TokenIcon,
		"usd_price":             detail.UsdPrice,
		"liquidity":             detail.Liquidity,
		"mcap":                  detail.Mcap,
		"holder_count":          detail.HolderCount,
		"dev":                   detail.Dev,
		"launchpad":             detail.Launchpad,
		"first_pool_created_at": detail.FirstPoolCreatedAt,
		"twitter":               detail.Twitter,
		"website":               detail.Website,
		"last_signature":        detail.LastSignature,
		"last_slot":             detail.LastSlot,
		"last_timestamp":        detail.LastTimestamp,
		"wallets_count":         total,
		"wallets":               detail.Wallets,
		"page":                  map[string]int{"limit": limit, "offset": offset},
	})
}

// queryInt parses an integer query parameter, falling back to def on absence
// or garbage.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
