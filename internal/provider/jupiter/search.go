package jupiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"mintwatch/internal/domain"
	"mintwatch/internal/provider"
)

// searchToken is one token entry from /tokens/v2/search. The API has used
// several field names for the mint, so all are accepted.
type searchToken struct {
	Mint    *string `json:"mint"`
	Address *string `json:"address"`
	ID      *string `json:"id"`
	Query   *string `json:"__query"`

	Name          *string `json:"name"`
	Symbol        *string `json:"symbol"`
	Icon          *string `json:"icon"`
	Dev           *string `json:"dev"`
	DevMigrations *int64  `json:"devMigrations"`
	Launchpad     *string `json:"launchpad"`
	FirstPool     *struct {
		CreatedAt *string `json:"createdAt"`
	} `json:"firstPool"`
	HolderCount          *int64   `json:"holderCount"`
	Mcap                 *float64 `json:"mcap"`
	UsdPrice             *float64 `json:"usdPrice"`
	Liquidity            *float64 `json:"liquidity"`
	TopHoldersPercentage *float64 `json:"topHoldersPercentage"`
	Twitter              *string  `json:"twitter"`
	Website              *string  `json:"website"`
	Audit                *struct {
		MintAuthorityDisabled   *bool `json:"mintAuthorityDisabled"`
		FreezeAuthorityDisabled *bool `json:"freezeAuthorityDisabled"`
	} `json:"audit"`

	Stats5m  *domain.WindowStats `json:"stats5m"`
	Stats1h  *domain.WindowStats `json:"stats1h"`
	Stats6h  *domain.WindowStats `json:"stats6h"`
	Stats24h *domain.WindowStats `json:"stats24h"`
}

func (t *searchToken) mint() string {
	for _, p := range []*string{t.Mint, t.Address, t.ID, t.Query} {
		if p != nil && *p != "" {
			return *p
		}
	}
	return ""
}

func (t *searchToken) toTokenInfo() *domain.TokenInfo {
	info := &domain.TokenInfo{
		Mint:                 t.mint(),
		Name:                 t.Name,
		Symbol:               t.Symbol,
		Icon:                 t.Icon,
		Dev:                  t.Dev,
		DevMigrations:        t.DevMigrations,
		Launchpad:            t.Launchpad,
		HolderCount:          t.HolderCount,
		Mcap:                 t.Mcap,
		UsdPrice:             t.UsdPrice,
		Liquidity:            t.Liquidity,
		TopHoldersPercentage: t.TopHoldersPercentage,
		Twitter:              t.Twitter,
		Website:              t.Website,
	}
	if t.FirstPool != nil {
		info.FirstPoolCreatedAt = t.FirstPool.CreatedAt
	}
	if t.Audit != nil {
		info.MintAuthorityDisabled = t.Audit.MintAuthorityDisabled
		info.FreezeAuthorityDisabled = t.Audit.FreezeAuthorityDisabled
	}
	stats := make(map[string]*domain.WindowStats)
	for window, s := range map[string]*domain.WindowStats{
		"5m": t.Stats5m, "1h": t.Stats1h, "6h": t.Stats6h, "24h": t.Stats24h,
	} {
		if s != nil {
			stats[window] = s
		}
	}
	if len(stats) > 0 {
		info.Stats = stats
	}
	return info
}

// SearchToken looks up one token by mint. Returns nil without error when the
// provider reports no match.
func (c *Client) SearchToken(ctx context.Context, query string) (*domain.TokenInfo, error) {
	u := fmt.Sprintf("%s/tokens/v2/search?query=%s", c.baseURL, url.QueryEscape(query))

	var tokens []searchToken
	if err := c.doJSON(ctx, "search", http.MethodGet, u, nil, &tokens); err != nil {
		return nil, fmt.Errorf("search token %s: %w", query, err)
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	return tokens[0].toTokenInfo(), nil
}

// BatchSearch looks up many tokens in one POST. When the batch call fails
// for a reason other than rate limiting, it degrades to individual GETs and
// returns whatever it could fetch. A rate-limit error is returned as-is so
// the caller can back off.
func (c *Client) BatchSearch(ctx context.Context, queries []string) ([]*domain.TokenInfo, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(map[string][]string{"queries": queries})
	if err != nil {
		return nil, fmt.Errorf("marshal batch search request: %w", err)
	}

	var raw json.RawMessage
	err = c.doJSON(ctx, "batch_search", http.MethodPost, c.baseURL+"/tokens/v2/search", body, &raw)
	if err == nil {
		return parseBatchResponse(raw)
	}
	if errors.Is(err, provider.ErrRateLimited) || ctx.Err() != nil {
		return nil, err
	}
	c.logger.Printf("jupiter batch search failed, falling back to individual lookups: %v", err)

	var infos []*domain.TokenInfo
	for _, q := range queries {
		info, err := c.SearchToken(ctx, q)
		if err != nil {
			if errors.Is(err, provider.ErrRateLimited) || ctx.Err() != nil {
				return infos, err
			}
			continue
		}
		if info != nil {
			if info.Mint == "" {
				info.Mint = q
			}
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// parseBatchResponse accepts the shapes the batch search endpoint has
// returned over time: a bare token array, {"results": {query: [token]}},
// or {"data": [token]}.
func parseBatchResponse(raw json.RawMessage) ([]*domain.TokenInfo, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var tokens []searchToken
	if err := json.Unmarshal(raw, &tokens); err == nil {
		return tokensToInfos(tokens, ""), nil
	}

	var wrapper struct {
		Results map[string][]searchToken `json:"results"`
		Data    []searchToken            `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, fmt.Errorf("unrecognized batch search response: %w", err)
	}

	if len(wrapper.Results) > 0 {
		var infos []*domain.TokenInfo
		for query, list := range wrapper.Results {
			if len(list) == 0 {
				continue
			}
			infos = append(infos, tokensToInfos(list[:1], query)...)
		}
		return infos, nil
	}
	return tokensToInfos(wrapper.Data, ""), nil
}

func tokensToInfos(tokens []searchToken, fallbackMint string) []*domain.TokenInfo {
	var infos []*domain.TokenInfo
	for i := range tokens {
		info := tokens[i].toTokenInfo()
		if info.Mint == "" {
			info.Mint = fallbackMint
		}
		if info.Mint == "" {
			continue
		}
		infos = append(infos, info)
	}
	return infos
}
