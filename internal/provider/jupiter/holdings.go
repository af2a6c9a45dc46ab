package jupiter

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
)

// WalletHoldings returns the wallet's token balances as mint to unit-adjusted
// amount. Several endpoint variants are tried in order; a 404 moves on to the
// next candidate, any other failure aborts so the caller can retry or back
// off.
func (c *Client) WalletHoldings(ctx context.Context, wallet string) (map[string]float64, error) {
	escaped := url.QueryEscape(wallet)
	candidates := []string{
		c.baseURL + c.holdingsPath + "/" + escaped,
	}
	if c.holdingsPath != DefaultHoldingsPath {
		candidates = append(candidates, c.baseURL+DefaultHoldingsPath+"/"+escaped)
	}
	candidates = append(candidates,
		c.baseURL+c.holdingsPath+"?wallet="+escaped,
		c.baseURL+"/v1/wallet/holdings?wallet="+escaped,
		c.baseURL+"/v1/wallet/holdings?publicKey="+escaped,
		c.baseURL+"/wallet/holdings?wallet="+escaped,
	)

	var lastErr error
	for _, u := range candidates {
		var raw json.RawMessage
		err := c.doJSON(ctx, "holdings", http.MethodGet, u, nil, &raw)
		if err == nil {
			return extractHoldings(raw), nil
		}
		if isNotFound(err) {
			lastErr = err
			continue
		}
		return nil, fmt.Errorf("wallet holdings %s: %w", wallet, err)
	}
	return nil, fmt.Errorf("wallet holdings %s: all endpoint candidates failed: %w", wallet, lastErr)
}

// holdingsToken is one balance entry in a holdings response. Amount fields
// vary between API versions; uiAmount is preferred, then raw amount with
// decimals, then the balance aliases.
type holdingsToken struct {
	Mint    *string `json:"mint"`
	Address *string `json:"address"`
	ID      *string `json:"id"`

	UIAmount       *float64    `json:"uiAmount"`
	Amount         json.Number `json:"amount"`
	Decimals       *int        `json:"decimals"`
	Balance        *float64    `json:"balance"`
	UIBalance      *float64    `json:"uiBalance"`
	UIAmountString *string     `json:"uiAmountString"`
}

func (t *holdingsToken) mint() string {
	for _, p := range []*string{t.Mint, t.Address, t.ID} {
		if p != nil && *p != "" {
			return *p
		}
	}
	return ""
}

func (t *holdingsToken) uiAmount() (float64, bool) {
	if t.UIAmount != nil {
		return *t.UIAmount, true
	}
	if t.Amount != "" && t.Decimals != nil {
		amt, err := t.Amount.Float64()
		if err == nil && isFinite(amt) {
			return amt / math.Pow(10, float64(*t.Decimals)), true
		}
	}
	if t.Balance != nil {
		return *t.Balance, true
	}
	if t.UIBalance != nil {
		return *t.UIBalance, true
	}
	if t.UIAmountString != nil {
		if v, err := strconv.ParseFloat(*t.UIAmountString, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// extractHoldings normalizes the holdings response shapes into mint to
// amount. Supported shapes: a bare token array, {"holdings"|"data": [...]},
// and {"tokens": {mint: [account, ...]}} where per-mint accounts are summed.
func extractHoldings(raw json.RawMessage) map[string]float64 {
	out := make(map[string]float64)
	if len(raw) == 0 {
		return out
	}

	var list []holdingsToken
	if err := json.Unmarshal(raw, &list); err == nil {
		collectHoldings(out, list)
		return out
	}

	var wrapper struct {
		Holdings []holdingsToken            `json:"holdings"`
		Data     []holdingsToken            `json:"data"`
		Tokens   map[string][]holdingsToken `json:"tokens"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return out
	}

	if len(wrapper.Holdings) > 0 {
		collectHoldings(out, wrapper.Holdings)
		return out
	}
	if len(wrapper.Data) > 0 {
		collectHoldings(out, wrapper.Data)
		return out
	}

	for mint, accounts := range wrapper.Tokens {
		if mint == "" {
			continue
		}
		sum := 0.0
		for i := range accounts {
			if ui, ok := accounts[i].uiAmount(); ok && isFinite(ui) {
				sum += ui
			}
		}
		if isFinite(sum) {
			out[mint] = sum
		}
	}
	return out
}

func collectHoldings(out map[string]float64, list []holdingsToken) {
	for i := range list {
		mint := list[i].mint()
		if mint == "" {
			continue
		}
		if ui, ok := list[i].uiAmount(); ok && isFinite(ui) {
			out[mint] = ui
		}
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
