package helius

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// tokenAccount is one holder account in a getTokenAccounts result. Owner
// field names vary across API versions.
type tokenAccount struct {
	Owner        *string `json:"owner"`
	OwnerAddress *string `json:"owner_address"`
	Address      *string `json:"address"`

	TokenAmount *struct {
		Amount   json.Number `json:"amount"`
		Decimals *int        `json:"decimals"`
	} `json:"token_amount"`
	Amount json.Number `json:"amount"`
}

func (a *tokenAccount) owner() string {
	for _, p := range []*string{a.Owner, a.OwnerAddress, a.Address} {
		if p != nil && *p != "" {
			return *p
		}
	}
	return ""
}

func (a *tokenAccount) uiAmount() (float64, bool) {
	if a.TokenAmount != nil && a.TokenAmount.Amount != "" && a.TokenAmount.Decimals != nil {
		amt, err := a.TokenAmount.Amount.Float64()
		if err == nil {
			return amt / math.Pow(10, float64(*a.TokenAmount.Decimals)), true
		}
	}
	if a.Amount != "" {
		// Decimals unknown; assume the common 6
		amt, err := a.Amount.Float64()
		if err == nil {
			return amt / 1e6, true
		}
	}
	return 0, false
}

// TokenAccounts returns the current holders of mint as owner to
// unit-adjusted amount.
func (c *Client) TokenAccounts(ctx context.Context, mint string) (map[string]float64, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  "getTokenAccounts",
		Params: map[string]any{
			"mint":  mint,
			"limit": 1000,
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal rpc request: %w", err)
	}

	var resp rpcResponse
	if err := c.post(ctx, "token_accounts", c.rpcURL, body, &resp); err != nil {
		return nil, fmt.Errorf("get token accounts for %s: %w", mint, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("get token accounts for %s: %w", mint, resp.Error)
	}

	var result struct {
		TokenAccounts []tokenAccount `json:"token_accounts"`
	}
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, fmt.Errorf("unmarshal token accounts: %w", err)
		}
	}

	out := make(map[string]float64, len(result.TokenAccounts))
	for i := range result.TokenAccounts {
		owner := result.TokenAccounts[i].owner()
		if owner == "" {
			continue
		}
		ui, ok := result.TokenAccounts[i].uiAmount()
		if !ok || math.IsNaN(ui) || math.IsInf(ui, 0) {
			continue
		}
		out[owner] = ui
	}
	return out, nil
}
