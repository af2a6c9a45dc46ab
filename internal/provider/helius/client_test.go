package helius

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintwatch/internal/provider"
)

func TestEnrichTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/transactions", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("api-key"))

		var req struct {
			Transactions []string `json:"transactions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"sig-a", "sig-b"}, req.Transactions)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{
				"signature": "sig-a",
				"type": "TRANSFER",
				"source": "SYSTEM_PROGRAM",
				"fee": 5000,
				"feePayer": "Payer1",
				"slot": 123,
				"timestamp": 1700000000,
				"tokenTransfers": [
					{"mint": "MintNFT", "tokenAmount": 1, "tokenStandard": "NonFungible"},
					{"mint": "MintA", "tokenAmount": 42.5, "tokenStandard": "Fungible"}
				]
			}
		]`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithAPIBaseURL(srv.URL))
	txs, err := client.EnrichTransactions(context.Background(), []string{"sig-a", "sig-b"})
	require.NoError(t, err)
	require.Len(t, txs, 2)

	require.NotNil(t, txs[0])
	assert.Equal(t, "sig-a", txs[0].Signature)
	assert.Equal(t, "TRANSFER", *txs[0].Type)
	assert.Equal(t, "Payer1", *txs[0].FeePayer)
	assert.Equal(t, int64(1700000000), txs[0].Timestamp)

	transfer := txs[0].FirstFungibleTransfer()
	require.NotNil(t, transfer)
	assert.Equal(t, "MintA", transfer.Mint)
	assert.Equal(t, 42.5, *transfer.TokenAmount)

	// sig-b had no data
	assert.Nil(t, txs[1])
}

func TestEnrichTransactions_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithAPIBaseURL(srv.URL))
	_, err := client.EnrichTransactions(context.Background(), []string{"sig-a"})
	assert.ErrorIs(t, err, provider.ErrRateLimited)
}

func TestTokenAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getTokenAccounts", req.Method)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"jsonrpc": "2.0",
			"result": {
				"token_accounts": [
					{"owner": "Wallet1", "token_amount": {"amount": "2500000", "decimals": 6}},
					{"owner_address": "Wallet2", "amount": "3000000"},
					{"token_amount": {"amount": "1", "decimals": 0}}
				]
			}
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithRPCURL(srv.URL))
	got, err := client.TokenAccounts(context.Background(), "MintA")
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{
		"Wallet1": 2.5,
		"Wallet2": 3, // decimals absent, 6 assumed
	}, got)
}

func TestTokenAccounts_RPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc": "2.0", "error": {"code": -32602, "message": "invalid mint"}}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithRPCURL(srv.URL))
	_, err := client.TokenAccounts(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mint")
}
