package helius

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"mintwatch/internal/domain"
)

// enrichedTransaction is one entry from /v0/transactions.
type enrichedTransaction struct {
	Signature      string  `json:"signature"`
	Type           *string `json:"type"`
	Source         *string `json:"source"`
	Fee            *int64  `json:"fee"`
	FeePayer       *string `json:"feePayer"`
	Slot           *int64  `json:"slot"`
	Timestamp      *int64  `json:"timestamp"`
	TokenTransfers []struct {
		Mint          string   `json:"mint"`
		TokenAmount   *float64 `json:"tokenAmount"`
		TokenStandard string   `json:"tokenStandard"`
	} `json:"tokenTransfers"`
}

// EnrichTransactions resolves signatures into enriched transactions. The
// returned slice is aligned with the input; an entry is nil when the indexer
// had no data for that signature.
func (c *Client) EnrichTransactions(ctx context.Context, signatures []string) ([]*domain.RawTransaction, error) {
	if len(signatures) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(map[string][]string{"transactions": signatures})
	if err != nil {
		return nil, fmt.Errorf("marshal enrich request: %w", err)
	}

	u := fmt.Sprintf("%s/v0/transactions?api-key=%s", c.apiBaseURL, url.QueryEscape(c.apiKey))

	var enriched []*enrichedTransaction
	if err := c.post(ctx, "enrich_transactions", u, body, &enriched); err != nil {
		return nil, fmt.Errorf("enrich transactions: %w", err)
	}

	// Align by signature where present, by position otherwise.
	bySig := make(map[string]*enrichedTransaction, len(enriched))
	for _, tx := range enriched {
		if tx != nil && tx.Signature != "" {
			bySig[tx.Signature] = tx
		}
	}

	out := make([]*domain.RawTransaction, len(signatures))
	for i, sig := range signatures {
		tx := bySig[sig]
		if tx == nil && i < len(enriched) && len(bySig) == 0 {
			tx = enriched[i]
		}
		if tx == nil {
			continue
		}
		out[i] = tx.toRaw(sig)
	}
	return out, nil
}

func (t *enrichedTransaction) toRaw(signature string) *domain.RawTransaction {
	raw := &domain.RawTransaction{
		Signature: signature,
		Type:      t.Type,
		Source:    t.Source,
		Fee:       t.Fee,
		FeePayer:  t.FeePayer,
		Slot:      t.Slot,
	}
	if t.Timestamp != nil {
		raw.Timestamp = *t.Timestamp
	}
	for _, tr := range t.TokenTransfers {
		raw.TokenTransfers = append(raw.TokenTransfers, domain.TokenTransfer{
			Mint:          tr.Mint,
			TokenAmount:   tr.TokenAmount,
			TokenStandard: tr.TokenStandard,
		})
	}
	return raw
}
