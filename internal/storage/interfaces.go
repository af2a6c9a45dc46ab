// Package storage defines the durable-store contracts consumed by the
// ingestion pipeline and the HTTP surface. Implementations exist for memory
// (tests, local runs), PostgreSQL (primary) and ClickHouse (archive).
package storage

import (
	"context"

	"mintwatch/internal/domain"
)

// Insert statuses reported per signature by InsertBatch.
const (
	StatusInserted = "inserted"
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
)

// InsertStatus is the per-signature outcome of a batch insert.
type InsertStatus struct {
	Signature string `json:"signature"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// BatchResult summarizes one InsertBatch call.
type BatchResult struct {
	Inserted int            `json:"inserted"`
	Skipped  int            `json:"skipped"`
	Failed   int            `json:"failed"`
	Results  []InsertStatus `json:"results"`
}

// QueryOptions filters and pages a transaction query.
type QueryOptions struct {
	Mint          string
	Signature     string
	TokenSymbol   string
	FromTimestamp *int64
	ToTimestamp   *int64
	Limit         int
	Offset        int
	OrderBy       string // defaults to "timestamp"
	Ascending     bool
}

// QueryResult is a page of records plus the total match count.
type QueryResult struct {
	Data  []*domain.TransactionRecord `json:"data"`
	Count int                         `json:"count"`
}

// TransactionStore persists enriched transaction records keyed by signature.
type TransactionStore interface {
	// InsertBatch upserts records by signature. Duplicate signatures within
	// one call are deduplicated and counted as skipped; a batch-level failure
	// falls back to one-at-a-time insertion so a single bad record cannot
	// fail the whole batch.
	InsertBatch(ctx context.Context, records []*domain.TransactionRecord) (*BatchResult, error)

	// ExistingSignatures reports which of the given signatures are already
	// stored.
	ExistingSignatures(ctx context.Context, signatures []string) (map[string]struct{}, error)

	// GetBySignature retrieves one record. Returns ErrNotFound if absent.
	GetBySignature(ctx context.Context, signature string) (*domain.TransactionRecord, error)

	// Query retrieves records matching the options, newest first by default.
	Query(ctx context.Context, opts QueryOptions) (*QueryResult, error)

	// Count returns the total number of stored records.
	Count(ctx context.Context) (int64, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
