// Package memory provides in-memory storage implementations for tests and
// local runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"mintwatch/internal/domain"
	"mintwatch/internal/storage"
)

// TransactionStore is an in-memory implementation of storage.TransactionStore.
type TransactionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TransactionRecord // keyed by signature
}

// NewTransactionStore creates a new in-memory transaction store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		data: make(map[string]*domain.TransactionRecord),
	}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

// InsertBatch upserts records by signature, deduplicating within the batch.
func (s *TransactionStore) InsertBatch(_ context.Context, records []*domain.TransactionRecord) (*storage.BatchResult, error) {
	result := &storage.BatchResult{}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if rec == nil || rec.Signature == "" {
			result.Failed++
			result.Results = append(result.Results, storage.InsertStatus{
				Status: storage.StatusFailed,
				Reason: "missing signature",
			})
			continue
		}
		if _, dup := seen[rec.Signature]; dup {
			result.Skipped++
			result.Results = append(result.Results, storage.InsertStatus{
				Signature: rec.Signature,
				Status:    storage.StatusSkipped,
				Reason:    "duplicate in batch",
			})
			continue
		}
		seen[rec.Signature] = struct{}{}

		cp := *rec
		s.data[rec.Signature] = &cp
		result.Inserted++
		result.Results = append(result.Results, storage.InsertStatus{
			Signature: rec.Signature,
			Status:    storage.StatusInserted,
		})
	}
	return result, nil
}

// ExistingSignatures reports which signatures are already stored.
func (s *TransactionStore) ExistingSignatures(_ context.Context, signatures []string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	existing := make(map[string]struct{})
	for _, sig := range signatures {
		if _, ok := s.data[sig]; ok {
			existing[sig] = struct{}{}
		}
	}
	return existing, nil
}

// GetBySignature retrieves one record. Returns ErrNotFound if absent.
func (s *TransactionStore) GetBySignature(_ context.Context, signature string) (*domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[signature]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// Query retrieves records matching the options.
func (s *TransactionStore) Query(_ context.Context, opts storage.QueryOptions) (*storage.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.TransactionRecord
	for _, rec := range s.data {
		if !matches(rec, opts) {
			continue
		}
		cp := *rec
		matched = append(matched, &cp)
	}

	asc := opts.Ascending
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Timestamp != matched[j].Timestamp {
			if asc {
				return matched[i].Timestamp < matched[j].Timestamp
			}
			return matched[i].Timestamp > matched[j].Timestamp
		}
		return matched[i].Signature < matched[j].Signature
	})

	count := len(matched)
	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[opts.Offset:]
		}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return &storage.QueryResult{Data: matched, Count: count}, nil
}

// Count returns the number of stored records.
func (s *TransactionStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data)), nil
}

// Ping always succeeds.
func (s *TransactionStore) Ping(_ context.Context) error { return nil }

func matches(rec *domain.TransactionRecord, opts storage.QueryOptions) bool {
	if opts.Signature != "" && rec.Signature != opts.Signature {
		return false
	}
	if opts.Mint != "" && (rec.Mint == nil || *rec.Mint != opts.Mint) {
		return false
	}
	if opts.TokenSymbol != "" && (rec.TokenSymbol == nil || *rec.TokenSymbol != opts.TokenSymbol) {
		return false
	}
	if opts.FromTimestamp != nil && rec.Timestamp < *opts.FromTimestamp {
		return false
	}
	if opts.ToTimestamp != nil && rec.Timestamp > *opts.ToTimestamp {
		return false
	}
	return true
}
