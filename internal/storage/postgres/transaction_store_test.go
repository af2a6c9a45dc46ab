package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintwatch/internal/domain"
	"mintwatch/internal/storage"
)

func TestMapPgError(t *testing.T) {
	dup := &pgconn.PgError{Code: uniqueViolation, ConstraintName: "transactions_pkey"}
	assert.ErrorIs(t, mapPgError(dup), storage.ErrDuplicateKey)
	assert.ErrorIs(t, mapPgError(fmt.Errorf("exec: %w", dup)), storage.ErrDuplicateKey)

	other := &pgconn.PgError{Code: "23502"}
	assert.Equal(t, error(other), mapPgError(other))
	assert.False(t, errors.Is(mapPgError(other), storage.ErrDuplicateKey))
}

func testRecord(signature string, timestamp int64) *domain.TransactionRecord {
	return &domain.TransactionRecord{
		Signature:   signature,
		SourceURL:   ptr("https://discord.com/channels/1/2/3"),
		Timestamp:   timestamp,
		Type:        ptr("TRANSFER"),
		Fee:         ptr(int64(5000)),
		FeePayer:    ptr("FeePayer111"),
		Slot:        ptr(int64(250_000_000)),
		Mint:        ptr("Mint111"),
		Wallet:      ptr("Wallet111"),
		TokenAmount: ptr(123.45),
		TokenSymbol: ptr("TEST"),
	}
}

func TestTransactionStore_InsertBatchAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransactionStore(pool)
	ctx := context.Background()

	rec := testRecord("sig-001", 1700000000)
	rec.UsdPrice = ptr(0.00042)
	rec.HolderCount = ptr(int64(150))
	rec.AuditMintAuthorityDisabled = ptr(1)
	rec.FundSourceTags = []string{"cex", "fresh"}
	rec.Stats = map[string]*domain.WindowStats{
		"5m": {PriceChange: ptr(12.5), NumBuys: ptr(int64(40))},
	}

	result, err := store.InsertBatch(ctx, []*domain.TransactionRecord{rec})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 0, result.Failed)

	got, err := store.GetBySignature(ctx, "sig-001")
	require.NoError(t, err)

	assert.Equal(t, rec.Signature, got.Signature)
	assert.Equal(t, *rec.SourceURL, *got.SourceURL)
	assert.Equal(t, rec.Timestamp, got.Timestamp)
	assert.Equal(t, *rec.Fee, *got.Fee)
	assert.Equal(t, *rec.Mint, *got.Mint)
	assert.Equal(t, *rec.Wallet, *got.Wallet)
	assert.Equal(t, *rec.UsdPrice, *got.UsdPrice)
	assert.Equal(t, *rec.AuditMintAuthorityDisabled, *got.AuditMintAuthorityDisabled)
	assert.Nil(t, got.AuditFreezeAuthorityDisabled)
	assert.Equal(t, rec.FundSourceTags, got.FundSourceTags)
	require.Contains(t, got.Stats, "5m")
	assert.Equal(t, 12.5, *got.Stats["5m"].PriceChange)
	assert.Equal(t, int64(40), *got.Stats["5m"].NumBuys)
}

func TestTransactionStore_UpsertBySignature(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransactionStore(pool)
	ctx := context.Background()

	first := testRecord("sig-upsert", 1700000000)
	_, err := store.InsertBatch(ctx, []*domain.TransactionRecord{first})
	require.NoError(t, err)

	second := testRecord("sig-upsert", 1700000500)
	second.UsdPrice = ptr(0.001)
	result, err := store.InsertBatch(ctx, []*domain.TransactionRecord{second})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)

	got, err := store.GetBySignature(ctx, "sig-upsert")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000500), got.Timestamp)
	assert.Equal(t, 0.001, *got.UsdPrice)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestTransactionStore_DuplicateInBatchSkipped(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransactionStore(pool)
	ctx := context.Background()

	result, err := store.InsertBatch(ctx, []*domain.TransactionRecord{
		testRecord("sig-dup", 1700000000),
		testRecord("sig-dup", 1700000001),
		testRecord("sig-other", 1700000002),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Results, 3)
	assert.Equal(t, storage.StatusSkipped, result.Results[1].Status)
}

func TestTransactionStore_ExistingSignatures(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransactionStore(pool)
	ctx := context.Background()

	_, err := store.InsertBatch(ctx, []*domain.TransactionRecord{
		testRecord("sig-a", 1700000000),
		testRecord("sig-b", 1700000001),
	})
	require.NoError(t, err)

	existing, err := store.ExistingSignatures(ctx, []string{"sig-a", "sig-b", "sig-missing"})
	require.NoError(t, err)

	assert.Len(t, existing, 2)
	assert.Contains(t, existing, "sig-a")
	assert.Contains(t, existing, "sig-b")
	assert.NotContains(t, existing, "sig-missing")
}

func TestTransactionStore_GetBySignatureNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransactionStore(pool)
	ctx := context.Background()

	_, err := store.GetBySignature(ctx, "sig-nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTransactionStore_QueryByMintAndPaging(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransactionStore(pool)
	ctx := context.Background()

	var records []*domain.TransactionRecord
	for i := 0; i < 5; i++ {
		rec := testRecord("sig-q-"+string(rune('a'+i)), 1700000000+int64(i))
		if i < 3 {
			rec.Mint = ptr("MintQ")
		}
		records = append(records, rec)
	}
	_, err := store.InsertBatch(ctx, records)
	require.NoError(t, err)

	result, err := store.Query(ctx, storage.QueryOptions{Mint: "MintQ", Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Count)
	require.Len(t, result.Data, 2)
	// Newest first by default
	assert.Equal(t, int64(1700000002), result.Data[0].Timestamp)
	assert.Equal(t, int64(1700000001), result.Data[1].Timestamp)

	page2, err := store.Query(ctx, storage.QueryOptions{Mint: "MintQ", Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page2.Data, 1)
	assert.Equal(t, int64(1700000000), page2.Data[0].Timestamp)
}

func TestTransactionStore_QueryTimeRangeAscending(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransactionStore(pool)
	ctx := context.Background()

	_, err := store.InsertBatch(ctx, []*domain.TransactionRecord{
		testRecord("sig-t1", 100),
		testRecord("sig-t2", 200),
		testRecord("sig-t3", 300),
	})
	require.NoError(t, err)

	result, err := store.Query(ctx, storage.QueryOptions{
		FromTimestamp: ptr(int64(150)),
		ToTimestamp:   ptr(int64(300)),
		Ascending:     true,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Count)
	require.Len(t, result.Data, 2)
	assert.Equal(t, int64(200), result.Data[0].Timestamp)
	assert.Equal(t, int64(300), result.Data[1].Timestamp)
}
