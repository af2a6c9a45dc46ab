package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mintwatch/internal/domain"
	"mintwatch/internal/storage"
)

// TransactionStore implements storage.TransactionStore using ClickHouse.
// The table is a ReplacingMergeTree keyed by signature, so re-inserting a
// signature behaves as an upsert once parts merge. Reads use FINAL to
// collapse unmerged versions.
type TransactionStore struct {
	conn *Conn
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(conn *Conn) *TransactionStore {
	return &TransactionStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

const txColumns = `
	signature, source_url, timestamp, type, source_label, fee, fee_payer, slot,
	mint, wallet, token_amount, token_standard,
	token_name, token_symbol, token_icon, dev, dev_migrations, launchpad,
	first_pool_created_at, holder_count, mcap, usd_price, liquidity,
	top_holders_percentage, twitter, website,
	audit_mint_authority_disabled, audit_freeze_authority_disabled, stats,
	fund_origin, fund_age_literal, fund_age_seconds, fund_source_tags`

// InsertBatch appends records in one native batch. When the batch fails,
// it falls back to one-at-a-time insertion so a single bad record cannot
// fail the whole batch.
func (s *TransactionStore) InsertBatch(ctx context.Context, records []*domain.TransactionRecord) (*storage.BatchResult, error) {
	result := &storage.BatchResult{}
	seen := make(map[string]struct{}, len(records))
	var unique []*domain.TransactionRecord
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
		unique = append(unique, rec)
	}
	if len(unique) == 0 {
		return result, nil
	}

	if err := s.appendBatch(ctx, unique); err == nil {
		for _, rec := range unique {
			result.Inserted++
			result.Results = append(result.Results, storage.InsertStatus{
				Signature: rec.Signature,
				Status:    storage.StatusInserted,
			})
		}
		return result, nil
	}

	for _, rec := range unique {
		if err := s.appendBatch(ctx, []*domain.TransactionRecord{rec}); err != nil {
			result.Failed++
			result.Results = append(result.Results, storage.InsertStatus{
				Signature: rec.Signature,
				Status:    storage.StatusFailed,
				Reason:    err.Error(),
			})
			continue
		}
		result.Inserted++
		result.Results = append(result.Results, storage.InsertStatus{
			Signature: rec.Signature,
			Status:    storage.StatusInserted,
		})
	}
	return result, nil
}

func (s *TransactionStore) appendBatch(ctx context.Context, records []*domain.TransactionRecord) error {
	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO transactions (`+txColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, rec := range records {
		stats, err := marshalStats(rec.Stats)
		if err != nil {
			return fmt.Errorf("marshal stats for %s: %w", rec.Signature, err)
		}
		err = batch.Append(
			rec.Signature, rec.SourceURL, rec.Timestamp, rec.Type, rec.SourceLabel,
			rec.Fee, rec.FeePayer, rec.Slot,
			rec.Mint, rec.Wallet, rec.TokenAmount, rec.TokenStandard,
			rec.TokenName, rec.TokenSymbol, rec.TokenIcon, rec.Dev,
			rec.DevMigrations, rec.Launchpad, rec.FirstPoolCreatedAt,
			rec.HolderCount, rec.Mcap, rec.UsdPrice, rec.Liquidity,
			rec.TopHoldersPercentage, rec.Twitter, rec.Website,
			intToInt64(rec.AuditMintAuthorityDisabled),
			intToInt64(rec.AuditFreezeAuthorityDisabled), stats,
			rec.FundOrigin, rec.FundAgeLiteral, rec.FundAgeSeconds,
			tagsOrEmpty(rec.FundSourceTags),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// ExistingSignatures reports which signatures are already stored.
func (s *TransactionStore) ExistingSignatures(ctx context.Context, signatures []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(signatures) == 0 {
		return existing, nil
	}

	rows, err := s.conn.Query(ctx,
		`SELECT DISTINCT signature FROM transactions WHERE signature IN (?)`, signatures)
	if err != nil {
		return nil, fmt.Errorf("select existing signatures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sig string
		if err := rows.Scan(&sig); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		existing[sig] = struct{}{}
	}
	return existing, rows.Err()
}

// GetBySignature retrieves one record. Returns ErrNotFound if absent.
func (s *TransactionStore) GetBySignature(ctx context.Context, signature string) (*domain.TransactionRecord, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+txColumns+` FROM transactions FINAL WHERE signature = ? LIMIT 1`, signature)
	if err != nil {
		return nil, fmt.Errorf("get by signature: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get by signature: %w", err)
		}
		return nil, storage.ErrNotFound
	}
	return scanTransaction(rows)
}

// Query retrieves records matching the options, newest first by default.
func (s *TransactionStore) Query(ctx context.Context, opts storage.QueryOptions) (*storage.QueryResult, error) {
	var conds []string
	var args []any
	if opts.Signature != "" {
		conds = append(conds, "signature = ?")
		args = append(args, opts.Signature)
	}
	if opts.Mint != "" {
		conds = append(conds, "mint = ?")
		args = append(args, opts.Mint)
	}
	if opts.TokenSymbol != "" {
		conds = append(conds, "token_symbol = ?")
		args = append(args, opts.TokenSymbol)
	}
	if opts.FromTimestamp != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, *opts.FromTimestamp)
	}
	if opts.ToTimestamp != nil {
		conds = append(conds, "timestamp <= ?")
		args = append(args, *opts.ToTimestamp)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var count uint64
	err := s.conn.QueryRow(ctx,
		`SELECT count(*) FROM transactions FINAL`+where, args...).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("count matching transactions: %w", err)
	}

	dir := "DESC"
	if opts.Ascending {
		dir = "ASC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + txColumns + ` FROM transactions FINAL` + where +
		` ORDER BY timestamp ` + dir + `, signature ` + dir +
		` LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	result := &storage.QueryResult{Count: int(count)}
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result.Data = append(result.Data, rec)
	}
	return result, rows.Err()
}

// Count returns the total number of stored records.
func (s *TransactionStore) Count(ctx context.Context) (int64, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM transactions FINAL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return int64(count), nil
}

// Ping verifies the connection.
func (s *TransactionStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

type chRow interface {
	Scan(dest ...any) error
}

func scanTransaction(row chRow) (*domain.TransactionRecord, error) {
	var rec domain.TransactionRecord
	var auditMint, auditFreeze *int64
	var stats string

	err := row.Scan(
		&rec.Signature, &rec.SourceURL, &rec.Timestamp, &rec.Type, &rec.SourceLabel,
		&rec.Fee, &rec.FeePayer, &rec.Slot,
		&rec.Mint, &rec.Wallet, &rec.TokenAmount, &rec.TokenStandard,
		&rec.TokenName, &rec.TokenSymbol, &rec.TokenIcon, &rec.Dev,
		&rec.DevMigrations, &rec.Launchpad, &rec.FirstPoolCreatedAt,
		&rec.HolderCount, &rec.Mcap, &rec.UsdPrice, &rec.Liquidity,
		&rec.TopHoldersPercentage, &rec.Twitter, &rec.Website,
		&auditMint, &auditFreeze, &stats,
		&rec.FundOrigin, &rec.FundAgeLiteral, &rec.FundAgeSeconds, &rec.FundSourceTags,
	)
	if err != nil {
		return nil, fmt.Errorf("scan transaction row: %w", err)
	}

	rec.AuditMintAuthorityDisabled = int64ToInt(auditMint)
	rec.AuditFreezeAuthorityDisabled = int64ToInt(auditFreeze)
	if stats != "" {
		if err := json.Unmarshal([]byte(stats), &rec.Stats); err != nil {
			return nil, fmt.Errorf("unmarshal stats: %w", err)
		}
	}
	if len(rec.FundSourceTags) == 0 {
		rec.FundSourceTags = nil
	}
	return &rec, nil
}

func marshalStats(stats map[string]*domain.WindowStats) (string, error) {
	if len(stats) == 0 {
		return "", nil
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func intToInt64(v *int) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	return &n
}

func int64ToInt(v *int64) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
