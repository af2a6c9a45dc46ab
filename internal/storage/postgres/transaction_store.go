package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"mintwatch/internal/domain"
	"mintwatch/internal/storage"
)

// uniqueViolation is the PostgreSQL error code for unique constraint failures.
const uniqueViolation = "23505"

// mapPgError translates driver errors into storage sentinels so callers can
// match them with errors.Is.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.ErrDuplicateKey
	}
	return err
}

// TransactionStore implements storage.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *Pool
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(pool *Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
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

const upsertQuery = `
	INSERT INTO transactions (` + txColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
	        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28,
	        $29, $30, $31, $32, $33)
	ON CONFLICT (signature) DO UPDATE SET
		source_url = EXCLUDED.source_url,
		timestamp = EXCLUDED.timestamp,
		type = EXCLUDED.type,
		source_label = EXCLUDED.source_label,
		fee = EXCLUDED.fee,
		fee_payer = EXCLUDED.fee_payer,
		slot = EXCLUDED.slot,
		mint = EXCLUDED.mint,
		wallet = EXCLUDED.wallet,
		token_amount = EXCLUDED.token_amount,
		token_standard = EXCLUDED.token_standard,
		token_name = EXCLUDED.token_name,
		token_symbol = EXCLUDED.token_symbol,
		token_icon = EXCLUDED.token_icon,
		dev = EXCLUDED.dev,
		dev_migrations = EXCLUDED.dev_migrations,
		launchpad = EXCLUDED.launchpad,
		first_pool_created_at = EXCLUDED.first_pool_created_at,
		holder_count = EXCLUDED.holder_count,
		mcap = EXCLUDED.mcap,
		usd_price = EXCLUDED.usd_price,
		liquidity = EXCLUDED.liquidity,
		top_holders_percentage = EXCLUDED.top_holders_percentage,
		twitter = EXCLUDED.twitter,
		website = EXCLUDED.website,
		audit_mint_authority_disabled = EXCLUDED.audit_mint_authority_disabled,
		audit_freeze_authority_disabled = EXCLUDED.audit_freeze_authority_disabled,
		stats = EXCLUDED.stats,
		fund_origin = EXCLUDED.fund_origin,
		fund_age_literal = EXCLUDED.fund_age_literal,
		fund_age_seconds = EXCLUDED.fund_age_seconds,
		fund_source_tags = EXCLUDED.fund_source_tags
`

func upsertArgs(rec *domain.TransactionRecord) ([]any, error) {
	var stats []byte
	if len(rec.Stats) > 0 {
		var err error
		stats, err = json.Marshal(rec.Stats)
		if err != nil {
			return nil, fmt.Errorf("marshal stats: %w", err)
		}
	}
	return []any{
		rec.Signature, rec.SourceURL, rec.Timestamp, rec.Type, rec.SourceLabel,
		rec.Fee, rec.FeePayer, rec.Slot,
		rec.Mint, rec.Wallet, rec.TokenAmount, rec.TokenStandard,
		rec.TokenName, rec.TokenSymbol, rec.TokenIcon, rec.Dev,
		rec.DevMigrations, rec.Launchpad, rec.FirstPoolCreatedAt,
		rec.HolderCount, rec.Mcap, rec.UsdPrice, rec.Liquidity,
		rec.TopHoldersPercentage, rec.Twitter, rec.Website,
		rec.AuditMintAuthorityDisabled, rec.AuditFreezeAuthorityDisabled, stats,
		rec.FundOrigin, rec.FundAgeLiteral, rec.FundAgeSeconds, rec.FundSourceTags,
	}, nil
}

func scanRecord(row pgx.Row) (*domain.TransactionRecord, error) {
	var rec domain.TransactionRecord
	var stats []byte
	err := row.Scan(
		&rec.Signature, &rec.SourceURL, &rec.Timestamp, &rec.Type, &rec.SourceLabel,
		&rec.Fee, &rec.FeePayer, &rec.Slot,
		&rec.Mint, &rec.Wallet, &rec.TokenAmount, &rec.TokenStandard,
		&rec.TokenName, &rec.TokenSymbol, &rec.TokenIcon, &rec.Dev,
		&rec.DevMigrations, &rec.Launchpad, &rec.FirstPoolCreatedAt,
		&rec.HolderCount, &rec.Mcap, &rec.UsdPrice, &rec.Liquidity,
		&rec.TopHoldersPercentage, &rec.Twitter, &rec.Website,
		&rec.AuditMintAuthorityDisabled, &rec.AuditFreezeAuthorityDisabled, &stats,
		&rec.FundOrigin, &rec.FundAgeLiteral, &rec.FundAgeSeconds, &rec.FundSourceTags,
	)
	if err != nil {
		return nil, err
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &rec.Stats); err != nil {
			return nil, fmt.Errorf("unmarshal stats: %w", err)
		}
	}
	return &rec, nil
}

// InsertBatch upserts records by signature within one transaction. When the
// batch fails, it falls back to one-at-a-time insertion so a single bad
// record cannot fail the whole batch.
func (s *TransactionStore) InsertBatch(ctx context.Context, records []*domain.TransactionRecord) (*storage.BatchResult, error) {
	unique, result := dedupe(records)
	if len(unique) == 0 {
		return result, nil
	}

	if err := s.insertAll(ctx, unique); err == nil {
		for _, rec := range unique {
			result.Inserted++
			result.Results = append(result.Results, storage.InsertStatus{
				Signature: rec.Signature,
				Status:    storage.StatusInserted,
			})
		}
		return result, nil
	}

	// Fallback: row-by-row so one bad record fails alone.
	for _, rec := range unique {
		if err := s.insertOne(ctx, rec); err != nil {
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

func (s *TransactionStore) insertAll(ctx context.Context, records []*domain.TransactionRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range records {
		args, err := upsertArgs(rec)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, upsertQuery, args...); err != nil {
			return fmt.Errorf("upsert %s: %w", rec.Signature, mapPgError(err))
		}
	}
	return tx.Commit(ctx)
}

func (s *TransactionStore) insertOne(ctx context.Context, rec *domain.TransactionRecord) error {
	args, err := upsertArgs(rec)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, upsertQuery, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", rec.Signature, mapPgError(err))
	}
	return nil
}

func dedupe(records []*domain.TransactionRecord) ([]*domain.TransactionRecord, *storage.BatchResult) {
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
	return unique, result
}

// ExistingSignatures reports which signatures are already stored.
func (s *TransactionStore) ExistingSignatures(ctx context.Context, signatures []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(signatures) == 0 {
		return existing, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT signature FROM transactions WHERE signature = ANY($1)`, signatures)
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
	row := s.pool.QueryRow(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE signature = $1`, signature)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get by signature: %w", err)
	}
	return rec, nil
}

// Query retrieves records matching the options, newest first by default.
func (s *TransactionStore) Query(ctx context.Context, opts storage.QueryOptions) (*storage.QueryResult, error) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.Signature != "" {
		conds = append(conds, "signature = "+arg(opts.Signature))
	}
	if opts.Mint != "" {
		conds = append(conds, "mint = "+arg(opts.Mint))
	}
	if opts.TokenSymbol != "" {
		conds = append(conds, "token_symbol = "+arg(opts.TokenSymbol))
	}
	if opts.FromTimestamp != nil {
		conds = append(conds, "timestamp >= "+arg(*opts.FromTimestamp))
	}
	if opts.ToTimestamp != nil {
		conds = append(conds, "timestamp <= "+arg(*opts.ToTimestamp))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	dir := "DESC"
	if opts.Ascending {
		dir = "ASC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + txColumns + `, count(*) OVER() AS total
		FROM transactions` + where +
		` ORDER BY timestamp ` + dir + `, signature ` + dir +
		` LIMIT ` + arg(limit) + ` OFFSET ` + arg(opts.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	result := &storage.QueryResult{}
	for rows.Next() {
		var rec domain.TransactionRecord
		var stats []byte
		var total int64
		err := rows.Scan(
			&rec.Signature, &rec.SourceURL, &rec.Timestamp, &rec.Type, &rec.SourceLabel,
			&rec.Fee, &rec.FeePayer, &rec.Slot,
			&rec.Mint, &rec.Wallet, &rec.TokenAmount, &rec.TokenStandard,
			&rec.TokenName, &rec.TokenSymbol, &rec.TokenIcon, &rec.Dev,
			&rec.DevMigrations, &rec.Launchpad, &rec.FirstPoolCreatedAt,
			&rec.HolderCount, &rec.Mcap, &rec.UsdPrice, &rec.Liquidity,
			&rec.TopHoldersPercentage, &rec.Twitter, &rec.Website,
			&rec.AuditMintAuthorityDisabled, &rec.AuditFreezeAuthorityDisabled, &stats,
			&rec.FundOrigin, &rec.FundAgeLiteral, &rec.FundAgeSeconds, &rec.FundSourceTags,
			&total,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if len(stats) > 0 {
			if err := json.Unmarshal(stats, &rec.Stats); err != nil {
				return nil, fmt.Errorf("unmarshal stats: %w", err)
			}
		}
		result.Data = append(result.Data, &rec)
		result.Count = int(total)
	}
	return result, rows.Err()
}

// Count returns the total number of stored records.
func (s *TransactionStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM transactions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return count, nil
}

// Ping verifies the database connection.
func (s *TransactionStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
