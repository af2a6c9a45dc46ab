// Package ingest accepts transaction signatures from the feed source,
// batches them, enriches them via the indexer and token-search providers,
// persists them and fans the resulting records out to the cache and the
// event feed.
package ingest

import (
	"context"
	"log"
	"sync"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/eventbus"
	"mintwatch/internal/holdings"
	"mintwatch/internal/observability"
	"mintwatch/internal/storage"
)

// Default batching parameters.
const (
	DefaultFlushSize    = 20
	DefaultFlushDelay   = 10 * time.Second
	DefaultSubBatchSize = 10
)

// Indexer resolves signatures into raw transaction detail.
type Indexer interface {
	EnrichTransactions(ctx context.Context, signatures []string) ([]*domain.RawTransaction, error)
}

// TokenSearcher looks up token market metadata by mint.
type TokenSearcher interface {
	SearchToken(ctx context.Context, query string) (*domain.TokenInfo, error)
}

// Entry is one intake item: a signature plus optional funding metadata.
type Entry struct {
	Signature  string     `json:"signature"`
	FundOrigin *string    `json:"fundOrigin"`
	FundAge    *string    `json:"fundAge"`
	Tags       StringList `json:"tags"`
}

// AcceptResult reports what happened to one Accept call.
type AcceptResult struct {
	Queued       int      `json:"queued"`
	TotalPending int      `json:"totalPending"`
	Flushed      bool     `json:"flushed"`
	Rejected     []string `json:"rejected,omitempty"`
}

// Batcher accumulates signatures and flushes them through the enrichment
// pipeline. A flush fires when the pending count reaches FlushSize or
// FlushDelay after the first pending signature arrived, whichever comes
// first; only one flush runs at a time.
type Batcher struct {
	store   storage.TransactionStore
	cache   *holdings.Cache
	bus     *eventbus.Bus
	indexer Indexer
	search  TokenSearcher

	flushSize    int
	flushDelay   time.Duration
	subBatchSize int
	logger       *log.Logger
	metrics      *observability.Metrics
	now          func() time.Time

	mu          sync.Mutex
	pending     []string
	pendingSet  map[string]struct{}
	funding     map[string]domain.FundingInfo
	source      *string
	delayTimer  *time.Timer
	flushing    bool
	flushQueued bool

	ctx context.Context
}

// BatcherOptions configures a Batcher. Zero values select the defaults.
type BatcherOptions struct {
	FlushSize    int
	FlushDelay   time.Duration
	SubBatchSize int
	Logger       *log.Logger
	Metrics      *observability.Metrics
	Context      context.Context
}

// NewBatcher creates a Batcher.
func NewBatcher(store storage.TransactionStore, cache *holdings.Cache, bus *eventbus.Bus, indexer Indexer, search TokenSearcher, opts BatcherOptions) *Batcher {
	if opts.FlushSize <= 0 {
		opts.FlushSize = DefaultFlushSize
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = DefaultFlushDelay
	}
	if opts.SubBatchSize <= 0 {
		opts.SubBatchSize = DefaultSubBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.DefaultMetrics
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	return &Batcher{
		store:        store,
		cache:        cache,
		bus:          bus,
		indexer:      indexer,
		search:       search,
		flushSize:    opts.FlushSize,
		flushDelay:   opts.FlushDelay,
		subBatchSize: opts.SubBatchSize,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		now:          time.Now,
		pendingSet:   make(map[string]struct{}),
		funding:      make(map[string]domain.FundingInfo),
		ctx:          opts.Context,
	}
}

// SetNowFunc overrides the clock. Test hook.
func (b *Batcher) SetNowFunc(now func() time.Time) {
	b.now = now
}

// Accept queues entries for the next flush. Invalid signatures are rejected,
// duplicates already pending are ignored. When the pending count reaches the
// size threshold the flush is triggered immediately and the delay trigger
// for the drained batch is cancelled.
func (b *Batcher) Accept(source string, entries []Entry) AcceptResult {
	b.mu.Lock()

	var result AcceptResult
	for _, e := range entries {
		if !ValidSignature(e.Signature) {
			result.Rejected = append(result.Rejected, e.Signature)
			b.metrics.SignaturesRejected.WithLabelValues("invalid_signature").Inc()
			continue
		}
		if _, dup := b.pendingSet[e.Signature]; dup {
			continue
		}
		if len(b.pending) == 0 {
			src := source
			b.source = &src
			b.delayTimer = time.AfterFunc(b.flushDelay, b.requestFlush)
		}
		b.pending = append(b.pending, e.Signature)
		b.pendingSet[e.Signature] = struct{}{}
		if e.FundOrigin != nil || e.FundAge != nil {
			b.funding[e.Signature] = domain.FundingInfo{
				Origin:     e.FundOrigin,
				AgeLiteral: e.FundAge,
				Tags:       e.Tags,
			}
		}
		result.Queued++
		b.metrics.SignaturesAccepted.Inc()
	}

	result.TotalPending = len(b.pending)
	b.metrics.PendingSignatures.Set(float64(len(b.pending)))
	flush := len(b.pending) >= b.flushSize
	b.mu.Unlock()

	if flush {
		result.Flushed = true
		b.requestFlush()
	}
	return result
}

// Pending returns the number of signatures waiting for the next flush.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// requestFlush starts a flush unless one is already running, in which case
// another run is queued right after the current one finishes.
func (b *Batcher) requestFlush() {
	b.mu.Lock()
	if b.flushing {
		b.flushQueued = true
		b.mu.Unlock()
		return
	}
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	b.flushing = true
	b.mu.Unlock()

	go b.flushLoop()
}

func (b *Batcher) flushLoop() {
	for {
		b.Flush(b.ctx)

		b.mu.Lock()
		if !b.flushQueued || len(b.pending) == 0 {
			b.flushing = false
			b.flushQueued = false
			b.mu.Unlock()
			return
		}
		b.flushQueued = false
		b.mu.Unlock()
	}
}

// Flush drains the pending batch and runs it through the pipeline
// synchronously, returning per-signature statuses. Exposed for the intake
// handler's size-triggered path and for tests; the timer path goes through
// requestFlush.
func (b *Batcher) Flush(ctx context.Context) []storage.InsertStatus {
	b.mu.Lock()
	if b.delayTimer != nil {
		b.delayTimer.Stop()
		b.delayTimer = nil
	}
	signatures := b.pending
	source := b.source
	fundingBySig := b.funding
	b.pending = nil
	b.pendingSet = make(map[string]struct{})
	b.funding = make(map[string]domain.FundingInfo)
	b.source = nil
	b.mu.Unlock()

	if len(signatures) == 0 {
		return nil
	}
	b.metrics.PendingSignatures.Set(0)
	b.metrics.BatchesFlushed.Inc()
	started := time.Now()
	defer func() {
		b.metrics.BatchFlushDuration.Observe(time.Since(started).Seconds())
	}()

	b.logger.Printf("processing %d signatures", len(signatures))

	existing, err := b.store.ExistingSignatures(ctx, signatures)
	if err != nil {
		b.logger.Printf("existing-signature lookup failed: %v", err)
		var statuses []storage.InsertStatus
		for _, sig := range signatures {
			statuses = append(statuses, storage.InsertStatus{
				Signature: sig, Status: storage.StatusFailed, Reason: err.Error(),
			})
		}
		return statuses
	}

	var statuses []storage.InsertStatus
	var fresh []string
	for _, sig := range signatures {
		if _, ok := existing[sig]; ok {
			statuses = append(statuses, storage.InsertStatus{
				Signature: sig, Status: storage.StatusSkipped,
			})
			b.metrics.TransactionsStored.WithLabelValues(storage.StatusSkipped).Inc()
			continue
		}
		fresh = append(fresh, sig)
	}
	b.logger.Printf("found %d existing, %d new signatures", len(existing), len(fresh))

	for start := 0; start < len(fresh); start += b.subBatchSize {
		end := start + b.subBatchSize
		if end > len(fresh) {
			end = len(fresh)
		}
		statuses = append(statuses, b.processSubBatch(ctx, fresh[start:end], source, fundingBySig)...)
	}

	b.metrics.LastSuccessfulFlush.SetToCurrentTime()
	return statuses
}

// processSubBatch enriches one signature slice, persists the records and
// fans them out. An indexer failure fails the whole sub-batch; a token
// search failure degrades that record to null market fields.
func (b *Batcher) processSubBatch(ctx context.Context, signatures []string, source *string, fundingBySig map[string]domain.FundingInfo) []storage.InsertStatus {
	raws, err := b.indexer.EnrichTransactions(ctx, signatures)
	if err != nil {
		b.logger.Printf("indexer lookup failed for sub-batch of %d: %v", len(signatures), err)
		statuses := make([]storage.InsertStatus, 0, len(signatures))
		for _, sig := range signatures {
			statuses = append(statuses, storage.InsertStatus{
				Signature: sig, Status: storage.StatusFailed, Reason: err.Error(),
			})
			b.metrics.TransactionsStored.WithLabelValues(storage.StatusFailed).Inc()
		}
		return statuses
	}

	infoByMint := make(map[string]*domain.TokenInfo)
	records := make([]*domain.TransactionRecord, 0, len(signatures))
	for i, sig := range signatures {
		var raw *domain.RawTransaction
		if i < len(raws) {
			raw = raws[i]
		}
		records = append(records, b.buildRecord(ctx, sig, source, raw, fundingBySig[sig], infoByMint))
	}

	result, err := b.store.InsertBatch(ctx, records)
	if err != nil {
		b.logger.Printf("batch insert failed: %v", err)
		statuses := make([]storage.InsertStatus, 0, len(signatures))
		for _, sig := range signatures {
			statuses = append(statuses, storage.InsertStatus{
				Signature: sig, Status: storage.StatusFailed, Reason: err.Error(),
			})
			b.metrics.TransactionsStored.WithLabelValues(storage.StatusFailed).Inc()
		}
		return statuses
	}
	b.logger.Printf("batch result: %d inserted, %d skipped, %d failed",
		result.Inserted, result.Skipped, result.Failed)
	for _, st := range result.Results {
		b.metrics.TransactionsStored.WithLabelValues(st.Status).Inc()
	}

	// Merge into the cache, then emit card updates followed by the raw
	// transaction events.
	affected := make(map[string]struct{})
	for _, rec := range records {
		if b.cache.Upsert(rec) && rec.Mint != nil {
			affected[*rec.Mint] = struct{}{}
		}
	}
	for mint := range affected {
		holdings.EmitCardUpdate(b.bus, b.cache, mint)
	}
	for _, rec := range records {
		b.bus.Publish(rec.Signature, rec)
		b.metrics.EventsPublished.Inc()
	}
	b.metrics.TrackedMints.Set(float64(b.cache.Len()))

	return result.Results
}

// buildRecord assembles the full record for one signature from the indexer
// data, token search metadata and staged funding info.
func (b *Batcher) buildRecord(ctx context.Context, sig string, source *string, raw *domain.RawTransaction, funding domain.FundingInfo, infoByMint map[string]*domain.TokenInfo) *domain.TransactionRecord {
	rec := &domain.TransactionRecord{
		Signature: sig,
		SourceURL: source,
		Timestamp: b.now().Unix(),
	}
	applyFunding(rec, funding)
	if raw == nil {
		return rec
	}

	rec.Type = raw.Type
	rec.SourceLabel = raw.Source
	rec.Fee = raw.Fee
	rec.FeePayer = raw.FeePayer
	rec.Slot = raw.Slot
	if raw.Timestamp > 0 {
		rec.Timestamp = domain.SanitizeTimestamp(raw.Timestamp)
	}
	// The fee payer identifies the holder; program-derived payers are not
	// user wallets and are not tracked.
	if raw.FeePayer != nil && IsOnCurveAddress(*raw.FeePayer) {
		rec.Wallet = raw.FeePayer
	}

	transfer := raw.FirstFungibleTransfer()
	if transfer == nil || transfer.Mint == "" {
		return rec
	}
	mint := transfer.Mint
	rec.Mint = &mint
	rec.TokenAmount = transfer.TokenAmount
	standard := transfer.TokenStandard
	rec.TokenStandard = &standard

	info, seen := infoByMint[mint]
	if !seen {
		var err error
		info, err = b.search.SearchToken(ctx, mint)
		if err != nil {
			b.logger.Printf("token search failed for %s: %v", mint, err)
			info = nil
		}
		infoByMint[mint] = info
	}
	if info != nil {
		applyTokenInfo(rec, info)
	}
	return rec
}

func applyTokenInfo(rec *domain.TransactionRecord, info *domain.TokenInfo) {
	rec.TokenName = info.Name
	rec.TokenSymbol = info.Symbol
	rec.TokenIcon = info.Icon
	rec.Dev = info.Dev
	rec.DevMigrations = info.DevMigrations
	rec.Launchpad = info.Launchpad
	rec.FirstPoolCreatedAt = info.FirstPoolCreatedAt
	rec.HolderCount = info.HolderCount
	rec.Mcap = info.Mcap
	rec.UsdPrice = info.UsdPrice
	rec.Liquidity = info.Liquidity
	rec.TopHoldersPercentage = info.TopHoldersPercentage
	rec.Twitter = info.Twitter
	rec.Website = info.Website
	rec.AuditMintAuthorityDisabled = boolFlag(info.MintAuthorityDisabled)
	rec.AuditFreezeAuthorityDisabled = boolFlag(info.FreezeAuthorityDisabled)
	if len(info.Stats) > 0 {
		rec.Stats = info.Stats
	}
}

func applyFunding(rec *domain.TransactionRecord, funding domain.FundingInfo) {
	rec.FundOrigin = funding.Origin
	rec.FundAgeLiteral = funding.AgeLiteral
	if funding.AgeLiteral != nil {
		if secs, ok := domain.ParseAgeLiteral(*funding.AgeLiteral); ok {
			rec.FundAgeSeconds = &secs
		}
	}
	if len(funding.Tags) > 0 {
		rec.FundSourceTags = funding.Tags
	}
}

func boolFlag(v *bool) *int {
	if v == nil {
		return nil
	}
	n := 0
	if *v {
		n = 1
	}
	return &n
}
