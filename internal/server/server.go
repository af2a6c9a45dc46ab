// Package server exposes the HTTP surface: signature intake, the live feed
// over SSE and WebSocket, cache and durable-store reads, and health/stats.
// Every handler is a thin layer over the core components; no business logic
// lives here.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mintwatch/internal/eventbus"
	"mintwatch/internal/holdings"
	"mintwatch/internal/ingest"
	"mintwatch/internal/observability"
	"mintwatch/internal/storage"
)

// DefaultHeartbeatInterval is the cadence of SSE heartbeat comments and
// WebSocket pings.
const DefaultHeartbeatInterval = 15 * time.Second

// Intake accepts signature entries for batched enrichment.
type Intake interface {
	Accept(source string, entries []ingest.Entry) ingest.AcceptResult
	Pending() int
}

// Server holds the handler dependencies.
type Server struct {
	intake  Intake
	cache   *holdings.Cache
	bus     *eventbus.Bus
	store   storage.TransactionStore
	logger  *log.Logger
	metrics *observability.Metrics

	heartbeat time.Duration
	now       func() time.Time
}

// Options configures a Server. Zero values select defaults.
type Options struct {
	Heartbeat time.Duration
	Logger    *log.Logger
	Metrics   *observability.Metrics
}

// New creates a Server over the core components.
func New(intake Intake, cache *holdings.Cache, bus *eventbus.Bus, store storage.TransactionStore, opts Options) *Server {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeatInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.DefaultMetrics
	}
	return &Server{
		intake:    intake,
		cache:     cache,
		bus:       bus,
		store:     store,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		heartbeat: opts.Heartbeat,
		now:       time.Now,
	}
}

// SetNowFunc overrides the clock. Test hook.
func (s *Server) SetNowFunc(now func() time.Time) {
	s.now = now
}

// Router builds the route table.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/tx", s.handleAcceptTx)
	r.Get("/tx", s.handleQueryTx)
	r.Get("/tx/{signature}", s.handleTxBySignature)

	r.Get("/feed/sse", s.handleSSE)
	r.Get("/feed/ws", s.handleWS)
	r.Post("/feed/test", s.handleFeedTest)

	r.Get("/mints", s.handleMints)
	r.Get("/mints/{mint}", s.handleMintDetail)

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Method(http.MethodGet, "/metrics", observability.Handler())

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Printf("write response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string, err error) {
	body := map[string]any{"error": msg}
	if err != nil {
		body["details"] = err.Error()
	}
	s.writeJSON(w, status, body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	storeStatus := "connected"
	status := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		storeStatus = "disconnected"
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]any{
		"status":       healthWord(status),
		"store":        storeStatus,
		"sseClients":   s.bus.Subscribers(),
		"bufferSize":   s.bus.BufferLen(),
		"pending":      s.intake.Pending(),
		"trackedMints": s.cache.Len(),
		"timestamp":    s.now().UTC().Format(time.RFC3339),
	})
}

func healthWord(status int) string {
	if status == http.StatusOK {
		return "ok"
	}
	return "degraded"
}

// topSymbolsSample is how many recent rows the stats endpoint samples when
// counting symbols.
const topSymbolsSample = 1000

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	total, err := s.store.Count(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch stats", err)
		return
	}
	res, err := s.store.Query(r.Context(), storage.QueryOptions{Limit: topSymbolsSample})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch stats", err)
		return
	}

	counts := make(map[string]int)
	for _, rec := range res.Data {
		if rec.TokenSymbol != nil && *rec.TokenSymbol != "" {
			counts[*rec.TokenSymbol]++
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"totalTransactions": total,
		"topTokens":         topSymbols(counts, 10),
		"timestamp":         s.now().UTC().Format(time.RFC3339),
	})
}

// symbolCount is one /stats top-token row.
type symbolCount struct {
	Symbol string `json:"symbol"`
	Count  int    `json:"count"`
}

func topSymbols(counts map[string]int, limit int) []symbolCount {
	out := make([]symbolCount, 0, len(counts))
	for sym, n := range counts {
		out = append(out, symbolCount{Symbol: sym, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Symbol < out[j].Symbol
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
