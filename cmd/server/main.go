// Command server runs the full signature-tracking service: HTTP intake and
// feed, the enrichment batcher, the holdings cache with its cleanup sweeper,
// and the provider refresh loops, over a Postgres, ClickHouse or in-memory
// store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"mintwatch/internal/eventbus"
	"mintwatch/internal/holdings"
	"mintwatch/internal/ingest"
	"mintwatch/internal/provider/helius"
	"mintwatch/internal/provider/jupiter"
	"mintwatch/internal/refresh"
	"mintwatch/internal/server"
	"mintwatch/internal/storage"
	chstore "mintwatch/internal/storage/clickhouse"
	"mintwatch/internal/storage/memory"
	"mintwatch/internal/storage/migrations"
	pgstore "mintwatch/internal/storage/postgres"
)

func main() {
	// Load .env if present; real env vars win.
	_ = godotenv.Load()

	addr := flag.String("addr", envOr("ADDR", ":3000"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (archive store)")
	heliusKey := flag.String("helius-api-key", os.Getenv("HELIUS_API_KEY"), "Helius API key")
	jupiterKey := flag.String("jupiter-api-key", os.Getenv("JUPITER_API_KEY"), "Jupiter API key")
	jupiterBase := flag.String("jupiter-base-url", os.Getenv("JUPITER_BASE_URL"), "Jupiter API base URL")
	minTotal := flag.Float64("min-total", envFloat("MINT_MIN_TOTAL_FOR_REFRESH", 0), "Minimum aggregate holding for a mint to stay tracked")
	retention := flag.Duration("retention", 0, "How long a below-threshold mint survives before cleanup (0 = default)")
	jupiterRPS := flag.Float64("jupiter-rps", envFloat("JUPITER_RPS", 3), "Jupiter requests per second")
	sweepInterval := flag.Duration("mint-sweep-interval", envDuration("MINT_SWEEP_INTERVAL", 0), "Fallback mint sweep interval (floored at 60s)")
	flag.Parse()

	logger := log.New(os.Stdout, "[mintwatch] ", log.LstdFlags)

	if *heliusKey == "" {
		logger.Fatal("--helius-api-key is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := openStore(ctx, *postgresDSN, *clickhouseDSN, logger)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer cleanup()

	cache := holdings.NewCache(*minTotal)
	bus := eventbus.New(0, logger)

	heliusClient := helius.NewClient(*heliusKey, helius.WithLogger(logger))
	jupiterClient := jupiter.NewClient(*jupiterBase, *jupiterKey,
		jupiter.WithRateLimit(*jupiterRPS),
		jupiter.WithLogger(logger),
	)

	batcher := ingest.NewBatcher(store, cache, bus, heliusClient, jupiterClient, ingest.BatcherOptions{
		Logger:  logger,
		Context: ctx,
	})
	sweeper := holdings.NewSweeper(cache, bus, holdings.SweeperOptions{
		Retention: *retention,
		Logger:    logger,
	})

	// One backoff gate per provider: the wallet loop and the stats refresher
	// share Jupiter, the mint sweep has Helius to itself.
	jupiterBackoff := refresh.NewBackoff()
	heliusBackoff := refresh.NewBackoff()
	counters := refresh.NewCounters()

	walletLoop := refresh.NewWalletLoop(cache, bus, jupiterClient, jupiterBackoff, refresh.WalletLoopOptions{
		Counters: counters,
		Logger:   logger,
	})
	mintSweep := refresh.NewMintSweep(cache, bus, heliusClient, heliusBackoff, refresh.MintSweepOptions{
		SweepInterval: *sweepInterval,
		Counters:      counters,
		Logger:        logger,
	})
	statsRefresher := refresh.NewStatsRefresher(cache, bus, jupiterClient, jupiterBackoff, refresh.StatsRefresherOptions{
		SlicesPerTick: int(*jupiterRPS),
		Logger:        logger,
	})

	srv := server.New(batcher, cache, bus, store, server.Options{Logger: logger})
	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { walletLoop.Run(ctx); return nil })
	g.Go(func() error { mintSweep.Run(ctx); return nil })
	g.Go(func() error { statsRefresher.Run(ctx); return nil })
	g.Go(func() error { counters.RunSummary(ctx, refresh.DefaultSummaryInterval, logger); return nil })
	g.Go(func() error { return sweeper.Run(ctx) })
	g.Go(func() error {
		logger.Printf("listening on %s", *addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("shutdown: %v", err)
	}
	logger.Println("shutdown complete")
}

// openStore picks the durable store by DSN: ClickHouse when given, else
// Postgres, else in-memory. Migrations run before the store is handed out.
func openStore(ctx context.Context, postgresDSN, clickhouseDSN string, logger *log.Logger) (storage.TransactionStore, func(), error) {
	switch {
	case clickhouseDSN != "":
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		logger.Println("using ClickHouse store")
		return chstore.NewTransactionStore(conn), func() { conn.Close() }, nil

	case postgresDSN != "":
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Println("using PostgreSQL store")
		return pgstore.NewTransactionStore(pool), pool.Close, nil

	default:
		logger.Println("no DSN configured, using in-memory store")
		return memory.NewTransactionStore(), func() {}, nil
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
