// Package main runs the paper-trading HTTP service: a registry of
// leveraged trading sessions driven by live Binance futures prices, with
// optional PostgreSQL/ClickHouse persistence for audit and analytics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"paper-trading-lab/internal/api"
	"paper-trading-lab/internal/engine"
	"paper-trading-lab/internal/pricing"
	"paper-trading-lab/internal/storage"
	chstore "paper-trading-lab/internal/storage/clickhouse"
	"paper-trading-lab/internal/storage/memory"
	"paper-trading-lab/internal/storage/migrations"
	pgstore "paper-trading-lab/internal/storage/postgres"
)

const shutdownGrace = 30 * time.Second

func main() {
	// Load .env if present; system env vars win.
	_ = godotenv.Load()

	// Parse flags (env vars as defaults)
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", os.Getenv("USE_MEMORY") == "true", "Use in-memory storage instead of PostgreSQL/ClickHouse")
	binanceEndpoint := flag.String("binance-endpoint", envOr("BINANCE_ENDPOINT", pricing.DefaultEndpoint), "Binance futures REST endpoint")
	streamSymbol := flag.String("stream-symbol", os.Getenv("STREAM_SYMBOL"), "Symbol to serve from the mark-price websocket stream (empty disables streaming)")
	tickInterval := flag.Duration("tick-interval", 15*time.Second, "Default session control loop interval")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create stores
	journal, equity, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Create price source
	rest := pricing.NewBinanceClient(*binanceEndpoint)
	var prices pricing.Source = rest
	if *streamSymbol != "" {
		stream := pricing.NewStreamSource(pricing.StreamOptions{
			Symbol:   *streamSymbol,
			Fallback: rest,
			Logger:   log.New(os.Stdout, "[pricing] ", log.LstdFlags),
		})
		go func() {
			if err := stream.Run(ctx); err != nil && err != context.Canceled {
				logger.Printf("Price stream stopped: %v", err)
			}
		}()
		prices = stream
		logger.Printf("Streaming mark prices for %s", *streamSymbol)
	}

	registry := engine.NewRegistry(engine.RegistryOptions{
		Prices:  prices,
		Journal: journal,
		Equity:  equity,
		Logger:  log.New(os.Stdout, "[engine] ", log.LstdFlags),
	})

	apiServer := api.NewServer(api.Options{
		Registry:     registry,
		TickInterval: *tickInterval,
		Logger:       logger,
	})

	httpServer := &http.Server{
		Addr:    *listenAddr,
		Handler: apiServer.Handler(),
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer shutdownCancel()

		// Settle open positions before the listener goes away.
		registry.StopAll(shutdownCtx)

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}
		close(done)

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(shutdownGrace):
			logger.Println("Graceful shutdown timed out, forcing exit")
			os.Exit(1)
		}
	}()

	logger.Printf("Listening on %s", *listenAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("HTTP server error: %v", err)
	}

	<-done
	logger.Println("Shutdown complete")
}

// createStores wires the trade journal and equity curve stores. PostgreSQL
// holds the audit journal, ClickHouse the equity timeseries.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.TradeJournal, storage.EquityPointStore, func(), error) {
	if useMemory {
		return memory.NewTradeJournal(), memory.NewEquityPointStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	chConn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if err := migrations.RunClickhouseMigrations(ctx, chConn); err != nil {
		chConn.Close()
		pool.Close()
		return nil, nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return pgstore.NewTradeJournal(pool), chstore.NewEquityPointStore(chConn), cleanup, nil
}

// envOr returns the env var value or a default when unset.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
