package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DaveXRouz/Bental-sub004/internal/config"
	"github.com/DaveXRouz/Bental-sub004/internal/fxrates"
	"github.com/DaveXRouz/Bental-sub004/internal/model"
	"github.com/DaveXRouz/Bental-sub004/internal/snapshot"
	"github.com/DaveXRouz/Bental-sub004/internal/store"
	"github.com/DaveXRouz/Bental-sub004/internal/stream"
	"github.com/DaveXRouz/Bental-sub004/internal/submux"
	"github.com/DaveXRouz/Bental-sub004/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/feedd.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting feedd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"stream_url", cfg.Stream.URL,
		"watch_list", cfg.Stream.WatchList,
		"fx_url", cfg.FX.URL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Set up the snapshot store
	var snap snapshot.Store
	if cfg.Snapshot.Enabled() {
		logger.Info("connecting to snapshot database",
			"host", cfg.Snapshot.DB.Host,
			"port", cfg.Snapshot.DB.Port,
			"database", cfg.Snapshot.DB.Name,
		)

		pool, err := snapshot.Connect(ctx, cfg.Snapshot.DB)
		if err != nil {
			logger.Error("failed to connect to snapshot database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		pg := snapshot.NewPostgres(pool, logger)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare snapshot schema", "error", err)
			os.Exit(1)
		}
		snap = pg

		logger.Info("snapshot database connected")
	} else {
		logger.Warn("snapshot database not configured, running in-memory only")
		snap = snapshot.NewMemory()
	}

	// Build feed clients
	streamClient := stream.NewClient(stream.Config{
		URL:                  cfg.Stream.URL,
		WatchList:            cfg.Stream.WatchList,
		QuoteSuffix:          cfg.Stream.QuoteSuffix,
		MaxReconnectAttempts: cfg.Stream.MaxReconnectAttempts,
		ReconnectBaseDelay:   cfg.Stream.ReconnectBaseDelay,
		HandshakeTimeout:     cfg.Stream.HandshakeTimeout,
		PingInterval:         cfg.Stream.PingInterval,
		ReadTimeout:          cfg.Stream.ReadTimeout,
	}, logger)

	fxClient := fxrates.NewClient(fxrates.Config{
		URL:          cfg.FX.URL,
		BaseCurrency: cfg.FX.BaseCurrency,
		TTL:          cfg.FX.TTL,
		Timeout:      cfg.FX.Timeout,
	}, logger)

	// The store owns both feeds for the session
	tickerStore := store.New(store.Config{
		FXPollInterval: cfg.Subscriptions.PollInterval,
	}, streamClient, fxClient, snap, logger)

	teardown := tickerStore.Initialize()
	defer teardown()

	// The multiplexer serves ad-hoc consumer subscriptions from the
	// FX client's cache without extra upstream load.
	mux := submux.New(submux.Config{
		PollInterval: cfg.Subscriptions.PollInterval,
		FetchTimeout: cfg.Subscriptions.FetchTimeout,
	}, func(fetchCtx context.Context, symbols []string) []model.TickerRecord {
		all := fxClient.FetchRates(fetchCtx)
		wanted := make(map[string]struct{}, len(symbols))
		for _, s := range symbols {
			wanted[s] = struct{}{}
		}
		out := make([]model.TickerRecord, 0, len(symbols))
		for _, r := range all {
			if _, ok := wanted[r.Symbol]; ok {
				out = append(out, r)
			}
		}
		return out
	}, logger)
	defer mux.Close()

	// Health/debug server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHandler(tickerStore, streamClient, fxClient, mux, logger),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", "error", err)
		}
	}()

	logger.Info("feedd running")

	<-ctx.Done()

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown failed", "error", err)
	}

	logger.Info("feedd stopped")
}
