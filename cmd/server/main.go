package main

// Package main is the entry point for the StoreSense server application.
//
// Responsibilities:
//   - Load and validate configuration from YAML, .env and environment variables
//   - Load the historical sales dataset and the trained model artifacts
//   - Open the SQLite analytics trail database
//   - Start the REST API server with the full middleware chain
//   - Start the WebSocket hub for real-time dashboard streaming
//   - Implement graceful shutdown with context cancellation
//
// Architecture Flow:
//   1. CSV dataset → in-memory series cache (reloaded on file change)
//   2. IoT readings → model scoring chain → SQLite trail + WebSocket fan-out
//   3. REST API exposes forecasts, anomalies, clusters, risk, KPIs and alerts
//
// Graceful Shutdown:
//   - Disconnects all WebSocket clients
//   - Drains in-flight HTTP requests
//   - Closes the database, the dataset watcher and the audit logs

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/storesense/storesense/internal/config"
	"github.com/storesense/storesense/internal/server"
)

func main() {
	configPath := flag.String("config", "storesense.yaml", "path to the YAML config file")
	flag.Parse()

	// A .env file is optional; real environment variables win either way.
	_ = godotenv.Load()

	ctx := context.Background()
	mgr, err := config.NewConfigManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create configuration manager: %v\n", err)
		os.Exit(1)
	}
	if err := mgr.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := mgr.Validate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := mgr.Get(ctx)

	logger, err := newLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	srv, err := server.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create server: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	if err := srv.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping server: %v\n", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// newLogger builds the application logger from the configured level and
// format.
func newLogger(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	if format == "text" {
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	return zcfg.Build()
}
