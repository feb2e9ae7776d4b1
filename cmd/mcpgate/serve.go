package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arborio/mcpgate/internal/catalog"
	"github.com/arborio/mcpgate/internal/config"
	"github.com/arborio/mcpgate/internal/gateway"
	"github.com/arborio/mcpgate/internal/secrets"
)

func cmdServe(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := config.Open(cfg.serversPath(), cfg.descriptorsPath())
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}

	snapshot, err := catalog.OpenStore(ctx, cfg.CatalogDSN)
	if err != nil {
		return fmt.Errorf("open catalog snapshot: %w", err)
	}
	defer snapshot.Close() //nolint:errcheck

	encryptor, err := secrets.EnsureIdentity(cfg.AgeKeyPath)
	if err != nil {
		logger.Warn("failed to load or create age identity, downstream env secrets cannot be decrypted",
			"path", cfg.AgeKeyPath, "error", err)
		encryptor = nil
	}

	httpTimeout, err := time.ParseDuration(cfg.HTTPTimeout)
	if err != nil {
		return fmt.Errorf("parse MCPGATE_HTTP_TIMEOUT: %w", err)
	}

	cat := catalog.New(snapshot)

	opts := []gateway.Option{gateway.WithHTTPTimeout(httpTimeout)}
	if encryptor != nil {
		opts = append(opts, gateway.WithEncryptor(encryptor))
	}

	gw := gateway.NewServer(store, cat, opts...)

	logger.Info("mcpgate starting", "data_dir", cfg.DataDir, "servers", len(store.Servers()))
	return gw.RunStdio(ctx)
}
