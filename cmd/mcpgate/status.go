package main

import (
	"context"
	"fmt"

	"github.com/arborio/mcpgate/internal/catalog"
	"github.com/arborio/mcpgate/internal/config"
)

func cmdStatus() error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
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

	entries, err := snapshot.Load(ctx)
	if err != nil {
		return fmt.Errorf("load catalog snapshot: %w", err)
	}

	servers := store.Servers()
	fmt.Printf("mcpgate status (data dir: %s)\n", cfg.DataDir)
	fmt.Printf("  Tool cap:        %d\n", store.ToolCap())
	fmt.Printf("  Servers:         %d configured, %d enabled\n", len(servers), store.EnabledCount())
	fmt.Println()

	for _, rec := range servers {
		state := "disabled"
		if rec.Enabled {
			state = "enabled"
		}
		transport := "stdio"
		if rec.IsHTTP() {
			transport = "http"
		}
		line := fmt.Sprintf("  - %-20s %-8s %-6s", rec.Name, state, transport)
		if entry, ok := entries[rec.Name]; ok {
			line += fmt.Sprintf(" catalog=%s tools=%d fetched=%s", entry.Status, len(entry.Tools), entry.FetchedAt.Format("2006-01-02T15:04:05Z07:00"))
		} else {
			line += " catalog=never-fetched"
		}
		fmt.Println(line)
	}

	return nil
}
