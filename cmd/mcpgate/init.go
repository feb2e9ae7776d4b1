package main

import (
	"fmt"
	"os"

	"github.com/arborio/mcpgate/internal/config"
	"github.com/arborio/mcpgate/internal/secrets"
)

func cmdInit() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := config.Open(cfg.serversPath(), cfg.descriptorsPath())
	if err != nil {
		return fmt.Errorf("initialize config store: %w", err)
	}
	// Open() only materializes an in-memory default when no file exists yet;
	// write it out so subsequent commands find servers.json on disk.
	if err := store.Replace(config.ServerList{ToolCap: store.ToolCap(), Servers: store.Servers()}); err != nil {
		return fmt.Errorf("write default server list: %w", err)
	}
	fmt.Printf("Config store ready: %s, %s\n", cfg.serversPath(), cfg.descriptorsPath())

	if _, err := os.Stat(cfg.AgeKeyPath); os.IsNotExist(err) {
		if _, err := secrets.EnsureIdentity(cfg.AgeKeyPath); err != nil {
			return fmt.Errorf("create age identity: %w", err)
		}
		fmt.Printf("Age identity created: %s\n", cfg.AgeKeyPath)
	} else {
		fmt.Printf("Age identity already exists: %s\n", cfg.AgeKeyPath)
	}

	return nil
}
