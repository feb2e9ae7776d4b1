package main

import (
	"fmt"
	"os"

	"github.com/arborio/mcpgate/internal/config"
)

func cmdImport(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: mcpgate import <manifest.yaml>")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := config.Open(cfg.serversPath(), cfg.descriptorsPath())
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}

	if err := config.ImportFile(store, args[0]); err != nil {
		return fmt.Errorf("import manifest: %w", err)
	}

	fmt.Printf("Imported %s into %s\n", args[0], cfg.DataDir)
	return nil
}
