package main

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	DataDir     string     // base directory for servers.json/mcp-config.json/catalog.db/age key
	AgeKeyPath  string     // path to age identity file
	CatalogDSN  string     // sqlite path for the catalog snapshot
	LogLevel    slog.Level // slog level
	HTTPTimeout string     // default HTTP downstream call timeout, duration string
}

// defaultDataDir returns ~/.mcpgate, falling back to a CWD-relative path if
// the home directory can't be resolved.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mcpgate"
	}
	return filepath.Join(home, ".mcpgate")
}

func loadConfig() (*Config, error) {
	dataDir := envOr("MCPGATE_DATA_DIR", defaultDataDir())
	cfg := &Config{
		DataDir:     dataDir,
		AgeKeyPath:  envOr("MCPGATE_AGE_KEY", filepath.Join(dataDir, "identity.age")),
		CatalogDSN:  envOr("MCPGATE_CATALOG_DB", filepath.Join(dataDir, "catalog.db")),
		LogLevel:    parseLogLevel(envOr("MCPGATE_LOG_LEVEL", "info")),
		HTTPTimeout: envOr("MCPGATE_HTTP_TIMEOUT", "5s"),
	}
	return cfg, nil
}

func (c *Config) serversPath() string {
	return filepath.Join(c.DataDir, "servers.json")
}

func (c *Config) descriptorsPath() string {
	return filepath.Join(c.DataDir, "mcp-config.json")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
