package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed Snapshotter: it persists the last-known
// catalog entry per downstream so a restarted gateway can warm-start
// from the previous run's tool list instead of an empty catalog.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) a SQLite database at path and
// runs pending migrations.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

type snapshotRow struct {
	Tools      []byte
	Status     string
	FailReason string
	FetchedAt  string
}

// Save overwrites the snapshot with the given entries under one run id,
// replacing the prior snapshot row for every named downstream.
func (s *Store) Save(ctx context.Context, runID string, entries map[string]Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for name, entry := range entries {
		toolsJSON, err := json.Marshal(entry.Tools)
		if err != nil {
			return fmt.Errorf("marshal tools for %s: %w", name, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO catalog_entries (server_name, tools_json, status, fail_reason, fetched_at, run_id)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(server_name) DO UPDATE SET
				tools_json = excluded.tools_json,
				status = excluded.status,
				fail_reason = excluded.fail_reason,
				fetched_at = excluded.fetched_at,
				run_id = excluded.run_id`,
			name, string(toolsJSON), string(entry.Status), entry.FailReason,
			entry.FetchedAt.UTC().Format(time.RFC3339), runID,
		)
		if err != nil {
			return fmt.Errorf("upsert catalog entry for %s: %w", name, err)
		}
	}

	return tx.Commit()
}

// Load returns every persisted catalog entry, keyed by downstream name.
func (s *Store) Load(ctx context.Context) (map[string]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT server_name, tools_json, status, fail_reason, fetched_at FROM catalog_entries`)
	if err != nil {
		return nil, fmt.Errorf("query catalog entries: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Entry)
	for rows.Next() {
		var name, toolsJSON, status, failReason, fetchedAt string
		if err := rows.Scan(&name, &toolsJSON, &status, &failReason, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scan catalog entry: %w", err)
		}

		var entry Entry
		if err := json.Unmarshal([]byte(toolsJSON), &entry.Tools); err != nil {
			return nil, fmt.Errorf("unmarshal tools for %s: %w", name, err)
		}
		entry.Status = Status(status)
		entry.FailReason = failReason
		if ts, err := time.Parse(time.RFC3339, fetchedAt); err == nil {
			entry.FetchedAt = ts
		}

		out[name] = entry
	}
	return out, rows.Err()
}
