// Package catalog maintains the namespaced union of every enabled
// downstream's tool list: fan-out discovery, TTL + singleflight caching,
// and a SQLite snapshot so a restarted gateway can warm-start instead of
// answering the first tools/list with an empty catalog.
package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/arborio/mcpgate/internal/cache"
	"github.com/arborio/mcpgate/internal/namespace"
	"github.com/arborio/mcpgate/internal/protocol"
)

// Status reports how fresh a downstream's catalog entry is.
type Status string

const (
	StatusOK     Status = "OK"
	StatusFailed Status = "FAILED"
	StatusStale  Status = "STALE"
)

// DefaultTTL is how long an entry is considered fresh before a
// background refresh is triggered on the next tools/list.
const DefaultTTL = 5 * time.Minute

// Entry is one downstream's last-known namespaced tool list.
type Entry struct {
	Tools      []protocol.Tool
	FetchedAt  time.Time
	Status     Status
	FailReason string
}

// Lister is the subset of a downstream session the catalog needs:
// fetching its raw tool list.
type Lister interface {
	ListTools(ctx context.Context) ([]protocol.Tool, error)
}

// Snapshotter persists catalog entries across restarts. Implemented by
// the SQLite-backed Store in snapshot.go; nil is a valid no-op.
type Snapshotter interface {
	Save(ctx context.Context, runID string, entries map[string]Entry) error
	Load(ctx context.Context) (map[string]Entry, error)
}

// Service owns the process-wide catalog: one Entry per enabled
// downstream, refreshed via fan-out discovery and coalesced with a
// singleflight cache so concurrent refresh triggers collapse onto one
// in-flight call per downstream.
type Service struct {
	snapshot Snapshotter

	mu      sync.RWMutex
	entries map[string]Entry

	refreshing *cache.Cache[string, Entry]
}

// New builds a Service. snapshot may be nil to disable persistence.
func New(snapshot Snapshotter) *Service {
	return &Service{
		snapshot: snapshot,
		entries:  make(map[string]Entry),
		// TTL 0: this cache exists only to coalesce concurrent
		// refreshes of the same downstream via GetOrLoad's inflight
		// map, not to skip a refresh that Refresh was explicitly
		// asked to perform.
		refreshing: cache.New[string, Entry](0, 0),
	}
}

// WarmStart loads the last snapshot, if any, marking every entry STALE
// until a live refresh replaces it. Safe to call once at startup before
// any downstream session exists.
func (s *Service) WarmStart(ctx context.Context) error {
	if s.snapshot == nil {
		return nil
	}
	loaded, err := s.snapshot.Load(ctx)
	if err != nil {
		return fmt.Errorf("load catalog snapshot: %w", err)
	}
	s.mu.Lock()
	for name, e := range loaded {
		e.Status = StatusStale
		s.entries[name] = e
	}
	s.mu.Unlock()
	return nil
}

// Get returns the current entry for one downstream, and whether it has
// ever been populated.
func (s *Service) Get(name string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	return e, ok
}

// List flattens the current entries of the named downstreams into one
// tool slice, in the order the names are given.
func (s *Service) List(names []string) []protocol.Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []protocol.Tool
	for _, name := range names {
		if e, ok := s.entries[name]; ok {
			out = append(out, e.Tools...)
		}
	}
	return out
}

// Stale reports whether a downstream's entry is missing or older than
// DefaultTTL.
func (s *Service) Stale(name string) bool {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return true
	}
	return time.Since(e.FetchedAt) > DefaultTTL
}

// Invalidate drops one downstream's entry entirely, e.g. on
// servers_disable.
func (s *Service) Invalidate(name string) {
	s.mu.Lock()
	delete(s.entries, name)
	s.mu.Unlock()
	s.refreshing.Invalidate(name)
}

// InvalidateAll drops every downstream's entry, e.g. on refresh_tools.
func (s *Service) InvalidateAll() {
	s.mu.Lock()
	s.entries = make(map[string]Entry)
	s.mu.Unlock()
	s.refreshing.Flush()
}

// Refresh runs fan-out discovery across the given downstreams in
// parallel, replacing each entry on success and marking it STALE
// (without erasing the prior tool list) on failure. It returns the
// number of downstreams that refreshed successfully and persists the
// resulting snapshot under a fresh run id.
func (s *Service) Refresh(ctx context.Context, sessions map[string]Lister) (int, error) {
	var mu sync.Mutex
	succeeded := 0

	g, gCtx := errgroup.WithContext(ctx)
	for name, session := range sessions {
		name, session := name, session
		g.Go(func() error {
			entry, err := s.refreshOne(gCtx, name, session)
			mu.Lock()
			s.mu.Lock()
			s.entries[name] = entry
			s.mu.Unlock()
			if err == nil {
				succeeded++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if s.snapshot != nil {
		s.mu.RLock()
		snap := make(map[string]Entry, len(s.entries))
		for k, v := range s.entries {
			snap[k] = v
		}
		s.mu.RUnlock()
		runID := uuid.NewString()
		if err := s.snapshot.Save(ctx, runID, snap); err != nil {
			return succeeded, fmt.Errorf("save catalog snapshot: %w", err)
		}
	}

	return succeeded, nil
}

// refreshOne fetches and namespaces one downstream's tool list,
// coalescing concurrent callers for the same downstream via the
// singleflight cache.
func (s *Service) refreshOne(ctx context.Context, name string, session Lister) (Entry, error) {
	return s.refreshing.GetOrLoad(name, func() (Entry, error) {
		tools, err := session.ListTools(ctx)
		if err != nil {
			prev, _ := s.Get(name)
			prev.Status = StatusStale
			prev.FailReason = err.Error()
			return prev, err
		}

		ns := namespace.Derive(name)
		namespaced := make([]protocol.Tool, 0, len(tools))
		for _, t := range tools {
			namespaced = append(namespaced, protocol.Tool{
				Name:        namespace.ToolName(ns, t.Name),
				Description: fmt.Sprintf("[%s] %s", name, t.Description),
				InputSchema: t.InputSchema,
			})
		}

		return Entry{Tools: namespaced, FetchedAt: time.Now(), Status: StatusOK}, nil
	})
}
