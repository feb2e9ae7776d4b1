package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/arborio/mcpgate/internal/protocol"
)

type fakeLister struct {
	tools []protocol.Tool
	err   error
	calls atomic.Int64
}

func (f *fakeLister) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.tools, nil
}

func TestService_RefreshNamespacesAndPrefixes(t *testing.T) {
	svc := New(nil)
	lister := &fakeLister{tools: []protocol.Tool{{Name: "ping", Description: ""}}}

	succeeded, err := svc.Refresh(context.Background(), map[string]Lister{"Foo Bar": lister})
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if succeeded != 1 {
		t.Fatalf("succeeded = %d, want 1", succeeded)
	}

	entry, ok := svc.Get("Foo Bar")
	if !ok {
		t.Fatal("Get() found no entry for Foo Bar")
	}
	if entry.Status != StatusOK {
		t.Fatalf("status = %v, want OK", entry.Status)
	}
	if len(entry.Tools) != 1 {
		t.Fatalf("tools = %+v, want one tool", entry.Tools)
	}
	if entry.Tools[0].Name != "foo_bar_ping" {
		t.Fatalf("tool name = %q, want %q", entry.Tools[0].Name, "foo_bar_ping")
	}
	if entry.Tools[0].Description != "[Foo Bar] " {
		t.Fatalf("tool description = %q, want %q", entry.Tools[0].Description, "[Foo Bar] ")
	}
}

func TestService_RefreshFailureKeepsPreviousEntry(t *testing.T) {
	svc := New(nil)
	good := &fakeLister{tools: []protocol.Tool{{Name: "ping"}}}

	if _, err := svc.Refresh(context.Background(), map[string]Lister{"svc": good}); err != nil {
		t.Fatalf("first Refresh() error = %v", err)
	}
	prev, _ := svc.Get("svc")

	bad := &fakeLister{err: errors.New("downstream unreachable")}
	succeeded, err := svc.Refresh(context.Background(), map[string]Lister{"svc": bad})
	if err != nil {
		t.Fatalf("second Refresh() error = %v", err)
	}
	if succeeded != 0 {
		t.Fatalf("succeeded = %d, want 0", succeeded)
	}

	entry, ok := svc.Get("svc")
	if !ok {
		t.Fatal("Get() found no entry after failed refresh")
	}
	if entry.Status != StatusStale {
		t.Fatalf("status = %v, want STALE", entry.Status)
	}
	if len(entry.Tools) != len(prev.Tools) {
		t.Fatalf("tools after failed refresh = %+v, want unchanged from %+v", entry.Tools, prev.Tools)
	}
}

func TestService_InvalidateAndInvalidateAll(t *testing.T) {
	svc := New(nil)
	lister := &fakeLister{tools: []protocol.Tool{{Name: "ping"}}}
	svc.Refresh(context.Background(), map[string]Lister{"a": lister, "b": lister}) //nolint:errcheck

	svc.Invalidate("a")
	if _, ok := svc.Get("a"); ok {
		t.Fatal("Get(a) found entry after Invalidate")
	}
	if _, ok := svc.Get("b"); !ok {
		t.Fatal("Get(b) lost entry after Invalidate(a)")
	}

	svc.InvalidateAll()
	if _, ok := svc.Get("b"); ok {
		t.Fatal("Get(b) found entry after InvalidateAll")
	}
}

func TestService_List(t *testing.T) {
	svc := New(nil)
	lister := &fakeLister{tools: []protocol.Tool{{Name: "ping"}}}
	svc.Refresh(context.Background(), map[string]Lister{"a": lister, "b": lister}) //nolint:errcheck

	tools := svc.List([]string{"a", "b"})
	if len(tools) != 2 {
		t.Fatalf("List() = %+v, want 2 tools", tools)
	}
}

func TestService_SnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(context.Background(), filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer store.Close()

	svc := New(store)
	lister := &fakeLister{tools: []protocol.Tool{{Name: "ping"}}}
	if _, err := svc.Refresh(context.Background(), map[string]Lister{"Foo": lister}); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	svc2 := New(store)
	if err := svc2.WarmStart(context.Background()); err != nil {
		t.Fatalf("WarmStart() error = %v", err)
	}
	entry, ok := svc2.Get("Foo")
	if !ok {
		t.Fatal("Get(Foo) found nothing after WarmStart")
	}
	if entry.Status != StatusStale {
		t.Fatalf("status after WarmStart = %v, want STALE", entry.Status)
	}
	if len(entry.Tools) != 1 || entry.Tools[0].Name != "foo_ping" {
		t.Fatalf("tools after WarmStart = %+v", entry.Tools)
	}
}
