package config

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "servers.json"), filepath.Join(dir, "mcp-config.json"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func TestStore_EnableDisableIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Replace(ServerList{
		ToolCap: 2,
		Servers: []ServerRecord{{Name: "Foo Bar", Enabled: false}},
	}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	changed, err := s.Enable("Foo Bar")
	if err != nil || !changed {
		t.Fatalf("Enable() = (%v, %v), want (true, nil)", changed, err)
	}

	changed, err = s.Enable("Foo Bar")
	if err != nil || changed {
		t.Fatalf("second Enable() = (%v, %v), want (false, nil)", changed, err)
	}

	changed, err = s.Disable("Foo Bar")
	if err != nil || !changed {
		t.Fatalf("Disable() = (%v, %v), want (true, nil)", changed, err)
	}

	changed, err = s.Disable("Foo Bar")
	if err != nil || changed {
		t.Fatalf("second Disable() = (%v, %v), want (false, nil)", changed, err)
	}
}

func TestStore_EnableUnknownServer(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Enable("nope"); !errors.Is(err, ErrServerNotFound) {
		t.Fatalf("Enable() error = %v, want ErrServerNotFound", err)
	}
}

func TestStore_ToolCapEnforced(t *testing.T) {
	s := newTestStore(t)
	if err := s.Replace(ServerList{
		ToolCap: 1,
		Servers: []ServerRecord{
			{Name: "A", Enabled: false},
			{Name: "B", Enabled: true},
		},
	}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	if _, err := s.Enable("A"); !errors.Is(err, ErrToolCapReached) {
		t.Fatalf("Enable() error = %v, want ErrToolCapReached", err)
	}

	if _, err := s.Disable("B"); err != nil {
		t.Fatalf("Disable(B) error = %v", err)
	}

	changed, err := s.Enable("A")
	if err != nil || !changed {
		t.Fatalf("Enable(A) after freeing cap = (%v, %v), want (true, nil)", changed, err)
	}
}

func TestStore_ZeroToolCapPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	serversPath := filepath.Join(dir, "servers.json")
	descriptorsPath := filepath.Join(dir, "mcp-config.json")

	s1, err := Open(serversPath, descriptorsPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s1.Replace(ServerList{
		ToolCap: 0,
		Servers: []ServerRecord{{Name: "A", Enabled: false}},
	}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	s2, err := Open(serversPath, descriptorsPath)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	if s2.ToolCap() != 0 {
		t.Fatalf("reopened toolCap = %d, want 0 (explicit zero must not be defaulted)", s2.ToolCap())
	}
	if _, err := s2.Enable("A"); !errors.Is(err, ErrToolCapReached) {
		t.Fatalf("Enable() on disk-loaded toolCap=0 error = %v, want ErrToolCapReached", err)
	}
}

func TestStore_DuplicateNameRejected(t *testing.T) {
	s := newTestStore(t)
	err := s.Replace(ServerList{
		ToolCap: 5,
		Servers: []ServerRecord{{Name: "dup"}, {Name: "dup"}},
	})
	if err == nil {
		t.Fatal("expected error for duplicate server names")
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	serversPath := filepath.Join(dir, "servers.json")
	descriptorsPath := filepath.Join(dir, "mcp-config.json")

	s1, err := Open(serversPath, descriptorsPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s1.Replace(ServerList{ToolCap: 3, Servers: []ServerRecord{{Name: "X", Enabled: true}}}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	s2, err := Open(serversPath, descriptorsPath)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	servers := s2.Servers()
	if len(servers) != 1 || servers[0].Name != "X" || !servers[0].Enabled {
		t.Fatalf("reopened store servers = %+v, want one enabled server named X", servers)
	}
	if s2.ToolCap() != 3 {
		t.Fatalf("reopened toolCap = %d, want 3", s2.ToolCap())
	}
}
