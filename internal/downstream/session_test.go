package downstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/arborio/mcpgate/internal/protocol"
)

func TestSession_StdioLifecycle(t *testing.T) {
	exePath, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable() error = %v", err)
	}

	s := NewStdioSession("fake", exePath, []string{"-test.run=TestMain"}, "", LaunchEnv(map[string]string{"GO_WANT_FAKE_DOWNSTREAM": "1"}), nil)
	if s.State() != StateNew {
		t.Fatalf("initial state = %v, want new", s.State())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("state after Start() = %v, want ready", s.State())
	}

	tools, err := s.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "echo" {
		t.Fatalf("ListTools() = %+v, want one tool named echo", tools)
	}

	result, err := s.Call(ctx, "echo", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	var parsed protocol.CallToolResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		t.Fatalf("unmarshal call result: %v", err)
	}

	s.Stop()
	if s.State() != StateClosed {
		t.Fatalf("state after Stop() = %v, want closed", s.State())
	}

	s.Stop() // idempotent
}

func TestSession_HTTPLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req protocol.Request
		json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck

		var result json.RawMessage
		switch req.Method {
		case "initialize":
			result = json.RawMessage(`{"protocolVersion":"2024-11-05"}`)
		case "tools/list":
			result = json.RawMessage(`{"tools":[{"name":"search","description":"search things"}]}`)
		default:
			result = json.RawMessage(`{}`)
		}
		if req.ID == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		resp := protocol.Response{JSONRPC: "2.0", ID: req.ID, Result: result}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	defer srv.Close()

	s := NewHTTPSession("remote", srv.URL, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	tools, err := s.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "search" {
		t.Fatalf("ListTools() = %+v, want one tool named search", tools)
	}

	s.Stop()
	if s.State() != StateClosed {
		t.Fatalf("state after Stop() = %v, want closed", s.State())
	}
}

func TestSession_CallBeforeStartFails(t *testing.T) {
	s := NewHTTPSession("remote", "http://127.0.0.1:0", time.Second)
	_, err := s.ListTools(context.Background())
	if err == nil {
		t.Fatal("ListTools() before Start() expected error, got nil")
	}
}
