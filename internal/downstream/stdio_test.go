package downstream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/arborio/mcpgate/internal/protocol"
)

// TestMain intercepts a re-exec of this test binary under
// GO_WANT_FAKE_DOWNSTREAM=1 and turns it into a tiny fake MCP server that
// answers initialize and tools/list with canned replies, never answers
// "hang", and answers any other method with a tool result; it also emits
// one unsolicited notification at startup. This is
// the same fork-into-helper-process trick the standard library's
// os/exec tests use to exercise real child-process I/O without shipping
// a separate binary.
func TestMain(m *testing.M) {
	if os.Getenv("GO_WANT_FAKE_DOWNSTREAM") == "1" {
		runFakeDownstream()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func runFakeDownstream() {
	fmt.Fprintln(os.Stdout, `{"jsonrpc":"2.0","method":"notifications/ready","params":{}}`)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var req protocol.Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		if req.ID == nil {
			continue
		}

		if req.Method == "hang" {
			// Simulate a downstream that never replies, to exercise the
			// in-flight-request-failed-on-close path.
			continue
		}

		var result json.RawMessage
		switch req.Method {
		case "initialize":
			result = json.RawMessage(`{"protocolVersion":"2024-11-05"}`)
		case "tools/list":
			result = json.RawMessage(`{"tools":[{"name":"echo","description":"echoes input"}]}`)
		default:
			result = json.RawMessage(`{"content":[{"type":"text","text":"ok"}]}`)
		}

		resp := protocol.Response{JSONRPC: "2.0", ID: req.ID, Result: result}
		line, _ := protocol.WriteLine(resp)
		os.Stdout.Write(line) //nolint:errcheck
	}
}

func startFakeTransport(t *testing.T, onNotification func(line []byte)) *StdioTransport {
	t.Helper()
	exePath, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable() error = %v", err)
	}

	tr := NewStdioTransport("fake", exePath, []string{"-test.run=TestMain"}, "", append(os.Environ(), "GO_WANT_FAKE_DOWNSTREAM=1"), onNotification)
	if err := tr.start(context.Background()); err != nil {
		t.Fatalf("start() error = %v", err)
	}
	t.Cleanup(tr.stop)
	return tr
}

func TestStdioTransport_CallAndNotification(t *testing.T) {
	var mu sync.Mutex
	var notifications [][]byte

	tr := startFakeTransport(t, func(line []byte) {
		mu.Lock()
		notifications = append(notifications, append([]byte{}, line...))
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := tr.call(ctx, "tools/list", nil)
	if err != nil {
		t.Fatalf("call() error = %v", err)
	}

	var parsed protocol.ToolsListResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(parsed.Tools) != 1 || parsed.Tools[0].Name != "echo" {
		t.Fatalf("tools/list result = %+v, want one tool named echo", parsed.Tools)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(notifications)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for startup notification")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStdioTransport_ConcurrentCalls(t *testing.T) {
	tr := startFakeTransport(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := tr.call(ctx, "tools/call", json.RawMessage(`{"name":"echo"}`))
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("call %d error = %v", i, err)
		}
	}
}

func TestStdioTransport_StopFailsInFlightCalls(t *testing.T) {
	tr := startFakeTransport(t, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := tr.call(context.Background(), "hang", nil)
		errCh <- err
	}()

	// Give the call time to register in the in-flight table before closing.
	time.Sleep(50 * time.Millisecond)
	tr.stop()

	select {
	case err := <-errCh:
		if err == nil || err.Error() != "upstream closed" {
			t.Fatalf("call() error = %v, want \"upstream closed\"", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for in-flight call to fail after stop()")
	}
}

func TestStdioTransport_StopTerminatesProcess(t *testing.T) {
	tr := startFakeTransport(t, nil)
	tr.stop()

	select {
	case <-tr.done:
	default:
		t.Fatal("stop() returned but reader goroutine never observed process exit")
	}
}
