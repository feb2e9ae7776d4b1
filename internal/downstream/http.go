package downstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arborio/mcpgate/internal/protocol"
)

// defaultHTTPTimeout is the per-call deadline for an HTTP downstream.
const defaultHTTPTimeout = 5 * time.Second

// HTTPTransport communicates with a remote MCP server over a single
// "POST /mcp" JSON-RPC endpoint. Each call is an independent HTTP
// round-trip, so (unlike StdioTransport) no in-flight demuxing table is
// needed — concurrency falls out of issuing concurrent requests.
type HTTPTransport struct {
	url    string
	client *http.Client
	nextID atomic.Int64

	mu        sync.Mutex
	sessionID string
}

// NewHTTPTransport builds a transport for an HTTP downstream. timeout
// defaults to 5s when zero.
func NewHTTPTransport(url string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPTransport{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) start(ctx context.Context) error {
	return nil
}

func (t *HTTPTransport) stop() {}

// call issues one JSON-RPC request, retrying at most once if the request
// never reaches the server (a connection-level failure, not an HTTP error
// status or an RPC-level error).
func (t *HTTPTransport) call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	id := t.nextID.Add(1)
	req := protocol.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(fmt.Sprintf("%d", id)),
		Method:  method,
		Params:  params,
	}

	result, err := t.doRPC(ctx, req)
	if isConnectionError(err) {
		result, err = t.doRPC(ctx, req)
	}
	return result, err
}

func (t *HTTPTransport) notify(ctx context.Context, method string, params json.RawMessage) error {
	req := protocol.Request{JSONRPC: "2.0", Method: method, Params: params}
	_, err := t.doRPC(ctx, req)
	return err
}

// isConnectionError reports whether err represents a failure that never
// reached the server (dial/timeout/transport failure) as opposed to an
// HTTP error status or a JSON-RPC level error, which are not retried.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr *protocol.RPCError
	if errors.As(err, &rpcErr) {
		return false
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func (t *HTTPTransport) doRPC(ctx context.Context, req protocol.Request) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")

	t.mu.Lock()
	sid := t.sessionID
	t.mu.Unlock()
	if sid != "" {
		httpReq.Header.Set("Mcp-Session-Id", sid)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if v := resp.Header.Get("Mcp-Session-Id"); v != "" {
		t.mu.Lock()
		t.sessionID = v
		t.mu.Unlock()
	}

	if req.ID == nil {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
			return nil, nil
		}
		return nil, fmt.Errorf("notification failed (%d)", resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, respBody)
	}

	ct := resp.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "text/event-stream") {
		return readSSEResponse(resp.Body)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp protocol.Response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// readSSEResponse reads a text/event-stream response and extracts the
// JSON-RPC result from its "data: " lines.
func readSSEResponse(body io.Reader) (json.RawMessage, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		var rpcResp protocol.Response
		if err := json.Unmarshal([]byte(data), &rpcResp); err != nil {
			continue
		}
		if rpcResp.Error != nil {
			return nil, rpcResp.Error
		}
		if rpcResp.Result != nil {
			return rpcResp.Result, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read sse stream: %w", err)
	}
	return nil, fmt.Errorf("no result in sse stream")
}
