// Package gateway implements the MCP aggregating gateway's dispatcher
// (C7), router (C6), and built-in admin tools (C5): the line-delimited
// JSON-RPC loop a connected client speaks to, and the logic that turns
// tools/list and tools/call into the union of every enabled downstream's
// catalog and a forwarded call.
package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arborio/mcpgate/internal/catalog"
	"github.com/arborio/mcpgate/internal/config"
	"github.com/arborio/mcpgate/internal/downstream"
	"github.com/arborio/mcpgate/internal/protocol"
	"github.com/arborio/mcpgate/internal/secrets"
)

// Notifier sends JSON-RPC notifications to the connected client.
type Notifier interface {
	Notify(method string, params any) error
}

// Server is the MCP aggregating gateway's dispatcher: it owns every
// downstream session, the tool catalog, and the config store, and speaks
// line-delimited JSON-RPC 2.0 over a reader/writer pair.
type Server struct {
	config         *config.Store
	catalog        *catalog.Service
	router         *Router
	encryptor      *secrets.Encryptor
	adminNamespace string
	httpTimeout    time.Duration

	mu          sync.Mutex // serializes writes to w
	w           io.Writer
	initialized bool
	initMu      sync.Mutex
	sessionsMu  sync.Mutex
	sessions    map[string]*downstream.Session
}

// Option configures optional Server behavior.
type Option func(*Server)

// WithAdminNamespace overrides the reserved namespace prefix for built-in
// admin tools (default "admin").
func WithAdminNamespace(ns string) Option {
	return func(s *Server) { s.adminNamespace = ns }
}

// WithEncryptor supplies the age encryptor used to decrypt launch
// descriptor env overlays before spawning a stdio downstream.
func WithEncryptor(e *secrets.Encryptor) Option {
	return func(s *Server) { s.encryptor = e }
}

// WithHTTPTimeout overrides the default per-call timeout for HTTP
// downstreams.
func WithHTTPTimeout(d time.Duration) Option {
	return func(s *Server) { s.httpTimeout = d }
}

// NewServer builds a Server over the given config store and catalog.
func NewServer(cfg *config.Store, cat *catalog.Service, opts ...Option) *Server {
	s := &Server{
		config:         cfg,
		catalog:        cat,
		router:         NewRouter(cfg),
		adminNamespace: "admin",
		httpTimeout:    defaultHTTPCallTimeout,
		sessions:       make(map[string]*downstream.Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const defaultHTTPCallTimeout = 5 * time.Second

// RunStdio runs the dispatcher over the process's standard input/output.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Run(ctx, os.Stdin, os.Stdout)
}

// Run runs the dispatcher's read loop over an arbitrary reader/writer
// pair: one JSON object per line in, one JSON object per line out, with
// writes serialized against concurrent notifications.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	s.w = w

	defer s.stopAllSessions()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := s.dispatch(ctx, append([]byte{}, line...))
		if resp == nil {
			continue
		}
		if err := s.writeMessage(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, line []byte) *protocol.Response {
	var req protocol.Request
	if err := json.Unmarshal(line, &req); err != nil {
		return &protocol.Response{
			JSONRPC: "2.0",
			Error:   &protocol.RPCError{Code: protocol.CodeParseError, Message: "invalid JSON: " + err.Error()},
		}
	}

	if req.JSONRPC != "2.0" {
		if req.ID == nil {
			return nil
		}
		return &protocol.Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &protocol.RPCError{Code: protocol.CodeInvalidRequest, Message: "invalid request: jsonrpc must be \"2.0\""},
		}
	}

	if req.ID == nil {
		s.handleNotification(req)
		return nil
	}

	var result json.RawMessage
	var rpcErr *protocol.RPCError

	switch req.Method {
	case "initialize":
		result, rpcErr = s.handleInitialize(ctx, req.Params)
	case "ping":
		result = json.RawMessage(`{}`)
	case "tools/list":
		result, rpcErr = s.handleToolsList(ctx)
	case "tools/call":
		result, rpcErr = s.handleToolsCall(ctx, req.Params)
	default:
		rpcErr = &protocol.RPCError{Code: protocol.CodeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", req.Method)}
	}

	resp := &protocol.Response{JSONRPC: "2.0", ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	return resp
}

func (s *Server) handleNotification(req protocol.Request) {
	switch req.Method {
	case "notifications/initialized":
		slog.Info("client initialized")
	default:
		slog.Debug("unhandled notification", "method", req.Method)
	}
}

// handleInitialize starts every enabled downstream and warms the catalog
// on the first call of the process; subsequent calls are idempotent.
func (s *Server) handleInitialize(ctx context.Context, params json.RawMessage) (json.RawMessage, *protocol.RPCError) {
	s.initMu.Lock()
	first := !s.initialized
	s.initialized = true
	s.initMu.Unlock()

	if first {
		if err := s.catalog.WarmStart(ctx); err != nil {
			slog.Warn("catalog warm start failed", "error", err)
		}
		go s.startEnabledAndDiscover(context.Background())
	}

	result := protocol.InitializeResult{
		ProtocolVersion: "2024-11-05",
		Capabilities:    protocol.ServerCapability{Tools: &protocol.ToolCapability{ListChanged: true}},
		ServerInfo:      protocol.ServerInfo{Name: "mcpgate", Version: "1.0.0"},
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, &protocol.RPCError{Code: protocol.CodeInternalError, Message: err.Error()}
	}
	return data, nil
}

func (s *Server) startEnabledAndDiscover(ctx context.Context) {
	runID := uuid.NewString()
	slog.Info("starting enabled downstreams", "run_id", runID)

	for _, rec := range s.config.Servers() {
		if !rec.Enabled {
			continue
		}
		if err := s.startSession(ctx, rec.Name); err != nil {
			slog.Error("failed to start downstream", "server", rec.Name, "error", err, "run_id", runID)
		}
	}

	if _, err := s.catalog.Refresh(ctx, s.listerSnapshot()); err != nil {
		slog.Error("initial catalog discovery failed", "error", err, "run_id", runID)
		return
	}
	s.notifyToolsUpdated()
}

func (s *Server) handleToolsList(ctx context.Context) (json.RawMessage, *protocol.RPCError) {
	var enabledNames []string
	for _, rec := range s.config.Servers() {
		if rec.Enabled {
			enabledNames = append(enabledNames, rec.Name)
		}
	}

	tools := append([]protocol.Tool{}, adminToolDefinitions(s.adminNamespace)...)
	tools = append(tools, s.catalog.List(enabledNames)...)

	needsRefresh := false
	for _, name := range enabledNames {
		if s.catalog.Stale(name) {
			needsRefresh = true
			break
		}
	}
	if needsRefresh {
		go func() {
			if _, err := s.catalog.Refresh(context.Background(), s.listerSnapshot()); err == nil {
				s.notifyToolsUpdated()
			}
		}()
	}

	result := protocol.ToolsListResult{Tools: tools}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, &protocol.RPCError{Code: protocol.CodeInternalError, Message: err.Error()}
	}
	return data, nil
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (json.RawMessage, *protocol.RPCError) {
	var req protocol.CallToolRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, &protocol.RPCError{Code: protocol.CodeInvalidParams, Message: err.Error()}
	}

	adminPrefix := s.adminNamespace + "_"
	if len(req.Name) > len(adminPrefix) && req.Name[:len(adminPrefix)] == adminPrefix {
		return s.handleAdminCall(ctx, req.Name, req.Arguments)
	}

	serverName, originalTool, err := s.router.Resolve(req.Name)
	if err != nil {
		if errors.Is(err, ErrToolNotFound) {
			return nil, &protocol.RPCError{Code: protocol.CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Name)}
		}
		return nil, &protocol.RPCError{Code: protocol.CodeInvalidParams, Message: err.Error()}
	}

	session := s.getSession(serverName)
	if session == nil {
		if err := s.startSession(ctx, serverName); err != nil {
			return nil, &protocol.RPCError{Code: protocol.CodeInternalError, Message: fmt.Sprintf("downstream %q is not running: %v", serverName, err)}
		}
		session = s.getSession(serverName)
		if session == nil {
			return nil, &protocol.RPCError{Code: protocol.CodeInternalError, Message: fmt.Sprintf("downstream %q is not running", serverName)}
		}
	}

	result, err := session.Call(ctx, originalTool, req.Arguments)
	if err != nil {
		return nil, &protocol.RPCError{Code: protocol.CodeInternalError, Message: fmt.Sprintf("downstream call: %v", err)}
	}
	return result, nil
}

// Notify sends a JSON-RPC notification (no id) to the connected client.
func (s *Server) Notify(method string, params any) error {
	if s.w == nil {
		return fmt.Errorf("server not running")
	}
	notif := protocol.Notification{JSONRPC: "2.0", Method: method, Params: params}
	return s.writeMessage(notif)
}

func (s *Server) notifyToolsUpdated() {
	var enabledNames []string
	for _, rec := range s.config.Servers() {
		if rec.Enabled {
			enabledNames = append(enabledNames, rec.Name)
		}
	}
	count := len(adminToolDefinitions(s.adminNamespace)) + len(s.catalog.List(enabledNames))
	params := map[string]any{
		"message": fmt.Sprintf("tool catalog updated: %d tools", count),
		"count":   count,
	}
	if err := s.Notify("update/tools", params); err != nil {
		slog.Debug("failed to send update/tools notification", "error", err)
	}
}

func (s *Server) writeMessage(v any) error {
	line, err := protocol.WriteLine(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(line)
	return err
}
