// Package downstream manages the lifecycle and transport of a single
// downstream MCP server: either a child process speaking line-delimited
// JSON-RPC over stdio, or a remote server speaking JSON-RPC over HTTP POST.
package downstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/arborio/mcpgate/internal/protocol"
)

// State is a downstream session's lifecycle state.
type State int

const (
	StateNew State = iota
	StateStarting
	StateReady
	StateDraining
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// callTimeout bounds how long a single tools/call or tools/list may run
// against a downstream before the caller gives up on it.
const callTimeout = 5 * time.Second

type transport interface {
	start(ctx context.Context) error
	call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)
	stop()
}

// Session wraps one downstream server's transport with the state machine
// governing its lifecycle: NEW -> STARTING -> READY -> DRAINING -> CLOSED,
// with a FAILED state reachable from STARTING or READY.
type Session struct {
	Name string

	mu    sync.RWMutex
	state State
	err   error

	tr transport

	onNotification func(name string, line []byte)
}

// NewStdioSession builds a session for a child-process downstream. cmd's
// env should already have overlay values merged in via MergeEnv.
func NewStdioSession(name, command string, args []string, cwd string, env []string, onNotification func(name string, line []byte)) *Session {
	s := &Session{Name: name, state: StateNew, onNotification: onNotification}
	s.tr = NewStdioTransport(name, command, args, cwd, env, func(line []byte) {
		if s.onNotification != nil {
			s.onNotification(name, line)
		}
	})
	return s
}

// NewHTTPSession builds a session for a remote HTTP downstream.
func NewHTTPSession(name, url string, timeout time.Duration) *Session {
	return &Session{Name: name, state: StateNew, tr: NewHTTPTransport(url, timeout)}
}

// State reports the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the failure reason when State() is StateFailed.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Session) setState(state State, err error) {
	s.mu.Lock()
	s.state = state
	s.err = err
	s.mu.Unlock()
}

// Start transitions NEW -> STARTING -> READY (or -> FAILED), launching the
// child process or verifying the remote endpoint responds to initialize.
func (s *Session) Start(ctx context.Context) error {
	s.setState(StateStarting, nil)

	if err := s.tr.start(ctx); err != nil {
		s.setState(StateFailed, err)
		return fmt.Errorf("start downstream %s: %w", s.Name, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	params, _ := json.Marshal(protocol.InitializeParams{
		ProtocolVersion: "2024-11-05",
		ClientInfo:      protocol.ClientInfo{Name: "mcpgate", Version: "1.0"},
	})
	if _, err := s.tr.call(initCtx, "initialize", params); err != nil {
		s.setState(StateFailed, err)
		s.tr.stop()
		return fmt.Errorf("initialize downstream %s: %w", s.Name, err)
	}

	if notifier, ok := s.tr.(interface {
		notify(ctx context.Context, method string, params json.RawMessage) error
	}); ok {
		notifier.notify(initCtx, "notifications/initialized", nil) //nolint:errcheck
	}

	s.setState(StateReady, nil)
	return nil
}

// ListTools issues a tools/list call against the downstream.
func (s *Session) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	if s.State() != StateReady {
		return nil, fmt.Errorf("downstream %s is %s, not ready", s.Name, s.State())
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	result, err := s.tr.call(callCtx, "tools/list", nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("upstream timeout: tools/list on %s", s.Name)
		}
		return nil, fmt.Errorf("tools/list on %s: %w", s.Name, err)
	}

	var parsed protocol.ToolsListResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal tools/list result from %s: %w", s.Name, err)
	}
	return parsed.Tools, nil
}

// Call invokes a tool on the downstream with its original (un-namespaced)
// name.
func (s *Session) Call(ctx context.Context, toolName string, arguments json.RawMessage) (json.RawMessage, error) {
	if s.State() != StateReady {
		return nil, fmt.Errorf("downstream %s is %s, not ready", s.Name, s.State())
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	params, err := json.Marshal(protocol.CallToolRequest{Name: toolName, Arguments: arguments})
	if err != nil {
		return nil, fmt.Errorf("marshal call params: %w", err)
	}

	result, err := s.tr.call(callCtx, "tools/call", params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("upstream timeout: %s on %s", toolName, s.Name)
		}
		return nil, fmt.Errorf("tools/call %s on %s: %w", toolName, s.Name, err)
	}
	return result, nil
}

// Stop transitions READY/STARTING -> DRAINING -> CLOSED, tearing down the
// underlying transport. Safe to call more than once.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateDraining
	s.mu.Unlock()

	s.tr.stop()

	s.setState(StateClosed, nil)
}

// LaunchEnv builds the process environment for a stdio downstream by
// merging the current process environment with an overlay of descriptor
// env values (already decrypted).
func LaunchEnv(overlay map[string]string) []string {
	return MergeEnv(os.Environ(), overlay)
}
