package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arborio/mcpgate/internal/config"
	"github.com/arborio/mcpgate/internal/protocol"
)

// adminToolDefinitions returns the fixed set of built-in administrative tools, namespaced
// under the gateway's reserved admin prefix.
func adminToolDefinitions(adminNamespace string) []protocol.Tool {
	prefix := adminNamespace + "_"
	return []protocol.Tool{
		{
			Name:        prefix + "servers_list",
			Description: "List configured downstream servers, their enabled state, and catalog status.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        prefix + "servers_enable",
			Description: "Enable a configured downstream server by name.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`),
		},
		{
			Name:        prefix + "servers_disable",
			Description: "Disable a configured downstream server by name.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`),
		},
		{
			Name:        prefix + "refresh_tools",
			Description: "Invalidate the tool catalog and kick off a fresh discovery run.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
	}
}

func (s *Server) handleAdminCall(ctx context.Context, name string, arguments json.RawMessage) (json.RawMessage, *protocol.RPCError) {
	prefix := s.adminNamespace + "_"
	switch name {
	case prefix + "servers_list":
		return s.handleServersList()
	case prefix + "servers_enable":
		return s.handleServersEnable(ctx, arguments)
	case prefix + "servers_disable":
		return s.handleServersDisable(arguments)
	case prefix + "refresh_tools":
		return s.handleRefreshTools(ctx)
	default:
		return nil, &protocol.RPCError{Code: protocol.CodeMethodNotFound, Message: fmt.Sprintf("unknown admin tool: %s", name)}
	}
}

type serverSummary struct {
	Name   string `json:"name"`
	URL    string `json:"url,omitempty"`
	Status string `json:"status"`
}

func (s *Server) handleServersList() (json.RawMessage, *protocol.RPCError) {
	servers := s.config.Servers()
	summaries := make([]serverSummary, 0, len(servers))
	for _, rec := range servers {
		status := "disabled"
		if rec.Enabled {
			status = "enabled"
			if entry, ok := s.catalog.Get(rec.Name); ok {
				status = string(entry.Status)
			}
		}
		summaries = append(summaries, serverSummary{Name: rec.Name, URL: rec.URL, Status: status})
	}

	payload := map[string]any{
		"toolCap":      s.config.ToolCap(),
		"enabledCount": s.config.EnabledCount(),
		"servers":      summaries,
		"message":      fmt.Sprintf("%d server(s) configured, %d enabled", len(servers), s.config.EnabledCount()),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &protocol.RPCError{Code: protocol.CodeInternalError, Message: err.Error()}
	}

	s.notifyToolsUpdated()
	return marshalToolResult(string(data)), nil
}

func (s *Server) handleServersEnable(ctx context.Context, arguments json.RawMessage) (json.RawMessage, *protocol.RPCError) {
	var args struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil || args.Name == "" {
		return nil, &protocol.RPCError{Code: protocol.CodeInvalidParams, Message: "name is required"}
	}

	changed, err := s.config.Enable(args.Name)
	if err != nil {
		if err == config.ErrServerNotFound {
			return nil, &protocol.RPCError{Code: protocol.CodeInvalidParams, Message: fmt.Sprintf("unknown server %q", args.Name)}
		}
		if err == config.ErrToolCapReached {
			return nil, &protocol.RPCError{Code: protocol.CodeInvalidParams, Message: "tool limit reached"}
		}
		return nil, &protocol.RPCError{Code: protocol.CodeInternalError, Message: err.Error()}
	}

	message := fmt.Sprintf("server %q already enabled", args.Name)
	if changed {
		message = fmt.Sprintf("server %q enabled", args.Name)
		s.catalog.Invalidate(args.Name)
		if err := s.startSession(ctx, args.Name); err != nil {
			message = fmt.Sprintf("server %q enabled, but failed to start: %v", args.Name, err)
		}
		s.notifyToolsUpdated()
	}

	return marshalToolResult(message), nil
}

func (s *Server) handleServersDisable(arguments json.RawMessage) (json.RawMessage, *protocol.RPCError) {
	var args struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil || args.Name == "" {
		return nil, &protocol.RPCError{Code: protocol.CodeInvalidParams, Message: "name is required"}
	}

	changed, err := s.config.Disable(args.Name)
	if err != nil {
		if err == config.ErrServerNotFound {
			return nil, &protocol.RPCError{Code: protocol.CodeInvalidParams, Message: fmt.Sprintf("unknown server %q", args.Name)}
		}
		return nil, &protocol.RPCError{Code: protocol.CodeInternalError, Message: err.Error()}
	}

	message := fmt.Sprintf("server %q already disabled", args.Name)
	if changed {
		message = fmt.Sprintf("server %q disabled", args.Name)
		s.stopSession(args.Name)
		s.catalog.Invalidate(args.Name)
		s.notifyToolsUpdated()
	}

	return marshalToolResult(message), nil
}

func (s *Server) handleRefreshTools(ctx context.Context) (json.RawMessage, *protocol.RPCError) {
	s.catalog.InvalidateAll()

	go func() {
		bgCtx := context.Background()
		if _, err := s.catalog.Refresh(bgCtx, s.listerSnapshot()); err != nil {
			return
		}
		s.notifyToolsUpdated()
	}()

	payload := map[string]any{"success": true, "enabledServers": s.config.EnabledCount()}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &protocol.RPCError{Code: protocol.CodeInternalError, Message: err.Error()}
	}
	return marshalToolResult(string(data)), nil
}

func marshalToolResult(text string) json.RawMessage {
	result := protocol.CallToolResult{Content: []protocol.ToolContent{{Type: "text", Text: text}}}
	data, _ := json.Marshal(result)
	return data
}
