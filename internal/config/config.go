// Package config owns the gateway's two on-disk configuration documents:
// the administrative server list (with the tool cap) and the downstream
// launch descriptors used to spawn child-process servers.
package config

import "github.com/arborio/mcpgate/internal/namespace"

// ServerRecord is one administrator-managed downstream entry.
type ServerRecord struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	Enabled bool   `json:"enabled"`
}

// IsHTTP reports whether the record's URL selects the HTTP transport.
func (r ServerRecord) IsHTTP() bool {
	return len(r.URL) > 7 && (r.URL[:7] == "http://" || (len(r.URL) > 8 && r.URL[:8] == "https://"))
}

// Namespace derives this record's tool namespace.
func (r ServerRecord) Namespace() string {
	return namespace.Derive(r.Name)
}

// ServerList is the canonical "servers.json" document.
type ServerList struct {
	ToolCap int            `json:"toolCap"`
	Servers []ServerRecord `json:"servers"`
}

// LaunchDescriptor describes how to spawn a child-process downstream.
type LaunchDescriptor struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// LaunchDescriptors is the canonical "mcp-config.json" document.
type LaunchDescriptors struct {
	McpServers map[string]LaunchDescriptor `json:"mcpServers"`
}

const defaultToolCap = 60
