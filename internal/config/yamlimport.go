package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the YAML bulk-import document. It combines ServerRecord and
// LaunchDescriptor fields per entry; ImportFile splits it back into the
// two canonical JSON documents the running gateway actually reads. This
// is an offline CLI operation, never read by the gateway at runtime.
type Manifest struct {
	ToolCap int              `yaml:"toolCap"`
	Servers []ManifestServer `yaml:"servers"`
}

// ManifestServer is one entry in a bulk-import manifest.
type ManifestServer struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url,omitempty"`
	Enabled bool              `yaml:"enabled"`
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Cwd     string            `yaml:"cwd,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// LoadManifestFile reads and parses a YAML bulk-import manifest.
func LoadManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return ParseManifest(data)
}

// ParseManifest parses YAML manifest data.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest yaml: %w", err)
	}
	return &m, nil
}

// Split converts a Manifest into the canonical ServerList and launch
// descriptor map written to servers.json / mcp-config.json.
func (m *Manifest) Split() (ServerList, map[string]LaunchDescriptor) {
	toolCap := m.ToolCap
	if toolCap == 0 {
		toolCap = defaultToolCap
	}

	list := ServerList{ToolCap: toolCap, Servers: make([]ServerRecord, 0, len(m.Servers))}
	descriptors := make(map[string]LaunchDescriptor, len(m.Servers))

	for _, entry := range m.Servers {
		list.Servers = append(list.Servers, ServerRecord{
			Name:    entry.Name,
			URL:     entry.URL,
			Enabled: entry.Enabled,
		})
		if entry.Command != "" {
			descriptors[entry.Name] = LaunchDescriptor{
				Command: entry.Command,
				Args:    entry.Args,
				Cwd:     entry.Cwd,
				Env:     entry.Env,
			}
		}
	}

	return list, descriptors
}

// ImportFile loads a manifest and atomically replaces both canonical
// configuration documents in the given store.
func ImportFile(s *Store, path string) error {
	m, err := LoadManifestFile(path)
	if err != nil {
		return err
	}

	list, descriptors := m.Split()
	if err := s.Replace(list); err != nil {
		return fmt.Errorf("apply imported server list: %w", err)
	}
	if err := s.ReplaceDescriptors(descriptors); err != nil {
		return fmt.Errorf("apply imported launch descriptors: %w", err)
	}
	return nil
}
