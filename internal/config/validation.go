package config

import (
	"fmt"
	"log/slog"
)

// validate checks the unique-name invariant (hard failure) and warns about
// namespace collisions (soft: the later-listed server becomes unreachable
// through the router, but the gateway still starts).
func validate(list ServerList) error {
	seen := make(map[string]bool, len(list.Servers))
	for _, s := range list.Servers {
		if s.Name == "" {
			return fmt.Errorf("server record with empty name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate server name %q", s.Name)
		}
		seen[s.Name] = true
	}

	nsOwners := make(map[string]string, len(list.Servers))
	for _, s := range list.Servers {
		ns := s.Namespace()
		if owner, ok := nsOwners[ns]; ok {
			slog.Warn("namespace collision in configuration",
				"namespace", ns, "first", owner, "second", s.Name)
			continue
		}
		nsOwners[ns] = s.Name
	}

	if list.ToolCap < 0 {
		return fmt.Errorf("toolCap must be >= 0, got %d", list.ToolCap)
	}

	return nil
}
