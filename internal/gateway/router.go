package gateway

import (
	"errors"
	"fmt"

	"github.com/arborio/mcpgate/internal/config"
	"github.com/arborio/mcpgate/internal/namespace"
)

// ErrToolNotFound is returned by Resolve when no enabled downstream's
// namespace prefixes the requested tool name.
var ErrToolNotFound = errors.New("no downstream owns tool")

// Router resolves a namespaced tool name back to the downstream server
// that owns it, using longest-namespace-prefix match over the currently
// enabled servers.
type Router struct {
	store *config.Store
}

// NewRouter builds a Router backed by the config store.
func NewRouter(store *config.Store) *Router {
	return &Router{store: store}
}

// Resolve splits a namespaced tool name into the owning server's name and
// the tool's original (un-namespaced) name.
func (r *Router) Resolve(toolName string) (serverName, originalTool string, err error) {
	servers := r.store.Servers()
	namespaces := make([]string, 0, len(servers))
	byNamespace := make(map[string]string, len(servers))
	for _, s := range servers {
		if !s.Enabled {
			continue
		}
		ns := s.Namespace()
		namespaces = append(namespaces, ns)
		byNamespace[ns] = s.Name
	}

	ns, original, ok := namespace.SplitToolName(toolName, namespaces)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrToolNotFound, toolName)
	}
	return byNamespace[ns], original, nil
}
