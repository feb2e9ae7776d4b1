// Package namespace derives the stable, underscore-safe tool namespace
// used to prefix a downstream server's tools in the aggregated catalog.
package namespace

import (
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Derive normalizes a server's administrative name into a namespace:
// lowercased, with every maximal run of whitespace collapsed to a single
// underscore. The derivation is deterministic but not collision-free —
// two distinct names may derive the same namespace (see ToolName callers).
func Derive(name string) string {
	lowered := strings.ToLower(name)
	return whitespaceRun.ReplaceAllString(lowered, "_")
}

// ToolName builds the namespaced tool name exposed to the client.
func ToolName(ns, original string) string {
	return ns + "_" + original
}

// SplitToolName attempts to split a namespaced tool name into its
// namespace and original-tool-name parts using the set of known
// namespaces, preferring the longest matching namespace so that a
// namespace which is itself a prefix of another still resolves correctly
// (e.g. "foo" vs "foo_bar": "foo_bar_x" must resolve to "foo_bar", not "foo").
func SplitToolName(namespacedName string, knownNamespaces []string) (ns, original string, ok bool) {
	bestLen := -1
	for _, candidate := range knownNamespaces {
		prefix := candidate + "_"
		if strings.HasPrefix(namespacedName, prefix) && len(candidate) > bestLen {
			ns = candidate
			original = namespacedName[len(prefix):]
			bestLen = len(candidate)
			ok = true
		}
	}
	return ns, original, ok
}
