package crawler

import "strings"

// NamespaceFilter decides which packages are never crawled: the configured
// prefixes and the standard library.
type NamespaceFilter struct {
	Prefixes   []string
	ModulePath string
}

// Excluded reports whether ns matches an excluded prefix on a path
// boundary, or is a standard library package.
func (f NamespaceFilter) Excluded(ns string) bool {
	if ns == "" {
		return true
	}
	for _, p := range f.Prefixes {
		if ns == p || strings.HasPrefix(ns, p+"/") {
			return true
		}
	}
	return f.isStdlib(ns)
}

// isStdlib applies the go command's rule: a path whose first element has no
// dot is a standard library path unless it belongs to the main module.
func (f NamespaceFilter) isStdlib(ns string) bool {
	if f.ModulePath != "" && (ns == f.ModulePath || strings.HasPrefix(ns, f.ModulePath+"/")) {
		return false
	}
	first, _, _ := strings.Cut(ns, "/")
	return !strings.Contains(first, ".")
}
