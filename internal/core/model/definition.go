package model

import "strings"

// Supplement is a companion definition injected next to a known interface,
// usually a test double the generated tests should prefer.
type Supplement struct {
	Definition Definition
	Reason     string
}

// Definition is one discovered type declaration.
type Definition struct {
	Symbol     string
	Namespace  string
	Code       string
	File       string
	Line       int
	Depth      int
	Supplement *Supplement
	// InTarget marks types declared in the file under test. Their code is
	// already in the prompt, so only their supplements are rendered.
	InTarget bool
}

// FullName identifies a definition across reference paths.
func (d Definition) FullName() string {
	if d.Namespace == "" {
		return d.Symbol
	}
	return d.Namespace + "." + d.Symbol
}

// LineCount counts the lines of the cleaned snippet.
func (d Definition) LineCount() int {
	return CountLines(d.Code)
}

// CountLines returns the number of lines in text, ignoring a single
// trailing newline. Empty text has zero lines.
func CountLines(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(strings.TrimSuffix(text, "\n"), "\n") + 1
}

// DefinitionKey builds the composite key used by DefinitionResult.
func DefinitionKey(file, symbol string) string {
	return file + "#" + symbol
}

// DefinitionResult holds what one crawl discovered, starting from File.
// Entries are add-only and keep discovery order.
type DefinitionResult struct {
	File  string
	keys  []string
	items map[string]Definition
}

func NewDefinitionResult(file string) *DefinitionResult {
	return &DefinitionResult{File: file, items: make(map[string]Definition)}
}

// Add records def under (def.File, def.Symbol). It reports false when the
// key is already present; the existing entry is never replaced.
func (r *DefinitionResult) Add(def Definition) bool {
	if r.items == nil {
		r.items = make(map[string]Definition)
	}
	key := DefinitionKey(def.File, def.Symbol)
	if _, ok := r.items[key]; ok {
		return false
	}
	r.items[key] = def
	r.keys = append(r.keys, key)
	return true
}

func (r *DefinitionResult) Get(file, symbol string) (Definition, bool) {
	def, ok := r.items[DefinitionKey(file, symbol)]
	return def, ok
}

func (r *DefinitionResult) Len() int {
	return len(r.keys)
}

// Definitions returns a copy of the entries in discovery order.
func (r *DefinitionResult) Definitions() []Definition {
	out := make([]Definition, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, r.items[k])
	}
	return out
}
