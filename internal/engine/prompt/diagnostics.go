package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"sorcerer/internal/core/model"
)

var (
	compilerLoc = regexp.MustCompile(`(?m)^\s*(?:#\s+\S+\s+)?(\S+\.go):(\d+):(\d+): `)
	testLoc     = regexp.MustCompile(`(?m)^\s*(\S+_test\.go):(\d+): `)
	panicLoc    = regexp.MustCompile(`(?m)^\s+(/\S+\.go):(\d+)(?: \+0x[0-9a-f]+)?\s*$`)
)

// Location is a file:line reference found in tool output.
type Location struct {
	File string
	Line int
}

// Snippet is source around a Location with the referenced line marked.
type Snippet struct {
	File string
	Line int
	Text string
}

// Issue is one build error or failed test as shown to the fixer.
type Issue struct {
	Kind     string
	Name     string
	Message  string
	Trace    string
	Snippets []Snippet
}

// Locations finds compiler, test log and panic trace references in text,
// in order of appearance and without duplicates.
func Locations(text string) []Location {
	type hit struct {
		pos int
		loc Location
	}
	var hits []hit
	for _, re := range []*regexp.Regexp{compilerLoc, testLoc, panicLoc} {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			line, err := strconv.Atoi(text[m[4]:m[5]])
			if err != nil || line <= 0 {
				continue
			}
			hits = append(hits, hit{pos: m[2], loc: Location{File: text[m[2]:m[3]], Line: line}})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	seen := map[Location]bool{}
	var out []Location
	for _, h := range hits {
		if !seen[h.loc] {
			seen[h.loc] = true
			out = append(out, h.loc)
		}
	}
	return out
}

// ContextResolver turns diagnostic paths into readable files.
type ContextResolver struct {
	ProjectRoot string
	PackageDir  string
	Lines       int
}

// Resolve finds the file a diagnostic path refers to. Relative paths are
// tried against the package directory first, then the project root.
// Absolute paths outside the project, such as the Go toolchain's own
// sources in a panic trace, are not resolved.
func (r ContextResolver) Resolve(path string) (string, bool) {
	if filepath.IsAbs(path) {
		if r.ProjectRoot != "" {
			rel, err := filepath.Rel(r.ProjectRoot, path)
			if err != nil || strings.HasPrefix(rel, "..") {
				return "", false
			}
		}
		return path, fileExists(path)
	}
	for _, base := range []string{r.PackageDir, r.ProjectRoot} {
		if base == "" {
			continue
		}
		candidate := filepath.Join(base, path)
		if fileExists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// Snippets reads the context of every location in text that resolves.
func (r ContextResolver) Snippets(text string) []Snippet {
	var out []Snippet
	for _, loc := range Locations(text) {
		path, ok := r.Resolve(loc.File)
		if !ok {
			continue
		}
		snippet, err := SourceContext(path, loc.Line, r.Lines)
		if err != nil {
			continue
		}
		out = append(out, Snippet{File: loc.File, Line: loc.Line, Text: snippet})
	}
	return out
}

// Issues lists what went wrong in run for the fix prompt.
func (r ContextResolver) Issues(run *model.TestRunResult) []Issue {
	if run == nil {
		return nil
	}
	var out []Issue
	for _, msg := range run.BuildErrors {
		out = append(out, Issue{Kind: "Build error", Message: msg, Snippets: r.Snippets(msg)})
	}
	for _, msg := range run.Errors {
		out = append(out, Issue{Kind: "Tooling error", Message: msg})
	}
	for _, t := range run.FailedTests {
		out = append(out, Issue{
			Kind:     "Failed test",
			Name:     t.FullName,
			Message:  t.Message,
			Trace:    t.StackTrace,
			Snippets: r.Snippets(t.Message + "\n" + t.StackTrace),
		})
	}
	return out
}

// SourceContext returns n lines around line (1-based) of path, each
// numbered, with the line itself marked ">>".
func SourceContext(path string, line, n int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if line < 1 || line > len(lines) {
		return "", fmt.Errorf("line %d out of range for %s", line, path)
	}
	if n < 0 {
		n = 0
	}

	from := max(1, line-n)
	to := min(len(lines), line+n)
	var b strings.Builder
	for i := from; i <= to; i++ {
		marker := "  "
		if i == line {
			marker = ">>"
		}
		fmt.Fprintf(&b, "%s %4d | %s\n", marker, i, lines[i-1])
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
