package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sorcerer/internal/core/ports"
	"sorcerer/internal/shared/util"
)

const (
	ToolReadFile      = "read_file"
	ToolListDirectory = "list_directory"
	ToolQueryHistory  = "query_history"
	ToolChainPrompt   = "chain_prompt"

	maxReadBytes   = 64 << 10
	maxHistoryRows = 50
)

// HistoryQuerier runs read-only queries over recorded runs.
type HistoryQuerier interface {
	QueryReadOnly(ctx context.Context, query string, limit int) ([]map[string]any, error)
}

// ToolDeps are what the built-in functions may touch.
type ToolDeps struct {
	Root    string
	History HistoryQuerier
}

// BuiltinTools returns the named built-in functions. Unknown names and
// functions whose dependencies are missing are skipped.
func BuiltinTools(names []string, deps ToolDeps) []Function {
	var out []Function
	for _, name := range names {
		switch name {
		case ToolReadFile:
			if deps.Root != "" {
				out = append(out, &ReadFile{Root: deps.Root})
			}
		case ToolListDirectory:
			if deps.Root != "" {
				out = append(out, &ListDirectory{Root: deps.Root})
			}
		case ToolQueryHistory:
			if deps.History != nil {
				out = append(out, &QueryHistory{Store: deps.History})
			}
		case ToolChainPrompt:
			out = append(out, &ChainPrompt{})
		}
	}
	return out
}

func pathSchema(desc string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": desc},
		},
		"required": []string{"path"},
	}
}

// sandboxed resolves rel against root and refuses anything outside it.
func sandboxed(root, rel string) (string, error) {
	path := rel
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, rel)
	}
	if !util.WithinRoot(root, path) {
		return "", fmt.Errorf("path %q is outside the project", rel)
	}
	return path, nil
}

// ReadFile returns a project file's content.
type ReadFile struct {
	Root string
}

func (f *ReadFile) Name() string { return ToolReadFile }

func (f *ReadFile) Description() string {
	return "Read a source file of the project under test. Paths are relative to the project root."
}

func (f *ReadFile) Parameters() map[string]any {
	return pathSchema("file path relative to the project root")
}

func (f *ReadFile) Call(_ context.Context, args map[string]any) (string, error) {
	path, err := sandboxed(f.Root, stringArg(args, "path"))
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) > maxReadBytes {
		return string(data[:maxReadBytes]) + "\n... (truncated)", nil
	}
	return string(data), nil
}

// ListDirectory lists a project directory, directories first.
type ListDirectory struct {
	Root string
}

func (f *ListDirectory) Name() string { return ToolListDirectory }

func (f *ListDirectory) Description() string {
	return "List a directory of the project under test. Directories end with a slash."
}

func (f *ListDirectory) Parameters() map[string]any {
	return pathSchema("directory relative to the project root, \".\" for the root")
}

func (f *ListDirectory) Call(_ context.Context, args map[string]any) (string, error) {
	rel := stringArg(args, "path")
	if rel == "" {
		rel = "."
	}
	dir, err := sandboxed(f.Root, rel)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var dirs, files []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if e.IsDir() {
			dirs = append(dirs, e.Name()+"/")
		} else {
			files = append(files, e.Name())
		}
	}
	sort.Strings(dirs)
	sort.Strings(files)
	return strings.Join(append(dirs, files...), "\n"), nil
}

// QueryHistory runs a read-only SQL query over past runs.
type QueryHistory struct {
	Store HistoryQuerier
}

func (f *QueryHistory) Name() string { return ToolQueryHistory }

func (f *QueryHistory) Description() string {
	return "Run a read-only SQL SELECT over the runs table (target, started_at, success, stage, fix_attempts, passed, failed, build_errors, test_worthiness, total_loc)."
}

func (f *QueryHistory) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sql":   map[string]any{"type": "string", "description": "a single SELECT statement"},
			"limit": map[string]any{"type": "integer", "description": "maximum rows, at most 50"},
		},
		"required": []string{"sql"},
	}
}

func (f *QueryHistory) Call(ctx context.Context, args map[string]any) (string, error) {
	limit := intArg(args, "limit", maxHistoryRows)
	if limit <= 0 || limit > maxHistoryRows {
		limit = maxHistoryRows
	}
	rows, err := f.Store.QueryReadOnly(ctx, stringArg(args, "sql"), limit)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ChainPrompt sends a sub-question to the model in a fresh session and
// returns its answer. It is wired to its transport through Install.
type ChainPrompt struct {
	api ports.ChatTransport
}

func (f *ChainPrompt) Name() string { return ToolChainPrompt }

func (f *ChainPrompt) Description() string {
	return "Ask a separate, self-contained question in a new conversation and get the answer back."
}

func (f *ChainPrompt) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{"type": "string", "description": "the complete question"},
		},
		"required": []string{"prompt"},
	}
}

func (f *ChainPrompt) Install(api ports.ChatTransport) {
	f.api = api
}

func (f *ChainPrompt) Call(ctx context.Context, args map[string]any) (string, error) {
	if f.api == nil {
		return "", fmt.Errorf("chain_prompt is not installed")
	}
	text := stringArg(args, "prompt")
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("prompt is empty")
	}
	return f.api.Prompt(ctx, f.api.NewSession(), text)
}
