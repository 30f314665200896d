// Package prompt renders the model prompts and decodes its answers.
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"sorcerer/internal/core/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("prompt").Funcs(template.FuncMap{
	"base":  filepath.Base,
	"fence": fence,
	"inc":   func(i int) int { return i + 1 },
}).ParseFS(templateFS, "templates/*.tmpl"))

// Context is what every prompt that opens a conversation shows the model.
type Context struct {
	Target      model.Target
	Analysis    model.AnalysisResult
	WithContext bool
}

type FixData struct {
	Context
	Attempt     int
	RunError    string
	RepeatedFix bool
	Issues      []Issue
	CurrentTest string
}

type EnhanceData struct {
	Context
	Kind        model.EnhancementKind
	Instruction string
	CurrentTest string
}

// SystemPrompt is used when the configuration does not set one.
func SystemPrompt() string {
	return strings.TrimSpace(mustRender("system.tmpl", nil))
}

func Generate(target model.Target, analysis model.AnalysisResult) (string, error) {
	return render("generate.tmpl", Context{Target: target, Analysis: analysis, WithContext: true})
}

func Fix(data FixData) (string, error) {
	return render("fix.tmpl", data)
}

func Enhance(data EnhanceData) (string, error) {
	if data.Instruction == "" {
		data.Instruction = Instruction(data.Kind)
	}
	return render("enhance.tmpl", data)
}

// JSONRetry asks the model to repeat its last answer as valid JSON.
func JSONRetry(cause error) string {
	return strings.TrimSpace(mustRender("json_retry.tmpl", cause.Error()))
}

var instructions = map[model.EnhancementKind]string{
	model.EnhanceGeneral:       "make the tests clearer and more robust without changing what they cover.",
	model.EnhanceCoverage:      "add cases for branches, error returns and edge cases that are not covered yet.",
	model.EnhanceRefactor:      "remove duplication, turning repeated tests into table-driven cases with shared helpers.",
	model.EnhanceDocumentation: "give every test a name and short comment that state the behaviour under test.",
	model.EnhanceBugSquash:     "look for assertions that would hide real bugs (timing, ordering, ignored errors) and tighten them.",
	model.EnhanceCleanup:       "drop unused helpers, imports and dead code, and format the file with gofmt conventions.",
	model.EnhanceVerify:        "check that the file compiles and all tests pass.",
}

// Instruction is the request sent for one enhancement kind.
func Instruction(kind model.EnhancementKind) string {
	if s, ok := instructions[kind]; ok {
		return s
	}
	return instructions[model.EnhanceGeneral]
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func mustRender(name string, data any) string {
	s, err := render(name, data)
	if err != nil {
		panic(err)
	}
	return s
}

func fence(code string) string {
	return "```go\n" + strings.TrimRight(code, "\n") + "\n```"
}
