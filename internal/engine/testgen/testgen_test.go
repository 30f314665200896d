package testgen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sorcerer/internal/core/errors"
	"sorcerer/internal/core/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentPrompt struct {
	session model.SessionID
	text    string
}

// scriptedChat answers prompts from a fixed list of replies.
type scriptedChat struct {
	replies  []string
	err      error
	sessions int
	sent     []sentPrompt
}

func (c *scriptedChat) NewSession() model.SessionID {
	c.sessions++
	return model.SessionID(fmt.Sprintf("session-%d", c.sessions))
}

func (c *scriptedChat) SetSystemPrompt(string) {}

func (c *scriptedChat) Prompt(_ context.Context, session model.SessionID, text string) (string, error) {
	c.sent = append(c.sent, sentPrompt{session: session, text: text})
	if c.err != nil {
		return "", c.err
	}
	if len(c.replies) == 0 {
		return "", fmt.Errorf("no scripted reply left")
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply, nil
}

const validReply = `Here you go:
{"file_name": "calc_test.go", "file_content": "package calc\n\nfunc TestAdd(t *testing.T) {}\n", "notes": "one test"}`

func sample(t *testing.T) (model.Target, model.AnalysisResult) {
	t.Helper()
	dir := t.TempDir()
	target := model.Target{
		SourcePath:  filepath.Join(dir, "calc.go"),
		Source:      "package calc\n\nfunc Add(a, b int) int { return a + b }\n",
		TestPath:    filepath.Join(dir, "calc_test.go"),
		PackageName: "calc",
		PackageDir:  dir,
		ProjectRoot: dir,
	}
	analysis := model.AnalysisResult{
		File:           target.SourcePath,
		Definitions:    []model.Definition{{Symbol: "Number", Namespace: "example.com/calc/num", Code: "type Number int"}},
		TotalLoc:       4,
		TestWorthiness: model.WorthinessExcellent,
	}
	return target, analysis
}

func TestGeneratorOpensSessionAndDecodes(t *testing.T) {
	target, analysis := sample(t)
	chat := &scriptedChat{replies: []string{validReply}}

	res, err := NewGenerator(chat, Options{MaxJSONRetries: 3}).Run(context.Background(), target, analysis)
	require.NoError(t, err)

	assert.Equal(t, model.SessionID("session-1"), res.Session)
	assert.Equal(t, "calc_test.go", res.Response.FileName)
	assert.Contains(t, res.Response.FileContent, "func TestAdd")
	assert.Equal(t, analysis, res.Analysis)

	require.Len(t, chat.sent, 1)
	assert.Contains(t, chat.sent[0].text, "func Add(a, b int) int")
	assert.Contains(t, chat.sent[0].text, "example.com/calc/num.Number")
	assert.Contains(t, chat.sent[0].text, "calc_test.go")
}

func TestJSONRetryRecovers(t *testing.T) {
	target, analysis := sample(t)
	chat := &scriptedChat{replies: []string{"I think the tests should cover Add.", validReply}}

	res, err := NewGenerator(chat, Options{MaxJSONRetries: 3}).Run(context.Background(), target, analysis)
	require.NoError(t, err)
	assert.Contains(t, res.Response.FileContent, "TestAdd")

	require.Len(t, chat.sent, 2)
	assert.Equal(t, chat.sent[0].session, chat.sent[1].session)
	assert.Contains(t, chat.sent[1].text, "could not be decoded")
}

func TestJSONRetryExhausted(t *testing.T) {
	target, analysis := sample(t)
	chat := &scriptedChat{replies: []string{"no", `{"notes": "missing content"}`, "still no"}}

	_, err := NewGenerator(chat, Options{MaxJSONRetries: 2}).Run(context.Background(), target, analysis)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeParseError), "got %v", err)
	assert.Len(t, chat.sent, 3)
}

func TestJSONRetryDisabled(t *testing.T) {
	target, analysis := sample(t)
	chat := &scriptedChat{replies: []string{"no"}}

	_, err := NewGenerator(chat, Options{}).Run(context.Background(), target, analysis)
	assert.True(t, errors.IsCode(err, errors.CodeParseError), "got %v", err)
	assert.Len(t, chat.sent, 1)
}

func TestTransportErrorIsToolingError(t *testing.T) {
	target, analysis := sample(t)
	chat := &scriptedChat{err: fmt.Errorf("connection refused")}

	_, err := NewGenerator(chat, Options{}).Run(context.Background(), target, analysis)
	assert.True(t, errors.IsCode(err, errors.CodeToolingError), "got %v", err)
}

func TestFixerReusesSessionAndShowsDiagnostics(t *testing.T) {
	target, analysis := sample(t)
	testSrc := "package calc\n\nimport \"testing\"\n\nfunc TestAdd(t *testing.T) {\n\tMissing()\n}\n"
	require.NoError(t, os.WriteFile(target.TestPath, []byte(testSrc), 0o644))

	chat := &scriptedChat{replies: []string{validReply}}
	last := &model.UnitTestGenerationResult{
		Analysis: analysis,
		Response: model.AIResponse{FileContent: testSrc},
		Session:  "session-7",
	}
	res, err := NewFixer(chat, Options{ContextLines: 1}).Run(context.Background(), target, model.FixContext{
		Attempt:         1,
		LastRun:         &model.TestRunResult{BuildErrors: []string{"./calc_test.go:6:2: undefined: Missing"}},
		LastGeneration:  last,
		ProjectRootPath: target.ProjectRoot,
		RepeatedFix:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SessionID("session-7"), res.Session)
	assert.Equal(t, 0, chat.sessions)

	require.Len(t, chat.sent, 1)
	text := chat.sent[0].text
	assert.Contains(t, text, "undefined: Missing")
	assert.Contains(t, text, ">>    6 | \tMissing()")
	assert.Contains(t, text, "attempt 2")
	assert.Contains(t, text, "repeated an earlier file")
	assert.NotContains(t, text, "Code under test")
}

func TestFixerWithoutSessionSendsContext(t *testing.T) {
	target, analysis := sample(t)
	chat := &scriptedChat{replies: []string{validReply}}

	res, err := NewFixer(chat, Options{}).Run(context.Background(), target, model.FixContext{
		RunError:       "go test timed out",
		LastGeneration: &model.UnitTestGenerationResult{Analysis: analysis, Response: model.AIResponse{FileContent: "package calc"}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.SessionID("session-1"), res.Session)

	text := chat.sent[0].text
	assert.Contains(t, text, "Code under test")
	assert.Contains(t, text, "could not be run: go test timed out")
}

func TestFixerNeedsGeneration(t *testing.T) {
	target, _ := sample(t)
	_, err := NewFixer(&scriptedChat{}, Options{}).Run(context.Background(), target, model.FixContext{})
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))
}

func TestEnhancerSendsInstruction(t *testing.T) {
	target, analysis := sample(t)
	chat := &scriptedChat{replies: []string{`{"file_content": "package calc // better", "improvements": ["table cases"]}`}}
	last := &model.UnitTestGenerationResult{Analysis: analysis, Response: model.AIResponse{FileContent: "package calc"}, Session: "s"}

	res, err := NewEnhancer(chat, Options{}).Run(context.Background(), target, model.EnhanceCoverage, last)
	require.NoError(t, err)
	assert.Equal(t, []string{"table cases"}, res.Response.Improvements)
	assert.Equal(t, model.SessionID("s"), res.Session)
	assert.Contains(t, chat.sent[0].text, "add cases for branches")
	assert.Contains(t, chat.sent[0].text, "package calc")
}

type replaceRedactor struct{ secret string }

func (r replaceRedactor) Redact(text string) (string, int) {
	n := strings.Count(text, r.secret)
	return strings.ReplaceAll(text, r.secret, "<redacted>"), n
}

func TestPromptsAreRedacted(t *testing.T) {
	target, analysis := sample(t)
	target.Source += "\nconst apiKey = \"sk-live-123\"\n"
	chat := &scriptedChat{replies: []string{"not json", validReply}}

	_, err := NewGenerator(chat, Options{MaxJSONRetries: 1, Redactor: replaceRedactor{secret: "sk-live-123"}}).Run(context.Background(), target, analysis)
	require.NoError(t, err)

	require.Len(t, chat.sent, 2)
	assert.NotContains(t, chat.sent[0].text, "sk-live-123")
	assert.Contains(t, chat.sent[0].text, `const apiKey = "<redacted>"`)
}
