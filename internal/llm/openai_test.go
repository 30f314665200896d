package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"sorcerer/internal/core/errors"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompletions serves canned assistant messages in order and records
// every request.
type fakeCompletions struct {
	mu       sync.Mutex
	replies  []openai.ChatCompletionMessage
	requests []openai.ChatCompletionRequest
}

func (f *fakeCompletions) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	if len(f.replies) == 0 {
		f.mu.Unlock()
		http.Error(w, `{"error":{"message":"no more replies","type":"test"}}`, http.StatusInternalServerError)
		return
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
		ID:      "cmpl",
		Model:   req.Model,
		Choices: []openai.ChatCompletionChoice{{Message: reply, FinishReason: openai.FinishReasonStop}},
	})
}

func newOpenAI(t *testing.T, fake *fakeCompletions, tools *FunctionRegistry) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	o := NewOpenAI(Options{
		Model:         "gpt-test",
		BaseURL:       srv.URL + "/v1",
		APIKey:        "test-key",
		MaxToolRounds: 2,
		SystemPrompt:  "be terse",
	}, tools)
	tools.Install(o)
	return o
}

func assistant(content string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}
}

func TestOpenAIPromptKeepsSessionHistory(t *testing.T) {
	fake := &fakeCompletions{replies: []openai.ChatCompletionMessage{assistant("first"), assistant("second"), assistant("other")}}
	o := newOpenAI(t, fake, NewFunctionRegistry())

	session := o.NewSession()
	got, err := o.Prompt(context.Background(), session, "hello")
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	got, err = o.Prompt(context.Background(), session, "again")
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	_, err = o.Prompt(context.Background(), o.NewSession(), "fresh")
	require.NoError(t, err)

	require.Len(t, fake.requests, 3)
	second := fake.requests[1].Messages
	require.Len(t, second, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, second[0].Role)
	assert.Equal(t, "be terse", second[0].Content)
	assert.Equal(t, "hello", second[1].Content)
	assert.Equal(t, "first", second[2].Content)
	assert.Equal(t, "again", second[3].Content)

	assert.Len(t, fake.requests[2].Messages, 2, "a new session starts empty")
	assert.Nil(t, fake.requests[0].Tools)
}

func TestOpenAIToolCalls(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n"), 0o644))

	call := openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant,
		ToolCalls: []openai.ToolCall{{
			ID:       "call-1",
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: ToolReadFile, Arguments: `{"path":"a.go"}`},
		}},
	}
	fake := &fakeCompletions{replies: []openai.ChatCompletionMessage{call, assistant("done")}}
	o := newOpenAI(t, fake, NewFunctionRegistry(&ReadFile{Root: root}))

	got, err := o.Prompt(context.Background(), o.NewSession(), "read it")
	require.NoError(t, err)
	assert.Equal(t, "done", got)

	require.Len(t, fake.requests, 2)
	require.Len(t, fake.requests[0].Tools, 1)
	assert.Equal(t, ToolReadFile, fake.requests[0].Tools[0].Function.Name)

	msgs := fake.requests[1].Messages
	last := msgs[len(msgs)-1]
	assert.Equal(t, openai.ChatMessageRoleTool, last.Role)
	assert.Equal(t, "call-1", last.ToolCallID)
	assert.Equal(t, "package a\n", last.Content)
}

func TestOpenAIToolRoundLimit(t *testing.T) {
	call := openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant,
		ToolCalls: []openai.ToolCall{{
			ID:       "loop",
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: ToolListDirectory, Arguments: `{}`},
		}},
	}
	fake := &fakeCompletions{replies: []openai.ChatCompletionMessage{call, call, call, call}}
	o := newOpenAI(t, fake, NewFunctionRegistry(&ListDirectory{Root: t.TempDir()}))

	session := o.NewSession()
	_, err := o.Prompt(context.Background(), session, "loop forever")
	assert.True(t, errors.IsCode(err, errors.CodeExhausted), "got %v", err)
	assert.Len(t, fake.requests, 3)
	assert.Empty(t, o.sessions.Turns(session), "failed prompts leave the session untouched")
}

func TestOpenAIServerError(t *testing.T) {
	o := newOpenAI(t, &fakeCompletions{}, NewFunctionRegistry())
	_, err := o.Prompt(context.Background(), o.NewSession(), "hello")
	assert.True(t, errors.IsCode(err, errors.CodeToolingError), "got %v", err)
}

func TestNewTransport(t *testing.T) {
	_, err := New(context.Background(), Options{Provider: ProviderOpenAI}, NewFunctionRegistry())
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))

	_, err = New(context.Background(), Options{Provider: "bard", APIKey: "k"}, NewFunctionRegistry())
	assert.True(t, errors.IsCode(err, errors.CodeValidationError))

	chain := &ChainPrompt{}
	tr, err := New(context.Background(), Options{Provider: ProviderOpenAI, APIKey: "k", Model: "m"}, NewFunctionRegistry(chain))
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, tr.Provider())
	assert.Same(t, tr, chain.api, "installable functions receive the transport")
}
