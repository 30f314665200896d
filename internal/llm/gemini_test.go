package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGemini struct {
	mu       sync.Mutex
	replies  []string
	contents [][]json.RawMessage
	paths    []string
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Contents []json.RawMessage `json:"contents"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.contents = append(f.contents, body.Contents)
	f.paths = append(f.paths, r.URL.Path)
	if len(f.replies) == 0 {
		http.Error(w, `{"error":{"code":500,"message":"no more replies"}}`, http.StatusInternalServerError)
		return
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[` + reply + `]},"finishReason":"STOP"}]}`))
}

func newGemini(t *testing.T, fake *fakeGemini, tools *FunctionRegistry) *Gemini {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	g, err := NewGemini(context.Background(), Options{
		Model:         "gemini-test",
		BaseURL:       srv.URL + "/",
		APIKey:        "test-key",
		MaxToolRounds: 2,
		SystemPrompt:  "be terse",
	}, tools)
	require.NoError(t, err)
	return g
}

func TestGeminiPromptKeepsSessionHistory(t *testing.T) {
	fake := &fakeGemini{replies: []string{`{"text":"first"}`, `{"text":"second"}`}}
	g := newGemini(t, fake, NewFunctionRegistry())

	session := g.NewSession()
	got, err := g.Prompt(context.Background(), session, "hello")
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	got, err = g.Prompt(context.Background(), session, "again")
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	require.Len(t, fake.contents, 2)
	assert.Len(t, fake.contents[0], 1)
	assert.Len(t, fake.contents[1], 3, "user, model, user")
	assert.True(t, strings.HasSuffix(fake.paths[0], "models/gemini-test:generateContent"), fake.paths[0])
	assert.Len(t, g.sessions.Turns(session), 4)
}

func TestGeminiFunctionCalls(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n"), 0o644))

	fake := &fakeGemini{replies: []string{
		`{"functionCall":{"name":"read_file","args":{"path":"a.go"}}}`,
		`{"text":"done"}`,
	}}
	g := newGemini(t, fake, NewFunctionRegistry(&ReadFile{Root: root}))

	got, err := g.Prompt(context.Background(), g.NewSession(), "read it")
	require.NoError(t, err)
	assert.Equal(t, "done", got)

	require.Len(t, fake.contents, 2)
	last := string(fake.contents[1][len(fake.contents[1])-1])
	assert.Contains(t, last, "functionResponse")
	assert.Contains(t, last, "package a")
}
