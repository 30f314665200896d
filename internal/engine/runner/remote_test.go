package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sorcerer/internal/core/errors"
	"sorcerer/internal/core/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine is an automation endpoint whose runs finish after a number
// of polls.
type fakeEngine struct {
	mu        sync.Mutex
	healthy   atomic.Bool
	pollsLeft int
	final     runStatus
	requests  []runRequest
}

func (f *fakeEngine) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if !f.healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /runs", func(w http.ResponseWriter, r *http.Request) {
		var req runRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(runStatus{ID: "run-1", Status: "running"})
	})
	mux.HandleFunc("GET /runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.pollsLeft > 0 {
			f.pollsLeft--
			_ = json.NewEncoder(w).Encode(runStatus{ID: r.PathValue("id"), Status: "running"})
			return
		}
		_ = json.NewEncoder(w).Encode(f.final)
	})
	return mux
}

func newRemote(t *testing.T, f *fakeEngine, timeout time.Duration) *Remote {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewRemote(RemoteOptions{
		BaseURL:      srv.URL + "/",
		PollInterval: 5 * time.Millisecond,
		ReadyTimeout: 100 * time.Millisecond,
		Timeout:      timeout,
	})
}

func TestRemoteStructuredResult(t *testing.T) {
	f := &fakeEngine{pollsLeft: 2, final: runStatus{ID: "run-1", Status: "done", Result: &remotePayload{
		Passed: []remoteTest{{Name: "TestA"}},
		Failed: []remoteTest{{Name: "TestB", Message: "boom", StackTrace: "b_test.go:4"}},
	}}}
	f.healthy.Store(true)
	r := newRemote(t, f, time.Second)

	require.NoError(t, r.Prepare(context.Background(), "/src/shop/order/service.go"))
	res, err := r.RunTests(context.Background(), "/src/shop/order", "^(TestB)$")
	require.NoError(t, err)

	require.Len(t, res.PassedTests, 1)
	require.Len(t, res.FailedTests, 1)
	assert.Equal(t, model.TestResult{FullName: "TestB", Result: model.OutcomeFailed, Message: "boom", StackTrace: "b_test.go:4"}, res.FailedTests[0])
	assert.Equal(t, []runRequest{{Project: "/src/shop/order", Filter: "^(TestB)$"}}, f.requests)
}

func TestRemoteLineResultAndRunFailures(t *testing.T) {
	f := &fakeEngine{final: runStatus{ID: "run-1", Status: "done", Output: "PASS TestA\nFAIL TestB: boom\n\tb_test.go:4\n"}}
	f.healthy.Store(true)
	r := newRemote(t, f, time.Second)

	res, err := r.RunFailures(context.Background(), "/src/shop/order", &model.TestRunResult{
		FailedTests: []model.TestResult{{FullName: "TestB"}, {FullName: "TestC/sub"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "^(TestB|TestC)$", f.requests[0].Filter)
	require.Len(t, res.FailedTests, 1)
	assert.Equal(t, "boom", res.FailedTests[0].Message)
	assert.Equal(t, "b_test.go:4", res.FailedTests[0].StackTrace)
}

func TestRemotePrepareNotReady(t *testing.T) {
	r := newRemote(t, &fakeEngine{}, time.Second)
	err := r.Prepare(context.Background(), "")
	assert.True(t, errors.IsCode(err, errors.CodeToolingError), "got %v", err)
}

func TestRemoteRunTimeout(t *testing.T) {
	f := &fakeEngine{pollsLeft: 1 << 30}
	f.healthy.Store(true)
	r := newRemote(t, f, 50*time.Millisecond)

	_, err := r.RunTests(context.Background(), "/src/shop/order", "")
	assert.True(t, errors.IsCode(err, errors.CodeToolingError), "got %v", err)
}

func TestParseLines(t *testing.T) {
	res := ParseLines(strings.NewReader(strings.Join([]string{
		"PASS TestA",
		"SKIP TestS",
		"FAIL TestB: expected 1: got 2",
		"    at b_test.go:9",
		"BUILD ./b_test.go:3:1: syntax error",
		"ERROR runner crashed",
		"noise",
	}, "\n")))

	assert.Len(t, res.PassedTests, 1)
	require.Len(t, res.FailedTests, 1)
	assert.Equal(t, "TestB", res.FailedTests[0].FullName)
	assert.Equal(t, "expected 1: got 2", res.FailedTests[0].Message)
	assert.Equal(t, "at b_test.go:9", res.FailedTests[0].StackTrace)
	assert.Equal(t, []string{"./b_test.go:3:1: syntax error"}, res.BuildErrors)
	assert.Equal(t, []string{"runner crashed"}, res.Errors)
}

func TestRemoteTerminalStatuses(t *testing.T) {
	for _, status := range []string{"error", "failed", "cancelled", "canceled", "exploded", ""} {
		t.Run(status, func(t *testing.T) {
			f := &fakeEngine{pollsLeft: 1, final: runStatus{ID: "run-1", Status: status, Output: "engine stopped"}}
			f.healthy.Store(true)
			r := newRemote(t, f, 5*time.Second)

			start := time.Now()
			_, err := r.RunTests(context.Background(), "/src/shop/order", "")
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeToolingError), "got %v", err)
			assert.Less(t, time.Since(start), time.Second, "the run is not polled until the timeout")
		})
	}
}
