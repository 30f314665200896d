package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"

	"sorcerer/internal/core/errors"
	"sorcerer/internal/core/model"
	"sorcerer/internal/shared/util"
)

type RemoteOptions struct {
	BaseURL       string
	LaunchCommand []string
	PollInterval  time.Duration
	ReadyTimeout  time.Duration
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// Remote drives a test automation endpoint over HTTP, optionally starting
// its companion process first.
type Remote struct {
	opts   RemoteOptions
	client *http.Client

	mu   sync.Mutex
	proc *exec.Cmd
}

func NewRemote(opts RemoteOptions) *Remote {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = time.Minute
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Remote{opts: opts, client: client}
}

func (r *Remote) Name() string { return "remote" }

type runRequest struct {
	Project string `json:"project"`
	Filter  string `json:"filter,omitempty"`
}

type runStatus struct {
	ID     string         `json:"id"`
	Status string         `json:"status"`
	Result *remotePayload `json:"result,omitempty"`
	Output string         `json:"output,omitempty"`
}

type remoteTest struct {
	Name       string `json:"name"`
	Message    string `json:"message,omitempty"`
	StackTrace string `json:"stack_trace,omitempty"`
}

type remotePayload struct {
	BuildErrors []string     `json:"build_errors"`
	Errors      []string     `json:"errors"`
	Passed      []remoteTest `json:"passed"`
	Failed      []remoteTest `json:"failed"`
}

// Prepare makes sure the endpoint answers /health, launching the companion
// command when one is configured and the endpoint is down.
func (r *Remote) Prepare(ctx context.Context, target string) error {
	if r.healthy(ctx) {
		return nil
	}
	if len(r.opts.LaunchCommand) > 0 {
		if err := r.launch(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.ReadyTimeout)
	defer cancel()
	limiter := util.Every(r.opts.PollInterval)
	for {
		if err := limiter.Wait(ctx, 1); err != nil {
			return errors.AddContext(errors.New(errors.CodeToolingError, "automation endpoint not ready"), "url", r.opts.BaseURL)
		}
		if r.healthy(ctx) {
			slog.Debug("automation endpoint ready", "url", r.opts.BaseURL)
			return nil
		}
	}
}

func (r *Remote) RunTests(ctx context.Context, projectPath, filter string) (*model.TestRunResult, error) {
	start := time.Now()
	result, err := r.run(ctx, projectPath, filter)
	observeRun(r.Name(), start, result, err)
	return result, err
}

func (r *Remote) RunFailures(ctx context.Context, projectPath string, previous *model.TestRunResult) (*model.TestRunResult, error) {
	return runFailures(ctx, r, projectPath, previous)
}

// Close stops a companion process started by Prepare.
func (r *Remote) Close() error {
	r.kill()
	return nil
}

func (r *Remote) run(ctx context.Context, projectPath, filter string) (*model.TestRunResult, error) {
	start := time.Now()
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	var created runStatus
	if err := r.doJSON(ctx, http.MethodPost, "/runs", runRequest{Project: projectPath, Filter: filter}, &created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, errors.New(errors.CodeToolingError, "automation endpoint returned no run id")
	}

	limiter := util.Every(r.opts.PollInterval)
	for {
		if err := limiter.Wait(ctx, 1); err != nil {
			r.kill()
			return nil, errors.AddContext(errors.Wrap(err, errors.CodeToolingError, "remote test run timed out"), "run", created.ID)
		}
		var status runStatus
		if err := r.doJSON(ctx, http.MethodGet, "/runs/"+created.ID, nil, &status); err != nil {
			if ctx.Err() != nil {
				r.kill()
			}
			return nil, err
		}
		switch status.Status {
		case "done", "completed", "finished":
			result := status.toResult()
			result.Duration = time.Since(start)
			return result, nil
		case "running", "pending", "queued":
		case "error", "failed", "cancelled", "canceled":
			return nil, errors.AddContext(errors.Newf(errors.CodeToolingError, "remote run %s: %s", status.Status, strings.TrimSpace(status.Output)), "run", created.ID)
		default:
			return nil, errors.AddContext(errors.Newf(errors.CodeToolingError, "remote run has unknown status %q", status.Status), "run", created.ID)
		}
	}
}

func (s runStatus) toResult() *model.TestRunResult {
	if s.Result != nil {
		out := &model.TestRunResult{BuildErrors: s.Result.BuildErrors, Errors: s.Result.Errors}
		for _, t := range s.Result.Passed {
			out.PassedTests = append(out.PassedTests, model.TestResult{FullName: t.Name, Result: model.OutcomePassed})
		}
		for _, t := range s.Result.Failed {
			out.FailedTests = append(out.FailedTests, model.TestResult{FullName: t.Name, Result: model.OutcomeFailed, Message: t.Message, StackTrace: t.StackTrace})
		}
		return out
	}
	return ParseLines(strings.NewReader(s.Output))
}

// ParseLines reads the line-oriented result format:
//
//	PASS TestName
//	FAIL TestName: message
//	SKIP TestName
//	BUILD file.go:1:2: message
//	ERROR message
//
// Indented lines following a FAIL are appended to its stack trace.
func ParseLines(rd io.Reader) *model.TestRunResult {
	out := &model.TestRunResult{}
	var last *model.TestResult
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		line := scanner.Text()
		if last != nil && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) {
			if last.StackTrace != "" {
				last.StackTrace += "\n"
			}
			last.StackTrace += strings.TrimSpace(line)
			continue
		}
		last = nil

		verb, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
		rest = strings.TrimSpace(rest)
		switch verb {
		case "PASS":
			out.PassedTests = append(out.PassedTests, model.TestResult{FullName: rest, Result: model.OutcomePassed})
		case "FAIL":
			name, msg, _ := strings.Cut(rest, ":")
			out.FailedTests = append(out.FailedTests, model.TestResult{FullName: strings.TrimSpace(name), Result: model.OutcomeFailed, Message: strings.TrimSpace(msg)})
			last = &out.FailedTests[len(out.FailedTests)-1]
		case "BUILD":
			out.BuildErrors = append(out.BuildErrors, rest)
		case "ERROR":
			out.Errors = append(out.Errors, rest)
		}
	}
	return out
}

func (r *Remote) healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.opts.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (r *Remote) doJSON(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.opts.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeToolingError, "automation endpoint unreachable"), "url", r.opts.BaseURL+path)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Newf(errors.CodeToolingError, "%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, errors.CodeToolingError, fmt.Sprintf("decode %s response", path))
	}
	return nil
}

func (r *Remote) launch() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.proc != nil {
		return nil
	}
	cmd := exec.Command(r.opts.LaunchCommand[0], r.opts.LaunchCommand[1:]...)
	if err := cmd.Start(); err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeToolingError, "launch automation endpoint"), "command", strings.Join(r.opts.LaunchCommand, " "))
	}
	slog.Info("launched automation endpoint", "pid", cmd.Process.Pid)
	r.proc = cmd
	go func() { _ = cmd.Wait() }()
	return nil
}

func (r *Remote) kill() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.proc == nil || r.proc.Process == nil {
		return
	}
	slog.Warn("killing automation endpoint", "pid", r.proc.Process.Pid)
	_ = r.proc.Process.Kill()
	r.proc = nil
}
