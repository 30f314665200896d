package runner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"sorcerer/internal/core/errors"
	"sorcerer/internal/core/model"
)

type LocalOptions struct {
	GoBinary   string
	Timeout    time.Duration
	ResultsDir string
}

// Local runs `go test -json` in the package directory.
type Local struct {
	opts LocalOptions
}

func NewLocal(opts LocalOptions) *Local {
	if opts.GoBinary == "" {
		opts.GoBinary = "go"
	}
	return &Local{opts: opts}
}

func (l *Local) Name() string { return "local" }

// Prepare checks that the Go toolchain can be executed.
func (l *Local) Prepare(ctx context.Context, target string) error {
	bin, err := exec.LookPath(l.opts.GoBinary)
	if err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeToolingError, "go toolchain not found"), "binary", l.opts.GoBinary)
	}
	cmd := exec.CommandContext(ctx, bin, "env", "GOVERSION")
	if target != "" {
		cmd.Dir = filepath.Dir(target)
	}
	out, err := cmd.Output()
	if err != nil {
		return errors.Wrap(err, errors.CodeToolingError, "go env failed")
	}
	slog.Debug("go toolchain ready", "binary", bin, "version", strings.TrimSpace(string(out)))
	return nil
}

// RunTests runs the tests of the package in projectPath. A non-empty filter
// is passed to -run. Test failures and build errors are results, not errors.
func (l *Local) RunTests(ctx context.Context, projectPath, filter string) (*model.TestRunResult, error) {
	start := time.Now()
	result, err := l.run(ctx, projectPath, filter)
	observeRun(l.Name(), start, result, err)
	return result, err
}

func (l *Local) RunFailures(ctx context.Context, projectPath string, previous *model.TestRunResult) (*model.TestRunResult, error) {
	return runFailures(ctx, l, projectPath, previous)
}

func (l *Local) run(ctx context.Context, projectPath, filter string) (*model.TestRunResult, error) {
	if l.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.Timeout)
		defer cancel()
	}

	args := []string{"test", "-json", "-count=1"}
	if filter != "" {
		args = append(args, "-run", filter)
	}
	args = append(args, ".")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, l.opts.GoBinary, args...)
	cmd.Dir = projectPath
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	slog.Debug("running tests", "dir", projectPath, "filter", filter)
	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, errors.AddContext(errors.Wrap(ctxErr, errors.CodeToolingError, "test run timed out"), errors.CtxPath, projectPath)
	}
	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return nil, errors.AddContext(errors.Wrap(runErr, errors.CodeToolingError, "start go test"), errors.CtxPath, projectPath)
	}

	if path, err := l.saveResults(projectPath, stdout.Bytes()); err != nil {
		slog.Warn("could not save test results", "error", err)
	} else if path != "" {
		slog.Debug("test results saved", "path", path)
	}

	result := ParseTestJSON(bytes.NewReader(stdout.Bytes()), stderr.String())
	result.Duration = time.Since(start)
	if runErr != nil && len(result.FailedTests) == 0 && len(result.BuildErrors) == 0 && len(result.Errors) == 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("go test exited with code %d", exitErr.ExitCode()))
	}
	return result, nil
}

// saveResults keeps the raw JSON stream under the results directory.
func (l *Local) saveResults(projectPath string, data []byte) (string, error) {
	if l.opts.ResultsDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(l.opts.ResultsDir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%s.json", filepath.Base(projectPath), time.Now().UTC().Format("20060102T150405.000000000"))
	path := filepath.Join(l.opts.ResultsDir, name)
	return path, os.WriteFile(path, data, 0o644)
}
