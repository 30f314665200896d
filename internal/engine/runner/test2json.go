package runner

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"sorcerer/internal/core/model"
)

// testEvent is one line of `go test -json` output.
type testEvent struct {
	Action     string
	Package    string
	ImportPath string
	Test       string
	Output     string
}

type testOutput struct {
	lines []string
}

// ParseTestJSON turns a `go test -json` stream plus the command's stderr
// into a TestRunResult.
func ParseTestJSON(stdout io.Reader, stderr string) *model.TestRunResult {
	result := &model.TestRunResult{}
	outputs := map[string]*testOutput{}
	var packageLines, plainLines []string
	var failedPackages []string

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		var ev testEvent
		if !strings.HasPrefix(line, "{") || json.Unmarshal([]byte(line), &ev) != nil {
			plainLines = append(plainLines, line)
			continue
		}

		switch ev.Action {
		case "build-output":
			addBuildLine(result, ev.Output)
		case "output":
			if ev.Test == "" {
				packageLines = append(packageLines, ev.Output)
				continue
			}
			o, ok := outputs[ev.Test]
			if !ok {
				o = &testOutput{}
				outputs[ev.Test] = o
			}
			o.lines = append(o.lines, ev.Output)
		case "pass":
			if ev.Test != "" {
				result.PassedTests = append(result.PassedTests, model.TestResult{FullName: ev.Test, Result: model.OutcomePassed})
			}
		case "fail":
			if ev.Test == "" {
				failedPackages = append(failedPackages, ev.Package)
				continue
			}
			msg, trace := splitTestOutput(outputs[ev.Test])
			result.FailedTests = append(result.FailedTests, model.TestResult{
				FullName:   ev.Test,
				Result:     model.OutcomeFailed,
				Message:    msg,
				StackTrace: trace,
			})
		}
	}

	// Older toolchains print compiler errors on stderr instead of
	// build-output events.
	for _, line := range append(plainLines, strings.Split(stderr, "\n")...) {
		addBuildLine(result, line)
	}

	// A package can fail without a failing test, e.g. when TestMain exits
	// non-zero or init panics. Record it as a failed test named after the
	// package so the run is not reported as a success.
	if len(failedPackages) > 0 && len(result.FailedTests) == 0 && len(result.BuildErrors) == 0 {
		var msgs []string
		for _, line := range append(packageLines, plainLines...) {
			if msg := cleanToolLine(line); msg != "" {
				msgs = append(msgs, msg)
			}
		}
		result.Errors = append(result.Errors, msgs...)
		for _, pkg := range failedPackages {
			result.FailedTests = append(result.FailedTests, model.TestResult{
				FullName: pkg,
				Result:   model.OutcomeFailed,
				Message:  "package failed outside any test: " + strings.Join(msgs, "\n"),
			})
		}
	}
	for _, line := range strings.Split(stderr, "\n") {
		if msg := cleanToolLine(line); msg != "" && !isCompilerLine(msg) {
			result.Errors = append(result.Errors, msg)
		}
	}
	return result
}

func addBuildLine(result *model.TestRunResult, line string) {
	line = strings.TrimRight(line, "\r\n")
	if !isCompilerLine(line) {
		return
	}
	line = strings.TrimSpace(line)
	for _, existing := range result.BuildErrors {
		if existing == line {
			return
		}
	}
	result.BuildErrors = append(result.BuildErrors, line)
}

// cleanToolLine drops the summary lines go test prints for every package.
func cleanToolLine(line string) string {
	line = strings.TrimSpace(line)
	switch {
	case line == "", line == "FAIL", line == "PASS", strings.HasPrefix(line, "#"):
		return ""
	case strings.HasPrefix(line, "ok "), strings.HasPrefix(line, "FAIL\t"), strings.HasPrefix(line, "exit status"):
		return ""
	case strings.HasPrefix(line, "=== "), strings.HasPrefix(line, "--- "):
		return ""
	}
	return line
}

// splitTestOutput separates a failed test's log from its panic trace.
func splitTestOutput(o *testOutput) (message, trace string) {
	if o == nil {
		return "", ""
	}
	var msg, stack []string
	inPanic := false
	for _, raw := range o.lines {
		line := strings.TrimRight(raw, "\n")
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "=== ") || strings.HasPrefix(trimmed, "--- ") {
			continue
		}
		if strings.HasPrefix(trimmed, "panic:") {
			inPanic = true
		}
		if inPanic {
			stack = append(stack, line)
		} else if trimmed != "" {
			msg = append(msg, line)
		}
	}
	return strings.Join(msg, "\n"), strings.Join(stack, "\n")
}
