// Package runner executes Go tests locally or through a remote automation
// endpoint and reports the results as model.TestRunResult values.
package runner

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"sorcerer/internal/core/model"
	"sorcerer/internal/core/ports"
	"sorcerer/internal/shared/observability"
)

var compilerLine = regexp.MustCompile(`^\s*\S+\.go:\d+:\d+: `)

// Filter builds an anchored -run pattern matching exactly the named tests.
// Subtests are narrowed to their top-level test, since -run matches each
// slash-separated level on its own.
func Filter(names []string) string {
	seen := map[string]bool{}
	var top []string
	for _, n := range names {
		if i := strings.IndexByte(n, '/'); i >= 0 {
			n = n[:i]
		}
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		top = append(top, regexp.QuoteMeta(n))
	}
	if len(top) == 0 {
		return ""
	}
	sort.Strings(top)
	return "^(" + strings.Join(top, "|") + ")$"
}

// runFailures re-runs exactly the tests that failed in previous, or the
// whole package when there is nothing to narrow to.
func runFailures(ctx context.Context, r ports.TestRunner, projectPath string, previous *model.TestRunResult) (*model.TestRunResult, error) {
	return r.RunTests(ctx, projectPath, Filter(previous.FailedNames()))
}

func observeRun(runner string, start time.Time, result *model.TestRunResult, err error) {
	label := "error"
	switch {
	case err != nil:
	case result.Success():
		label = "success"
	case len(result.BuildErrors) > 0:
		label = "build_error"
	default:
		label = "failure"
	}
	observability.TestRunsTotal.WithLabelValues(runner, label).Inc()
	observability.TestRunDuration.WithLabelValues(runner).Observe(time.Since(start).Seconds())
}

func isCompilerLine(line string) bool {
	return compilerLine.MatchString(line)
}
