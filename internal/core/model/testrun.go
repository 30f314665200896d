package model

import (
	"fmt"
	"time"
)

type TestOutcome string

const (
	OutcomePassed  TestOutcome = "Passed"
	OutcomeFailed  TestOutcome = "Failed"
	OutcomeSkipped TestOutcome = "Skipped"
)

type TestResult struct {
	FullName   string
	Result     TestOutcome
	Message    string
	StackTrace string
}

// TestRunResult is the outcome of one test execution.
type TestRunResult struct {
	BuildErrors []string
	Errors      []string
	PassedTests []TestResult
	FailedTests []TestResult
	Duration    time.Duration
}

// Success holds when at least one test passed and nothing failed or broke the build.
func (r *TestRunResult) Success() bool {
	if r == nil {
		return false
	}
	return len(r.PassedTests) > 0 && len(r.FailedTests) == 0 && len(r.BuildErrors) == 0
}

func (r *TestRunResult) FailedNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.FailedTests))
	for _, t := range r.FailedTests {
		names = append(names, t.FullName)
	}
	return names
}

func (r *TestRunResult) Summary() string {
	if r == nil {
		return "no test results"
	}
	return fmt.Sprintf("%d passed, %d failed, %d build errors, %d errors",
		len(r.PassedTests), len(r.FailedTests), len(r.BuildErrors), len(r.Errors))
}
