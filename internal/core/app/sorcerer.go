package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"sorcerer/internal/core/errors"
	"sorcerer/internal/core/model"
	"sorcerer/internal/core/ports"
	"sorcerer/internal/data/history"
	"sorcerer/internal/shared/observability"
	"sorcerer/internal/shared/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Stage string

const (
	StagePrepare  Stage = "prepare"
	StageAnalyze  Stage = "analyze"
	StageGenerate Stage = "generate"
	StageSave     Stage = "save"
	StageRun      Stage = "run"
	StageFix      Stage = "fix"
	StageEnhance  Stage = "enhance"
	StageVerify   Stage = "verify"
	StageDone     Stage = "done"
)

type Options struct {
	SearchDepth      int
	MaxFixAttempts   int
	SkipIfTestsExist bool
	Enhancements     []model.EnhancementKind
	TestsRoot        string
	// Provider is recorded with each run in the history.
	Provider string
}

// Dependencies are the collaborators of a Sorcerer. Listener and Recorder
// are optional.
type Dependencies struct {
	Finder    ports.DefinitionFinder
	Locator   ports.ProjectLocator
	Analyzer  ports.DefinitionAnalyzer
	Generator ports.Generator
	Fixer     ports.Fixer
	Enhancer  ports.Enhancer
	Runner    ports.TestRunner
	Listener  ports.ProgressListener
	Recorder  ports.RunRecorder
}

// Outcome is the result of one Run. Err holds the error that ended a
// failed run, if there was one.
type Outcome struct {
	Success     bool
	Stage       Stage
	FixAttempts int
	LastRun     *model.TestRunResult
	TestFile    string
	Err         error
}

// Sorcerer generates tests for one file, runs them, repairs them until they
// pass and then improves them.
type Sorcerer struct {
	deps Dependencies
	opts Options
}

func New(deps Dependencies, opts Options) (*Sorcerer, error) {
	switch {
	case deps.Finder == nil, deps.Locator == nil, deps.Analyzer == nil:
		return nil, errors.New(errors.CodeValidationError, "finder, locator and analyzer are required")
	case deps.Generator == nil, deps.Fixer == nil, deps.Enhancer == nil:
		return nil, errors.New(errors.CodeValidationError, "generator, fixer and enhancer are required")
	case deps.Runner == nil:
		return nil, errors.New(errors.CodeValidationError, "test runner is required")
	}
	if opts.MaxFixAttempts < 0 {
		opts.MaxFixAttempts = 0
	}
	return &Sorcerer{deps: deps, opts: opts}, nil
}

// run is the state of one invocation.
type run struct {
	target   model.Target
	analysis model.AnalysisResult
	gen      *model.UnitTestGenerationResult
	lastRun  *model.TestRunResult
	runError string
	hashes   map[string]bool
	repeated bool
	outcome  Outcome
}

// Run drives one file through generate, fix and enhance. It never returns
// an error; failures are reported in the Outcome and through the listener.
func (s *Sorcerer) Run(ctx context.Context, filePath string) Outcome {
	ctx, span := observability.Tracer.Start(ctx, "sorcerer.Run", trace.WithAttributes(attribute.String("file", filePath)))
	defer span.End()

	started := time.Now()
	r := &run{hashes: map[string]bool{}}
	err := s.drive(ctx, r, filePath)
	r.outcome.Err = err
	r.outcome.Success = err == nil
	r.outcome.LastRun = r.lastRun
	if err == nil {
		r.outcome.Stage = StageDone
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.progress(r.outcome.Stage, fmt.Sprintf("failed: %v", err))
	}

	result := "failure"
	if r.outcome.Success {
		result = "success"
	}
	observability.RunsTotal.WithLabelValues(result).Inc()
	s.record(ctx, r, filePath, started)
	if s.deps.Listener != nil {
		s.deps.Listener.Done(r.outcome.Success)
	}
	return r.outcome
}

func (s *Sorcerer) drive(ctx context.Context, r *run, filePath string) error {
	var skipped bool
	err := s.stage(ctx, r, StagePrepare, func(ctx context.Context) error {
		target, err := s.prepareTarget(ctx, filePath)
		if err != nil {
			return err
		}
		r.target = target
		r.outcome.TestFile = target.TestPath
		if err := s.deps.Runner.Prepare(ctx, target.SourcePath); err != nil {
			return errors.AddContext(err, errors.CtxStage, string(StagePrepare))
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = s.stage(ctx, r, StageAnalyze, func(ctx context.Context) error {
		results, err := s.deps.Finder.FindDefinitions(ctx, r.target.SourcePath, s.opts.SearchDepth)
		if err != nil {
			return err
		}
		analysis, err := s.deps.Analyzer.Analyze(ctx, results, r.target.SourcePath)
		if err != nil {
			return err
		}
		r.analysis = analysis
		s.progress(StageAnalyze, fmt.Sprintf("%d definitions, %d lines of context, worthiness %s",
			len(analysis.Definitions), analysis.TotalLoc, analysis.TestWorthiness))
		return nil
	})
	if err != nil {
		return err
	}

	if s.opts.SkipIfTestsExist {
		if existing, err := os.ReadFile(r.target.TestPath); err == nil {
			s.progress(StageEnhance, "tests exist, skipping generation")
			r.gen = &model.UnitTestGenerationResult{
				Analysis: r.analysis,
				Response: model.AIResponse{FileName: filepath.Base(r.target.TestPath), FileContent: string(existing)},
			}
			skipped = true
		}
	}

	if !skipped {
		if err := s.generate(ctx, r); err != nil {
			return err
		}
		if err := s.runTests(ctx, r, StageRun); err != nil {
			return err
		}
		if !r.lastRun.Success() {
			if err := s.fixLoop(ctx, r); err != nil {
				return err
			}
		}
	}
	return s.enhanceLoop(ctx, r)
}

func (s *Sorcerer) prepareTarget(ctx context.Context, filePath string) (model.Target, error) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return model.Target{}, errors.Wrap(err, errors.CodeValidationError, "resolve target path")
	}
	source, err := os.ReadFile(abs)
	if err != nil {
		return model.Target{}, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "read target file"), errors.CtxPath, abs)
	}
	project, err := s.deps.Locator.LocateProject(ctx, abs)
	if err != nil {
		return model.Target{}, err
	}

	testPath := OutputPath(project, abs, s.opts.TestsRoot)
	return model.Target{
		SourcePath:  abs,
		Source:      string(source),
		TestPath:    testPath,
		PackageName: TestPackageName(project, filepath.Dir(testPath)),
		PackageDir:  filepath.Dir(testPath),
		ProjectRoot: project.ModuleRoot,
	}, nil
}

func (s *Sorcerer) generate(ctx context.Context, r *run) error {
	err := s.stage(ctx, r, StageGenerate, func(ctx context.Context) error {
		s.progress(StageGenerate, "generating tests for "+filepath.Base(r.target.SourcePath))
		gen, err := s.deps.Generator.Run(ctx, r.target, r.analysis)
		if err != nil {
			return err
		}
		r.gen = gen
		return nil
	})
	if err != nil {
		return err
	}
	return s.save(ctx, r)
}

// save writes the latest generation. The write completes before any test
// run reads the file.
func (s *Sorcerer) save(ctx context.Context, r *run) error {
	return s.stage(ctx, r, StageSave, func(ctx context.Context) error {
		if err := util.WriteStringWithDirs(r.target.TestPath, r.gen.Response.FileContent, 0o644); err != nil {
			return errors.AddContext(errors.Wrap(err, errors.CodeToolingError, "write test file"), errors.CtxPath, r.target.TestPath)
		}
		r.hashes[util.ContentHash(r.gen.Response.FileContent)] = true
		s.progress(StageSave, "wrote "+r.target.TestPath)
		return nil
	})
}

// runTests runs the package tests. A runner error is not fatal: it leaves
// lastRun nil and is handed to the fixer as text.
func (s *Sorcerer) runTests(ctx context.Context, r *run, stage Stage) error {
	return s.stage(ctx, r, stage, func(ctx context.Context) error {
		result, err := s.deps.Runner.RunTests(ctx, r.target.PackageDir, "")
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			slog.Warn("test run failed", "runner", s.deps.Runner.Name(), "dir", r.target.PackageDir, "error", err)
			s.progress(stage, fmt.Sprintf("tests could not be run: %v", err))
			r.lastRun, r.runError = nil, err.Error()
			return nil
		}
		r.lastRun, r.runError = result, ""
		s.progress(stage, result.Summary())
		return nil
	})
}

// fixLoop calls the fixer up to MaxFixAttempts times, stopping at the first
// passing run.
func (s *Sorcerer) fixLoop(ctx context.Context, r *run) error {
	for attempt := 0; attempt < s.opts.MaxFixAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.outcome.FixAttempts++
		observability.FixAttemptsTotal.Inc()

		var fixed *model.UnitTestGenerationResult
		err := s.stage(ctx, r, StageFix, func(ctx context.Context) error {
			s.progress(StageFix, fmt.Sprintf("fix attempt %d of %d", attempt+1, s.opts.MaxFixAttempts))
			var err error
			fixed, err = s.deps.Fixer.Run(ctx, r.target, model.FixContext{
				Attempt:         attempt,
				LastRun:         r.lastRun,
				RunError:        r.runError,
				LastGeneration:  r.gen,
				ProjectRootPath: r.target.ProjectRoot,
				RepeatedFix:     r.repeated,
			})
			return err
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			slog.Warn("fix attempt failed", "attempt", attempt+1, "error", err)
			continue
		}

		r.repeated = r.hashes[util.ContentHash(fixed.Response.FileContent)]
		if r.repeated {
			observability.RepeatedFixesTotal.Inc()
			s.progress(StageFix, "the fix repeats an earlier version of the file")
		}
		r.gen = fixed
		if err := s.save(ctx, r); err != nil {
			return err
		}
		if err := s.runTests(ctx, r, StageRun); err != nil {
			return err
		}
		if r.lastRun.Success() {
			s.progress(StageFix, "tests pass")
			return nil
		}
	}

	r.outcome.Stage = StageFix
	err := errors.Newf(errors.CodeExhausted, "tests still failing after %d fix attempts", s.opts.MaxFixAttempts)
	if r.lastRun != nil {
		err = errors.AddContext(err, "last_run", r.lastRun.Summary())
	} else if r.runError != "" {
		err = errors.AddContext(err, "last_run", r.runError)
	}
	return err
}

// enhanceLoop applies the configured passes in order. Verify re-runs the
// tests and falls back to the fix loop when they fail.
func (s *Sorcerer) enhanceLoop(ctx context.Context, r *run) error {
	retries := max(1, s.opts.MaxFixAttempts)
	for _, kind := range s.opts.Enhancements {
		if kind == model.EnhanceVerify {
			if err := s.runTests(ctx, r, StageVerify); err != nil {
				return err
			}
			if !r.lastRun.Success() {
				if err := s.fixLoop(ctx, r); err != nil {
					return err
				}
			}
			continue
		}

		var lastErr error
		done := false
		for attempt := 0; attempt < retries; attempt++ {
			lastErr = s.stage(ctx, r, StageEnhance, func(ctx context.Context) error {
				s.progress(StageEnhance, fmt.Sprintf("%s (attempt %d of %d)", kind, attempt+1, retries))
				enhanced, err := s.deps.Enhancer.Run(ctx, r.target, kind, r.gen)
				if err != nil {
					return err
				}
				r.gen = enhanced
				return nil
			})
			if lastErr == nil {
				done = true
				break
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			slog.Warn("enhancement failed", "kind", kind, "attempt", attempt+1, "error", lastErr)
		}
		if !done {
			observability.EnhancementsTotal.WithLabelValues(string(kind), "failure").Inc()
			r.outcome.Stage = StageEnhance
			return errors.AddContext(errors.Wrap(lastErr, errors.CodeExhausted, fmt.Sprintf("enhancement %s failed after %d attempts", kind, retries)), "kind", string(kind))
		}
		observability.EnhancementsTotal.WithLabelValues(string(kind), "success").Inc()
		if err := s.save(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// stage runs fn as one traced and timed step, recording it as the current
// stage of the outcome.
func (s *Sorcerer) stage(ctx context.Context, r *run, stage Stage, fn func(context.Context) error) error {
	r.outcome.Stage = stage
	ctx, span := observability.Tracer.Start(ctx, "sorcerer."+string(stage))
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	observability.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Sorcerer) progress(stage Stage, message string) {
	slog.Debug(message, "stage", stage)
	if s.deps.Listener != nil {
		s.deps.Listener.Progress(string(stage), message)
	}
}

func (s *Sorcerer) record(ctx context.Context, r *run, filePath string, started time.Time) {
	if s.deps.Recorder == nil {
		return
	}
	entry := history.Run{
		Target:      filePath,
		StartedAt:   started,
		FinishedAt:  time.Now(),
		Success:     r.outcome.Success,
		Stage:       string(r.outcome.Stage),
		FixAttempts: r.outcome.FixAttempts,
		TestFile:    r.outcome.TestFile,
		Provider:    s.opts.Provider,
	}
	if r.target.SourcePath != "" {
		entry.Target = r.target.SourcePath
	}
	if r.lastRun != nil {
		entry.Passed = len(r.lastRun.PassedTests)
		entry.Failed = len(r.lastRun.FailedTests)
		entry.BuildErrors = len(r.lastRun.BuildErrors)
	}
	entry.TestWorthiness = string(r.analysis.TestWorthiness)
	entry.TotalLoc = r.analysis.TotalLoc
	// The run's own context may already be cancelled.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := s.deps.Recorder.RecordRun(recordCtx, entry); err != nil {
		slog.Warn("could not record run", "error", err)
	}
}
