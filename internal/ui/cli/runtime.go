package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"sorcerer/internal/core/app"
	"sorcerer/internal/core/config"
	"sorcerer/internal/core/errors"
	"sorcerer/internal/core/model"
	"sorcerer/internal/core/ports"
	"sorcerer/internal/core/watcher"
	"sorcerer/internal/data/history"
	"sorcerer/internal/engine/analyzer"
	"sorcerer/internal/engine/crawler"
	"sorcerer/internal/engine/prompt"
	"sorcerer/internal/engine/redact"
	"sorcerer/internal/engine/runner"
	"sorcerer/internal/engine/testgen"
	"sorcerer/internal/engine/workspace"
	"sorcerer/internal/llm"
	"sorcerer/internal/shared/observability"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// runtime holds the wired components for one CLI invocation.
type runtime struct {
	cfg     *config.Config
	paths   config.ResolvedPaths
	health  *app.HealthService
	crawler *crawler.Crawler
	history *history.Store
	deps    app.Dependencies
	opts    app.Options
	closers []func() error
}

func runGenerate(cmd *cobra.Command, opts cliOptions, args []string) int {
	stderr := cmd.ErrOrStderr()
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitFailure
	}
	applyOverrides(cmd, cfg, opts)
	if len(args) == 1 {
		cfg.Target.File = args[0]
	}
	if cfg.Target.File == "" {
		fmt.Fprintln(stderr, "error: no target file; pass one as an argument or set target.file")
		return exitUsage
	}

	useSpinner := cfg.UI.Spinner && !opts.noSpinner && !opts.watch && isatty.IsTerminal(os.Stdout.Fd())
	cleanupLogs := configureLogging(useSpinner, opts.verbose)
	defer cleanupLogs()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitFailure
	}
	defer rt.Close()

	stopObs := rt.startObservability(ctx)
	defer stopObs()

	target, err := filepath.Abs(cfg.Target.File)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitFailure
	}

	if opts.watch {
		if err := rt.watch(ctx, target, cmd); err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return exitFailure
		}
		return exitOK
	}

	outcome := rt.runOnce(ctx, target, newListener(cmd.OutOrStdout(), cfg.UI, useSpinner))
	printOutcome(cmd.OutOrStdout(), cfg.UI.Color, outcome)
	if !outcome.Success {
		return exitFailure
	}
	return exitOK
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if found, ok := config.FindConfigFile(cwd); ok {
		slog.Debug("using config file", "path", found)
		return config.Load(found)
	}
	return config.LoadOrDefault("")
}

// applyOverrides copies flags the user actually set onto cfg.
func applyOverrides(cmd *cobra.Command, cfg *config.Config, opts cliOptions) {
	flags := cmd.Flags()
	if flags.Changed("depth") {
		cfg.Target.SearchDepth = opts.depth
	}
	if flags.Changed("max-fix") {
		cfg.Fix.MaxAttempts = opts.maxFix
	}
	if flags.Changed("skip-existing") {
		cfg.Target.SkipIfTestsExist = opts.skipExisting
	}
}

func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, paths: paths, health: app.NewHealthService()}

	rt.crawler = crawler.New(crawlerOptions(cfg))
	rt.closers = append(rt.closers, rt.crawler.Close)
	rt.health.Set("crawler", "ready", true)

	if cfg.DB.Enabled {
		store, err := history.Open(paths.DBPath, cfg.DB.BusyTimeout)
		switch {
		case history.IsCorruptError(err):
			slog.Warn("run history disabled: database is corrupt; remove it to start over", "path", paths.DBPath, "error", err)
			rt.health.Set("history", "corrupt", false)
		case err != nil:
			slog.Warn("run history disabled", "path", paths.DBPath, "error", err)
			rt.health.Set("history", "unavailable", false)
		default:
			slog.Debug("run history enabled", "path", store.Path())
			rt.history = store
			rt.closers = append(rt.closers, store.Close)
			rt.health.Set("history", "ready", true)
		}
	}

	chat, err := newTransport(ctx, cfg, paths, rt.history)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.health.Set("llm", chat.Provider(), true)

	testRunner, err := newRunner(cfg, paths)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if closer, ok := testRunner.(interface{ Close() error }); ok {
		rt.closers = append(rt.closers, closer.Close)
	}
	rt.health.Set("runner", testRunner.Name(), true)

	genOpts := testgen.Options{MaxJSONRetries: cfg.Fix.MaxJSONRetries, ContextLines: cfg.Fix.ContextLines}
	if cfg.Redact.Enabled {
		redactor, err := newRedactor(cfg.Redact)
		if err != nil {
			rt.Close()
			return nil, err
		}
		genOpts.Redactor = redactor
	}
	rt.deps = app.Dependencies{
		Finder:    rt.crawler,
		Locator:   rt.crawler,
		Analyzer:  analyzer.New(rt.crawler, analyzerRules(cfg.Supplements)),
		Generator: testgen.NewGenerator(chat, genOpts),
		Fixer:     testgen.NewFixer(chat, genOpts),
		Enhancer:  testgen.NewEnhancer(chat, genOpts),
		Runner:    testRunner,
	}
	if rt.history != nil {
		rt.deps.Recorder = rt.history
	}

	rt.opts = app.Options{
		SearchDepth:      cfg.Target.SearchDepth,
		MaxFixAttempts:   cfg.Fix.MaxAttempts,
		SkipIfTestsExist: cfg.Target.SkipIfTestsExist,
		Enhancements:     enhancementSequence(cfg.Enhance.Sequence),
		TestsRoot:        paths.TestsRoot,
		Provider:         chat.Provider(),
	}
	return rt, nil
}

func newRedactor(cfg config.Redact) (*redact.Redactor, error) {
	patterns := make([]redact.Pattern, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		patterns = append(patterns, redact.Pattern{Name: p.Name, Regex: p.Regex})
	}
	return redact.New(redact.Options{
		Patterns:         patterns,
		MinTokenLength:   cfg.MinTokenLength,
		EntropyThreshold: cfg.EntropyThreshold,
	})
}

func crawlerOptions(cfg *config.Config) crawler.Options {
	return crawler.Options{
		ExcludedNamespaces: cfg.Crawler.ExcludedNamespaces,
		PreferredProjects:  cfg.Crawler.PreferredProjects,
		CacheSize:          cfg.Crawler.CacheSize,
		Workspace: workspace.Options{
			Exclude:      cfg.Crawler.Exclude,
			ParseWorkers: cfg.Crawler.ParseWorkers,
		},
	}
}

func analyzerRules(supplements []config.Supplement) []analyzer.Rule {
	rules := make([]analyzer.Rule, 0, len(supplements))
	for _, s := range supplements {
		rules = append(rules, analyzer.Rule{Symbol: s.Symbol, Type: s.Type, Reason: s.Reason})
	}
	return rules
}

// enhancementSequence keeps the known kinds in order. The config validator
// rejects unknown names, so dropping here only guards programmatic configs.
func enhancementSequence(names []string) []model.EnhancementKind {
	out := make([]model.EnhancementKind, 0, len(names))
	for _, name := range names {
		kind, ok := model.ParseEnhancementKind(name)
		if !ok {
			slog.Warn("ignoring unknown enhancement", "name", name)
			continue
		}
		out = append(out, kind)
	}
	return out
}

func newTransport(ctx context.Context, cfg *config.Config, paths config.ResolvedPaths, store *history.Store) (llm.Transport, error) {
	deps := llm.ToolDeps{Root: paths.ProjectRoot}
	if store != nil {
		deps.History = store
	}
	registry := llm.NewFunctionRegistry(llm.BuiltinTools(cfg.LLM.Tools, deps)...)

	system := cfg.LLM.SystemPrompt
	if system == "" {
		system = prompt.SystemPrompt()
	}
	return llm.New(ctx, llm.Options{
		Provider:          cfg.LLM.Provider,
		Model:             cfg.LLM.Model,
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey(),
		Timeout:           cfg.LLM.Timeout,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Burst:             cfg.LLM.Burst,
		MaxToolRounds:     cfg.LLM.MaxToolRounds,
		SystemPrompt:      system,
	}, registry)
}

func newRunner(cfg *config.Config, paths config.ResolvedPaths) (ports.TestRunner, error) {
	switch cfg.Runner.Kind {
	case "local", "":
		return runner.NewLocal(runner.LocalOptions{
			GoBinary:   cfg.Runner.GoBinary,
			Timeout:    cfg.Runner.Timeout,
			ResultsDir: filepath.Join(paths.StateDir, "results"),
		}), nil
	case "remote":
		return runner.NewRemote(runner.RemoteOptions{
			BaseURL:       cfg.Runner.Remote.BaseURL,
			LaunchCommand: cfg.Runner.Remote.LaunchCommand,
			PollInterval:  cfg.Runner.Remote.PollInterval,
			ReadyTimeout:  cfg.Runner.Remote.ReadyTimeout,
			Timeout:       cfg.Runner.Timeout,
		}), nil
	default:
		return nil, errors.Newf(errors.CodeValidationError, "unknown runner kind %q", cfg.Runner.Kind)
	}
}

// runOnce builds a fresh orchestrator around listener and runs it.
func (rt *runtime) runOnce(ctx context.Context, target string, listener ports.ProgressListener) app.Outcome {
	deps := rt.deps
	deps.Listener = listener
	s, err := app.New(deps, rt.opts)
	if err != nil {
		listener.Done(false)
		return app.Outcome{Stage: app.StagePrepare, Err: err}
	}
	outcome := s.Run(ctx, target)
	rt.health.Observe(outcome)
	return outcome
}

// watch runs once, then again after every saved change to target, until
// ctx is cancelled.
func (rt *runtime) watch(ctx context.Context, target string, cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	runs := make(chan struct{}, 1)
	runs <- struct{}{}

	w, err := watcher.NewWatcher(rt.cfg.Watch.Debounce, watcher.DefaultIgnore, func(paths []string) {
		for _, p := range paths {
			rt.crawler.Invalidate(p)
		}
		select {
		case runs <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Watch([]string{target}); err != nil {
		return err
	}

	fmt.Fprintf(out, "watching %s (ctrl+c to stop)\n", target)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-runs:
			outcome := rt.runOnce(ctx, target, newListener(out, rt.cfg.UI, false))
			printOutcome(out, rt.cfg.UI.Color, outcome)
		}
	}
}

func (rt *runtime) startObservability(ctx context.Context) func() {
	obs := rt.cfg.Observability
	var stops []func()

	if obs.EnableTracing && obs.OTLPEndpoint != "" {
		shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
			ServiceName:    obs.ServiceName,
			ServiceVersion: versionString,
			OTLPEndpoint:   obs.OTLPEndpoint,
			Insecure:       true,
		})
		if err != nil {
			slog.Warn("tracing disabled", "error", err)
		} else {
			stops = append(stops, func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(sctx); err != nil {
					slog.Warn("tracing shutdown failed", "error", err)
				}
			})
		}
	}

	if obs.Enabled {
		server := NewObservabilityServer(obs.Address, rt.health)
		if err := server.Start(ctx); err != nil {
			slog.Warn("observability server failed to start", "error", err)
		} else {
			stops = append(stops, func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = server.Stop(sctx)
			})
		}
	}

	return func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	rt.closers = nil
}

func configureLogging(toFile, verbose bool) func() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	output := os.Stderr
	closeFn := func() {}
	if toFile {
		logPath := resolveLogPath()
		if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to create log dir for %s: %v\n", logPath, err)
		} else if fi, err := os.Lstat(logPath); err == nil && (fi.Mode()&os.ModeSymlink) != 0 {
			fmt.Fprintf(os.Stderr, "warning: refusing to write logs to symlink path %s\n", logPath)
		} else {
			f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
			if err == nil {
				output = f
				closeFn = func() { _ = f.Close() }
			} else {
				fmt.Fprintf(os.Stderr, "warning: failed to open log file %s: %v\n", logPath, err)
			}
		}
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: logLevel})))
	return closeFn
}

func resolveLogPath() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "sorcerer", "sorcerer.log")
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".local", "state", "sorcerer", "sorcerer.log")
	}
	return "sorcerer.log"
}
