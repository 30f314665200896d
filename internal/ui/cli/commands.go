package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"sorcerer/internal/core/config"
	"sorcerer/internal/core/model"
	"sorcerer/internal/data/history"
	"sorcerer/internal/engine/analyzer"
	"sorcerer/internal/engine/crawler"

	"github.com/spf13/cobra"
)

// runCrawl prints what the analyzer would hand to the model for file.
// It never contacts a model.
func runCrawl(cmd *cobra.Command, opts cliOptions, file string) int {
	out, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitFailure
	}
	if cmd.Flags().Changed("depth") {
		cfg.Target.SearchDepth = opts.depth
	}
	defer configureLogging(false, opts.verbose)()

	path, err := filepath.Abs(file)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitFailure
	}

	c := crawler.New(crawlerOptions(cfg))
	defer c.Close()

	ctx := cmd.Context()
	results, err := c.FindDefinitions(ctx, path, cfg.Target.SearchDepth)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitFailure
	}
	analysis, err := analyzer.New(c, analyzerRules(cfg.Supplements)).Analyze(ctx, results, path)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitFailure
	}
	printAnalysis(out, analysis, opts.showCode)
	return exitOK
}

func printAnalysis(out io.Writer, a model.AnalysisResult, showCode bool) {
	fmt.Fprintf(out, "%s\n", a.File)
	fmt.Fprintf(out, "  definitions: %d (%d supplements)\n", len(a.Definitions), a.Supplements)
	fmt.Fprintf(out, "  context LOC: %d, total LOC: %d, worthiness: %s\n\n", a.ContextLoc, a.TotalLoc, a.TestWorthiness)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEPTH\tSYMBOL\tLINES\tLOCATION")
	for _, d := range a.Definitions {
		loc := fmt.Sprintf("%s:%d", d.File, d.Line)
		if d.InTarget {
			loc += " (target)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", d.Depth, d.FullName(), d.LineCount(), loc)
		if d.Supplement != nil {
			s := d.Supplement.Definition
			fmt.Fprintf(tw, "\t+ %s\t%d\t%s:%d\n", s.FullName(), s.LineCount(), s.File, s.Line)
		}
	}
	_ = tw.Flush()

	if !showCode {
		return
	}
	for _, d := range a.Definitions {
		fmt.Fprintf(out, "\n// %s\n%s\n", d.FullName(), d.Code)
	}
}

func runHistory(cmd *cobra.Command, opts cliOptions, target string) int {
	out, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitFailure
	}
	defer configureLogging(false, opts.verbose)()

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitFailure
	}
	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitFailure
	}
	if _, err := os.Stat(paths.DBPath); os.IsNotExist(err) {
		fmt.Fprintln(out, "no runs recorded yet")
		return exitOK
	}

	store, err := history.Open(paths.DBPath, cfg.DB.BusyTimeout)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitFailure
	}
	defer store.Close()

	if target != "" {
		if abs, err := filepath.Abs(target); err == nil {
			target = abs
		}
	}
	runs, err := store.RecentRuns(cmd.Context(), target, opts.historyLimit)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitFailure
	}
	printHistory(out, runs)
	return exitOK
}

func printHistory(out io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded yet")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tRESULT\tSTAGE\tFIXES\tTESTS\tDURATION\tTARGET")
	for _, r := range runs {
		result := "fail"
		if r.Success {
			result = "pass"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d/%d\t%s\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), result, r.Stage, r.FixAttempts,
			r.Passed, r.Passed+r.Failed, r.Duration().Round(time.Millisecond), r.Target)
	}
	_ = tw.Flush()

	s := history.Summarize(runs)
	fmt.Fprintf(out, "\n%d runs, %.0f%% passed, %.1f fix attempts on average, %s average duration\n",
		s.Runs, s.SuccessRate, s.AvgFixAttempts, s.AvgDuration.Round(time.Millisecond))
}
