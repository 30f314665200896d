// Package cli is the sorcerer command line: flag handling, logging setup,
// component wiring and progress rendering.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

const versionString = "0.3.0"

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type cliOptions struct {
	configPath   string
	depth        int
	maxFix       int
	skipExisting bool
	watch        bool
	verbose      bool
	noSpinner    bool
	version      bool

	showCode     bool
	historyLimit int
}

// Run executes the command line and returns the process exit code.
func Run(args []string) int {
	return run(context.Background(), args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts cliOptions
	code := exitOK
	root := newRootCmd(&opts, &code)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitUsage
	}
	return code
}

// newRootCmd builds the command tree. Commands report their exit code
// through code; errors returned to cobra are usage errors.
func newRootCmd(opts *cliOptions, code *int) *cobra.Command {
	root := &cobra.Command{
		Use:   "sorcerer [file]",
		Short: "Generate, run, repair and improve unit tests for a Go source file",
		Long: `sorcerer crawls the types a Go file depends on, asks a language model for
a test file, runs it with the Go toolchain and feeds failures back until the
tests pass. Passing tests then go through the configured enhancement passes.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.version {
				fmt.Fprintf(cmd.OutOrStdout(), "sorcerer v%s\n", versionString)
				return nil
			}
			*code = runGenerate(cmd, *opts, args)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Path to config file (default: sorcerer.toml in the working directory or a parent)")
	pf.BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")

	f := root.Flags()
	f.IntVar(&opts.depth, "depth", 0, "Type crawl depth (overrides target.search_depth)")
	f.IntVar(&opts.maxFix, "max-fix", 0, "Maximum fix attempts (overrides fix.max_attempts)")
	f.BoolVar(&opts.skipExisting, "skip-existing", false, "Enhance an existing test file instead of generating a new one")
	f.BoolVar(&opts.watch, "watch", false, "Re-run whenever the target file changes")
	f.BoolVar(&opts.noSpinner, "no-spinner", false, "Print progress lines instead of a spinner")
	f.BoolVar(&opts.version, "version", false, "Print version and exit")

	root.AddCommand(newCrawlCmd(opts, code), newHistoryCmd(opts, code))
	return root
}

func newCrawlCmd(opts *cliOptions, code *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <file>",
		Short: "Print the type context that would be sent to the model for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			*code = runCrawl(cmd, *opts, args[0])
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.depth, "depth", 0, "Type crawl depth (overrides target.search_depth)")
	cmd.Flags().BoolVar(&opts.showCode, "code", false, "Print the code of every definition")
	return cmd
}

func newHistoryCmd(opts *cliOptions, code *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [file]",
		Short: "List recent runs, optionally for one target file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			*code = runHistory(cmd, *opts, target)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.historyLimit, "limit", 20, "Maximum number of runs to list")
	return cmd
}
