// Package main provides the entry point for the twinscan CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RishiKendai/twinscan/cmd/twinscan/commands"
	"github.com/RishiKendai/twinscan/internal/logger"
)

// Set at build time with -ldflags "-X main.version=..."
var (
	version = "dev"
	commit  = "none"
)

var (
	logLevel string
	verbose  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "twinscan",
		Short: "twinscan - source code near-duplicate detector",
		Long: `twinscan compares source files pairwise after stripping comments and
whitespace, flags pairs above a similarity threshold and writes
side-by-side diff reports for them.

Commands:
  check     compare every pair in a directory
  compare   rank a directory against one file
  report    diff two files
  history   list stored results`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			level := logLevel
			if verbose {
				level = "debug"
			}
			logger.Init(level, "console")
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(commands.NewCheckCommand())
	rootCmd.AddCommand(commands.NewCompareCommand())
	rootCmd.AddCommand(commands.NewReportCommand())
	rootCmd.AddCommand(commands.NewHistoryCommand())
	rootCmd.AddCommand(versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "twinscan %s (commit: %s)\n", version, commit)
		},
	}
}
