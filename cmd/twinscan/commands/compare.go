package commands

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/RishiKendai/twinscan/internal/export"
	"github.com/RishiKendai/twinscan/internal/plagiarism"
	"github.com/spf13/cobra"
)

var ErrNoTarget = errors.New("target file is required (use --target)")

type compareOptions struct {
	corpusOptions
	target string
	output string
}

// NewCompareCommand creates the one-to-many subcommand.
func NewCompareCommand() *cobra.Command {
	opts := &compareOptions{}

	cmd := &cobra.Command{
		Use:   "compare <dir> --target <file>",
		Short: "Rank every file in a directory against one target",
		Long: `Compare the target file against every other file under <dir> and list
the results from most to least similar.

The target is named the way it appears in the corpus: its base name, or its
path relative to <dir> when several files share that base name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, args[0], opts)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVarP(&opts.target, "target", "t", "", "file to compare against the rest")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write reports for suspect pairs under this directory")

	return cmd
}

func runCompare(cmd *cobra.Command, dir string, opts *compareOptions) error {
	if opts.target == "" {
		return ErrNoTarget
	}
	ctx := cmd.Context()
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	cfg, err := opts.resolve(cmd)
	if err != nil {
		return err
	}
	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}

	corpusID, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	files, err := eng.loadDir(ctx, dir, corpusID, errOut)
	if err != nil {
		return err
	}

	var ranked []plagiarism.SimilarityEntry
	err = eng.run(ctx, max(len(files)-1, 0), opts.quiet, errOut, func(o *plagiarism.Orchestrator) error {
		var runErr error
		ranked, _, runErr = o.RunOneToMany(ctx, files, opts.target)
		return runErr
	})
	if err != nil {
		return fmt.Errorf("comparison failed: %w", err)
	}

	renderRanking(out, opts.target, ranked, cfg.ThresholdPercent)

	suspects, err := plagiarism.ClassifyEntries(ranked, cfg.ThresholdPercent)
	if err != nil {
		return err
	}

	if opts.output != "" {
		reportsDir := filepath.Join(opts.output, "reports")
		summary, err := export.ExportReports(ctx, plagiarism.SuspectExportPairs(suspects, files), eng.reports, reportsDir, cfg.Workers)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Reports: %s (%d written, %d failed)\n", reportsDir, len(summary.Written), summary.Failed)
	}

	store, err := openHistory(cfg.HistoryDBPath)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		m := plagiarism.NewMatrix(fileNames(files))
		for _, e := range ranked {
			m.Set(e.I, e.J, e.Score)
		}
		records := plagiarism.Records(m, files, corpusID, plagiarism.NewRunID(), cfg.ThresholdPercent)
		if err := store.SaveRecords(ctx, records); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "\n%d file(s) compared with %s, %d suspect(s) at %.2f%%\n",
		len(ranked), opts.target, len(suspects), cfg.ThresholdPercent)
	return nil
}
