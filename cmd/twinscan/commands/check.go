package commands

import (
	"fmt"
	"path/filepath"

	"github.com/RishiKendai/twinscan/internal/export"
	"github.com/RishiKendai/twinscan/internal/models"
	"github.com/RishiKendai/twinscan/internal/plagiarism"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type checkOptions struct {
	corpusOptions
	output     string
	allReports bool
}

// NewCheckCommand creates the group self-check subcommand.
func NewCheckCommand() *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check <dir>",
		Short: "Compare every pair of files in a directory",
		Long: `Compare every pair of source files found under <dir>.

Writes similarity_matrix.csv and one HTML diff report per suspect pair,
then prints the suspect pairs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args[0], opts)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output directory (default: <dir>)")
	cmd.Flags().BoolVar(&opts.allReports, "all-reports", false, "write a report for every pair, not only suspects")

	return cmd
}

func runCheck(cmd *cobra.Command, dir string, opts *checkOptions) error {
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
	output := opts.output
	if output == "" {
		output = dir
	}

	files, err := eng.loadDir(ctx, dir, corpusID, errOut)
	if err != nil {
		return err
	}
	if len(files) < 2 {
		fmt.Fprintln(errOut, color.YellowString("Found %d source file(s); nothing to compare", len(files)))
	}

	var m *plagiarism.SimilarityMatrix
	var stats plagiarism.BatchStats
	err = eng.run(ctx, plagiarism.PairCount(len(files)), opts.quiet, errOut, func(o *plagiarism.Orchestrator) error {
		var runErr error
		m, stats, runErr = o.RunGroupSelfCheck(ctx, files)
		return runErr
	})
	if err != nil {
		return fmt.Errorf("comparison failed: %w", err)
	}

	matrixPath := filepath.Join(output, matrixFileName)
	if err := export.WriteMatrixFile(matrixPath, m); err != nil {
		return err
	}

	suspects, err := plagiarism.Classify(m, cfg.ThresholdPercent)
	if err != nil {
		return err
	}

	pairs := plagiarism.SuspectExportPairs(suspects, files)
	if opts.allReports {
		pairs = allPairs(m, files)
	}
	reportsDir := filepath.Join(output, "reports")
	summary, err := export.ExportReports(ctx, pairs, eng.reports, reportsDir, cfg.Workers)
	if err != nil {
		return err
	}

	store, err := openHistory(cfg.HistoryDBPath)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		records := plagiarism.Records(m, files, corpusID, plagiarism.NewRunID(), cfg.ThresholdPercent)
		if err := store.SaveRecords(ctx, records); err != nil {
			return err
		}
	}

	renderSuspects(out, suspects, cfg.ThresholdPercent)
	fmt.Fprintf(out, "\n%d files (%s), %d pairs, %d suspect(s) at %.2f%%\n",
		len(files), totalSize(files), stats.Pairs, len(suspects), cfg.ThresholdPercent)
	fmt.Fprintf(out, "Matrix:  %s\n", matrixPath)
	if len(summary.Written) > 0 {
		fmt.Fprintf(out, "Reports: %s (%d written)\n", reportsDir, len(summary.Written))
	}
	if summary.Failed > 0 {
		fmt.Fprintln(out, color.YellowString("%d report(s) could not be written", summary.Failed))
	}
	if stats.Failed > 0 {
		fmt.Fprintln(out, color.YellowString("%d pair(s) failed and were scored 0", stats.Failed))
	}
	return nil
}

func allPairs(m *plagiarism.SimilarityMatrix, files []*models.SourceFile) []export.Pair {
	entries := m.Entries()
	pairs := make([]export.Pair, 0, len(entries))
	for _, e := range entries {
		pairs = append(pairs, export.Pair{A: files[e.I], B: files[e.J], Score: e.Score})
	}
	return pairs
}
