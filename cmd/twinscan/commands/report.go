package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RishiKendai/twinscan/internal/export"
	"github.com/RishiKendai/twinscan/internal/models"
	"github.com/RishiKendai/twinscan/internal/plagiarism"
	"github.com/spf13/cobra"
)

type reportOptions struct {
	corpusOptions
	output string
}

// NewReportCommand creates the single-pair report subcommand.
func NewReportCommand() *cobra.Command {
	opts := &reportOptions{}

	cmd := &cobra.Command{
		Use:   "report <fileA> <fileB>",
		Short: "Write the side-by-side diff report of two files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, args[0], args[1], opts)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVarP(&opts.output, "output", "o", "diff_output.html", "report file to write")

	return cmd
}

func runReport(cmd *cobra.Command, pathA, pathB string, opts *reportOptions) error {
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

	files, err := eng.loadFiles(ctx, []string{pathA, pathB}, errOut)
	if err != nil {
		return err
	}
	a, b := byPath(files, pathA), byPath(files, pathB)
	if a == nil || b == nil {
		return fmt.Errorf("failed to load %s and %s", pathA, pathB)
	}

	score, err := eng.comparer.Compare(ctx, a, b)
	if err != nil {
		return err
	}
	body, err := eng.reports.BuildReport(ctx, a, b)
	if errors.Is(err, plagiarism.ErrEmptySource) {
		return fmt.Errorf("no report for %s and %s: %w", a.Name, b.Name, err)
	}
	if err != nil {
		return err
	}

	if dir := filepath.Dir(opts.output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(opts.output, body, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	fmt.Fprintf(out, "%s vs %s: %s (%s)\n", a.Name, b.Name, export.FormatPercent(score),
		labelText(plagiarism.Label(score, cfg.ThresholdPercent)))
	fmt.Fprintf(out, "Report: %s\n", opts.output)
	return nil
}

func byPath(files []*models.SourceFile, path string) *models.SourceFile {
	for _, f := range files {
		if f.Path == path {
			return f
		}
	}
	return nil
}

func fileNames(files []*models.SourceFile) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names
}
