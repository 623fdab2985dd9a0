package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/RishiKendai/twinscan/internal/config"
	"github.com/RishiKendai/twinscan/internal/models"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var ErrNoHistoryDB = errors.New("history database is required (use --history or HISTORY_DB_PATH)")

type historyOptions struct {
	corpusOptions
	corpus bool
}

// NewHistoryCommand creates the subcommand that lists stored results.
func NewHistoryCommand() *cobra.Command {
	opts := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history <file-id|path>",
		Short: "List the stored similarity records of a file",
		Long: `List every stored record in which the file appears, newest first.

The argument is a file id as stored by check or compare, or the path of a
source file whose id is derived from its name and content. With --corpus it
is a corpus directory and the latest run over it is listed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, args[0], opts)
		},
	}

	opts.register(cmd)
	cmd.Flags().BoolVar(&opts.corpus, "corpus", false, "treat the argument as a corpus directory")

	return cmd
}

func runHistory(cmd *cobra.Command, arg string, opts *historyOptions) error {
	ctx := cmd.Context()
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	cfg, err := opts.resolve(cmd)
	if err != nil {
		return err
	}
	if cfg.HistoryDBPath == "" {
		return ErrNoHistoryDB
	}
	store, err := openHistory(cfg.HistoryDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	var records []models.HistoryRecord
	if opts.corpus {
		corpusID, err := corpusDir(arg)
		if err != nil {
			return err
		}
		records, err = store.RecordsForCorpus(ctx, corpusID)
		if err != nil {
			return err
		}
	} else {
		id, err := resolveFileID(ctx, cfg, arg, errOut)
		if err != nil {
			return err
		}
		records, err = store.RecordsFor(ctx, id)
		if err != nil {
			return err
		}
	}

	if len(records) == 0 {
		fmt.Fprintln(out, color.YellowString("No history for %s", arg))
		return nil
	}
	renderHistory(out, records)
	return nil
}

// resolveFileID maps a path to the id the loader gives that file. Anything
// that is not a regular file is taken as an id already.
func resolveFileID(ctx context.Context, cfg *config.Config, arg string, errOut io.Writer) (string, error) {
	info, err := os.Stat(arg)
	if err != nil || !info.Mode().IsRegular() {
		return arg, nil
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return "", err
	}
	files, err := eng.loadFiles(ctx, []string{arg}, errOut)
	if err != nil {
		return "", err
	}
	return files[0].ID, nil
}

func corpusDir(p string) (string, error) {
	info, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", p, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", p)
	}
	return filepath.Abs(p)
}
