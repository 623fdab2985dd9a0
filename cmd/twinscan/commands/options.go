// Package commands implements the twinscan subcommands.
package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/RishiKendai/twinscan/internal/config"
	"github.com/RishiKendai/twinscan/internal/configs/env"
	"github.com/RishiKendai/twinscan/internal/diffreport"
	"github.com/RishiKendai/twinscan/internal/history"
	"github.com/RishiKendai/twinscan/internal/loader"
	"github.com/RishiKendai/twinscan/internal/models"
	"github.com/RishiKendai/twinscan/internal/normalize"
	"github.com/RishiKendai/twinscan/internal/plagiarism"
	"github.com/RishiKendai/twinscan/internal/progress"
	"github.com/RishiKendai/twinscan/internal/similarity"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const matrixFileName = "similarity_matrix.csv"

// corpusOptions are the flags shared by the commands that scan a corpus.
// Flags left unset keep the value from the environment.
type corpusOptions struct {
	threshold   float64
	extensions  []string
	workers     int
	mode        string
	granularity string
	autoJunk    bool
	charset     string
	maxFileSize string
	historyPath string
	quiet       bool
}

func (o *corpusOptions) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Float64Var(&o.threshold, "threshold", plagiarism.DefaultThresholdPercent, "suspect threshold in percent (0-100)")
	flags.StringSliceVar(&o.extensions, "ext", loader.DefaultExtensions, "file extensions to scan")
	flags.IntVar(&o.workers, "workers", 0, "parallel comparisons (0 = number of CPUs)")
	flags.StringVar(&o.mode, "normalize", "mixed", "comment syntax: mixed or language")
	flags.StringVar(&o.granularity, "granularity", "char", "matching unit: char or token")
	flags.BoolVar(&o.autoJunk, "autojunk", false, "enable the popular-element heuristic")
	flags.StringVar(&o.charset, "charset", "gbk", "fallback charset for non UTF-8 files")
	flags.StringVar(&o.maxFileSize, "max-size", "512KB", "skip files larger than this")
	flags.StringVar(&o.historyPath, "history", "", "SQLite database that keeps the results")
	flags.BoolVarP(&o.quiet, "quiet", "q", false, "hide the progress bar")
}

// resolve loads the environment configuration and applies the flags the
// user actually set on top of it
func (o *corpusOptions) resolve(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("threshold") {
		cfg.ThresholdPercent = o.threshold
	}
	if flags.Changed("ext") {
		cfg.Extensions = normalizeExtensions(o.extensions)
	}
	if flags.Changed("workers") {
		cfg.Workers = o.workers
	}
	if flags.Changed("normalize") {
		cfg.NormalizeMode = strings.ToLower(o.mode)
	}
	if flags.Changed("granularity") {
		cfg.Granularity = strings.ToLower(o.granularity)
	}
	if flags.Changed("autojunk") {
		cfg.AutoJunk = o.autoJunk
	}
	if flags.Changed("charset") {
		cfg.FallbackCharset = o.charset
	}
	if flags.Changed("max-size") {
		size, err := humanize.ParseBytes(o.maxFileSize)
		if err != nil {
			return nil, fmt.Errorf("invalid --max-size %q: %w", o.maxFileSize, err)
		}
		cfg.MaxFileSize = size
	}
	if flags.Changed("history") {
		cfg.HistoryDBPath = o.historyPath
	}

	if err := cfg.ValidateCore(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfig() (*config.Config, error) {
	if err := env.LoadEnv(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// normalizeExtensions lowercases entries and adds a missing leading dot
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// engine bundles the pieces every corpus command needs
type engine struct {
	cfg      *config.Config
	decoder  *normalize.Decoder
	comparer *plagiarism.LocalComparer
	reports  *plagiarism.LocalReportBuilder
}

func newEngine(cfg *config.Config) (*engine, error) {
	decoder, err := normalize.NewDecoder(cfg.FallbackCharset)
	if err != nil {
		return nil, err
	}
	granularity, err := similarity.ParseGranularity(cfg.Granularity)
	if err != nil {
		return nil, err
	}

	cache := normalize.NewCache(normalize.ForFile(normalize.Mode(cfg.NormalizeMode)))
	scorer := similarity.NewScorer(similarity.Options{Granularity: granularity, AutoJunk: cfg.AutoJunk})

	return &engine{
		cfg:      cfg,
		decoder:  decoder,
		comparer: plagiarism.NewLocalComparer(cache, scorer),
		reports:  plagiarism.NewLocalReportBuilder(diffreport.DefaultOptions),
	}, nil
}

func (e *engine) loaderOptions(corpusID string) loader.Options {
	return loader.Options{
		CorpusID:    corpusID,
		Extensions:  e.cfg.Extensions,
		MaxFileSize: e.cfg.MaxFileSize,
		Decoder:     e.decoder,
		Workers:     e.cfg.Workers,
	}
}

// loadDir loads a corpus and reports unreadable files without failing
func (e *engine) loadDir(ctx context.Context, dir, corpusID string, errOut io.Writer) ([]*models.SourceFile, error) {
	files, loadErrs, err := loader.LoadDir(ctx, dir, e.loaderOptions(corpusID))
	if err != nil {
		return nil, err
	}
	warnUnreadable(errOut, loadErrs)
	return files, nil
}

func (e *engine) loadFiles(ctx context.Context, paths []string, errOut io.Writer) ([]*models.SourceFile, error) {
	files, loadErrs, err := loader.LoadFiles(ctx, paths, e.loaderOptions(""))
	if err != nil {
		return nil, err
	}
	warnUnreadable(errOut, loadErrs)
	return files, nil
}

func warnUnreadable(errOut io.Writer, loadErrs *loader.LoadErrors) {
	if loadErrs == nil || !loadErrs.HasErrors() {
		return
	}
	for _, le := range loadErrs.Errors {
		log.Warn().Str("file", le.Path).Err(le.Err).Msg("File treated as empty")
	}
	fmt.Fprintln(errOut, color.YellowString("%d file(s) could not be read and score 0", len(loadErrs.Errors)))
}

// run scores the pairs chosen by fn with a fresh worker pool and a progress
// bar sized to total
func (e *engine) run(ctx context.Context, total int, quiet bool, errOut io.Writer,
	fn func(*plagiarism.Orchestrator) error,
) error {
	pool := plagiarism.NewWorkerPool(ctx, e.cfg.Workers)
	defer pool.Close()

	var tracker *progress.Tracker
	if !quiet && total > 0 {
		tracker = progress.NewTracker(errOut, "Comparing pairs", total)
	}
	orchestrator := plagiarism.NewOrchestrator(pool, e.comparer, plagiarism.WithProgress(tracker.Tick))

	err := fn(orchestrator)
	if err != nil {
		tracker.FinishError(err)
		return err
	}
	tracker.FinishSuccess()
	return nil
}

func openHistory(path string) (*history.SQLiteStore, error) {
	if path == "" {
		return nil, nil
	}
	return history.NewSQLiteStore(path)
}

func totalSize(files []*models.SourceFile) string {
	var total uint64
	for _, f := range files {
		total += uint64(f.Size)
	}
	return humanize.Bytes(total)
}
