package plagiarism

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RishiKendai/twinscan/internal/export"
	"github.com/RishiKendai/twinscan/internal/history"
	"github.com/RishiKendai/twinscan/internal/metrics"
	"github.com/RishiKendai/twinscan/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrReportNotAvailable = errors.New("report not available for this pair")
	ErrNotUploaded        = errors.New("corpus has no files registered with the remote backend")
)

// SourceStore reads the files of a corpus
type SourceStore interface {
	GetSourcesByCorpusID(ctx context.Context, corpusID string) ([]*models.SourceFile, error)
	GetSource(ctx context.Context, corpusID, name string) (*models.SourceFile, error)
}

type RunRecorder interface {
	InsertRunReport(ctx context.Context, report *models.RunReport) error
	GetLatestRunByCorpusID(ctx context.Context, corpusID string) (*models.RunReport, error)
}

// CheckSubmitter asks a remote backend to run the comparison of a batch
// before its pair verdicts are queried
type CheckSubmitter interface {
	SubmitCheck(ctx context.Context, taskName string, mode int, fileIDs []string) error
}

type ServiceConfig struct {
	ReportsDir    string
	ExportWorkers int
	Timeout       time.Duration
}

// Service runs comparisons over stored corpora and answers queries about
// their results
type Service struct {
	sources      SourceStore
	runs         RunRecorder
	history      history.Store
	status       StatusTracker
	orchestrator *Orchestrator
	reports      ReportBuilder
	checker      CheckSubmitter
	cfg          ServiceConfig
}

type ServiceOption func(*Service)

// WithCheckSubmitter submits every run to a remote backend before scoring
func WithCheckSubmitter(c CheckSubmitter) ServiceOption {
	return func(s *Service) {
		s.checker = c
	}
}

func NewService(
	sources SourceStore,
	runs RunRecorder,
	store history.Store,
	status StatusTracker,
	orchestrator *Orchestrator,
	reports ReportBuilder,
	cfg ServiceConfig,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		sources:      sources,
		runs:         runs,
		history:      store,
		status:       status,
		orchestrator: orchestrator,
		reports:      reports,
		cfg:          cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type ComputeParams struct {
	CorpusID         string
	RunID            string
	Mode             ComparisonMode
	Target           string
	ThresholdPercent float64
}

// NewRunID returns a fresh run identifier
func NewRunID() string {
	return uuid.New().String()
}

func (s *Service) reportsDir(corpusID string) string {
	return filepath.Join(s.cfg.ReportsDir, corpusID)
}

// Compute loads a corpus, scores it, classifies the result, stores history
// and writes the suspect reports. The returned run report is also persisted,
// including for failed runs. A configured Timeout bounds the whole run.
func (s *Service) Compute(ctx context.Context, p ComputeParams) (*models.RunReport, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	start := time.Now()
	if p.RunID == "" {
		p.RunID = NewRunID()
	}
	report := &models.RunReport{
		RunID:     p.RunID,
		CorpusID:  p.CorpusID,
		Mode:      p.Mode.String(),
		Target:    p.Target,
		Threshold: p.ThresholdPercent,
		CreatedAt: start,
	}

	err := s.compute(ctx, p, report)
	metrics.ComputationDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		report.Status = models.RunFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			report.Status = models.RunCancelled
		}
		report.Error = err.Error()
		metrics.ComputationCount.WithLabelValues(report.Status).Inc()
		s.setStatus(context.WithoutCancel(ctx), p.CorpusID, models.StepFailed)
		if recErr := s.runs.InsertRunReport(context.WithoutCancel(ctx), report); recErr != nil {
			log.Error().Err(recErr).Str("corpusId", p.CorpusID).Msg("Failed to record failed run")
		}
		return report, err
	}

	report.Status = models.RunCompleted
	if err := s.runs.InsertRunReport(ctx, report); err != nil {
		metrics.ComputationCount.WithLabelValues(models.RunFailed).Inc()
		s.setStatus(ctx, p.CorpusID, models.StepFailed)
		return report, fmt.Errorf("failed to insert run report: %w", err)
	}
	metrics.ComputationCount.WithLabelValues(models.RunCompleted).Inc()
	s.setStatus(ctx, p.CorpusID, models.StepCompleted)

	log.Info().
		Str("corpusId", p.CorpusID).
		Str("runId", p.RunID).
		Int("files", len(report.Files)).
		Int("pairs", report.PairCount).
		Int("suspects", report.SuspectCount).
		Dur("duration", time.Since(start)).
		Msg("Comparison run completed")

	return report, nil
}

func (s *Service) compute(ctx context.Context, p ComputeParams, report *models.RunReport) error {
	if err := ValidateThreshold(p.ThresholdPercent); err != nil {
		return err
	}
	s.setStatus(ctx, p.CorpusID, models.StepStarted)

	files, err := s.sources.GetSourcesByCorpusID(ctx, p.CorpusID)
	if err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}
	for _, f := range files {
		report.Files = append(report.Files, f.Name)
		if !f.Readable() {
			report.Unreadable = append(report.Unreadable, f.Name)
		}
	}

	if s.checker != nil {
		if err := s.submitCheck(ctx, p, files); err != nil {
			return err
		}
	}

	s.setStatus(ctx, p.CorpusID, models.StepScoring)
	result, err := s.orchestrator.RunBatch(ctx, BatchRequest{Mode: p.Mode, Files: files, Target: p.Target})
	if err != nil {
		return fmt.Errorf("failed to score corpus: %w", err)
	}
	report.PairCount = result.Stats.Pairs
	report.FailedPairs = result.Stats.Failed

	suspects, err := Classify(result.Matrix, p.ThresholdPercent)
	if err != nil {
		return err
	}
	report.SuspectCount = len(suspects)

	records := Records(result.Matrix, files, p.CorpusID, p.RunID, p.ThresholdPercent)
	if err := s.history.SaveRecords(ctx, records); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}

	s.setStatus(ctx, p.CorpusID, models.StepExporting)
	dest := s.reportsDir(p.CorpusID)
	summary, err := export.ExportReports(ctx, SuspectExportPairs(suspects, files), s.reports, dest, s.cfg.ExportWorkers)
	if err != nil {
		return fmt.Errorf("failed to export reports: %w", err)
	}
	if len(summary.Written) > 0 {
		report.ReportsDir = dest
	}

	return nil
}

// submitCheck registers the run with the remote backend under its run id
func (s *Service) submitCheck(ctx context.Context, p ComputeParams, files []*models.SourceFile) error {
	ids := make([]string, 0, len(files))
	for _, f := range files {
		if f.ExternalID != "" {
			ids = append(ids, f.ExternalID)
		}
	}
	if len(ids) == 0 && len(files) > 0 {
		return fmt.Errorf("%w: %s", ErrNotUploaded, p.CorpusID)
	}
	if err := s.checker.SubmitCheck(ctx, p.RunID, p.Mode.Code(), ids); err != nil {
		return fmt.Errorf("failed to submit remote check: %w", err)
	}
	log.Debug().Str("runId", p.RunID).Int("files", len(ids)).Int("mode", p.Mode.Code()).Msg("Remote check submitted")
	return nil
}

// SuspectExportPairs maps suspects back to their files
func SuspectExportPairs(suspects []SuspectPair, files []*models.SourceFile) []export.Pair {
	pairs := make([]export.Pair, 0, len(suspects))
	for _, sp := range suspects {
		pairs = append(pairs, export.Pair{A: files[sp.I], B: files[sp.J], Score: sp.Score})
	}
	return pairs
}

func (s *Service) setStatus(ctx context.Context, corpusID string, step models.Step) {
	if s.status == nil {
		return
	}
	if err := s.status.UpdateStatus(ctx, corpusID, step); err != nil {
		log.Warn().Err(err).Str("corpusId", corpusID).Str("step", string(step)).Msg("Failed to update run status")
	}
}

func (s *Service) Status(ctx context.Context, corpusID string) (models.Step, error) {
	if s.status == nil {
		return models.StepIdle, nil
	}
	return s.status.GetStatus(ctx, corpusID)
}

// LatestRun returns the newest run report of a corpus, or nil when it was
// never computed
func (s *Service) LatestRun(ctx context.Context, corpusID string) (*models.RunReport, error) {
	return s.runs.GetLatestRunByCorpusID(ctx, corpusID)
}

// Matrix rebuilds the latest stored matrix of a corpus labelled by file
// name. Every file of the corpus is listed, scored or not.
func (s *Service) Matrix(ctx context.Context, corpusID string) (*SimilarityMatrix, error) {
	records, err := s.history.RecordsForCorpus(ctx, corpusID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	files, err := s.sources.GetSourcesByCorpusID(ctx, corpusID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	return MatrixFromRecords(files, records), nil
}

func (s *Service) Suspects(ctx context.Context, corpusID string, thresholdPercent float64) ([]SuspectPair, error) {
	if err := ValidateThreshold(thresholdPercent); err != nil {
		return nil, err
	}
	m, err := s.Matrix(ctx, corpusID)
	if err != nil {
		return nil, err
	}
	return Classify(m, thresholdPercent)
}

func (s *Service) Ranking(ctx context.Context, corpusID, target string) ([]SimilarityEntry, error) {
	m, err := s.Matrix(ctx, corpusID)
	if err != nil {
		return nil, err
	}
	idx, ok := m.IndexOf(target)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, target)
	}
	return m.Ranked(idx), nil
}

// Report returns the exported report for a pair, building it when no
// exported copy exists
func (s *Service) Report(ctx context.Context, corpusID, a, b string) ([]byte, error) {
	dest := s.reportsDir(corpusID)
	for _, path := range []string{export.ReportPath(dest, a, b), export.ReportPath(dest, b, a)} {
		if body, err := os.ReadFile(path); err == nil {
			return body, nil
		}
	}

	fa, err := s.sources.GetSource(ctx, corpusID, a)
	if err != nil {
		return nil, err
	}
	fb, err := s.sources.GetSource(ctx, corpusID, b)
	if err != nil {
		return nil, err
	}
	if fa == nil || fb == nil {
		return nil, ErrReportNotAvailable
	}

	body, err := s.reports.BuildReport(ctx, fa, fb)
	if errors.Is(err, ErrEmptySource) {
		return nil, fmt.Errorf("%w: %v", ErrReportNotAvailable, err)
	}
	return body, err
}
