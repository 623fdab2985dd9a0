package plagiarism

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RishiKendai/twinscan/internal/metrics"
	"github.com/RishiKendai/twinscan/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	ErrTargetNotFound = errors.New("target file not found in corpus")
	ErrDuplicateFile  = errors.New("duplicate file name in corpus")
)

// PairJob scores one pair for the worker pool
type PairJob struct {
	I, J     int
	A, B     *models.SourceFile
	Comparer Comparer
	Batch    context.Context
	Results  chan<- pairResult
}

type pairResult struct {
	i, j  int
	score float64
	err   error
}

// Execute scores the pair unless the batch was cancelled first
func (j *PairJob) Execute(ctx context.Context) error {
	if err := j.Batch.Err(); err != nil {
		return nil
	}

	score, err := j.Comparer.Compare(j.Batch, j.A, j.B)
	if err != nil && j.Batch.Err() != nil {
		// abandoned, not failed
		return nil
	}
	res := pairResult{i: j.I, j: j.J, score: score, err: err}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case j.Results <- res:
		return nil
	}
}

// BatchStats describes how a batch went
type BatchStats struct {
	Pairs    int
	Computed int
	Failed   int
	Duration time.Duration
}

type BatchRequest struct {
	Mode   ComparisonMode
	Files  []*models.SourceFile
	Target string
}

// BatchResult holds the scores of a batch. For one-to-many batches Matrix
// only holds the target's row and Ranking lists it in descending order.
type BatchResult struct {
	Mode    ComparisonMode
	Matrix  *SimilarityMatrix
	Ranking []SimilarityEntry
	Stats   BatchStats
}

type Orchestrator struct {
	pool     *WorkerPool
	comparer Comparer
	onPair   func()
}

type Option func(*Orchestrator)

// WithProgress registers a callback run once per finished pair. It is only
// ever called from the collecting goroutine.
func WithProgress(fn func()) Option {
	return func(o *Orchestrator) {
		o.onPair = fn
	}
}

func NewOrchestrator(pool *WorkerPool, comparer Comparer, opts ...Option) *Orchestrator {
	o := &Orchestrator{pool: pool, comparer: comparer}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunBatch dispatches on the request mode
func (o *Orchestrator) RunBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	switch req.Mode {
	case GroupSelfCheck:
		m, stats, err := o.RunGroupSelfCheck(ctx, req.Files)
		if m == nil {
			return nil, err
		}
		return &BatchResult{Mode: req.Mode, Matrix: m, Stats: stats}, err
	case OneToMany:
		m, stats, err := o.runTarget(ctx, req.Files, req.Target)
		if m == nil {
			return nil, err
		}
		target, _ := m.IndexOf(req.Target)
		return &BatchResult{Mode: req.Mode, Matrix: m, Ranking: m.Ranked(target), Stats: stats}, err
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownMode, req.Mode)
}

// RunGroupSelfCheck scores every unordered pair of files. On cancellation
// the partially filled matrix is returned together with the context error.
func (o *Orchestrator) RunGroupSelfCheck(ctx context.Context, files []*models.SourceFile) (*SimilarityMatrix, BatchStats, error) {
	labels, err := fileLabels(files)
	if err != nil {
		return nil, BatchStats{}, err
	}
	m := NewMatrix(labels)

	pairs := make([][2]int, 0, PairCount(len(files)))
	for i := 0; i < len(files); i++ {
		for j := i + 1; j < len(files); j++ {
			pairs = append(pairs, [2]int{i, j})
		}
	}

	stats, err := o.run(ctx, files, pairs, m)
	return m, stats, err
}

// RunOneToMany scores target against every other file and returns the
// results highest first. Ties keep file order.
func (o *Orchestrator) RunOneToMany(ctx context.Context, files []*models.SourceFile, target string) ([]SimilarityEntry, BatchStats, error) {
	m, stats, err := o.runTarget(ctx, files, target)
	if m == nil {
		return nil, stats, err
	}
	idx, _ := m.IndexOf(target)
	return m.Ranked(idx), stats, err
}

func (o *Orchestrator) runTarget(ctx context.Context, files []*models.SourceFile, target string) (*SimilarityMatrix, BatchStats, error) {
	labels, err := fileLabels(files)
	if err != nil {
		return nil, BatchStats{}, err
	}
	m := NewMatrix(labels)
	t, ok := m.IndexOf(target)
	if !ok {
		return nil, BatchStats{}, fmt.Errorf("%w: %s", ErrTargetNotFound, target)
	}

	pairs := make([][2]int, 0, len(files))
	for k := range files {
		if k == t {
			continue
		}
		pairs = append(pairs, [2]int{min(t, k), max(t, k)})
	}

	stats, err := o.run(ctx, files, pairs, m)
	return m, stats, err
}

// run submits every pair and collects the results into m. Only this
// goroutine writes to m.
func (o *Orchestrator) run(ctx context.Context, files []*models.SourceFile, pairs [][2]int, m *SimilarityMatrix) (BatchStats, error) {
	start := time.Now()
	stats := BatchStats{Pairs: len(pairs)}
	if len(pairs) == 0 {
		return stats, nil
	}

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan pairResult, len(pairs))
	submitted := 0
	var submitErr error
	for _, p := range pairs {
		job := &PairJob{
			I:        p[0],
			J:        p[1],
			A:        files[p[0]],
			B:        files[p[1]],
			Comparer: o.comparer,
			Batch:    batchCtx,
			Results:  results,
		}
		if err := o.pool.Submit(batchCtx, job); err != nil {
			submitErr = err
			log.Warn().Err(err).Int("submitted", submitted).Int("pairs", len(pairs)).Msg("Stopped submitting pairs")
			break
		}
		submitted++
	}

	for received := 0; received < submitted; received++ {
		select {
		case <-ctx.Done():
			stats.Duration = time.Since(start)
			return stats, ctx.Err()
		case <-o.pool.Done():
			stats.Duration = time.Since(start)
			return stats, errors.New("worker pool closed before the batch finished")
		case res := <-results:
			o.collect(m, res, &stats)
		}
	}
	stats.Duration = time.Since(start)

	if submitErr != nil {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		return stats, fmt.Errorf("failed to submit pair jobs: %w", submitErr)
	}

	log.Debug().
		Int("pairs", stats.Pairs).
		Int("failed", stats.Failed).
		Dur("duration", stats.Duration).
		Msg("Batch finished")

	return stats, nil
}

func (o *Orchestrator) collect(m *SimilarityMatrix, res pairResult, stats *BatchStats) {
	if res.err != nil {
		stats.Failed++
		metrics.PairsComputed.WithLabelValues("failed").Inc()
		log.Error().Err(res.err).
			Str("fileA", m.Label(res.i)).
			Str("fileB", m.Label(res.j)).
			Msg("Failed to compare pair, recording 0")
		m.Set(res.i, res.j, 0)
	} else {
		metrics.PairsComputed.WithLabelValues("success").Inc()
		m.Set(res.i, res.j, res.score)
	}
	stats.Computed++
	if o.onPair != nil {
		o.onPair()
	}
}

func fileLabels(files []*models.SourceFile) ([]string, error) {
	seen := make(map[string]bool, len(files))
	labels := make([]string, len(files))
	for i, f := range files {
		if seen[f.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFile, f.Name)
		}
		seen[f.Name] = true
		labels[i] = f.Name
	}
	return labels, nil
}
