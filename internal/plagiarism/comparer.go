package plagiarism

import (
	"context"
	"errors"

	"github.com/RishiKendai/twinscan/internal/diffreport"
	"github.com/RishiKendai/twinscan/internal/models"
	"github.com/RishiKendai/twinscan/internal/normalize"
	"github.com/RishiKendai/twinscan/internal/similarity"
)

var ErrEmptySource = errors.New("source file has no text")

// Comparer scores one pair of files
type Comparer interface {
	Compare(ctx context.Context, a, b *models.SourceFile) (float64, error)
}

// ReportBuilder renders the side-by-side evidence for one pair
type ReportBuilder interface {
	BuildReport(ctx context.Context, a, b *models.SourceFile) ([]byte, error)
}

// LocalComparer normalizes both files and scores them in-process
type LocalComparer struct {
	cache  *normalize.Cache
	scorer *similarity.Scorer
}

func NewLocalComparer(cache *normalize.Cache, scorer *similarity.Scorer) *LocalComparer {
	if cache == nil {
		cache = normalize.NewCache(normalize.ForFile(normalize.ModeMixed))
	}
	if scorer == nil {
		scorer = similarity.NewScorer(similarity.Options{})
	}
	return &LocalComparer{cache: cache, scorer: scorer}
}

// Compare scores a pair. A file with no normalized text scores 0 against
// anything, including another empty file.
func (c *LocalComparer) Compare(ctx context.Context, a, b *models.SourceFile) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	na, nb := c.cache.Get(a), c.cache.Get(b)
	if na == "" || nb == "" {
		return 0, nil
	}
	return c.scorer.Ratio(na, nb), nil
}

type LocalReportBuilder struct {
	opts diffreport.Options
}

func NewLocalReportBuilder(opts diffreport.Options) *LocalReportBuilder {
	if opts.TabSize <= 0 {
		opts.TabSize = diffreport.DefaultOptions.TabSize
	}
	if opts.WrapColumn <= 0 {
		opts.WrapColumn = diffreport.DefaultOptions.WrapColumn
	}
	return &LocalReportBuilder{opts: opts}
}

// BuildReport renders the raw texts of a and b. Files without text have no
// evidence to show and return ErrEmptySource.
func (b *LocalReportBuilder) BuildReport(ctx context.Context, fa, fb *models.SourceFile) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fa.Raw == "" || fb.Raw == "" {
		return nil, ErrEmptySource
	}
	return diffreport.Build(fa.Raw, fb.Raw, fa.Name, fb.Name, b.opts).HTML()
}
