package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/RishiKendai/twinscan/internal/metrics"
	"github.com/RishiKendai/twinscan/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

// ErrDuplicatePair is recorded when a pair appears twice in one export
var ErrDuplicatePair = errors.New("report for this pair already written")

// Builder renders the report of one pair
type Builder interface {
	BuildReport(ctx context.Context, a, b *models.SourceFile) ([]byte, error)
}

// Pair is one report to write
type Pair struct {
	A, B  *models.SourceFile
	Score float64
}

// Failure is a report that could not be written
type Failure struct {
	A, B string
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s vs %s: %v", f.A, f.B, f.Err)
}

type Summary struct {
	Written  []string
	Failed   int
	Failures []Failure
}

// ReportPath returns dest/<a>/<b>.html. Both names are kept whole and
// escaped so that distinct pairs never share a path.
func ReportPath(dest, a, b string) string {
	return filepath.Join(dest, flatten(a), flatten(b)+".html")
}

var nameEscaper = strings.NewReplacer("%", "%25", "/", "%2F", `\`, "%5C")

// flatten escapes separators so a name stays a single path element
func flatten(name string) string {
	flat := nameEscaper.Replace(name)
	switch flat {
	case "", ".", "..":
		return "%" + flat
	}
	return flat
}

// ExportReports builds and writes one report per pair. Individual failures
// are logged and counted; only cancellation or an unusable destination is
// returned as an error.
func ExportReports(ctx context.Context, pairs []Pair, builder Builder, dest string, workers int) (Summary, error) {
	var summary Summary
	if len(pairs) == 0 {
		return summary, nil
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return summary, fmt.Errorf("failed to create reports directory: %w", err)
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var mu sync.Mutex
	claimed := make(map[string]bool, len(pairs))
	p := pool.New().WithMaxGoroutines(workers)
	for _, pair := range pairs {
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			path := ReportPath(dest, pair.A.Name, pair.B.Name)
			mu.Lock()
			taken := claimed[path]
			claimed[path] = true
			mu.Unlock()

			err := ErrDuplicatePair
			if !taken {
				err = writeReport(ctx, pair, builder, path)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				summary.Failed++
				summary.Failures = append(summary.Failures, Failure{A: pair.A.Name, B: pair.B.Name, Err: err})
				metrics.ReportsExported.WithLabelValues("failed").Inc()
				log.Warn().Err(err).
					Str("fileA", pair.A.Name).
					Str("fileB", pair.B.Name).
					Msg("Skipping diff report")
				return
			}
			summary.Written = append(summary.Written, path)
			metrics.ReportsExported.WithLabelValues("success").Inc()
		})
	}
	p.Wait()

	sort.Strings(summary.Written)
	sort.Slice(summary.Failures, func(i, j int) bool {
		if summary.Failures[i].A != summary.Failures[j].A {
			return summary.Failures[i].A < summary.Failures[j].A
		}
		return summary.Failures[i].B < summary.Failures[j].B
	})

	if err := ctx.Err(); err != nil {
		return summary, err
	}

	log.Info().
		Int("written", len(summary.Written)).
		Int("failed", summary.Failed).
		Str("dest", dest).
		Msg("Diff reports exported")

	return summary, nil
}

func writeReport(ctx context.Context, pair Pair, builder Builder, path string) error {
	body, err := builder.BuildReport(ctx, pair.A, pair.B)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
