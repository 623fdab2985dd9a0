package export_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RishiKendai/twinscan/internal/diffreport"
	"github.com/RishiKendai/twinscan/internal/export"
	"github.com/RishiKendai/twinscan/internal/models"
	"github.com/RishiKendai/twinscan/internal/plagiarism"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runGroup(t *testing.T, files []*models.SourceFile) *plagiarism.SimilarityMatrix {
	t.Helper()
	pool := plagiarism.NewWorkerPool(context.Background(), 2)
	t.Cleanup(pool.Close)
	o := plagiarism.NewOrchestrator(pool, plagiarism.NewLocalComparer(nil, nil))
	m, _, err := o.RunGroupSelfCheck(context.Background(), files)
	require.NoError(t, err)
	return m
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestMatrixCSVScenario(t *testing.T) {
	m := runGroup(t, []*models.SourceFile{
		{Name: "A", Raw: "def f(): return 1"},
		{Name: "B", Raw: "def f():\n    return 1"},
		{Name: "C", Raw: "print('x')"},
	})

	var buf bytes.Buffer
	require.NoError(t, export.WriteMatrixCSV(&buf, m))
	rows := readCSV(t, buf.Bytes())

	require.Len(t, rows, 4)
	assert.Equal(t, []string{"", "A", "B", "C"}, rows[0])
	assert.Equal(t, []string{"A", "100.00%", "100.00%", "14.81%"}, rows[1])
	assert.Equal(t, []string{"B", "100.00%", "100.00%", "14.81%"}, rows[2])
	assert.Equal(t, []string{"C", "14.81%", "14.81%", "100.00%"}, rows[3])
}

func TestMatrixCSVUnreadableFileRow(t *testing.T) {
	m := runGroup(t, []*models.SourceFile{
		{Name: "a.py", Raw: "x = 1"},
		{Name: "broken.py", Raw: "", DecodeError: "invalid encoding"},
		{Name: "c.py", Raw: "x = 1"},
	})

	rows := export.MatrixRows(m)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"broken.py", "0.00%", "100.00%", "0.00%"}, rows[2])
	assert.Equal(t, "100.00%", rows[1][3])
}

func TestMatrixCSVEmptyCorpus(t *testing.T) {
	m := plagiarism.NewMatrix(nil)

	rows := export.MatrixRows(m)
	assert.Equal(t, [][]string{{""}}, rows)

	var buf bytes.Buffer
	require.NoError(t, export.WriteMatrixCSV(&buf, m))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestMatrixCSVLeavesUnscoredPairsBlank(t *testing.T) {
	m := plagiarism.NewMatrix([]string{"A", "B", "C"})
	m.Set(0, 1, 0.9)
	m.Set(0, 2, 0.2)
	require.False(t, m.Complete())

	var buf bytes.Buffer
	require.NoError(t, export.WriteMatrixCSV(&buf, m))
	rows := readCSV(t, buf.Bytes())

	require.Len(t, rows, 4)
	assert.Equal(t, []string{"A", "100.00%", "90.00%", "20.00%"}, rows[1])
	assert.Equal(t, []string{"B", "90.00%", "100.00%", ""}, rows[2])
	assert.Equal(t, []string{"C", "20.00%", "", "100.00%"}, rows[3])
}

func TestWriteMatrixFileCreatesDirectories(t *testing.T) {
	m := plagiarism.NewMatrix([]string{"a", "b"})
	m.Set(0, 1, 0.125)
	path := filepath.Join(t.TempDir(), "out", "result.csv")

	require.NoError(t, export.WriteMatrixFile(path, m))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows := readCSV(t, data)
	assert.Equal(t, "12.50%", rows[1][2])
}

func TestReportPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "main.py", "other.py.html"), export.ReportPath("out", "main.py", "other.py"))
	assert.Equal(t, filepath.Join("out", "Makefile", "b.c.html"), export.ReportPath("out", "Makefile", "b.c"))
	assert.Equal(t, filepath.Join("out", "x%2Fa.py", "y%2Fb.py.html"), export.ReportPath("out", "x/a.py", "y/b.py"))
	assert.Equal(t, filepath.Join("out", "x%5Ca.py", "%.html"), export.ReportPath("out", `x\a.py`, ""))
}

func TestReportPathDistinctPairs(t *testing.T) {
	names := []string{"foo.c", "foo.cpp", "zed.py", "x/a.py", "x_a.py", "x%2Fa.py"}
	seen := make(map[string]string)
	for _, a := range names {
		for _, b := range names {
			if a == b {
				continue
			}
			path := export.ReportPath("out", a, b)
			prev, dup := seen[path]
			require.False(t, dup, "%s|%s collides with %s", a, b, prev)
			seen[path] = a + "|" + b
		}
	}
}

func TestExportReportsSameStem(t *testing.T) {
	body := "int main(void) { return 0; }\n"
	c := &models.SourceFile{Name: "foo.c", Raw: body}
	cpp := &models.SourceFile{Name: "foo.cpp", Raw: body}
	py := &models.SourceFile{Name: "zed.py", Raw: body}
	dest := t.TempDir()

	summary, err := export.ExportReports(context.Background(), []export.Pair{
		{A: c, B: cpp, Score: 1},
		{A: c, B: py, Score: 1},
		{A: cpp, B: py, Score: 1},
	}, plagiarism.NewLocalReportBuilder(diffreport.DefaultOptions), dest, 3)
	require.NoError(t, err)
	require.Len(t, summary.Written, 3)
	assert.Zero(t, summary.Failed)

	for _, path := range summary.Written {
		assert.FileExists(t, path)
	}
	cBody, err := os.ReadFile(export.ReportPath(dest, "foo.c", "zed.py"))
	require.NoError(t, err)
	cppBody, err := os.ReadFile(export.ReportPath(dest, "foo.cpp", "zed.py"))
	require.NoError(t, err)
	assert.Contains(t, string(cBody), "foo.c")
	assert.NotContains(t, string(cBody), "foo.cpp")
	assert.Contains(t, string(cppBody), "foo.cpp")
}

func TestExportReportsDuplicatePair(t *testing.T) {
	a := &models.SourceFile{Name: "a.py", Raw: "x = 1\n"}
	b := &models.SourceFile{Name: "b.py", Raw: "x = 2\n"}

	summary, err := export.ExportReports(context.Background(), []export.Pair{
		{A: a, B: b}, {A: a, B: b},
	}, plagiarism.NewLocalReportBuilder(diffreport.DefaultOptions), t.TempDir(), 2)
	require.NoError(t, err)
	assert.Len(t, summary.Written, 1)
	require.Equal(t, 1, summary.Failed)
	assert.ErrorIs(t, summary.Failures[0].Err, export.ErrDuplicatePair)
}

type failingBuilder struct {
	inner export.Builder
	fail  string
}

func (b failingBuilder) BuildReport(ctx context.Context, x, y *models.SourceFile) ([]byte, error) {
	if x.Name == b.fail || y.Name == b.fail {
		return nil, errors.New("render failed")
	}
	return b.inner.BuildReport(ctx, x, y)
}

func TestExportReports(t *testing.T) {
	a := &models.SourceFile{Name: "a.py", Raw: "x = 1\n"}
	b := &models.SourceFile{Name: "b.py", Raw: "x = 2\n"}
	c := &models.SourceFile{Name: "c.py", Raw: "y = 3\n"}
	empty := &models.SourceFile{Name: "empty.py"}
	dest := t.TempDir()

	builder := failingBuilder{inner: plagiarism.NewLocalReportBuilder(diffreport.DefaultOptions), fail: "c.py"}
	summary, err := export.ExportReports(context.Background(), []export.Pair{
		{A: a, B: b, Score: 0.8},
		{A: a, B: c, Score: 0.5},
		{A: a, B: empty, Score: 0},
	}, builder, dest, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{export.ReportPath(dest, "a.py", "b.py")}, summary.Written)
	assert.Equal(t, 2, summary.Failed)
	require.Len(t, summary.Failures, 2)
	assert.Equal(t, "c.py", summary.Failures[0].B)
	assert.ErrorIs(t, summary.Failures[1].Err, plagiarism.ErrEmptySource)

	body, err := os.ReadFile(summary.Written[0])
	require.NoError(t, err)
	assert.Contains(t, string(body), "a.py")
	assert.Contains(t, string(body), "b.py")
}

func TestExportReportsNoPairs(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "never")
	summary, err := export.ExportReports(context.Background(), nil, plagiarism.NewLocalReportBuilder(diffreport.Options{}), dest, 1)
	require.NoError(t, err)
	assert.Empty(t, summary.Written)
	assert.NoDirExists(t, dest)
}

func TestExportReportsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &models.SourceFile{Name: "a.py", Raw: "x"}
	b := &models.SourceFile{Name: "b.py", Raw: "y"}
	summary, err := export.ExportReports(ctx, []export.Pair{{A: a, B: b}}, plagiarism.NewLocalReportBuilder(diffreport.Options{}), t.TempDir(), 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, summary.Written)
	assert.Zero(t, summary.Failed)
}
