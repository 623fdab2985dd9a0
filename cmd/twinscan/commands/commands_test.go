package commands

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RishiKendai/twinscan/internal/export"
	"github.com/RishiKendai/twinscan/internal/history"
	"github.com/RishiKendai/twinscan/internal/loader"
	"github.com/RishiKendai/twinscan/internal/plagiarism"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"a.py": "print('hello')\n",
		"b.py": "# copied\nprint('hello')   \n",
		"c.c":  "int main(void) {\n    return 0;\n}\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HISTORY_DB_PATH", "")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func readMatrix(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCheckWritesMatrixReportsAndHistory(t *testing.T) {
	dir := writeCorpus(t)
	outDir := t.TempDir()
	db := filepath.Join(t.TempDir(), "history.db")

	out, err := execute(t, NewCheckCommand(), dir, "--threshold", "90", "-q", "-o", outDir, "--history", db)
	require.NoError(t, err)
	assert.Contains(t, out, "a.py")
	assert.Contains(t, out, "100.00%")
	assert.Contains(t, out, "3 files")
	assert.Contains(t, out, "1 suspect(s)")

	rows := readMatrix(t, filepath.Join(outDir, matrixFileName))
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"", "a.py", "b.py", "c.c"}, rows[0])
	assert.Equal(t, "100.00%", rows[1][2])
	assert.Equal(t, "100.00%", rows[3][3])

	_, err = os.Stat(export.ReportPath(filepath.Join(outDir, "reports"), "a.py", "b.py"))
	assert.NoError(t, err)
	_, err = os.Stat(export.ReportPath(filepath.Join(outDir, "reports"), "a.py", "c.c"))
	assert.True(t, os.IsNotExist(err))

	store, err := history.NewSQLiteStore(db)
	require.NoError(t, err)
	defer store.Close()
	corpusID, err := filepath.Abs(dir)
	require.NoError(t, err)
	records, err := store.RecordsForCorpus(context.Background(), corpusID)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestCheckAllReports(t *testing.T) {
	dir := writeCorpus(t)
	outDir := t.TempDir()

	_, err := execute(t, NewCheckCommand(), dir, "--threshold", "90", "-q", "-o", outDir, "--all-reports")
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(outDir, "reports"))
	require.NoError(t, err)
	// one directory per left-hand file: a and b
	assert.Len(t, entries, 2)
}

func TestCheckDefaultsOutputToCorpus(t *testing.T) {
	dir := writeCorpus(t)

	_, err := execute(t, NewCheckCommand(), dir, "-q")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, matrixFileName))
	assert.NoError(t, err)
}

func TestCheckEmptyDirectoryWritesHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	outDir := t.TempDir()

	out, err := execute(t, NewCheckCommand(), dir, "-q", "-o", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "0 files")

	data, err := os.ReadFile(filepath.Join(outDir, matrixFileName))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
}

func TestCheckRejectsBadFlags(t *testing.T) {
	dir := writeCorpus(t)

	_, err := execute(t, NewCheckCommand(), dir, "--threshold", "150")
	assert.Error(t, err)

	_, err = execute(t, NewCheckCommand(), dir, "--granularity", "line")
	assert.Error(t, err)

	_, err = execute(t, NewCheckCommand(), dir, "--max-size", "lots")
	assert.Error(t, err)
}

func TestCheckExtensionFilter(t *testing.T) {
	dir := writeCorpus(t)
	outDir := t.TempDir()

	out, err := execute(t, NewCheckCommand(), dir, "-q", "-o", outDir, "--ext", "py")
	require.NoError(t, err)
	assert.Contains(t, out, "2 files")

	rows := readMatrix(t, filepath.Join(outDir, matrixFileName))
	assert.Equal(t, []string{"", "a.py", "b.py"}, rows[0])
}

func TestCompareRanksAgainstTarget(t *testing.T) {
	dir := writeCorpus(t)

	out, err := execute(t, NewCompareCommand(), dir, "--target", "a.py", "--threshold", "90", "-q")
	require.NoError(t, err)

	bIdx, cIdx := strings.Index(out, "b.py"), strings.Index(out, "c.c")
	require.NotEqual(t, -1, bIdx)
	require.NotEqual(t, -1, cIdx)
	assert.Less(t, bIdx, cIdx)
	assert.Contains(t, out, plagiarism.LabelSuspect)
	assert.Contains(t, out, "1 suspect(s)")
}

func TestCompareErrors(t *testing.T) {
	dir := writeCorpus(t)

	_, err := execute(t, NewCompareCommand(), dir, "-q")
	assert.ErrorIs(t, err, ErrNoTarget)

	_, err = execute(t, NewCompareCommand(), dir, "--target", "missing.py", "-q")
	assert.ErrorIs(t, err, plagiarism.ErrTargetNotFound)
}

func TestReportWritesHTML(t *testing.T) {
	dir := writeCorpus(t)
	out := filepath.Join(t.TempDir(), "nested", "pair.html")

	stdout, err := execute(t, NewReportCommand(), filepath.Join(dir, "a.py"), filepath.Join(dir, "c.c"), "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "a.py vs c.c")

	body, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(string(body)), "<html")
}

func TestReportEmptyFile(t *testing.T) {
	dir := writeCorpus(t)
	empty := filepath.Join(dir, "empty.py")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	_, err := execute(t, NewReportCommand(), filepath.Join(dir, "a.py"), empty, "-o", filepath.Join(t.TempDir(), "x.html"))
	assert.ErrorIs(t, err, plagiarism.ErrEmptySource)
}

func TestHistoryListsRecords(t *testing.T) {
	dir := writeCorpus(t)
	db := filepath.Join(t.TempDir(), "history.db")

	_, err := execute(t, NewCheckCommand(), dir, "-q", "-o", t.TempDir(), "--history", db)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "a.py"))
	require.NoError(t, err)
	id := loader.Identity("a.py", string(raw))

	byPath, err := execute(t, NewHistoryCommand(), filepath.Join(dir, "a.py"), "--history", db)
	require.NoError(t, err)
	assert.Contains(t, byPath, id)
	assert.Contains(t, strings.ToUpper(byPath), "TOTAL")

	byID, err := execute(t, NewHistoryCommand(), id, "--history", db)
	require.NoError(t, err)
	assert.Equal(t, byPath, byID)

	corpus, err := execute(t, NewHistoryCommand(), dir, "--corpus", "--history", db)
	require.NoError(t, err)
	assert.Contains(t, corpus, id)

	none, err := execute(t, NewHistoryCommand(), "unknown-id", "--history", db)
	require.NoError(t, err)
	assert.Contains(t, none, "No history")
}

func TestHistoryNeedsDatabase(t *testing.T) {
	_, err := execute(t, NewHistoryCommand(), "some-id")
	assert.ErrorIs(t, err, ErrNoHistoryDB)
}
