package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RishiKendai/twinscan/internal/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.c"), []byte("int main() { return 0; }\n"))
	writeFile(t, filepath.Join(dir, "main.py"), []byte("print('hi')\n"))
	writeFile(t, filepath.Join(dir, "lib", "main.py"), []byte("print('lib')\n"))
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("not code"))
	writeFile(t, filepath.Join(dir, ".git", "hook.py"), []byte("hidden"))
	writeFile(t, filepath.Join(dir, "Upper.JAVA"), []byte("class Upper {}"))

	files, loadErrs, err := LoadDir(context.Background(), dir, Options{CorpusID: "c1"})
	require.NoError(t, err)
	assert.False(t, loadErrs.HasErrors())

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
		assert.Equal(t, "c1", f.CorpusID)
		assert.True(t, f.Readable())
		assert.Len(t, f.ID, 16)
	}
	assert.Equal(t, []string{"Upper.JAVA", "b.c", "lib/main.py", "main.py"}, names)

	assert.Equal(t, "C", files[1].Language)
	assert.Equal(t, "Python", files[3].Language)
	assert.Equal(t, "print('hi')\n", files[3].Raw)
	assert.NotEqual(t, files[2].ID, files[3].ID)
}

func TestLoadDirKeepsUnreadableFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "ok.py"), []byte("x = 1"))
	writeFile(t, filepath.Join(dir, "binary.py"), []byte{'x', 0, 'y'})
	writeFile(t, filepath.Join(dir, "huge.py"), []byte(strings.Repeat("x", 2048)))

	files, loadErrs, err := LoadDir(context.Background(), dir, Options{MaxFileSize: 1024})
	require.NoError(t, err)
	require.Len(t, files, 3)
	require.Len(t, loadErrs.Errors, 2)

	byName := make(map[string]int)
	for i, f := range files {
		byName[f.Name] = i
	}
	binary := files[byName["binary.py"]]
	assert.Empty(t, binary.Raw)
	assert.False(t, binary.Readable())

	huge := files[byName["huge.py"]]
	assert.Empty(t, huge.Raw)
	assert.Equal(t, int64(2048), huge.Size)

	assert.True(t, errors.Is(loadErrs.Errors[0].Err, normalize.ErrBinary))
	assert.True(t, errors.Is(loadErrs.Errors[1].Err, ErrTooLarge))
	assert.Contains(t, loadErrs.Error(), "2 files could not be read")
}

func TestLoadDirDecodesFallbackCharset(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "gbk.py"), []byte{'#', ' ', 0xD6, 0xD0, 0xCE, 0xC4, '\n', 'x'})

	decoder, err := normalize.NewDecoder("gbk")
	require.NoError(t, err)

	files, loadErrs, err := LoadDir(context.Background(), dir, Options{Decoder: decoder})
	require.NoError(t, err)
	assert.False(t, loadErrs.HasErrors())
	require.Len(t, files, 1)
	assert.Equal(t, "# 中文\nx", files[0].Raw)
}

func TestLoadDirMissing(t *testing.T) {
	_, _, err := LoadDir(context.Background(), filepath.Join(t.TempDir(), "nope"), Options{})
	assert.Error(t, err)
}

func TestLoadDirEmpty(t *testing.T) {
	files, loadErrs, err := LoadDir(context.Background(), t.TempDir(), Options{})
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.False(t, loadErrs.HasErrors())
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "one", "x.txt")
	b := filepath.Join(dir, "two", "x.txt")
	writeFile(t, a, []byte("same"))
	writeFile(t, b, []byte("same"))

	files, _, err := LoadFiles(context.Background(), []string{a, b, filepath.Join(dir, "missing.py")}, Options{})
	require.NoError(t, err)
	require.Len(t, files, 3)

	seen := make(map[string]bool)
	for _, f := range files {
		assert.False(t, seen[f.Name], "duplicate name %s", f.Name)
		seen[f.Name] = true
		if f.Name == "missing.py" {
			assert.False(t, f.Readable())
		} else {
			assert.Equal(t, "same", f.Raw)
		}
	}
	assert.True(t, seen["missing.py"])
}

func TestIdentity(t *testing.T) {
	assert.Equal(t, Identity("a.py", "x"), Identity("a.py", "x"))
	assert.NotEqual(t, Identity("a.py", "x"), Identity("b.py", "x"))
	assert.NotEqual(t, Identity("a.py", "x"), Identity("a.py", "y"))
	assert.NotEqual(t, Identity("ab", "c"), Identity("a", "bc"))
}

func TestExtensionSet(t *testing.T) {
	set := extensionSet([]string{"PY", " .Go ", ""})
	assert.Equal(t, map[string]bool{".py": true, ".go": true}, set)
	assert.Len(t, extensionSet(nil), len(DefaultExtensions))
}
