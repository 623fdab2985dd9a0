// Package loader reads source files from disk into a corpus.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/RishiKendai/twinscan/internal/models"
	"github.com/RishiKendai/twinscan/internal/normalize"
	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/src-d/enry/v2"
)

// DefaultExtensions are the file types scanned when none are configured
var DefaultExtensions = []string{".c", ".cpp", ".py", ".java"}

var ErrTooLarge = errors.New("file exceeds size limit")

type Options struct {
	CorpusID    string
	Extensions  []string
	MaxFileSize uint64
	Decoder     *normalize.Decoder
	Workers     int
}

// LoadError records a file that could not be read or decoded
type LoadError struct {
	Path string
	Err  error
}

func (e LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// LoadErrors collects per-file failures
type LoadErrors struct {
	Errors []LoadError
	mu     sync.Mutex
}

func (e *LoadErrors) Add(path string, err error) {
	e.mu.Lock()
	e.Errors = append(e.Errors, LoadError{Path: path, Err: err})
	e.mu.Unlock()
}

func (e *LoadErrors) HasErrors() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors) > 0
}

func (e *LoadErrors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d files could not be read (first: %v)", len(e.Errors), e.Errors[0])
}

// LoadDir walks dir recursively and loads every file with a configured
// extension. Files that cannot be read or decoded are kept with empty text
// and reported in the returned LoadErrors.
func LoadDir(ctx context.Context, dir string, opts Options) ([]*models.SourceFile, *LoadErrors, error) {
	exts := extensionSet(opts.Extensions)

	paths := make([]string, 0)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if exts[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	return load(ctx, dir, paths, opts)
}

// LoadFiles loads an explicit list of files regardless of extension
func LoadFiles(ctx context.Context, paths []string, opts Options) ([]*models.SourceFile, *LoadErrors, error) {
	return load(ctx, "", paths, opts)
}

func load(ctx context.Context, root string, paths []string, opts Options) ([]*models.SourceFile, *LoadErrors, error) {
	loadErrs := &LoadErrors{}
	if len(paths) == 0 {
		return []*models.SourceFile{}, loadErrs, nil
	}

	decoder := opts.Decoder
	if decoder == nil {
		var err error
		if decoder, err = normalize.NewDecoder(""); err != nil {
			return nil, nil, err
		}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	names := displayNames(root, paths)
	files := make([]*models.SourceFile, len(paths))

	p := pool.New().WithMaxGoroutines(workers)
	for i, path := range paths {
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			f, err := readSource(path, names[i], decoder, opts)
			if err != nil {
				loadErrs.Add(path, err)
				log.Warn().Err(err).Str("path", path).Msg("Loaded file with empty text")
			}
			f.CorpusID = opts.CorpusID
			files[i] = f
		})
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, loadErrs, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	sort.Slice(loadErrs.Errors, func(i, j int) bool { return loadErrs.Errors[i].Path < loadErrs.Errors[j].Path })

	log.Debug().Int("files", len(files)).Int("errors", len(loadErrs.Errors)).Msg("Corpus loaded")
	return files, loadErrs, nil
}

func readSource(path, name string, decoder *normalize.Decoder, opts Options) (*models.SourceFile, error) {
	f := &models.SourceFile{
		Name:      name,
		Path:      path,
		CreatedAt: time.Now(),
	}

	fail := func(err error) (*models.SourceFile, error) {
		f.DecodeError = err.Error()
		f.ID = Identity(f.Name, "")
		return f, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return fail(fmt.Errorf("failed to stat file: %w", err))
	}
	f.Size = info.Size()
	if opts.MaxFileSize > 0 && uint64(info.Size()) > opts.MaxFileSize {
		return fail(fmt.Errorf("%w: %s > %s", ErrTooLarge,
			humanize.Bytes(uint64(info.Size())), humanize.Bytes(opts.MaxFileSize)))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fail(fmt.Errorf("failed to read file: %w", err))
	}
	f.Language = enry.GetLanguage(filepath.Base(path), data)

	text, err := decoder.Decode(data)
	if err != nil {
		return fail(err)
	}
	f.Raw = text
	f.ID = Identity(f.Name, text)
	return f, nil
}

// Identity derives a stable key from a file's name and text
func Identity(name, text string) string {
	h := xxhash.New()
	_, _ = h.WriteString(name)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(text)
	return fmt.Sprintf("%016x", h.Sum64())
}

// displayNames uses base names, falling back to the slash separated path
// relative to root for names that occur more than once
func displayNames(root string, paths []string) []string {
	counts := make(map[string]int, len(paths))
	for _, p := range paths {
		counts[filepath.Base(p)]++
	}

	names := make([]string, len(paths))
	for i, p := range paths {
		base := filepath.Base(p)
		if counts[base] == 1 {
			names[i] = base
			continue
		}
		rel := p
		if root != "" {
			if r, err := filepath.Rel(root, p); err == nil {
				rel = r
			}
		}
		names[i] = filepath.ToSlash(rel)
	}
	return names
}

func extensionSet(exts []string) map[string]bool {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = true
	}
	return set
}
