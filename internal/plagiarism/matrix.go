package plagiarism

import (
	"fmt"
	"sort"

	"github.com/RishiKendai/twinscan/internal/export"
	"github.com/RishiKendai/twinscan/internal/models"
)

// SimilarityEntry is the score of one unordered pair. I < J always holds.
type SimilarityEntry struct {
	I     int     `json:"-"`
	J     int     `json:"-"`
	A     string  `json:"fileA"`
	B     string  `json:"fileB"`
	Score float64 `json:"similarity"`
}

// Percent formats the score the way the exported matrix does
func (e SimilarityEntry) Percent() string {
	return export.FormatPercent(e.Score)
}

// Other returns the name of the file paired with name
func (e SimilarityEntry) Other(name string) string {
	if e.A == name {
		return e.B
	}
	return e.A
}

// SimilarityMatrix stores pair scores in a flat upper triangle. The diagonal
// is implicit and always 1.0. Each pair has its own slot, so concurrent
// writers never share one.
type SimilarityMatrix struct {
	labels []string
	scores []float64
	filled []bool
}

func NewMatrix(labels []string) *SimilarityMatrix {
	n := len(labels)
	pairs := PairCount(n)
	return &SimilarityMatrix{
		labels: append([]string(nil), labels...),
		scores: make([]float64, pairs),
		filled: make([]bool, pairs),
	}
}

// PairCount returns N(N-1)/2
func PairCount(n int) int {
	if n < 2 {
		return 0
	}
	return n * (n - 1) / 2
}

func (m *SimilarityMatrix) Len() int {
	return len(m.labels)
}

func (m *SimilarityMatrix) Labels() []string {
	return append([]string(nil), m.labels...)
}

func (m *SimilarityMatrix) Label(i int) string {
	return m.labels[i]
}

// IndexOf returns the position of the file named label
func (m *SimilarityMatrix) IndexOf(label string) (int, bool) {
	for i, l := range m.labels {
		if l == label {
			return i, true
		}
	}
	return -1, false
}

func (m *SimilarityMatrix) index(i, j int) int {
	if i > j {
		i, j = j, i
	}
	n := len(m.labels)
	return i*(2*n-i-1)/2 + (j - i - 1)
}

func (m *SimilarityMatrix) check(i, j int) {
	n := len(m.labels)
	if i < 0 || j < 0 || i >= n || j >= n {
		panic(fmt.Sprintf("matrix index (%d,%d) out of range for %d files", i, j, n))
	}
}

// Set records the score of pair (i, j). Setting the diagonal is a no-op.
func (m *SimilarityMatrix) Set(i, j int, score float64) {
	m.check(i, j)
	if i == j {
		return
	}
	if score < 0 || score > 1 {
		panic(fmt.Sprintf("similarity %v out of range for pair (%d,%d)", score, i, j))
	}
	k := m.index(i, j)
	m.scores[k] = score
	m.filled[k] = true
}

// Score returns the score of pair (i, j); unfilled pairs read as 0
func (m *SimilarityMatrix) Score(i, j int) float64 {
	m.check(i, j)
	if i == j {
		return 1.0
	}
	return m.scores[m.index(i, j)]
}

// Has reports whether pair (i, j) has been computed
func (m *SimilarityMatrix) Has(i, j int) bool {
	m.check(i, j)
	if i == j {
		return true
	}
	return m.filled[m.index(i, j)]
}

// Filled returns how many pairs hold a score
func (m *SimilarityMatrix) Filled() int {
	count := 0
	for _, ok := range m.filled {
		if ok {
			count++
		}
	}
	return count
}

// Complete reports whether every unordered pair has been computed
func (m *SimilarityMatrix) Complete() bool {
	return m.Filled() == len(m.filled)
}

// Entries returns every computed pair in (i, j) order
func (m *SimilarityMatrix) Entries() []SimilarityEntry {
	entries := make([]SimilarityEntry, 0, len(m.scores))
	n := len(m.labels)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			k := m.index(i, j)
			if !m.filled[k] {
				continue
			}
			entries = append(entries, SimilarityEntry{
				I:     i,
				J:     j,
				A:     m.labels[i],
				B:     m.labels[j],
				Score: m.scores[k],
			})
		}
	}
	return entries
}

// Ranked returns the computed pairs involving target, highest score first.
// Ties keep file order.
func (m *SimilarityMatrix) Ranked(target int) []SimilarityEntry {
	m.check(target, target)
	ranked := make([]SimilarityEntry, 0, len(m.labels))
	for k := range m.labels {
		if k == target || !m.Has(target, k) {
			continue
		}
		i, j := target, k
		if i > j {
			i, j = j, i
		}
		ranked = append(ranked, SimilarityEntry{
			I:     i,
			J:     j,
			A:     m.labels[i],
			B:     m.labels[j],
			Score: m.Score(i, j),
		})
	}
	sortDescending(ranked)
	return ranked
}

func sortDescending(entries []SimilarityEntry) {
	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].Score > entries[b].Score
	})
}

// Records converts the computed pairs into history records
func Records(m *SimilarityMatrix, files []*models.SourceFile, corpusID, runID string, thresholdPercent float64) []models.HistoryRecord {
	entries := m.Entries()
	records := make([]models.HistoryRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, models.HistoryRecord{
			CorpusID:   corpusID,
			RunID:      runID,
			MainID:     fileKey(files, e.I, e.A),
			SubID:      fileKey(files, e.J, e.B),
			Similarity: e.Score,
			Label:      Label(e.Score, thresholdPercent),
		})
	}
	return records
}

func fileKey(files []*models.SourceFile, i int, fallback string) string {
	if i < len(files) && files[i] != nil && files[i].ID != "" {
		return files[i].ID
	}
	return fallback
}

// MatrixFromRecords rebuilds a matrix from stored records. The files of
// the corpus come first, labelled by name and in their order; ids found only
// in records follow in order of first appearance, labelled by id. Pairs
// without a record stay unscored. A later record for the same pair wins.
func MatrixFromRecords(files []*models.SourceFile, records []models.HistoryRecord) *SimilarityMatrix {
	positions := make(map[string]int, len(files))
	labels := make([]string, 0, len(files))
	for _, f := range files {
		key := f.ID
		if key == "" {
			key = f.Name
		}
		if _, ok := positions[key]; ok {
			continue
		}
		positions[key] = len(labels)
		labels = append(labels, f.Name)
	}
	add := func(id string) {
		if _, ok := positions[id]; !ok {
			positions[id] = len(labels)
			labels = append(labels, id)
		}
	}
	for _, r := range records {
		add(r.MainID)
		add(r.SubID)
	}

	m := NewMatrix(labels)
	for _, r := range records {
		if r.MainID == r.SubID {
			continue
		}
		m.Set(positions[r.MainID], positions[r.SubID], r.Similarity)
	}
	return m
}
