// Package export writes similarity matrices and diff reports to disk.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Table is the read side of a similarity matrix
type Table interface {
	Labels() []string
	Score(i, j int) float64
	Has(i, j int) bool
}

// FormatPercent renders a score as a percentage with two decimals
func FormatPercent(score float64) string {
	return fmt.Sprintf("%.2f%%", score*100)
}

// MatrixRows lays the matrix out as a square table with a header row and a
// label column. The top-left cell is empty, as is every cell of a pair
// that was never scored.
func MatrixRows(t Table) [][]string {
	labels := t.Labels()
	rows := make([][]string, 0, len(labels)+1)

	header := make([]string, 0, len(labels)+1)
	header = append(header, "")
	header = append(header, labels...)
	rows = append(rows, header)

	for i, label := range labels {
		row := make([]string, 0, len(labels)+1)
		row = append(row, label)
		for j := range labels {
			if !t.Has(i, j) {
				row = append(row, "")
				continue
			}
			row = append(row, FormatPercent(t.Score(i, j)))
		}
		rows = append(rows, row)
	}
	return rows
}

func WriteMatrixCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(MatrixRows(t)); err != nil {
		return fmt.Errorf("failed to write matrix csv: %w", err)
	}
	return nil
}

// WriteMatrixFile writes the matrix CSV to path, creating parent directories
func WriteMatrixFile(path string, t Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create matrix file: %w", err)
	}
	if err := WriteMatrixCSV(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
