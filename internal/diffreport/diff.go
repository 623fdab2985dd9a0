// Package diffreport aligns two raw source texts line by line and renders the
// alignment as a self-contained side-by-side HTML document.
package diffreport

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sergi/go-diff/diffmatchpatch"
)

type Tag string

const (
	TagEqual   Tag = "equal"
	TagInsert  Tag = "insert"
	TagDelete  Tag = "delete"
	TagReplace Tag = "replace"
)

var opcodeTags = map[byte]Tag{
	'e': TagEqual,
	'i': TagInsert,
	'd': TagDelete,
	'r': TagReplace,
}

// Opcode maps lines [A1,A2) of the left text onto [B1,B2) of the right
type Opcode struct {
	Tag Tag `json:"tag"`
	A1  int `json:"a1"`
	A2  int `json:"a2"`
	B1  int `json:"b1"`
	B2  int `json:"b2"`
}

// Segment is a run of text within a line; Changed marks intra-line edits
type Segment struct {
	Text    string
	Changed bool
}

// Cell is one side of a row. Number is the 1-based line number, 0 when the
// side has no line.
type Cell struct {
	Number   int
	Segments []Segment
}

func (c Cell) Empty() bool {
	return c.Number == 0
}

// Text returns the cell's full line text
func (c Cell) Text() string {
	var b strings.Builder
	for _, s := range c.Segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Row pairs at most one line from each side
type Row struct {
	Tag   Tag
	Left  Cell
	Right Cell
}

type Stats struct {
	Equal    int `json:"equal"`
	Inserted int `json:"inserted"`
	Deleted  int `json:"deleted"`
	Replaced int `json:"replaced"`
}

type Options struct {
	TabSize    int
	WrapColumn int
}

// DefaultOptions expands tabs to 4 columns and wraps at column 80
var DefaultOptions = Options{TabSize: 4, WrapColumn: 80}

// Report is the line-level alignment of two texts
type Report struct {
	LabelA  string
	LabelB  string
	LinesA  int
	LinesB  int
	Opcodes []Opcode
	Rows    []Row
	Stats   Stats
	opts    Options
}

// Build aligns rawA against rawB. The result depends only on its inputs.
func Build(rawA, rawB, labelA, labelB string, opts Options) *Report {
	linesA := SplitLines(rawA, opts.TabSize)
	linesB := SplitLines(rawB, opts.TabSize)

	r := &Report{
		LabelA: labelA,
		LabelB: labelB,
		LinesA: len(linesA),
		LinesB: len(linesB),
		opts:   opts,
	}

	m := difflib.NewMatcherWithJunk(linesA, linesB, false, nil)
	for _, op := range m.GetOpCodes() {
		code := Opcode{Tag: opcodeTags[op.Tag], A1: op.I1, A2: op.I2, B1: op.J1, B2: op.J2}
		r.Opcodes = append(r.Opcodes, code)
		r.appendRows(code, linesA, linesB)
	}
	return r
}

func (r *Report) appendRows(op Opcode, linesA, linesB []string) {
	switch op.Tag {
	case TagEqual:
		for k := 0; k < op.A2-op.A1; k++ {
			i, j := op.A1+k, op.B1+k
			r.Rows = append(r.Rows, Row{Tag: TagEqual, Left: plainCell(i, linesA[i]), Right: plainCell(j, linesB[j])})
			r.Stats.Equal++
		}
	case TagDelete:
		for i := op.A1; i < op.A2; i++ {
			r.Rows = append(r.Rows, Row{Tag: TagDelete, Left: plainCell(i, linesA[i])})
			r.Stats.Deleted++
		}
	case TagInsert:
		for j := op.B1; j < op.B2; j++ {
			r.Rows = append(r.Rows, Row{Tag: TagInsert, Right: plainCell(j, linesB[j])})
			r.Stats.Inserted++
		}
	case TagReplace:
		n := max(op.A2-op.A1, op.B2-op.B1)
		for k := 0; k < n; k++ {
			i, j := op.A1+k, op.B1+k
			switch {
			case i < op.A2 && j < op.B2:
				left, right := intraLine(linesA[i], linesB[j])
				r.Rows = append(r.Rows, Row{
					Tag:   TagReplace,
					Left:  Cell{Number: i + 1, Segments: left},
					Right: Cell{Number: j + 1, Segments: right},
				})
				r.Stats.Replaced++
			case i < op.A2:
				r.Rows = append(r.Rows, Row{Tag: TagDelete, Left: changedCell(i, linesA[i])})
				r.Stats.Deleted++
			default:
				r.Rows = append(r.Rows, Row{Tag: TagInsert, Right: changedCell(j, linesB[j])})
				r.Stats.Inserted++
			}
		}
	}
}

// Identical reports whether every aligned line is equal
func (r *Report) Identical() bool {
	return r.Stats.Inserted == 0 && r.Stats.Deleted == 0 && r.Stats.Replaced == 0
}

func plainCell(idx int, line string) Cell {
	return Cell{Number: idx + 1, Segments: []Segment{{Text: line}}}
}

func changedCell(idx int, line string) Cell {
	return Cell{Number: idx + 1, Segments: []Segment{{Text: line, Changed: true}}}
}

// intraLine splits a replaced line pair into unchanged and changed runs
func intraLine(a, b string) ([]Segment, []Segment) {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(a, b, false))

	var left, right []Segment
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			left = append(left, Segment{Text: d.Text})
			right = append(right, Segment{Text: d.Text})
		case diffmatchpatch.DiffDelete:
			left = append(left, Segment{Text: d.Text, Changed: true})
		case diffmatchpatch.DiffInsert:
			right = append(right, Segment{Text: d.Text, Changed: true})
		}
	}
	return left, right
}

// SplitLines splits text on \n (dropping a trailing \r and the empty piece
// after a final newline) and expands tabs.
func SplitLines(text string, tabSize int) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, line := range lines {
		lines[i] = ExpandTabs(strings.TrimSuffix(line, "\r"), tabSize)
	}
	return lines
}

// ExpandTabs replaces tabs with spaces up to the next multiple of tabSize
func ExpandTabs(line string, tabSize int) string {
	if tabSize <= 0 || !strings.Contains(line, "\t") {
		return line
	}
	var b strings.Builder
	col := 0
	for _, r := range line {
		if r == '\t' {
			pad := tabSize - col%tabSize
			b.WriteString(strings.Repeat(" ", pad))
			col += pad
			continue
		}
		b.WriteRune(r)
		col++
	}
	return b.String()
}
