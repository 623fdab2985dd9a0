package diffreport

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
)

type displayCell struct {
	Number       int
	Continuation bool
	Segments     []Segment
	Class        string
}

type displayRow struct {
	Tag   Tag
	Left  displayCell
	Right displayCell
}

type page struct {
	LabelA string
	LabelB string
	LinesA int
	LinesB int
	Stats  Stats
	Rows   []displayRow
}

var cellClass = map[Tag][2]string{
	TagEqual:   {"", ""},
	TagDelete:  {"del", "pad"},
	TagInsert:  {"pad", "add"},
	TagReplace: {"chg", "chg"},
}

// Render writes the report as a standalone HTML document
func (r *Report) Render(w io.Writer) error {
	p := page{
		LabelA: r.LabelA,
		LabelB: r.LabelB,
		LinesA: r.LinesA,
		LinesB: r.LinesB,
		Stats:  r.Stats,
	}
	for _, row := range r.Rows {
		p.Rows = append(p.Rows, wrapRow(row, r.opts.WrapColumn)...)
	}

	if err := reportTemplate.Execute(w, p); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

// HTML renders the report into memory
func (r *Report) HTML() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// wrapRow splits a row whose cells exceed width into continuation rows
func wrapRow(row Row, width int) []displayRow {
	classes := cellClass[row.Tag]
	left := wrapCell(row.Left, width, classes[0])
	right := wrapCell(row.Right, width, classes[1])

	n := max(len(left), len(right))
	out := make([]displayRow, n)
	for k := 0; k < n; k++ {
		out[k].Tag = row.Tag
		if k < len(left) {
			out[k].Left = left[k]
		} else {
			out[k].Left = displayCell{Class: classes[0]}
		}
		if k < len(right) {
			out[k].Right = right[k]
		} else {
			out[k].Right = displayCell{Class: classes[1]}
		}
	}
	return out
}

func wrapCell(c Cell, width int, class string) []displayCell {
	if c.Empty() {
		return []displayCell{{Class: class}}
	}
	chunks := wrapSegments(c.Segments, width)
	out := make([]displayCell, len(chunks))
	for k, chunk := range chunks {
		out[k] = displayCell{
			Number:       c.Number,
			Continuation: k > 0,
			Segments:     chunk,
			Class:        class,
		}
	}
	return out
}

// wrapSegments cuts segments into lines of at most width runes
func wrapSegments(segs []Segment, width int) [][]Segment {
	if width <= 0 {
		return [][]Segment{segs}
	}

	var (
		lines   [][]Segment
		current []Segment
		used    int
	)
	for _, seg := range segs {
		runes := []rune(seg.Text)
		for len(runes) > 0 {
			if used == width {
				lines = append(lines, current)
				current, used = nil, 0
			}
			take := min(width-used, len(runes))
			current = append(current, Segment{Text: string(runes[:take]), Changed: seg.Changed})
			used += take
			runes = runes[take:]
		}
	}
	return append(lines, current)
}

var reportTemplate = template.Must(template.New("report").Parse(reportHTML))

const reportHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.LabelA}} vs {{.LabelB}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; margin: 1.5em; color: #1f2328; }
h1 { font-size: 1.2em; margin-bottom: .3em; }
p.summary { color: #59636e; margin-top: 0; }
table.diff { border-collapse: collapse; width: 100%; font-family: Menlo, Consolas, "Courier New", monospace; font-size: 12px; }
table.diff th { background: #f6f8fa; text-align: left; padding: 4px 6px; border-bottom: 1px solid #d1d9e0; }
table.diff td { padding: 0 6px; vertical-align: top; white-space: pre; }
td.num { color: #8c959f; text-align: right; width: 3em; user-select: none; border-right: 1px solid #d1d9e0; }
td.del { background: #ffebe9; }
td.add { background: #dafbe1; }
td.chg { background: #fff8c5; }
td.pad { background: #f6f8fa; }
span.hl { background: #ffd33d; }
td.del span.hl { background: #ffc1ba; }
td.add span.hl { background: #aceebb; }
ul.legend { list-style: none; padding: 0; display: flex; gap: 1.2em; font-size: 12px; }
ul.legend span { display: inline-block; width: 1em; height: 1em; vertical-align: middle; margin-right: .3em; border: 1px solid #d1d9e0; }
</style>
</head>
<body>
<h1>{{.LabelA}} &harr; {{.LabelB}}</h1>
<p class="summary">{{.LinesA}} vs {{.LinesB}} lines: {{.Stats.Equal}} equal, {{.Stats.Replaced}} changed, {{.Stats.Deleted}} only left, {{.Stats.Inserted}} only right</p>
<ul class="legend">
<li><span style="background:#dafbe1"></span>added</li>
<li><span style="background:#fff8c5"></span>changed</li>
<li><span style="background:#ffebe9"></span>deleted</li>
</ul>
<table class="diff">
<thead><tr><th></th><th>{{.LabelA}}</th><th></th><th>{{.LabelB}}</th></tr></thead>
<tbody>
{{- range .Rows}}
<tr class="{{.Tag}}">
{{- template "cell" .Left}}
{{- template "cell" .Right}}
</tr>
{{- else}}
<tr><td></td><td colspan="3">Both files are empty.</td></tr>
{{- end}}
</tbody>
</table>
</body>
</html>
{{define "cell"}}<td class="num">{{if .Continuation}}&gt;{{else if .Number}}{{.Number}}{{end}}</td><td class="code {{.Class}}">{{range .Segments}}{{if .Changed}}<span class="hl">{{.Text}}</span>{{else}}{{.Text}}{{end}}{{end}}</td>{{end}}
`
