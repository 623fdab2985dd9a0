package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/RishiKendai/twinscan/internal/export"
	"github.com/RishiKendai/twinscan/internal/models"
	"github.com/RishiKendai/twinscan/internal/plagiarism"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

var (
	suspectColor = color.New(color.FgRed, color.Bold)
	clearColor   = color.New(color.FgGreen)
)

func labelText(label string) string {
	if label == plagiarism.LabelSuspect {
		return suspectColor.Sprint(label)
	}
	return clearColor.Sprint(label)
}

func newTable(out io.Writer, title string) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(out)
	tbl.SetStyle(table.StyleLight)
	tbl.SetTitle(title)
	return tbl
}

func renderSuspects(out io.Writer, suspects []plagiarism.SuspectPair, thresholdPercent float64) {
	if len(suspects) == 0 {
		fmt.Fprintln(out, clearColor.Sprintf("No pairs at or above %.2f%%", thresholdPercent))
		return
	}

	tbl := newTable(out, "Suspect pairs")
	tbl.AppendHeader(table.Row{"#", "File A", "File B", "Similarity"})
	for i, s := range suspects {
		tbl.AppendRow(table.Row{i + 1, s.A, s.B, suspectColor.Sprint(s.Percent())})
	}
	tbl.AppendFooter(table.Row{"", "", "Total", len(suspects)})
	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
	})
	tbl.Render()
}

func renderRanking(out io.Writer, target string, ranked []plagiarism.SimilarityEntry, thresholdPercent float64) {
	if len(ranked) == 0 {
		fmt.Fprintln(out, color.YellowString("No other files to compare with %s", target))
		return
	}

	tbl := newTable(out, "Similarity to "+target)
	tbl.AppendHeader(table.Row{"#", "File", "Similarity", "Label"})
	for i, e := range ranked {
		tbl.AppendRow(table.Row{i + 1, e.Other(target), e.Percent(), labelText(plagiarism.Label(e.Score, thresholdPercent))})
	}
	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
	})
	tbl.Render()
}

func renderHistory(out io.Writer, records []models.HistoryRecord) {
	tbl := newTable(out, "History")
	tbl.AppendHeader(table.Row{"Run", "Main", "Sub", "Similarity", "Label", "Recorded"})
	for _, r := range records {
		tbl.AppendRow(table.Row{
			shortID(r.RunID),
			r.MainID,
			r.SubID,
			export.FormatPercent(r.Similarity),
			labelText(r.Label),
			r.CreatedAt.Local().Format(time.DateTime),
		})
	}
	tbl.AppendFooter(table.Row{"", "", "", "", "Total", len(records)})
	tbl.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
