package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/wastewatch/console/internal/wire"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func colorize(s, color string, enabled bool) string {
	if !enabled {
		return s
	}
	return color + s + ansiReset
}

// renderEventTable formats the detection ledger for terminal output.
func renderEventTable(events []wire.DetectionEvent) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "Time", "Source", "Category", "Description"})

	for _, ev := range events {
		ts := ""
		if !ev.Timestamp.IsZero() {
			ts = ev.Timestamp.Format(time.TimeOnly)
		}
		tw.AppendRow(table.Row{ev.ID, ts, ev.Source, ev.Category, ev.Description})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 5, WidthMax: 48},
	})

	return tw.Render()
}

// renderProgressLine overwrites itself on a terminal, appends otherwise.
func renderProgressLine(w io.Writer, label string, pct int, terminal bool) {
	if terminal {
		fmt.Fprintf(w, "\r%-12s %3d%%", label, pct)
		return
	}
	fmt.Fprintf(w, "%s %d%%\n", label, pct)
}

func formatIDs(ids []int64) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += strconv.FormatInt(id, 10)
	}
	return out
}
