package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/kyonifer/silveran-reader-sub004/pkg/downloads"
	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
	"github.com/mattn/go-isatty"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func bookRows(catalog *models.Catalog) [][]string {
	rows := make([][]string, 0, len(catalog.Books))
	for _, b := range catalog.Books {
		variants := make([]string, 0, 3)
		for _, v := range b.Variants() {
			label := string(v)
			if b.Asset(v).Missing {
				label += " (missing)"
			}
			variants = append(variants, label)
		}
		rows = append(rows, []string{
			b.UUID,
			b.Title,
			strings.Join(b.Authors(), ", "),
			strings.Join(variants, ", "),
		})
	}
	return rows
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func formatProgress(received int64, expected *int64) string {
	if expected == nil || *expected <= 0 {
		return humanize.Bytes(uint64(max(received, 0)))
	}
	percent := received * 100 / *expected
	return fmt.Sprintf("%s / %s (%d%%)", humanize.Bytes(uint64(max(received, 0))), humanize.Bytes(uint64(*expected)), percent)
}

// progressPrinter renders transfer events. Progress lines are only drawn on
// a terminal; otherwise just the outcome of each transfer is printed.
type progressPrinter struct {
	w    io.Writer
	live bool
}

func (p *progressPrinter) transfer(ev downloads.Event) {
	switch ev.Kind {
	case downloads.EventProgress:
		if p.live {
			fmt.Fprintf(p.w, "\r\x1b[K%s %s", ev.Ref, formatProgress(ev.Received, ev.Expected))
		}
	case downloads.EventCompleted:
		p.line("%s done, %s", ev.Ref, humanize.Bytes(uint64(max(ev.Received, 0))))
	case downloads.EventFailed:
		p.line("%s failed (%s): %s", ev.Ref, ev.FailureKind, ev.Error)
	}
}

func (p *progressPrinter) line(format string, args ...interface{}) {
	if p.live {
		fmt.Fprint(p.w, "\r\x1b[K")
	}
	fmt.Fprintf(p.w, format+"\n", args...)
}
