package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

// statusf writes a progress line to w unless quiet is set. Results go to
// stdout; status lines never do.
func statusf(w io.Writer, quiet bool, format string, args ...any) {
	if quiet {
		return
	}

	fmt.Fprintf(w, format, args...)
}

var sizeUnitNames = []string{"KB", "MB", "GB", "TB"}

// formatSize renders n bytes in binary units with one decimal ("3.1 MB").
func formatSize(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}

	v := float64(n) / 1024
	unit := 0

	for v >= 1024 && unit < len(sizeUnitNames)-1 {
		v /= 1024
		unit++
	}

	return fmt.Sprintf("%.1f %s", v, sizeUnitNames[unit])
}

// formatTime renders a modification time the way ls does: clock time for
// the current year, the year otherwise. The zero time is "-".
func formatTime(t time.Time) string {
	switch {
	case t.IsZero():
		return "-"
	case t.Year() == time.Now().Year():
		return t.Format("Jan _2 15:04")
	default:
		return t.Format("Jan _2  2006")
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// printTable left-aligns rows under headers with two spaces between
// columns. Trailing padding is dropped.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))

	for _, row := range append([][]string{headers}, rows...) {
		for i, cell := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(cell))
		}
	}

	var line strings.Builder

	for _, row := range append([][]string{headers}, rows...) {
		line.Reset()

		for i, cell := range row {
			if i > 0 {
				line.WriteString("  ")
			}

			line.WriteString(cell)
			line.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell)))
		}

		fmt.Fprintln(w, strings.TrimRight(line.String(), " "))
	}
}
