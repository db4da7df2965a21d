// Package debug renders human readable dumps stored in debug reports.
package debug

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const indent = "  "

// TreeWriter accumulates indented lines.
type TreeWriter struct {
	w *strings.Builder
}

func NewTreeWriter() *TreeWriter {
	return &TreeWriter{w: &strings.Builder{}}
}

func (tw *TreeWriter) String() string {
	return tw.w.String()
}

func (tw *TreeWriter) pad(depth int) {
	tw.w.WriteString(strings.Repeat(indent, max(depth, 0)))
}

func (tw *TreeWriter) Line(depth int, format string, args ...any) {
	tw.pad(depth)
	fmt.Fprintf(tw.w, format, args...)
	tw.w.WriteByte('\n')
}

// TextBlock writes labeled quoted value, empty values are left bare.
func (tw *TreeWriter) TextBlock(depth int, label, value string) {
	tw.pad(depth)
	tw.w.WriteString(label)
	tw.w.WriteString(": ")
	tw.w.WriteString(quote(value))
	tw.w.WriteByte('\n')
}

// Excerpt is TextBlock keeping at most limit leading runes of value and
// noting how many were cut.
func (tw *TreeWriter) Excerpt(depth int, label, value string, limit int) {
	n := utf8.RuneCountInString(value)
	if limit < 0 || n <= limit {
		tw.TextBlock(depth, label, value)
		return
	}
	head := []rune(value)[:limit]
	tw.pad(depth)
	fmt.Fprintf(tw.w, "%s: %s (+%d runes)\n", label, quote(string(head)), n-limit)
}

func quote(raw string) string {
	if raw == "" {
		return raw
	}
	return strconv.Quote(raw)
}
