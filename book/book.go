// Package book defines canonical in-memory book representation shared by
// normalizers, bundle codec, session and viewport.
package book

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf16"

	"tsukiyomi/utils/debug"
)

// TocEntry is a single table of contents line.
type TocEntry struct {
	ChapterID string `json:"chapterId"`
	Title     string `json:"title"`
}

// Book is immutable once normalized, it is replaced wholesale on re-import.
type Book struct {
	Title string
	HTML  string
	TOC   []TocEntry
	// Raw metadata record of imported bundle, nil otherwise.
	Meta json.RawMessage
	// Overrides embedded into imported bundle.
	Settings *SettingsPatch
	Progress *ProgressPatch
}

// ChapterID synthesizes chapter identifier for 1-based index.
func ChapterID(i int) string {
	return fmt.Sprintf("chapter-%03d", i)
}

// SafeText returns trimmed text or fallback when nothing is left.
func SafeText(text, fallback string) string {
	if v := strings.TrimSpace(text); len(v) > 0 {
		return v
	}
	return fallback
}

// ID returns book identity used as storage key for per-book records. It is a
// cheap fingerprint of title, table of contents length and markup length
// rather than content hash, so distinct books may collide.
func (b *Book) ID() string {
	if b == nil {
		return ""
	}
	title := b.Title
	if title == "" {
		title = "Untitled"
	}
	return fmt.Sprintf("%s::%d::%d", title, len(b.TOC), jsLength(b.HTML))
}

// jsLength counts UTF-16 code units so identities stay compatible with
// records produced by browser version of the reader.
func jsLength(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

// HasChapter reports whether id is present in table of contents.
func (b *Book) HasChapter(id string) bool {
	for _, e := range b.TOC {
		if e.ChapterID == id {
			return true
		}
	}
	return false
}

const dumpExcerpt = 120

// Dump returns human readable book structure for debug report.
func (b *Book) Dump() string {
	tw := debug.NewTreeWriter()
	tw.Line(0, "Book %s", b.ID())
	tw.TextBlock(1, "title", b.Title)
	tw.Line(1, "html: %d bytes", len(b.HTML))
	tw.Excerpt(2, "head", b.HTML, dumpExcerpt)
	tw.Line(1, "toc: %d entries", len(b.TOC))
	for i, e := range b.TOC {
		tw.Line(2, "[%d] %s", i+1, e.ChapterID)
		tw.TextBlock(3, "title", e.Title)
	}
	if b.Settings != nil {
		tw.Line(1, "embedded settings: %s", b.Settings)
	}
	if b.Progress != nil {
		tw.Line(1, "embedded progress: %s", b.Progress)
	}
	if len(b.Meta) > 0 {
		tw.TextBlock(1, "meta", string(b.Meta))
	}
	return tw.String()
}
