// Package normalize converts uploaded documents into canonical book
// representation.
package normalize

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"tsukiyomi/book"
	"tsukiyomi/common"
	"tsukiyomi/detect"
)

const chapterMarker = "# "

var (
	rubyPattern = regexp.MustCompile(`｜(.+?)《(.+?)》`)
	escaper     = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&#39;")
)

// EscapeHTML escapes ampersand, angle brackets, quotes and apostrophe.
func EscapeHTML(s string) string {
	return escaper.Replace(s)
}

// Ruby rewrites "｜base《reading》" shorthand into ruby markup.
func Ruby(s string) string {
	return rubyPattern.ReplaceAllString(s, "<ruby>$1<rt>$2</rt></ruby>")
}

// BaseName returns file name without directories and extension.
func BaseName(name string) string {
	name = filepath.Base(filepath.ToSlash(name))
	if name == "." || name == "/" {
		return ""
	}
	if ext := filepath.Ext(name); ext != "" && ext != name {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

type textChapter struct {
	title      string
	paragraphs []string
}

// Text converts heading-marked plain text into a book. Every line starting
// with "# " opens new chapter, anything before the first one goes into
// implicit chapter. Result always has at least one chapter.
func Text(text, sourceName string, loc *common.Locale) *book.Book {
	var (
		chapters []*textChapter
		current  *textChapter
		buf      []string
	)

	flush := func() {
		if current == nil || len(buf) == 0 {
			return
		}
		// escaping must come first, otherwise injected ruby markup is escaped
		p := Ruby(EscapeHTML(strings.Join(buf, "\n")))
		current.paragraphs = append(current.paragraphs, strings.ReplaceAll(p, "\n", "<br>"))
		buf = buf[:0]
	}
	start := func(title string) {
		flush()
		current = &textChapter{title: book.SafeText(title, loc.Chapter(len(chapters)+1))}
		chapters = append(chapters, current)
	}

	for _, line := range strings.Split(detect.NormalizeNewlines(text), "\n") {
		if title, ok := strings.CutPrefix(line, chapterMarker); ok {
			start(title)
			continue
		}
		if current == nil {
			start(loc.Body())
		}
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		buf = append(buf, line)
	}
	flush()

	if len(chapters) == 0 {
		start(loc.Body())
	}

	b := &book.Book{
		Title: book.SafeText(BaseName(sourceName), loc.Untitled()),
		TOC:   make([]book.TocEntry, 0, len(chapters)),
	}
	parts := make([]string, 0, len(chapters))
	for i, ch := range chapters {
		id := book.ChapterID(i + 1)
		b.TOC = append(b.TOC, book.TocEntry{ChapterID: id, Title: ch.title})
		parts = append(parts, renderChapter(id, ch))
	}
	b.HTML = strings.Join(parts, "\n")
	return b
}

func renderChapter(id string, ch *textChapter) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n<section class=\"chapter\" data-chapter=\"%s\" id=\"%s\">\n", id, id)
	fmt.Fprintf(&sb, "  <h1>%s</h1>\n  ", EscapeHTML(ch.title))
	for i, p := range ch.paragraphs {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("<p>")
		sb.WriteString(p)
		sb.WriteString("</p>")
	}
	sb.WriteString("\n</section>")
	return sb.String()
}
