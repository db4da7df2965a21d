package normalize

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"

	"tsukiyomi/book"
	"tsukiyomi/common"
	"tsukiyomi/markup"
)

// ChapterClass marks chapter root elements.
const ChapterClass = "chapter"

// HTML converts arbitrary HTML into a book. Scripts are removed, existing
// chapter roots are reused and, when there are none, entire body becomes single
// chapter. Only unreadable input results in error.
func HTML(r io.Reader, sourceName string, loc *common.Locale, log *zap.Logger) (*book.Book, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("normalize")

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read html: %w", err)
	}
	data, enc := toUTF8(data)
	log.Debug("HTML source decoded", zap.String("source", sourceName), zap.String("charset", enc))

	doc, err := markup.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if n := markup.RemoveAll(doc.Root(), atom.Script); n > 0 {
		log.Debug("Removed scripts", zap.Int("count", n))
	}

	chapters := chapterRoots(doc.Root())
	if len(chapters) == 0 {
		body := doc.Body()
		section := markup.NewElement(atom.Section, html.Attribute{Key: "class", Val: ChapterClass})
		section.AppendChild(markup.WithText(markup.NewElement(atom.H1), book.SafeText(BaseName(sourceName), loc.Body())))
		markup.MoveChildren(section, body)
		body.AppendChild(section)
		chapters = []*html.Node{section}
		log.Debug("No chapters found, synthesized one", zap.String("source", sourceName))
	}

	b := &book.Book{
		Title: book.SafeText(BaseName(sourceName), loc.Untitled()),
		TOC:   make([]book.TocEntry, 0, len(chapters)),
	}
	ids := make(map[string]bool, len(chapters))
	parts := make([]string, 0, len(chapters))
	for i, ch := range chapters {
		id := chapterID(ch, i, ids)
		markup.SetAttr(ch, "id", id)
		markup.SetAttr(ch, "data-chapter", id)

		var title string
		if h1 := markup.Find(ch, atom.H1); h1 != nil {
			title = markup.Text(h1)
		} else {
			title = loc.Chapter(i + 1)
			markup.Prepend(ch, markup.WithText(markup.NewElement(atom.H1), title))
		}
		b.TOC = append(b.TOC, book.TocEntry{ChapterID: id, Title: book.SafeText(title, loc.Chapter(i+1))})

		out, err := markup.OuterHTML(ch)
		if err != nil {
			return nil, err
		}
		parts = append(parts, out)
	}
	b.HTML = strings.Join(parts, "\n")

	log.Debug("HTML normalized", zap.String("title", b.Title), zap.Int("chapters", len(b.TOC)))
	return b, nil
}

// TOCFromHTML scans already normalized markup for chapter roots without
// changing anything.
func TOCFromHTML(text string, loc *common.Locale) []book.TocEntry {
	doc, err := markup.ParseString(text)
	if err != nil {
		return []book.TocEntry{}
	}
	chapters := chapterRoots(doc.Root())
	ids := make(map[string]bool, len(chapters))
	toc := make([]book.TocEntry, 0, len(chapters))
	for i, ch := range chapters {
		title := loc.Chapter(i + 1)
		if h1 := markup.Find(ch, atom.H1); h1 != nil {
			title = markup.Text(h1)
		}
		toc = append(toc, book.TocEntry{ChapterID: chapterID(ch, i, ids), Title: book.SafeText(title, loc.Chapter(i+1))})
	}
	return toc
}

// chapterRoots returns outermost chapter roots in document order, nested ones
// are treated as ordinary content of their parent chapter.
func chapterRoots(root *html.Node) []*html.Node {
	all := markup.FindByClass(root, atom.Section, ChapterClass)
	res := make([]*html.Node, 0, len(all))
	inside := make(map[*html.Node]bool, len(all))
	for _, n := range all {
		inside[n] = true
	}
	for _, n := range all {
		nested := false
		for p := n.Parent; p != nil; p = p.Parent {
			if inside[p] {
				nested = true
				break
			}
		}
		if !nested {
			res = append(res, n)
		}
	}
	return res
}

// chapterID reuses existing id attribute when possible, otherwise synthesizes
// "chapter-NNN" from 0-based position. Duplicates get numeric suffix.
func chapterID(n *html.Node, i int, seen map[string]bool) string {
	id, _ := markup.Attr(n, "id")
	id = strings.TrimSpace(id)
	if id == "" || seen[id] {
		id = book.ChapterID(i + 1)
	}
	for base, k := id, 2; seen[id]; k++ {
		id = base + "-" + strconv.Itoa(k)
	}
	seen[id] = true
	return id
}

// toUTF8 honors byte order marks and meta charset declarations, valid UTF-8 is
// taken as is.
func toUTF8(data []byte) ([]byte, string) {
	if utf8.Valid(data) {
		return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), "utf-8"
	}
	enc, name, _ := charset.DetermineEncoding(data, "text/html")
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return data, "utf-8"
	}
	return out, name
}
