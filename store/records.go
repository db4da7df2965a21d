package store

import (
	"strings"
	"time"

	"tsukiyomi/book"
)

const (
	Prefix = "tsukiyomi:"

	KeyLastOpened    = Prefix + "lastOpened"
	KeyLastBookCache = Prefix + "lastBookCache"
	KeySettings      = Prefix + "settings"

	progressPrefix = Prefix + "progress:"

	// SourceCache is the only source of restored books.
	SourceCache = "cache"
)

// ProgressKey returns key of progress record for book identity.
func ProgressKey(bookID string) string {
	return progressPrefix + bookID
}

// ProgressKeys lists identities of all books with stored progress.
func ProgressKeys(kv KV) ([]string, error) {
	keys, err := kv.Keys(progressPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, progressPrefix))
	}
	return ids, nil
}

// LastOpened points to the book to be restored on next start.
type LastOpened struct {
	BookID     string  `json:"bookId"`
	Title      string  `json:"title"`
	SourceType string  `json:"sourceType"`
	SourceData *string `json:"sourceData"`
	SavedAt    string  `json:"savedAt"`
}

// BookCache is lightweight copy of the book, without settings and progress.
type BookCache struct {
	BookID   string          `json:"bookId"`
	Title    string          `json:"title"`
	HTML     string          `json:"html"`
	TOC      []book.TocEntry `json:"toc"`
	CachedAt string          `json:"cachedAt"`
}

// Book returns cached book, nil when cache is not usable.
func (c *BookCache) Book() *book.Book {
	if c == nil || c.HTML == "" || c.TOC == nil {
		return nil
	}
	return &book.Book{Title: book.SafeText(c.Title, "Untitled"), HTML: c.HTML, TOC: c.TOC}
}

// ProgressRecord is stored reading position of a single book.
type ProgressRecord struct {
	ScrollLeft float64 `json:"scrollLeft"`
	ScrollTop  float64 `json:"scrollTop"`
	PageIndex  int     `json:"pageIndex"`
	ChapterID  *string `json:"chapterId"`
	UpdatedAt  string  `json:"updatedAt"`
}

// NewProgressRecord converts progress for storing.
func NewProgressRecord(p book.Progress, updatedAt string) ProgressRecord {
	r := ProgressRecord{
		ScrollLeft: book.OrDefault(p.ScrollLeft, 0),
		ScrollTop:  book.OrDefault(p.ScrollTop, 0),
		PageIndex:  p.PageIndex,
		UpdatedAt:  updatedAt,
	}
	if p.ChapterID != "" {
		id := p.ChapterID
		r.ChapterID = &id
	}
	return r
}

// Patch returns stored values as progress patch.
func (r ProgressRecord) Patch() *book.ProgressPatch {
	p := &book.ProgressPatch{
		ChapterID:  r.ChapterID,
		ScrollLeft: &r.ScrollLeft,
		ScrollTop:  &r.ScrollTop,
		PageIndex:  &r.PageIndex,
	}
	return p
}

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp formats t the way records are stamped: UTC with milliseconds.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
