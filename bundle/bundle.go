// Package bundle reads and writes portable book archives: markup, fixed
// vertical writing stylesheet and metadata with reading settings and progress.
package bundle

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"tsukiyomi/archive"
	"tsukiyomi/book"
	"tsukiyomi/common"
	"tsukiyomi/css"
	"tsukiyomi/normalize"
)

const (
	FormatVersion = 1

	HTMLEntry   = "book.html"
	StyleEntry  = "style.css"
	MetaEntry   = "meta.json"
	AssetsEntry = "assets/"

	// DefaultFileName is used for exported archive unless name template is
	// configured.
	DefaultFileName = "book-reader-data.zip"

	// ISO 8601 with milliseconds in UTC
	timestampLayout = "2006-01-02T15:04:05.000Z"

	maxEntrySize = 256 << 20
)

// VerticalCSS is always put into exported bundle regardless of reader theme.
const VerticalCSS = `.vertical-root {
  writing-mode: vertical-rl;
  text-orientation: mixed;
  line-height: var(--line-height);
  letter-spacing: var(--letter-spacing);
}

.vertical-root h1,
.vertical-root h2,
.vertical-root h3 {
  margin: 0 0 1.5rem 0;
}

.vertical-root p {
  margin: 0 0 1.5rem 0;
}`

var (
	// ErrFormat is returned for malformed bundles, nothing is imported in
	// this case.
	ErrFormat = errors.New("invalid bundle format")
	// ErrNoBook is returned when there is nothing to export.
	ErrNoBook = errors.New("no book to export")
)

// Meta is content of metadata entry.
type Meta struct {
	FormatVersion int             `json:"formatVersion"`
	Title         string          `json:"title"`
	CreatedAt     string          `json:"createdAt"`
	Progress      MetaProgress    `json:"progress"`
	Settings      MetaSettings    `json:"settings"`
	TOC           []book.TocEntry `json:"toc"`
}

type MetaProgress struct {
	ChapterID string  `json:"chapterId"`
	ScrollTop float64 `json:"scrollTop"`
}

type MetaSettings struct {
	FontSize      float64      `json:"fontSize"`
	LineHeight    float64      `json:"lineHeight"`
	LetterSpacing float64      `json:"letterSpacing"`
	Theme         common.Theme `json:"theme"`
}

// Codec converts books to bundles and back.
type Codec struct {
	loc *common.Locale
	cp  encoding.Encoding
	css *css.Parser
	log *zap.Logger
}

// New creates codec. Locale is used for synthesized titles when table of
// contents has to be regenerated, cp (may be nil) decodes non UTF-8 entry
// names.
func New(loc *common.Locale, cp encoding.Encoding, log *zap.Logger) *Codec {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("bundle")
	return &Codec{loc: loc, cp: cp, css: css.NewParser(log), log: log}
}

// NewMeta prepares metadata record for export. Missing or zero values are
// replaced with defaults.
func NewMeta(b *book.Book, s *book.Settings, p *book.Progress, now time.Time) *Meta {
	def := book.DefaultSettings()
	if s == nil {
		s = &def
	}
	theme := s.Theme
	if theme == "" {
		theme = def.Theme
	}
	m := &Meta{
		FormatVersion: FormatVersion,
		Title:         b.Title,
		CreatedAt:     now.UTC().Format(timestampLayout),
		Progress:      MetaProgress{ChapterID: book.ChapterID(1)},
		Settings: MetaSettings{
			FontSize:      book.OrDefault(s.FontSize, def.FontSize),
			LineHeight:    book.OrDefault(s.LineHeight, def.LineHeight),
			LetterSpacing: book.OrDefault(s.LetterSpacing, 0),
			Theme:         theme,
		},
		TOC: b.TOC,
	}
	if m.Title == "" {
		m.Title = "Untitled"
	}
	if m.TOC == nil {
		m.TOC = []book.TocEntry{}
	}
	if p != nil {
		if p.ChapterID != "" {
			m.Progress.ChapterID = p.ChapterID
		}
		if !math.IsNaN(p.ScrollTop) && !math.IsInf(p.ScrollTop, 0) {
			m.Progress.ScrollTop = p.ScrollTop
		}
	}
	return m
}

// Write produces bundle for the book. Entries are written in fixed order
// followed by empty assets directory.
func (c *Codec) Write(w io.Writer, b *book.Book, s *book.Settings, p *book.Progress, now time.Time) error {
	if b == nil {
		return common.NewUserError(common.MsgNoBookToExport, ErrNoBook)
	}

	meta, err := marshalMeta(NewMeta(b, s, p, now))
	if err != nil {
		return common.NewUserError(common.MsgExportFailed, err)
	}

	arc := zip.NewWriter(w)
	for _, e := range []struct {
		name string
		data []byte
	}{
		{HTMLEntry, []byte(b.HTML)},
		{StyleEntry, []byte(VerticalCSS)},
		{MetaEntry, meta},
	} {
		fw, err := arc.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Deflate, Modified: now})
		if err != nil {
			return common.NewUserError(common.MsgArchiveUnavailable, fmt.Errorf("unable to create %s: %w", e.name, err))
		}
		if _, err := fw.Write(e.data); err != nil {
			return common.NewUserError(common.MsgExportFailed, fmt.Errorf("unable to write %s: %w", e.name, err))
		}
	}
	if _, err := arc.CreateHeader(&zip.FileHeader{Name: AssetsEntry, Method: zip.Store, Modified: now}); err != nil {
		return common.NewUserError(common.MsgArchiveUnavailable, fmt.Errorf("unable to create %s: %w", AssetsEntry, err))
	}
	if err := arc.Close(); err != nil {
		return common.NewUserError(common.MsgExportFailed, fmt.Errorf("unable to finalize archive: %w", err))
	}

	c.log.Debug("Bundle written", zap.String("title", b.Title), zap.Int("chapters", len(b.TOC)), zap.Int("meta", len(meta)))
	return nil
}

func marshalMeta(m *Meta) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("unable to encode metadata: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// rawMeta is what is accepted on import, bundles may be edited by hand.
type rawMeta struct {
	FormatVersion any             `json:"formatVersion"`
	Title         any             `json:"title"`
	Settings      json.RawMessage `json:"settings"`
	Progress      json.RawMessage `json:"progress"`
	TOC           json.RawMessage `json:"toc"`
}

// Read imports bundle. Both markup and metadata entries must be present and
// format version must match, otherwise error wrapping ErrFormat is returned.
// Table of contents is regenerated from markup when metadata has none.
func (c *Codec) Read(data []byte) (*book.Book, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, common.NewUserError(common.MsgLoadFailed, fmt.Errorf("%w: %w", ErrFormat, err))
	}
	files, err := archive.Index(r, c.cp)
	if err != nil {
		return nil, common.NewUserError(common.MsgLoadFailed, fmt.Errorf("%w: %w", ErrFormat, err))
	}

	metaFile, htmlFile := files[MetaEntry], files[HTMLEntry]
	if metaFile == nil || htmlFile == nil {
		return nil, common.NewUserError(common.MsgBundleEntriesMissing, fmt.Errorf("%w: %s or %s not found", ErrFormat, MetaEntry, HTMLEntry))
	}

	metaData, err := archive.ReadAll(metaFile, maxEntrySize)
	if err != nil {
		return nil, common.NewUserError(common.MsgLoadFailed, fmt.Errorf("%w: %w", ErrFormat, err))
	}
	var meta rawMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, common.NewUserError(common.MsgLoadFailed, fmt.Errorf("%w: unable to decode %s: %w", ErrFormat, MetaEntry, err))
	}
	if v, ok := meta.FormatVersion.(float64); !ok || v != FormatVersion {
		return nil, common.NewUserError(common.MsgBundleUnsupported, fmt.Errorf("%w: unsupported format version %v", ErrFormat, meta.FormatVersion))
	}

	htmlData, err := archive.ReadAll(htmlFile, maxEntrySize)
	if err != nil {
		return nil, common.NewUserError(common.MsgLoadFailed, fmt.Errorf("%w: %w", ErrFormat, err))
	}

	title, _ := meta.Title.(string)
	b := &book.Book{
		Title: book.SafeText(title, c.loc.Untitled()),
		HTML:  string(htmlData),
		Meta:  json.RawMessage(metaData),
	}

	var toc []book.TocEntry
	if len(meta.TOC) > 0 && json.Unmarshal(meta.TOC, &toc) == nil && len(toc) > 0 {
		b.TOC = toc
	} else {
		b.TOC = normalize.TOCFromHTML(b.HTML, c.loc)
		c.log.Debug("Table of contents regenerated", zap.Int("chapters", len(b.TOC)))
	}

	if isObject(meta.Settings) {
		var sp book.SettingsPatch
		if err := json.Unmarshal(meta.Settings, &sp); err == nil {
			b.Settings = &sp
		}
	}
	if isObject(meta.Progress) {
		var pp book.ProgressPatch
		if err := json.Unmarshal(meta.Progress, &pp); err == nil {
			b.Progress = &pp
		}
	}

	if f := files[StyleEntry]; f != nil {
		c.inspectStyle(f)
	}

	c.log.Debug("Bundle read", zap.String("title", b.Title), zap.Int("chapters", len(b.TOC)), zap.Int("entries", len(files)))
	return b, nil
}

// inspectStyle only reports, bundled stylesheet is never applied.
func (c *Codec) inspectStyle(f *zip.File) {
	data, err := archive.ReadAll(f, maxEntrySize)
	if err != nil {
		c.log.Warn("Unable to read bundled stylesheet", zap.Error(err))
		return
	}
	sheet := c.css.Parse(data, StyleEntry)
	if v, ok := sheet.Property(".vertical-root", "writing-mode"); !ok || v != "vertical-rl" {
		c.log.Warn("Bundled stylesheet does not set vertical writing mode", zap.String("writing-mode", v))
	}
	for _, w := range sheet.Warnings {
		c.log.Debug("Bundled stylesheet", zap.String("warning", w))
	}
}

func isObject(raw json.RawMessage) bool {
	return strings.HasPrefix(strings.TrimSpace(string(raw)), "{")
}
