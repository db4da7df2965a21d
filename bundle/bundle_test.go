package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"tsukiyomi/book"
	"tsukiyomi/common"
	"tsukiyomi/normalize"
)

var now = time.Date(2024, 5, 6, 7, 8, 9, 10_000_000, time.UTC)

func newCodec(t *testing.T) *Codec {
	return New(common.NewLocale("ja"), nil, zaptest.NewLogger(t))
}

func sampleBook() *book.Book {
	return normalize.Text("# 序章\n｜漢字《かんじ》\n\n# 終章\n<end> & \"q\"", "novel.txt", common.DefaultLocale)
}

func makeZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	for name, content := range entries {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("unable to create %s: %v", name, err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("unable to write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("unable to close zip: %v", err)
	}
	return buf.Bytes()
}

func TestWrite_Entries(t *testing.T) {
	c := newCodec(t)
	buf := new(bytes.Buffer)
	if err := c.Write(buf, sampleBook(), nil, nil, now); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	r, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("unable to read result: %v", err)
	}
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	if strings.Join(names, ",") != "book.html,style.css,meta.json,assets/" {
		t.Errorf("entries = %v", names)
	}

	rc, err := r.File[2].Open()
	if err != nil {
		t.Fatalf("unable to open meta: %v", err)
	}
	defer rc.Close()
	buf.Reset()
	if _, err := buf.ReadFrom(rc); err != nil {
		t.Fatalf("unable to read meta: %v", err)
	}
	meta := buf.String()
	for _, want := range []string{
		"{\n  \"formatVersion\": 1,\n  \"title\": \"novel\",",
		`"createdAt": "2024-05-06T07:08:09.010Z"`,
		`"chapterId": "chapter-001"`,
		`"fontSize": 100`,
		`"lineHeight": 1.8`,
		`"theme": "light"`,
		`"title": "序章"`,
	} {
		if !strings.Contains(meta, want) {
			t.Errorf("meta.json does not contain %q:\n%s", want, meta)
		}
	}
}

func TestWrite_NoBook(t *testing.T) {
	err := newCodec(t).Write(new(bytes.Buffer), nil, nil, nil, now)
	if !errors.Is(err, ErrNoBook) {
		t.Fatalf("Write() error = %v, want ErrNoBook", err)
	}
	if msg := common.UserMessage(err, common.DefaultLocale); msg != "書き出す本がありません。" {
		t.Errorf("user message = %q", msg)
	}
}

func TestNewMeta_Defaults(t *testing.T) {
	b := &book.Book{}
	s := &book.Settings{FontSize: 0, LineHeight: 2.2, LetterSpacing: 0.1}
	p := &book.Progress{ScrollTop: 42}
	m := NewMeta(b, s, p, now)
	if m.Title != "Untitled" {
		t.Errorf("Title = %q", m.Title)
	}
	if m.Settings.FontSize != 100 || m.Settings.LineHeight != 2.2 || m.Settings.LetterSpacing != 0.1 || m.Settings.Theme != common.ThemeLight {
		t.Errorf("Settings = %+v", m.Settings)
	}
	if m.Progress.ChapterID != "chapter-001" || m.Progress.ScrollTop != 42 {
		t.Errorf("Progress = %+v", m.Progress)
	}
	if m.TOC == nil {
		t.Error("TOC must be empty list, not null")
	}
}

func TestRoundTrip(t *testing.T) {
	c := newCodec(t)
	orig := sampleBook()
	size := 130.0
	settings := book.DefaultSettings().Merge(&book.SettingsPatch{FontSize: &size})
	progress := &book.Progress{ChapterID: "chapter-002", ScrollTop: 150}

	first := new(bytes.Buffer)
	if err := c.Write(first, orig, &settings, progress, now); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	imported, err := c.Read(first.Bytes())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if imported.Title != orig.Title || imported.HTML != orig.HTML {
		t.Errorf("book changed: %q/%q", imported.Title, imported.HTML)
	}
	if len(imported.TOC) != len(orig.TOC) {
		t.Fatalf("toc = %+v", imported.TOC)
	}
	for i := range orig.TOC {
		if imported.TOC[i] != orig.TOC[i] {
			t.Errorf("toc[%d] = %+v, want %+v", i, imported.TOC[i], orig.TOC[i])
		}
	}
	if imported.Settings == nil || *imported.Settings.FontSize != 130 {
		t.Errorf("embedded settings = %v", imported.Settings)
	}
	if imported.Progress == nil || *imported.Progress.ChapterID != "chapter-002" || *imported.Progress.ScrollTop != 150 {
		t.Errorf("embedded progress = %v", imported.Progress)
	}
	if len(imported.Meta) == 0 {
		t.Error("raw metadata not kept")
	}

	// export of imported bundle preserves everything again
	second := new(bytes.Buffer)
	if err := c.Write(second, imported, &settings, progress, now); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	again, err := c.Read(second.Bytes())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if again.HTML != orig.HTML || again.Title != orig.Title || again.ID() != orig.ID() {
		t.Error("second round trip changed the book")
	}
}

func TestRead_FormatErrors(t *testing.T) {
	meta := `{"formatVersion":1,"title":"x","toc":[]}`
	tests := []struct {
		name string
		data []byte
		msg  common.MessageID
	}{
		{"not a zip", []byte("plain text"), common.MsgLoadFailed},
		{"no meta", makeZip(t, map[string]string{"book.html": "<p/>"}), common.MsgBundleEntriesMissing},
		{"no html", makeZip(t, map[string]string{"meta.json": meta}), common.MsgBundleEntriesMissing},
		{"bad json", makeZip(t, map[string]string{"meta.json": "{", "book.html": ""}), common.MsgLoadFailed},
		{"version 2", makeZip(t, map[string]string{"meta.json": `{"formatVersion":2}`, "book.html": ""}), common.MsgBundleUnsupported},
		{"version as string", makeZip(t, map[string]string{"meta.json": `{"formatVersion":"1"}`, "book.html": ""}), common.MsgBundleUnsupported},
		{"no version", makeZip(t, map[string]string{"meta.json": `{}`, "book.html": ""}), common.MsgBundleUnsupported},
		{"unsafe path", makeZip(t, map[string]string{"meta.json": meta, "book.html": "", "../x": ""}), common.MsgLoadFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := newCodec(t).Read(tt.data)
			if b != nil {
				t.Error("no book must be returned on error")
			}
			if !errors.Is(err, ErrFormat) {
				t.Fatalf("Read() error = %v, want ErrFormat", err)
			}
			var ue *common.UserError
			if !errors.As(err, &ue) || ue.ID != tt.msg {
				t.Errorf("message id = %v, want %v", ue, tt.msg)
			}
		})
	}
}

func TestRead_RegeneratesTOC(t *testing.T) {
	orig := sampleBook()
	for _, meta := range []string{
		`{"formatVersion":1,"title":"  "}`,
		`{"formatVersion":1,"title":"t","toc":[]}`,
		`{"formatVersion":1,"title":"t","toc":"broken","settings":"x","progress":null}`,
	} {
		b, err := newCodec(t).Read(makeZip(t, map[string]string{"meta.json": meta, "book.html": orig.HTML}))
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if len(b.TOC) != 2 || b.TOC[0] != orig.TOC[0] || b.TOC[1] != orig.TOC[1] {
			t.Errorf("toc = %+v, want %+v", b.TOC, orig.TOC)
		}
		if b.Settings != nil || b.Progress != nil {
			t.Errorf("unexpected overrides %v %v", b.Settings, b.Progress)
		}
	}
	b, err := newCodec(t).Read(makeZip(t, map[string]string{"meta.json": `{"formatVersion":1}`, "book.html": ""}))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if b.Title != "Untitled" || len(b.TOC) != 0 {
		t.Errorf("book = %+v", b)
	}
}

func TestExport(t *testing.T) {
	c := newCodec(t)
	dir := t.TempDir()
	b := sampleBook()

	name, err := c.Export(context.Background(), dir, b, nil, nil, ExportOptions{FixZip: true}, now)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if name != filepath.Join(dir, DefaultFileName) {
		t.Errorf("name = %q", name)
	}
	imported, err := c.ReadFile(name)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if imported.HTML != b.HTML {
		t.Error("exported markup differs")
	}

	// no overwrite without permission
	if _, err := c.Export(context.Background(), dir, b, nil, nil, ExportOptions{}, now); !errors.Is(err, ErrExists) {
		t.Errorf("Export() error = %v, want ErrExists", err)
	}
	if _, err := c.Export(context.Background(), dir, b, nil, nil, ExportOptions{Overwrite: true}, now); err != nil {
		t.Errorf("Export() with overwrite error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestExport_Failures(t *testing.T) {
	c := newCodec(t)
	dir := t.TempDir()

	if _, err := c.Export(context.Background(), dir, nil, nil, nil, ExportOptions{}, now); !errors.Is(err, ErrNoBook) {
		t.Errorf("Export() error = %v, want ErrNoBook", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Export(ctx, dir, sampleBook(), nil, nil, ExportOptions{}, now); !errors.Is(err, context.Canceled) {
		t.Errorf("Export() error = %v, want context.Canceled", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("failed export left files: %v", entries)
	}
}

func TestExport_ToFile(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "sub", "my.zip")
	name, err := newCodec(t).Export(context.Background(), dst, sampleBook(), nil, nil, ExportOptions{}, now)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if name != dst {
		t.Errorf("name = %q, want %q", name, dst)
	}
}

func TestFileName(t *testing.T) {
	c := newCodec(t)
	b := &book.Book{Title: "吾輩は猫/である", TOC: []book.TocEntry{{ChapterID: "chapter-001", Title: "x"}}}
	tests := []struct {
		name string
		opts ExportOptions
		want string
	}{
		{"default", ExportOptions{}, DefaultFileName},
		{"title", ExportOptions{NameTemplate: "{{ .Title }}"}, "吾輩は猫である.zip"},
		{"sprig", ExportOptions{NameTemplate: `{{ .Title | replace "/" "-" }}-{{ .Chapters }}-{{ .Date.Year }}.zip`}, "吾輩は猫-である-1-2024.zip"},
		{"transliterated", ExportOptions{NameTemplate: "Hello World", Transliterate: true}, "hello-world.zip"},
		{"broken template", ExportOptions{NameTemplate: "{{ .Nope"}, DefaultFileName},
		{"unknown field", ExportOptions{NameTemplate: "{{ .Nope }}"}, DefaultFileName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.FileName(b, tt.opts, now); got != tt.want {
				t.Errorf("FileName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMetaJSON_NoHTMLEscaping(t *testing.T) {
	data, err := marshalMeta(NewMeta(&book.Book{Title: "<a&b>"}, nil, nil, now))
	if err != nil {
		t.Fatalf("marshalMeta() error = %v", err)
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unable to decode: %v", err)
	}
	if !bytes.Contains(data, []byte(`"<a&b>"`)) || m.Title != "<a&b>" {
		t.Errorf("meta = %s", data)
	}
}
