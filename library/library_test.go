package library

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"golang.org/x/text/encoding/japanese"

	"tsukiyomi/archive"
	"tsukiyomi/book"
	"tsukiyomi/bundle"
	"tsukiyomi/common"
	"tsukiyomi/detect"
	"tsukiyomi/normalize"
)

type opener struct {
	books []*book.Book
}

func (o *opener) OpenBook(b *book.Book) { o.books = append(o.books, b) }

func newLoader(t *testing.T) *Loader {
	log := zaptest.NewLogger(t)
	loc := common.NewLocale("ja")
	return NewLoader(loc, bundle.New(loc, nil, log), common.EncodingModeAuto, nil, log)
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Text(t *testing.T) {
	sjis, err := japanese.ShiftJIS.NewEncoder().String("# 序章\n吾輩は猫である。")
	if err != nil {
		t.Fatal(err)
	}
	res, err := newLoader(t).Load(context.Background(), "neko.txt", []byte(sjis), detect.KindUnknown)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res.Kind != detect.KindText || res.Status != common.MsgTextLoaded || res.Detection == nil {
		t.Fatalf("Load() = %+v", res)
	}
	if res.Detection.Encoding != common.EncodingModeShiftJIS {
		t.Errorf("picked %s, want shift_jis", res.Detection.Encoding)
	}
	if res.Book.Title != "neko" || len(res.Book.TOC) != 1 || res.Book.TOC[0].Title != "序章" {
		t.Errorf("book = %s %v", res.Book.Title, res.Book.TOC)
	}
}

func TestLoad_HTML(t *testing.T) {
	src := `<html><body><script>alert(1)</script><p>本文です</p></body></html>`
	res, err := newLoader(t).Load(context.Background(), "page.html", []byte(src), detect.KindUnknown)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res.Kind != detect.KindHTML || res.Detection != nil || res.Status != common.MsgHTMLLoaded {
		t.Fatalf("Load() = %+v", res)
	}
	if bytes.Contains([]byte(res.Book.HTML), []byte("script")) {
		t.Error("script survived import")
	}
	if len(res.Book.TOC) != 1 || res.Book.TOC[0].ChapterID != "chapter-001" {
		t.Errorf("toc = %v", res.Book.TOC)
	}
}

func TestLoad_Bundle(t *testing.T) {
	l := newLoader(t)
	orig := normalize.Text("# 一\nあ", "a.txt", common.DefaultLocale)
	buf := new(bytes.Buffer)
	if err := l.codec.Write(buf, orig, nil, nil, time.Now()); err != nil {
		t.Fatal(err)
	}
	path := writeFile(t, "book-reader-data.zip", buf.Bytes())

	o := &opener{}
	res, err := l.Open(context.Background(), o, path, detect.KindUnknown)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if res.Kind != detect.KindBundle || res.Status != common.MsgBundleLoaded {
		t.Errorf("Open() = %+v", res)
	}
	if len(o.books) != 1 || o.books[0].HTML != orig.HTML || o.books[0].Title != orig.Title {
		t.Errorf("opened books = %v", o.books)
	}
}

func TestOpen_FailureLeavesOpenerAlone(t *testing.T) {
	l := newLoader(t)
	o := &opener{}

	broken := writeFile(t, "broken.zip", []byte("PK\x03\x04 definitely not a zip"))
	_, err := l.Open(context.Background(), o, broken, detect.KindUnknown)
	if !errors.Is(err, bundle.ErrFormat) {
		t.Errorf("Open() error = %v, want ErrFormat", err)
	}

	png := writeFile(t, "image.bin", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	_, err = l.Open(context.Background(), o, png, detect.KindUnknown)
	if !errors.Is(err, ErrUnsupported) || common.UserMessage(err, common.DefaultLocale) != "読み込みに失敗しました" {
		t.Errorf("Open() error = %v, want ErrUnsupported", err)
	}

	if _, err := l.Open(context.Background(), o, filepath.Join(t.TempDir(), "missing.txt"), detect.KindUnknown); err == nil {
		t.Error("Open() of missing file succeeded")
	}
	if len(o.books) != 0 {
		t.Errorf("opener received %d books", len(o.books))
	}
}

func TestOpen_TooLarge(t *testing.T) {
	l := newLoader(t)
	l.limit = 8
	o := &opener{}

	big := writeFile(t, "novel.txt", []byte("# 一\n本文です。\n"))
	_, err := l.Open(context.Background(), o, big, detect.KindUnknown)
	if !errors.Is(err, archive.ErrTooLarge) || common.UserMessage(err, common.DefaultLocale) != "読み込みに失敗しました" {
		t.Errorf("Open() error = %v, want ErrTooLarge", err)
	}
	if len(o.books) != 0 {
		t.Errorf("opener received %d books", len(o.books))
	}
}

func TestLoad_ForcedKind(t *testing.T) {
	res, err := newLoader(t).Load(context.Background(), "page.html", []byte("<p>x</p>"), detect.KindText)
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != detect.KindText || res.Book.TOC[0].Title != "本文" {
		t.Errorf("forced text import = %+v", res.Book.TOC)
	}
}

func TestLoad_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newLoader(t).Load(ctx, "a.txt", nil, detect.KindUnknown); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v", err)
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want detect.Kind
		err  bool
	}{
		{"", detect.KindUnknown, false},
		{"Auto", detect.KindUnknown, false},
		{"txt", detect.KindText, false},
		{"HTML", detect.KindHTML, false},
		{"zip", detect.KindBundle, false},
		{"epub", detect.KindUnknown, true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if got != tt.want || (err != nil) != tt.err {
			t.Errorf("ParseKind(%q) = %v, %v", tt.in, got, err)
		}
	}
}
