// Package library turns user supplied files into books: plain text, HTML and
// previously exported bundles.
package library

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"tsukiyomi/archive"
	"tsukiyomi/book"
	"tsukiyomi/bundle"
	"tsukiyomi/common"
	"tsukiyomi/detect"
	"tsukiyomi/normalize"
	"tsukiyomi/session"
)

const maxSourceSize = 256 << 20

// ErrUnsupported is returned for inputs which are neither text, HTML nor
// bundle.
var ErrUnsupported = errors.New("unsupported input")

// Loader imports books. It never changes session state, see Open.
type Loader struct {
	loc    *common.Locale
	codec  *bundle.Codec
	mode   common.EncodingMode
	legacy encoding.Encoding
	limit  int64
	log    *zap.Logger
}

// NewLoader returns loader using mode for text decoding. Legacy encoding may
// be nil for Shift_JIS.
func NewLoader(loc *common.Locale, codec *bundle.Codec, mode common.EncodingMode, legacy encoding.Encoding, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{loc: loc, codec: codec, mode: mode, legacy: legacy, limit: maxSourceSize, log: log.Named("library")}
}

// Result of a successful import.
type Result struct {
	Book *book.Book
	Kind detect.Kind
	// Detection is set for text input only.
	Detection *detect.Result
	Status    common.MessageID
}

// Load imports data produced from file name. Kind may be forced, otherwise
// it is sniffed from name and content.
func (l *Loader) Load(ctx context.Context, name string, data []byte, kind detect.Kind) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if kind == detect.KindUnknown {
		kind = detect.Sniff(data, name)
	}
	l.log.Info(l.loc.Msg(loadingMessage(kind)), zap.String("source", name), zap.Stringer("kind", kind))

	res := &Result{Kind: kind}
	switch kind {
	case detect.KindText:
		det := detect.Detect(data, l.mode, l.legacy)
		l.log.Debug("Text decoded", zap.Stringer("encoding", det.Encoding), zap.Int("utf8", det.UTF8Score), zap.Int("legacy", det.LegacyScore))
		res.Book = normalize.Text(det.Text, name, l.loc)
		res.Detection = &det
		res.Status = common.MsgTextLoaded
	case detect.KindHTML:
		b, err := normalize.HTML(bytes.NewReader(data), name, l.loc, l.log)
		if err != nil {
			return nil, common.NewUserError(common.MsgLoadFailed, err)
		}
		res.Book = b
		res.Status = common.MsgHTMLLoaded
	case detect.KindBundle:
		if l.codec == nil {
			return nil, common.NewUserError(common.MsgArchiveUnavailable, session.ErrNoCodec)
		}
		b, err := l.codec.Read(data)
		if err != nil {
			return nil, err
		}
		res.Book = b
		res.Status = common.MsgBundleLoaded
	default:
		return nil, common.NewUserError(common.MsgLoadFailed, fmt.Errorf("%w: %s", ErrUnsupported, name))
	}
	l.log.Info(l.loc.Msg(res.Status), zap.String("title", res.Book.Title), zap.Int("chapters", len(res.Book.TOC)))
	return res, nil
}

func loadingMessage(kind detect.Kind) common.MessageID {
	switch kind {
	case detect.KindHTML:
		return common.MsgHTMLLoading
	case detect.KindBundle:
		return common.MsgBundleLoading
	}
	return common.MsgTextLoading
}

// LoadFile imports book from file.
func (l *Loader) LoadFile(ctx context.Context, path string, kind detect.Kind) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, common.NewUserError(common.MsgLoadFailed, err)
	}
	defer f.Close()

	data, err := archive.ReadLimited(f, l.limit)
	if err != nil {
		return nil, common.NewUserError(common.MsgLoadFailed, fmt.Errorf("unable to read %q: %w", path, err))
	}
	return l.Load(ctx, filepath.Base(path), data, kind)
}

// Open loads book from file and hands it to opener. On failure opener is not
// touched.
func (l *Loader) Open(ctx context.Context, o session.Opener, path string, kind detect.Kind) (*Result, error) {
	res, err := l.LoadFile(ctx, path, kind)
	if err != nil {
		return nil, err
	}
	o.OpenBook(res.Book)
	return res, nil
}

// ParseKind converts user input to input kind, empty and "auto" mean sniff.
func ParseKind(name string) (detect.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return detect.KindUnknown, nil
	case "text", "txt":
		return detect.KindText, nil
	case "html", "htm":
		return detect.KindHTML, nil
	case "bundle", "zip":
		return detect.KindBundle, nil
	}
	return detect.KindUnknown, fmt.Errorf("unknown input kind %q", name)
}
