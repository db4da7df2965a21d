package bundle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	sprig "github.com/go-task/slim-sprig/v3"
	"github.com/gosimple/slug"
	fixzip "github.com/hidez8891/zip"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"tsukiyomi/archive"
	"tsukiyomi/book"
	"tsukiyomi/common"
	"tsukiyomi/config"
)

// ErrExists is returned when export destination is present and overwriting
// was not requested.
var ErrExists = errors.New("destination already exists")

// ExportOptions controls where and how bundle file is produced.
type ExportOptions struct {
	// Name template, fixed name is used when empty.
	NameTemplate  string
	Transliterate bool
	// Clear data descriptor flags, some readers cannot handle them.
	FixZip    bool
	Overwrite bool
}

// OptionsFromConfig returns export options defined by configuration.
func OptionsFromConfig(cfg *config.BundleConfig, overwrite bool) ExportOptions {
	return ExportOptions{
		NameTemplate:  cfg.NameTemplate,
		Transliterate: cfg.Transliterate,
		FixZip:        cfg.FixZip,
		Overwrite:     overwrite,
	}
}

// NameValues are available to file name template.
type NameValues struct {
	Title    string
	BookID   string
	Chapters int
	Date     time.Time
}

// FileName returns name of exported archive. When template could not be
// expanded fixed name is used.
func (c *Codec) FileName(b *book.Book, opts ExportOptions, now time.Time) string {
	if opts.NameTemplate == "" {
		return DefaultFileName
	}
	name, err := expandName(opts.NameTemplate, NameValues{Title: b.Title, BookID: b.ID(), Chapters: len(b.TOC), Date: now})
	if err != nil {
		c.log.Warn("Unable to expand file name template, using default", zap.String("template", opts.NameTemplate), zap.Error(err))
		return DefaultFileName
	}
	name = strings.TrimSuffix(strings.TrimSpace(name), ".zip")
	if opts.Transliterate {
		name = slug.Make(name)
	}
	if name = config.CleanFileName(name); name == "" {
		return DefaultFileName
	}
	return name + ".zip"
}

func expandName(field string, values NameValues) (string, error) {
	tmpl, err := template.New(string(config.BundleNameTemplateFieldName)).Funcs(sprig.FuncMap()).Parse(field)
	if err != nil {
		return "", fmt.Errorf("unable to parse template field %s: %w", config.BundleNameTemplateFieldName, err)
	}
	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, values); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Export writes bundle to dst which is either a directory or full file name
// ending with ".zip". Archive is produced in a temporary file which is moved
// into place only when everything succeeded, so failed export leaves nothing
// behind. Returns name of created file.
func (c *Codec) Export(ctx context.Context, dst string, b *book.Book, s *book.Settings, p *book.Progress, opts ExportOptions, now time.Time) (_ string, err error) {
	if b == nil {
		return "", common.NewUserError(common.MsgNoBookToExport, ErrNoBook)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	target := dst
	if info, e := os.Stat(dst); dst == "" || (e == nil && info.IsDir()) || !strings.EqualFold(filepath.Ext(dst), ".zip") {
		target = filepath.Join(dst, c.FileName(b, opts, now))
	}
	if _, e := os.Stat(target); e == nil && !opts.Overwrite {
		return "", common.NewUserError(common.MsgExportFailed, fmt.Errorf("%w: %s", ErrExists, target))
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", common.NewUserError(common.MsgExportFailed, fmt.Errorf("unable to create destination directory: %w", err))
	}

	tmp, err := os.CreateTemp(dir, ".export-*.zip")
	if err != nil {
		return "", common.NewUserError(common.MsgArchiveUnavailable, fmt.Errorf("unable to create temporary file: %w", err))
	}
	tmpName := tmp.Name()
	defer func() {
		// clean temporary files
		if e := os.Remove(tmpName); e != nil && !errors.Is(e, os.ErrNotExist) {
			err = multierr.Append(err, e)
		}
	}()

	if err := c.Write(tmp, b, s, p, now); err != nil {
		return "", multierr.Append(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return "", common.NewUserError(common.MsgExportFailed, fmt.Errorf("unable to finalize output file: %w", err))
	}

	if opts.FixZip {
		fixed := tmpName + ".fixed"
		defer os.Remove(fixed)
		if err := copyZipWithoutDataDescriptors(tmpName, fixed); err != nil {
			return "", common.NewUserError(common.MsgExportFailed, err)
		}
		if err := os.Rename(fixed, tmpName); err != nil {
			return "", common.NewUserError(common.MsgExportFailed, fmt.Errorf("unable to replace archive: %w", err))
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpName, target); err != nil {
		return "", common.NewUserError(common.MsgExportFailed, fmt.Errorf("unable to move archive into place: %w", err))
	}

	c.log.Info("Book exported", zap.String("title", b.Title), zap.String("file", target))
	return target, nil
}

func copyZipWithoutDataDescriptors(from, to string) (err error) {
	out, err := os.Create(to)
	if err != nil {
		return fmt.Errorf("unable to create target file (%s): %w", to, err)
	}
	defer func() {
		err = multierr.Append(err, out.Close())
	}()

	r, err := fixzip.OpenReader(from)
	if err != nil {
		return fmt.Errorf("unable to read archive file (%s): %w", from, err)
	}
	defer r.Close()

	w := fixzip.NewWriter(out)
	for _, file := range r.File {
		// unset data descriptor flag.
		file.Flags &= ^fixzip.FlagDataDescriptor

		// copy zip entry
		if err := w.CopyFile(file); err != nil {
			return multierr.Append(fmt.Errorf("unable to write target file (%s): %w", to, err), w.Close())
		}
	}
	return w.Close()
}

// ReadFile imports bundle from file.
func (c *Codec) ReadFile(name string) (*book.Book, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, common.NewUserError(common.MsgLoadFailed, err)
	}
	defer f.Close()

	data, err := archive.ReadLimited(f, maxEntrySize)
	if err != nil {
		return nil, common.NewUserError(common.MsgLoadFailed, err)
	}
	return c.Read(data)
}
