// Package archive builds safe walking abstraction on top of "archive/zip".
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/text/encoding"
)

// ErrUnsafePath is returned when archive contains entry which could escape
// extraction directory.
var ErrUnsafePath = errors.New("unsafe path (absolute or contains path traversal)")

// ErrTooLarge is returned when content exceeds requested limit.
var ErrTooLarge = errors.New("archive entry is too large")

// WalkFunc is the type of the function called for each regular file in
// archive visited by Walk. Name is entry path, decoded when archive does not
// use UTF-8 for names. If an error is returned, processing stops.
type WalkFunc func(name string, file *zip.File) error

// Walk walks all regular files in the archive calling walkFn for each. Any
// entry with path traversal components ("..") or absolute path fails the
// whole walk to prevent Zip Slip attacks. When cp is not nil non UTF-8 names
// are decoded with it.
func Walk(r *zip.Reader, cp encoding.Encoding, walkFn WalkFunc) error {
	for _, f := range r.File {
		name := entryName(f, cp)
		if !isSafePath(name) {
			return fmt.Errorf("zip entry %q: %w", name, ErrUnsafePath)
		}
		if f.FileInfo().IsDir() {
			continue
		}
		if err := walkFn(name, f); err != nil {
			return err
		}
	}
	return nil
}

// Index returns all regular files of the archive by name.
func Index(r *zip.Reader, cp encoding.Encoding) (map[string]*zip.File, error) {
	files := make(map[string]*zip.File, len(r.File))
	err := Walk(r, cp, func(name string, f *zip.File) error {
		if _, exists := files[name]; !exists {
			files[name] = f
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// ReadAll reads entry content refusing to go above limit bytes (no limit when
// limit is not positive).
func ReadAll(f *zip.File, limit int64) ([]byte, error) {
	if limit > 0 && f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("zip entry %q: %w", f.Name, ErrTooLarge)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("zip entry %q: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := ReadLimited(rc, limit)
	if err != nil {
		return nil, fmt.Errorf("zip entry %q: %w", f.Name, err)
	}
	return data, nil
}

// ReadLimited reads r to the end failing with ErrTooLarge instead of
// truncating when there are more than limit bytes (no limit when limit is not
// positive).
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

func entryName(f *zip.File, cp encoding.Encoding) string {
	name := f.FileHeader.Name
	if cp != nil && f.FileHeader.NonUTF8 {
		// forcing zip file name encoding
		if n, err := cp.NewDecoder().String(name); err == nil {
			name = n
		}
	}
	return name
}

// isSafePath returns false for paths that could escape the extraction
// directory: absolute paths and those containing ".." components.
func isSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, `\`) || (len(name) > 1 && name[1] == ':') {
		return false
	}
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return false
		}
	}
	return true
}
