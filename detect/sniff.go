package detect

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// Kind of uploaded source.
type Kind int

const (
	KindUnknown Kind = iota
	KindText
	KindHTML
	KindBundle
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindHTML:
		return "html"
	case KindBundle:
		return "bundle"
	default:
		return "unknown"
	}
}

// Sniff classifies source by file name extension first and by content when
// extension is not conclusive.
func Sniff(data []byte, name string) Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".text":
		return KindText
	case ".html", ".htm", ".xhtml":
		return KindHTML
	case ".zip":
		return KindBundle
	}

	if filetype.Is(data, "zip") {
		return KindBundle
	}
	if filetype.IsArchive(data) || filetype.IsImage(data) || filetype.IsVideo(data) || filetype.IsAudio(data) {
		return KindUnknown
	}

	head := bytes.TrimLeft(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), " \t\r\n")
	if len(head) > 512 {
		head = head[:512]
	}
	lower := bytes.ToLower(head)
	for _, tag := range [][]byte{[]byte("<!doctype html"), []byte("<html"), []byte("<section"), []byte("<body")} {
		if bytes.HasPrefix(lower, tag) {
			return KindHTML
		}
	}
	return KindText
}
