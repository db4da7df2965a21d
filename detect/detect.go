// Package detect decides how raw uploaded bytes should be decoded.
package detect

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"

	"tsukiyomi/common"
)

const (
	// NotApplicable is reported as legacy score when legacy decoding was not
	// possible at all.
	NotApplicable = -1

	headLength = 200
)

// Result of encoding detection.
type Result struct {
	Text        string
	Encoding    common.EncodingMode
	UTF8Score   int
	LegacyScore int
	Diagnostics string
}

type candidate struct {
	text  string
	score int
	ok    bool
}

// Detect decodes data as UTF-8 and as legacy Japanese encoding, scores both
// by number of replacement characters and picks the better one. When legacy
// is nil Shift_JIS is used. Detect never fails.
func Detect(data []byte, mode common.EncodingMode, legacy encoding.Encoding) Result {
	if legacy == nil {
		legacy = japanese.ShiftJIS
	}

	u := decode(data, unicode.UTF8)
	l := decode(data, legacy)

	picked, chosen := common.EncodingModeUTF8, u
	switch mode {
	case common.EncodingModeUTF8:
	case common.EncodingModeShiftJIS:
		if l.ok {
			picked, chosen = common.EncodingModeShiftJIS, l
		}
	default:
		// ties favor UTF-8
		if l.ok && l.score < u.score {
			picked, chosen = common.EncodingModeShiftJIS, l
		}
	}

	res := Result{
		Text:        chosen.text,
		Encoding:    picked,
		UTF8Score:   u.score,
		LegacyScore: NotApplicable,
	}
	if l.ok {
		res.LegacyScore = l.score
	}
	res.Diagnostics = res.diagnostics()
	return res
}

func (r Result) diagnostics() string {
	sjis := "N/A"
	if r.LegacyScore != NotApplicable {
		sjis = fmt.Sprint(r.LegacyScore)
	}
	return fmt.Sprintf("picked: %s\nscore utf: %d / sjis: %s\nhead: %s", r.Encoding, r.UTF8Score, sjis, Head(r.Text, headLength))
}

func decode(data []byte, enc encoding.Encoding) (c candidate) {
	defer func() {
		// some decoders are not prepared for arbitrary garbage
		if r := recover(); r != nil {
			c = candidate{}
		}
	}()

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return candidate{}
	}
	text := NormalizeNewlines(strings.TrimPrefix(string(out), "\uFEFF"))
	return candidate{text: text, score: strings.Count(text, string(utf8.RuneError)), ok: true}
}

// NormalizeNewlines collapses all line ending variants to "\n".
func NormalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// Head returns first n characters of s.
func Head(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
