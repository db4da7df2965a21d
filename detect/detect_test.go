package detect

import (
	"strings"
	"testing"

	"golang.org/x/text/encoding/japanese"

	"tsukiyomi/common"
)

func sjis(t *testing.T, s string) []byte {
	t.Helper()
	out, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(s))
	if err != nil {
		t.Fatalf("unable to encode test data: %v", err)
	}
	return out
}

func TestDetect_ASCIIPicksUTF8(t *testing.T) {
	res := Detect([]byte("# Intro\r\nHello world\r\n"), common.EncodingModeAuto, nil)
	if res.Encoding != common.EncodingModeUTF8 {
		t.Errorf("Encoding = %q, want utf-8", res.Encoding)
	}
	if res.UTF8Score != 0 || res.LegacyScore != 0 {
		t.Errorf("scores = %d/%d, want 0/0", res.UTF8Score, res.LegacyScore)
	}
	if res.Text != "# Intro\nHello world\n" {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestDetect_ShiftJIS(t *testing.T) {
	src := "# 第一章\n吾輩は猫である。名前はまだ無い。"
	res := Detect(sjis(t, src), common.EncodingModeAuto, japanese.ShiftJIS)
	if res.Encoding != common.EncodingModeShiftJIS {
		t.Fatalf("Encoding = %q, want shift_jis (scores %d/%d)", res.Encoding, res.UTF8Score, res.LegacyScore)
	}
	if res.Text != src {
		t.Errorf("Text = %q, want %q", res.Text, src)
	}
	if res.UTF8Score <= res.LegacyScore {
		t.Errorf("legacy score %d should be strictly lower than %d", res.LegacyScore, res.UTF8Score)
	}
}

func TestDetect_UTF8Japanese(t *testing.T) {
	src := "\uFEFF吾輩は猫である。\r名前はまだ無い。"
	res := Detect([]byte(src), common.EncodingModeAuto, nil)
	if res.Encoding != common.EncodingModeUTF8 {
		t.Fatalf("Encoding = %q, want utf-8", res.Encoding)
	}
	if res.Text != "吾輩は猫である。\n名前はまだ無い。" {
		t.Errorf("BOM and newlines not normalized: %q", res.Text)
	}
}

func TestDetect_Forced(t *testing.T) {
	data := sjis(t, "猫")

	res := Detect(data, common.EncodingModeUTF8, nil)
	if res.Encoding != common.EncodingModeUTF8 {
		t.Errorf("forced utf-8 picked %q", res.Encoding)
	}
	if !strings.ContainsRune(res.Text, '\uFFFD') {
		t.Errorf("expected replacement characters in %q", res.Text)
	}

	res = Detect([]byte("plain"), common.EncodingModeShiftJIS, nil)
	if res.Encoding != common.EncodingModeShiftJIS {
		t.Errorf("forced shift_jis picked %q", res.Encoding)
	}
}

func TestDetect_Diagnostics(t *testing.T) {
	long := strings.Repeat("あ", 300)
	res := Detect([]byte(long), common.EncodingModeAuto, nil)

	lines := strings.Split(res.Diagnostics, "\n")
	if len(lines) != 3 {
		t.Fatalf("diagnostics should have 3 lines, got %q", res.Diagnostics)
	}
	if lines[0] != "picked: utf-8" {
		t.Errorf("line 1 = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "score utf: 0 / sjis: ") {
		t.Errorf("line 2 = %q", lines[1])
	}
	if lines[2] != "head: "+strings.Repeat("あ", 200) {
		t.Errorf("head is not limited to 200 characters: %d runes", len([]rune(lines[2])))
	}
}

func TestDetect_NeverFails(t *testing.T) {
	for _, data := range [][]byte{nil, {}, {0xff, 0xfe, 0xfd}, {0x81}} {
		res := Detect(data, common.EncodingModeAuto, nil)
		if res.Diagnostics == "" {
			t.Errorf("no diagnostics for %v", data)
		}
	}
}

func TestHead(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"", 3, ""},
		{"abc", 3, "abc"},
		{"abcd", 3, "abc"},
		{"日本語です", 2, "日本"},
	}
	for _, tt := range tests {
		if got := Head(tt.in, tt.n); got != tt.want {
			t.Errorf("Head(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestSniff(t *testing.T) {
	zipMagic := []byte("PK\x03\x04\x14\x00\x00\x00\x08\x00")
	tests := []struct {
		name string
		data []byte
		file string
		want Kind
	}{
		{"txt extension", []byte("<html>"), "a.txt", KindText},
		{"html extension", []byte("plain"), "a.HTM", KindHTML},
		{"zip extension", nil, "book.zip", KindBundle},
		{"zip magic", zipMagic, "upload", KindBundle},
		{"html content", []byte("\n  <!DOCTYPE html><html></html>"), "upload", KindHTML},
		{"section content", []byte("<section class=\"chapter\">"), "upload", KindHTML},
		{"text content", []byte("# Intro\nHello"), "upload", KindText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sniff(tt.data, tt.file); got != tt.want {
				t.Errorf("Sniff() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetect_TruncatedSequence(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		// legacy decode of the same bytes may score better
		checkPick bool
	}{
		{"cut emoji", []byte("\xf0\x9f\x98"), true},
		{"cut hiragana", []byte("abc\xe3\x81"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Detect(tt.data, common.EncodingModeAuto, japanese.ShiftJIS)
			if res.UTF8Score != 1 {
				t.Errorf("UTF8Score = %d, want one replacement per maximal invalid subpart", res.UTF8Score)
			}
			if tt.checkPick && res.Encoding != common.EncodingModeUTF8 {
				t.Errorf("Encoding = %q, want utf-8 (scores %d/%d)", res.Encoding, res.UTF8Score, res.LegacyScore)
			}
		})
	}
}
