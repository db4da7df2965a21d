package book

import (
	"encoding/json"
	"strings"
	"testing"

	"tsukiyomi/common"
)

func TestChapterID(t *testing.T) {
	tests := map[int]string{1: "chapter-001", 12: "chapter-012", 999: "chapter-999", 1000: "chapter-1000"}
	for in, want := range tests {
		if got := ChapterID(in); got != want {
			t.Errorf("ChapterID(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestSafeText(t *testing.T) {
	if got := SafeText("  x ", "f"); got != "x" {
		t.Errorf("SafeText() = %q", got)
	}
	if got := SafeText(" \n ", "f"); got != "f" {
		t.Errorf("SafeText() = %q, want fallback", got)
	}
}

func TestBookID(t *testing.T) {
	b := &Book{Title: "猫", HTML: "ab😀", TOC: []TocEntry{{"chapter-001", "x"}}}
	// emoji takes two UTF-16 code units
	if got := b.ID(); got != "猫::1::4" {
		t.Errorf("ID() = %q, want %q", got, "猫::1::4")
	}
	if got := (&Book{}).ID(); got != "Untitled::0::0" {
		t.Errorf("ID() of empty book = %q", got)
	}
	var nb *Book
	if nb.ID() != "" {
		t.Error("nil book must have empty ID")
	}
}

func TestSettingsMerge(t *testing.T) {
	size := 120.0
	mode := common.DisplayModeScrollY
	s := DefaultSettings().Merge(&SettingsPatch{FontSize: &size, DisplayMode: &mode})
	if s.FontSize != 120 || s.DisplayMode != common.DisplayModeScrollY {
		t.Errorf("patch not applied: %v", s)
	}
	if s.LineHeight != 1.8 || s.Theme != common.ThemeLight {
		t.Errorf("defaults lost: %v", s)
	}
	if DefaultSettings().Merge(nil) != DefaultSettings() {
		t.Error("nil patch must not change settings")
	}
}

func TestSettingsPatch_Loose(t *testing.T) {
	var p SettingsPatch
	data := `{"fontSize":"130","lineHeight":2,"letterSpacing":true,"theme":"blue","displayMode":"scrollX","tapInScroll":true}`
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if p.FontSize == nil || *p.FontSize != 130 {
		t.Errorf("FontSize = %v", p.FontSize)
	}
	if p.LineHeight == nil || *p.LineHeight != 2 {
		t.Errorf("LineHeight = %v", p.LineHeight)
	}
	if p.LetterSpacing != nil {
		t.Error("boolean letter spacing must be ignored")
	}
	if p.Theme != nil {
		t.Error("unknown theme must be ignored")
	}
	if p.DisplayMode == nil || *p.DisplayMode != common.DisplayModeScrollX {
		t.Errorf("DisplayMode = %v", p.DisplayMode)
	}
	if p.TapInScroll == nil || !*p.TapInScroll {
		t.Error("TapInScroll not decoded")
	}
	if !strings.Contains(p.String(), `"displayMode":"scrollX"`) {
		t.Errorf("String() = %s", p.String())
	}
}

func TestProgressPatch(t *testing.T) {
	var p ProgressPatch
	if err := json.Unmarshal([]byte(`{"chapterId":null,"scrollTop":150,"pageIndex":2.4}`), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if p.ChapterID != nil {
		t.Error("null chapter id must stay nil")
	}
	got := Progress{ChapterID: "chapter-001", ScrollLeft: 10}.Merge(&p)
	want := Progress{ChapterID: "chapter-001", ScrollLeft: 10, ScrollTop: 150, PageIndex: 2}
	if got != want {
		t.Errorf("Merge() = %+v, want %+v", got, want)
	}
}

func TestOrDefault(t *testing.T) {
	if OrDefault(0, 100) != 100 {
		t.Error("zero must become default")
	}
	if OrDefault(90, 100) != 90 {
		t.Error("value must be kept")
	}
}

func TestDump(t *testing.T) {
	size := 110.0
	b := &Book{Title: "T", HTML: "<p/>", TOC: []TocEntry{{"chapter-001", "One"}}, Settings: &SettingsPatch{FontSize: &size}}
	out := b.Dump()
	for _, want := range []string{"Book T::1::4", `title: "T"`, "[1] chapter-001", `title: "One"`, `head: "<p/>"`, `"fontSize":110`} {
		if !strings.Contains(out, want) {
			t.Errorf("Dump() does not contain %q:\n%s", want, out)
		}
	}
}
