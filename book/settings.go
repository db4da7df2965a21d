package book

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"tsukiyomi/common"
)

// Settings are always fully populated.
type Settings struct {
	FontSize      float64            `json:"fontSize"`
	LineHeight    float64            `json:"lineHeight"`
	LetterSpacing float64            `json:"letterSpacing"`
	Theme         common.Theme       `json:"theme"`
	DisplayMode   common.DisplayMode `json:"displayMode"`
	PageEffect    common.PageEffect  `json:"pageEffect"`
	TapInScroll   bool               `json:"tapInScroll"`
}

// DefaultSettings are used when neither configuration nor book provide
// anything.
func DefaultSettings() Settings {
	return Settings{
		FontSize:      100,
		LineHeight:    1.8,
		LetterSpacing: 0,
		Theme:         common.ThemeLight,
		DisplayMode:   common.DisplayModePaged,
		PageEffect:    common.PageEffectNone,
	}
}

// SettingsPatch is partial settings record. Nil fields are not changed on
// merge.
type SettingsPatch struct {
	FontSize      *float64            `json:"fontSize,omitempty"`
	LineHeight    *float64            `json:"lineHeight,omitempty"`
	LetterSpacing *float64            `json:"letterSpacing,omitempty"`
	Theme         *common.Theme       `json:"theme,omitempty"`
	DisplayMode   *common.DisplayMode `json:"displayMode,omitempty"`
	PageEffect    *common.PageEffect  `json:"pageEffect,omitempty"`
	TapInScroll   *bool               `json:"tapInScroll,omitempty"`
}

// Merge returns copy of s with non-nil fields of p applied.
func (s Settings) Merge(p *SettingsPatch) Settings {
	if p == nil {
		return s
	}
	if p.FontSize != nil {
		s.FontSize = *p.FontSize
	}
	if p.LineHeight != nil {
		s.LineHeight = *p.LineHeight
	}
	if p.LetterSpacing != nil {
		s.LetterSpacing = *p.LetterSpacing
	}
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.DisplayMode != nil {
		s.DisplayMode = *p.DisplayMode
	}
	if p.PageEffect != nil {
		s.PageEffect = *p.PageEffect
	}
	if p.TapInScroll != nil {
		s.TapInScroll = *p.TapInScroll
	}
	return s
}

func (p *SettingsPatch) String() string {
	if p == nil {
		return "<nil>"
	}
	data, _ := json.Marshal(p)
	return string(data)
}

// UnmarshalJSON is forgiving: records may come from hand edited bundles, values
// of wrong type or out of range are ignored rather than failing whole import.
func (p *SettingsPatch) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = SettingsPatch{}
	if v, ok := number(raw["fontSize"]); ok {
		p.FontSize = &v
	}
	if v, ok := number(raw["lineHeight"]); ok {
		p.LineHeight = &v
	}
	if v, ok := number(raw["letterSpacing"]); ok {
		p.LetterSpacing = &v
	}
	if s, ok := raw["theme"].(string); ok {
		if v, err := common.ParseTheme(s); err == nil {
			p.Theme = &v
		}
	}
	if s, ok := raw["displayMode"].(string); ok {
		if v, err := common.ParseDisplayMode(s); err == nil {
			p.DisplayMode = &v
		}
	}
	if s, ok := raw["pageEffect"].(string); ok {
		if v, err := common.ParsePageEffect(s); err == nil {
			p.PageEffect = &v
		}
	}
	if v, ok := raw["tapInScroll"].(bool); ok {
		p.TapInScroll = &v
	}
	return nil
}

// Progress is the last known reading position. ChapterID is empty when
// unknown.
type Progress struct {
	ChapterID  string  `json:"chapterId"`
	ScrollLeft float64 `json:"scrollLeft"`
	ScrollTop  float64 `json:"scrollTop"`
	PageIndex  int     `json:"pageIndex"`
}

// ProgressPatch is partial progress record, nil fields are not changed on
// merge.
type ProgressPatch struct {
	ChapterID  *string  `json:"chapterId,omitempty"`
	ScrollLeft *float64 `json:"scrollLeft,omitempty"`
	ScrollTop  *float64 `json:"scrollTop,omitempty"`
	PageIndex  *int     `json:"pageIndex,omitempty"`
}

// Merge returns copy of p with non-nil fields of patch applied.
func (p Progress) Merge(patch *ProgressPatch) Progress {
	if patch == nil {
		return p
	}
	if patch.ChapterID != nil {
		p.ChapterID = *patch.ChapterID
	}
	if patch.ScrollLeft != nil {
		p.ScrollLeft = *patch.ScrollLeft
	}
	if patch.ScrollTop != nil {
		p.ScrollTop = *patch.ScrollTop
	}
	if patch.PageIndex != nil {
		p.PageIndex = *patch.PageIndex
	}
	return p
}

func (p *ProgressPatch) String() string {
	if p == nil {
		return "<nil>"
	}
	data, _ := json.Marshal(p)
	return string(data)
}

// UnmarshalJSON accepts null chapter id and numbers encoded as strings.
func (p *ProgressPatch) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = ProgressPatch{}
	if s, ok := raw["chapterId"].(string); ok {
		p.ChapterID = &s
	}
	if v, ok := number(raw["scrollLeft"]); ok {
		p.ScrollLeft = &v
	}
	if v, ok := number(raw["scrollTop"]); ok {
		p.ScrollTop = &v
	}
	if v, ok := number(raw["pageIndex"]); ok {
		i := int(math.Round(v))
		p.PageIndex = &i
	}
	return nil
}

func number(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// OrDefault mirrors loose numeric coercion of exported metadata: zero and
// non-finite values become fallback.
func OrDefault(v, fallback float64) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

func (s Settings) String() string {
	return fmt.Sprintf("font %g%%, line %g, spacing %g, %s, %s, effect %s, tap in scroll %t",
		s.FontSize, s.LineHeight, s.LetterSpacing, s.Theme, s.DisplayMode, s.PageEffect, s.TapInScroll)
}
