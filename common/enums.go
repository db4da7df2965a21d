// The only reason this package exists is that both configuration and book
// model need the same enums and localized strings, and I do not want book
// model to depend on configuration.
package common

import (
	"fmt"
	"strings"
)

// Reader layout.
type DisplayMode string

const (
	DisplayModePaged   DisplayMode = "paged"
	DisplayModeScrollX DisplayMode = "scrollX"
	DisplayModeScrollY DisplayMode = "scrollY"
)

// Visual effect shown on committed page turn.
type PageEffect string

const (
	PageEffectNone PageEffect = "none"
	PageEffectDim  PageEffect = "dim"
	PageEffectFade PageEffect = "fade"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// How text input should be decoded.
type EncodingMode string

const (
	EncodingModeAuto     EncodingMode = "auto"
	EncodingModeUTF8     EncodingMode = "utf-8"
	EncodingModeShiftJIS EncodingMode = "shift_jis"
)

var (
	displayModes  = []DisplayMode{DisplayModePaged, DisplayModeScrollX, DisplayModeScrollY}
	pageEffects   = []PageEffect{PageEffectNone, PageEffectDim, PageEffectFade}
	themes        = []Theme{ThemeLight, ThemeDark}
	encodingModes = []EncodingMode{EncodingModeAuto, EncodingModeUTF8, EncodingModeShiftJIS}
)

func parseEnum[T ~string](kind, name string, values []T) (T, error) {
	for _, v := range values {
		if string(v) == name {
			return v, nil
		}
	}
	// be forgiving about case, old settings were typed by hand
	for _, v := range values {
		if strings.EqualFold(string(v), name) {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%q is not a valid %s", name, kind)
}

func enumNames[T ~string](values []T) []string {
	names := make([]string, 0, len(values))
	for _, v := range values {
		names = append(names, string(v))
	}
	return names
}

func ParseDisplayMode(name string) (DisplayMode, error) {
	return parseEnum("DisplayMode", name, displayModes)
}

func DisplayModeNames() []string { return enumNames(displayModes) }

func (m DisplayMode) String() string { return string(m) }

func (m DisplayMode) IsValid() bool {
	_, err := ParseDisplayMode(string(m))
	return err == nil
}

func (m DisplayMode) MarshalText() ([]byte, error) { return []byte(m), nil }

func (m *DisplayMode) UnmarshalText(text []byte) error {
	v, err := ParseDisplayMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Vertical reports whether mode scrolls along vertical axis.
func (m DisplayMode) Vertical() bool {
	return m == DisplayModeScrollY
}

func ParsePageEffect(name string) (PageEffect, error) {
	return parseEnum("PageEffect", name, pageEffects)
}

func PageEffectNames() []string { return enumNames(pageEffects) }

func (e PageEffect) String() string { return string(e) }

func (e PageEffect) IsValid() bool {
	_, err := ParsePageEffect(string(e))
	return err == nil
}

func (e PageEffect) MarshalText() ([]byte, error) { return []byte(e), nil }

func (e *PageEffect) UnmarshalText(text []byte) error {
	v, err := ParsePageEffect(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

func ParseTheme(name string) (Theme, error) {
	return parseEnum("Theme", name, themes)
}

func ThemeNames() []string { return enumNames(themes) }

func (t Theme) String() string { return string(t) }

func (t Theme) IsValid() bool {
	_, err := ParseTheme(string(t))
	return err == nil
}

func (t Theme) MarshalText() ([]byte, error) { return []byte(t), nil }

func (t *Theme) UnmarshalText(text []byte) error {
	v, err := ParseTheme(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func ParseEncodingMode(name string) (EncodingMode, error) {
	return parseEnum("EncodingMode", name, encodingModes)
}

func EncodingModeNames() []string { return enumNames(encodingModes) }

func (e EncodingMode) String() string { return string(e) }

func (e EncodingMode) MarshalText() ([]byte, error) { return []byte(e), nil }

func (e *EncodingMode) UnmarshalText(text []byte) error {
	v, err := ParseEncodingMode(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}
