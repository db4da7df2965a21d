// Package viewport drives reading surface: display modes, gestures, progress
// tracking and restoration, page effects and position slider.
package viewport

import (
	"tsukiyomi/book"
	"tsukiyomi/common"
)

// ChapterOffset is position of chapter root along scroll axis relative to
// the visible edge of the container. It is negative for chapters already
// scrolled past.
type ChapterOffset struct {
	ID     string
	Offset float64
}

// Surface is rendering host of the book content.
type Surface interface {
	ClientWidth() float64
	ClientHeight() float64
	ScrollWidth() float64
	ScrollHeight() float64
	ScrollLeft() float64
	ScrollTop() float64
	// SetScroll moves content immediately.
	SetScroll(left, top float64)
	// ScrollTo moves content with smooth animation where host supports it.
	ScrollTo(left, top float64)
	// ScrollIntoView aligns chapter root with the start edge, false when
	// there is no such chapter.
	ScrollIntoView(id string) bool
	// Chapters returns chapter roots in document order.
	Chapters() []ChapterOffset

	SetLayout(mode common.DisplayMode)
	SetPageWidth(w float64)
	ApplyTypography(s book.Settings)
	ToggleChrome()
	// SetEffect shows or hides page turn overlay.
	SetEffect(effect common.PageEffect, active bool)
}

// Sink receives state changes made by controller.
type Sink interface {
	UpdateSettings(s book.Settings)
	UpdateProgress(p *book.ProgressPatch)
}

// Slider mirrors horizontal position.
type Slider struct {
	Max      float64 `yaml:"max"`
	Value    float64 `yaml:"value"`
	Disabled bool    `yaml:"disabled"`
}
