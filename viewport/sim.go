package viewport

import (
	"math"

	"tsukiyomi/book"
	"tsukiyomi/clock"
	"tsukiyomi/common"
)

// SimSurface is in-memory rendering surface. Chapters are laid out one after
// another along scroll axis, each taking extent units. Scroll notifications
// are coalesced and delivered on the next frame the way browsers do.
type SimSurface struct {
	width, height float64
	extent        float64
	chapters      []string

	mode      common.DisplayMode
	left, top float64
	pageWidth float64
	settings  book.Settings

	chromeHidden bool
	effect       common.PageEffect
	effectActive bool
	effects      int
	smooth       int

	frames   clock.Frames
	dispatch func(Event)
	queued   bool
}

// SimState is observable state of simulated surface.
type SimState struct {
	Left         float64            `yaml:"left"`
	Top          float64            `yaml:"top"`
	Mode         common.DisplayMode `yaml:"mode"`
	ChromeHidden bool               `yaml:"chrome_hidden"`
	Effect       common.PageEffect  `yaml:"effect,omitempty"`
	EffectActive bool               `yaml:"effect_active"`
	Effects      int                `yaml:"effects"`
	SmoothScroll int                `yaml:"smooth_scrolls"`
}

func NewSimSurface(width, height, extent float64, chapters []string, frames clock.Frames) *SimSurface {
	return &SimSurface{
		width:    width,
		height:   height,
		extent:   extent,
		chapters: chapters,
		mode:     common.DisplayModePaged,
		frames:   frames,
	}
}

// ChapterIDs lists chapters of the book in document order.
func ChapterIDs(b *book.Book) []string {
	ids := make([]string, 0, len(b.TOC))
	for _, e := range b.TOC {
		ids = append(ids, e.ChapterID)
	}
	return ids
}

// Connect sets receiver of surface generated events.
func (s *SimSurface) Connect(dispatch func(Event)) {
	s.dispatch = dispatch
}

func (s *SimSurface) State() SimState {
	return SimState{
		Left:         s.left,
		Top:          s.top,
		Mode:         s.mode,
		ChromeHidden: s.chromeHidden,
		Effect:       s.effect,
		EffectActive: s.effectActive,
		Effects:      s.effects,
		SmoothScroll: s.smooth,
	}
}

func (s *SimSurface) Settings() book.Settings {
	return s.settings
}

func (s *SimSurface) PageWidth() float64 {
	return s.pageWidth
}

func (s *SimSurface) length() float64 {
	return float64(len(s.chapters)) * s.extent
}

func (s *SimSurface) ClientWidth() float64  { return s.width }
func (s *SimSurface) ClientHeight() float64 { return s.height }

func (s *SimSurface) ScrollWidth() float64 {
	if s.mode.Vertical() {
		return s.width
	}
	return math.Max(s.width, s.length())
}

func (s *SimSurface) ScrollHeight() float64 {
	if s.mode.Vertical() {
		return math.Max(s.height, s.length())
	}
	return s.height
}

func (s *SimSurface) ScrollLeft() float64 { return s.left }
func (s *SimSurface) ScrollTop() float64  { return s.top }

func clamp(v, limit float64) float64 {
	return math.Max(0, math.Min(v, math.Max(0, limit)))
}

func (s *SimSurface) SetScroll(left, top float64) {
	left = clamp(left, s.ScrollWidth()-s.width)
	top = clamp(top, s.ScrollHeight()-s.height)
	if left == s.left && top == s.top {
		return
	}
	s.left, s.top = left, top
	s.notifyScroll()
}

func (s *SimSurface) ScrollTo(left, top float64) {
	s.smooth++
	s.SetScroll(left, top)
}

func (s *SimSurface) notifyScroll() {
	if s.queued || s.frames == nil {
		return
	}
	s.queued = true
	s.frames.RequestFrame(func() {
		s.queued = false
		if s.dispatch != nil {
			s.dispatch(Event{Type: EventScroll})
		}
	})
}

func (s *SimSurface) ScrollIntoView(id string) bool {
	for i, v := range s.chapters {
		if v != id {
			continue
		}
		pos := float64(i) * s.extent
		if s.mode.Vertical() {
			s.ScrollTo(s.left, pos)
		} else {
			s.ScrollTo(pos, s.top)
		}
		return true
	}
	return false
}

func (s *SimSurface) Chapters() []ChapterOffset {
	pos := s.left
	if s.mode.Vertical() {
		pos = s.top
	}
	res := make([]ChapterOffset, 0, len(s.chapters))
	for i, id := range s.chapters {
		res = append(res, ChapterOffset{ID: id, Offset: float64(i)*s.extent - pos})
	}
	return res
}

func (s *SimSurface) SetLayout(mode common.DisplayMode) {
	s.mode = mode
	s.SetScroll(s.left, s.top)
}

func (s *SimSurface) SetPageWidth(w float64)           { s.pageWidth = w }
func (s *SimSurface) ApplyTypography(st book.Settings) { s.settings = st }
func (s *SimSurface) ToggleChrome()                    { s.chromeHidden = !s.chromeHidden }

func (s *SimSurface) SetEffect(effect common.PageEffect, active bool) {
	s.effect, s.effectActive = effect, active
	if active {
		s.effects++
	}
}

// Resize changes viewport geometry and notifies listeners.
func (s *SimSurface) Resize(width, height float64) {
	s.width, s.height = width, height
	s.SetScroll(s.left, s.top)
	if s.dispatch != nil {
		s.dispatch(Event{Type: EventResize})
	}
}
