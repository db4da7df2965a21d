package viewport

import (
	"math"
	"time"

	"go.uber.org/zap"

	"tsukiyomi/book"
	"tsukiyomi/clock"
	"tsukiyomi/common"
)

const (
	tapLeftRatio        = 0.33
	tapRightRatio       = 0.66
	tapMoveThreshold    = 12.0
	tapDedupWindow      = 450 * time.Millisecond
	wheelThreshold      = 120.0
	wheelLockDuration   = 320 * time.Millisecond
	swipeThreshold      = 60.0
	progressWindow      = 250 * time.Millisecond
	chapterTopThreshold = 24.0
	dimDuration         = 110 * time.Millisecond
	fadeDuration        = 140 * time.Millisecond

	firstChapterID = "chapter-001"
)

// Controller is the only writer of viewport state for one reading session.
// All methods and listeners must be called from a single goroutine.
type Controller struct {
	surface Surface
	sink    Sink
	clock   clock.Clock
	frames  clock.Frames
	log     *zap.Logger

	binder *Binder
	base   *Scope
	mode   *Scope

	settings book.Settings
	slider   Slider

	progress *clock.Throttle
	effect   clock.Timer
	wheel    wheelState
}

type wheelState struct {
	accum  float64
	origin int
	lock   *clock.Lock
	settle clock.Timer
}

func New(surface Surface, sink Sink, clk clock.Clock, frames clock.Frames, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Controller{
		surface:  surface,
		sink:     sink,
		clock:    clk,
		frames:   frames,
		log:      log.Named("viewport"),
		binder:   NewBinder(),
		settings: book.DefaultSettings(),
	}
	c.progress = clock.NewThrottle(clk, progressWindow, c.reportProgress)
	c.wheel.lock = clock.NewLock(clk, wheelLockDuration)
	return c
}

// Open applies settings, starts progress tracking and schedules restoration
// of stored position once layout settles.
func (c *Controller) Open(s book.Settings, p *book.ProgressPatch) {
	c.bindBase()
	c.ApplySettings(s)
	c.Restore(p)
	c.scheduleRefresh()
}

// Dispatch delivers host event to active listeners.
func (c *Controller) Dispatch(e Event) {
	c.binder.Dispatch(e)
}

// Listeners returns number of attached event listeners.
func (c *Controller) Listeners() int {
	return c.binder.Len()
}

func (c *Controller) Settings() book.Settings {
	return c.settings
}

func (c *Controller) Slider() Slider {
	return c.slider
}

// Close releases all listeners and pending timers.
func (c *Controller) Close() {
	if c.base != nil {
		c.base.Cancel()
	}
	if c.mode != nil {
		c.mode.Cancel()
	}
	c.progress.Cancel()
	c.resetWheel()
	if c.effect != nil {
		c.effect.Stop()
		c.effect = nil
	}
}

func (c *Controller) bindBase() {
	if c.base != nil {
		c.base.Cancel()
	}
	c.base = c.binder.NewScope()
	c.base.On(EventScroll, func(Event) {
		c.slider.Value = c.surface.ScrollLeft()
	})
	c.base.On(EventResize, func(Event) { c.refresh() })
	c.base.On(EventOrientation, func(Event) { c.refresh() })
	c.base.On(EventScroll, func(Event) { c.progress.Trigger() })
}

// ApplySettings renders s and rebinds gestures for its display mode.
func (c *Controller) ApplySettings(s book.Settings) {
	s.FontSize = book.OrDefault(s.FontSize, 100)
	s.LineHeight = book.OrDefault(s.LineHeight, 1.8)
	s.LetterSpacing = book.OrDefault(s.LetterSpacing, 0)
	var err error
	if s.Theme, err = common.ParseTheme(string(s.Theme)); err != nil {
		s.Theme = common.ThemeLight
	}
	if s.DisplayMode, err = common.ParseDisplayMode(string(s.DisplayMode)); err != nil {
		s.DisplayMode = common.DisplayModePaged
	}
	if s.PageEffect, err = common.ParsePageEffect(string(s.PageEffect)); err != nil {
		s.PageEffect = common.PageEffectNone
	}
	c.surface.ApplyTypography(s)
	c.settings = s
	c.applyDisplayMode(s.DisplayMode, s.TapInScroll)
}

// UpdateSettings applies user change and hands resulting settings to sink.
func (c *Controller) UpdateSettings(patch *book.SettingsPatch) {
	c.ApplySettings(c.settings.Merge(patch))
	if c.sink != nil {
		c.sink.UpdateSettings(c.settings)
	}
}

func (c *Controller) SetDisplayMode(mode common.DisplayMode) {
	c.UpdateSettings(&book.SettingsPatch{DisplayMode: &mode})
}

func (c *Controller) applyDisplayMode(mode common.DisplayMode, tapInScroll bool) {
	c.surface.SetLayout(mode)

	if c.mode != nil {
		c.mode.Cancel()
	}
	c.resetWheel()
	scope := c.binder.NewScope()
	c.mode = scope

	if mode == common.DisplayModePaged || tapInScroll {
		c.bindTap(scope, c.pageTap)
	} else {
		c.bindTap(scope, c.centerTap)
	}
	if mode == common.DisplayModeScrollX {
		c.bindWheel(scope)
	}
	c.bindSwipe(scope)

	c.slider.Disabled = mode == common.DisplayModeScrollY
	c.log.Debug("Display mode applied", zap.Stringer("mode", mode), zap.Bool("tapInScroll", tapInScroll), zap.Int("listeners", c.binder.Len()))
	c.scheduleRefresh()
}

func (c *Controller) bindTap(s *Scope, onTap func(x float64)) {
	var (
		startX, startY float64
		moved          bool
		touch          = clock.NewSuppressor(c.clock, tapDedupWindow)
	)
	s.On(EventTouchStart, func(e Event) {
		if e.Touches == 0 {
			return
		}
		startX, startY, moved = e.X, e.Y, false
	})
	s.On(EventTouchMove, func(e Event) {
		if e.Touches == 0 {
			return
		}
		if math.Abs(e.X-startX) > tapMoveThreshold || math.Abs(e.Y-startY) > tapMoveThreshold {
			moved = true
		}
	})
	s.On(EventTouchEnd, func(e Event) {
		touch.Mark()
		if moved || e.Touches == 0 {
			return
		}
		onTap(e.X)
	})
	s.On(EventClick, func(e Event) {
		if touch.Suppressed() {
			return
		}
		onTap(e.X)
	})
}

func (c *Controller) tapWidth() float64 {
	if w := c.surface.ClientWidth(); w > 0 {
		return w
	}
	return 1
}

func (c *Controller) pageTap(x float64) {
	w := c.tapWidth()
	switch {
	case x < w*tapLeftRatio:
		c.PageBy(-1)
	case x > w*tapRightRatio:
		c.PageBy(1)
	default:
		c.surface.ToggleChrome()
	}
}

func (c *Controller) centerTap(x float64) {
	w := c.tapWidth()
	if x >= w*tapLeftRatio && x <= w*tapRightRatio {
		c.surface.ToggleChrome()
	}
}

func (c *Controller) bindSwipe(s *Scope) {
	var (
		startX, startY float64
		active         bool
	)
	s.On(EventTouchStart, func(e Event) {
		if e.Touches == 0 {
			return
		}
		startX, startY, active = e.X, e.Y, true
	})
	s.On(EventTouchEnd, func(e Event) {
		if !active {
			return
		}
		active = false
		if e.Touches == 0 {
			return
		}
		dx, dy := e.X-startX, e.Y-startY
		if math.Abs(dy) < math.Abs(dx) || math.Abs(dy) < swipeThreshold {
			return
		}
		if dy > 0 {
			c.PageBy(-1)
		} else {
			c.PageBy(1)
		}
	})
}

func (c *Controller) pageWidth() float64 {
	return math.Max(1, c.surface.ClientWidth())
}

func (c *Controller) bindWheel(s *Scope) {
	s.On(EventWheel, func(e Event) {
		delta := e.DeltaX
		if math.Abs(e.DeltaY) >= math.Abs(e.DeltaX) {
			delta = e.DeltaY
		}
		if delta == 0 || c.wheel.lock.Locked() {
			return
		}
		w := c.pageWidth()
		left := c.surface.ScrollLeft()
		if c.wheel.accum == 0 {
			c.wheel.origin = int(math.Round(left / w))
		}
		c.surface.SetScroll(left+delta, c.surface.ScrollTop())
		c.wheel.accum += delta

		if c.wheel.settle != nil {
			c.wheel.settle.Stop()
			c.wheel.settle = nil
		}
		if math.Abs(c.wheel.accum) >= wheelThreshold {
			dir := 1
			if c.wheel.accum < 0 {
				dir = -1
			}
			c.wheel.accum = 0
			c.surface.ScrollTo(float64(c.wheel.origin+dir)*w, c.surface.ScrollTop())
			c.wheel.lock.Engage()
			c.log.Debug("Wheel paging", zap.Int("page", c.wheel.origin+dir))
			return
		}
		c.wheel.settle = c.clock.AfterFunc(wheelLockDuration, c.settleWheel)
	})
}

func (c *Controller) settleWheel() {
	c.wheel.settle = nil
	if c.wheel.lock.Locked() || c.wheel.accum == 0 {
		return
	}
	c.wheel.accum = 0
	w := c.pageWidth()
	c.surface.ScrollTo(math.Round(c.surface.ScrollLeft()/w)*w, c.surface.ScrollTop())
}

func (c *Controller) resetWheel() {
	c.wheel.accum = 0
	c.wheel.lock.Release()
	if c.wheel.settle != nil {
		c.wheel.settle.Stop()
		c.wheel.settle = nil
	}
}

// PageBy turns delta pages forward (positive) or back. Horizontal modes land
// on page boundary, vertical scroll moves by viewport height.
func (c *Controller) PageBy(delta int) {
	left, top := c.surface.ScrollLeft(), c.surface.ScrollTop()
	mode := c.settings.DisplayMode
	if mode == common.DisplayModeScrollY {
		c.surface.ScrollTo(left, top+float64(delta)*c.surface.ClientHeight())
		return
	}
	w := c.pageWidth()
	c.surface.ScrollTo((math.Round(left/w)+float64(delta))*w, top)
	if mode == common.DisplayModePaged {
		c.triggerEffect()
	}
}

// GoToChapter scrolls chapter root into view.
func (c *Controller) GoToChapter(id string) bool {
	ok := c.surface.ScrollIntoView(id)
	if !ok {
		c.log.Debug("Chapter not found", zap.String("id", id))
	}
	return ok
}

func (c *Controller) triggerEffect() {
	effect := c.settings.PageEffect
	if effect == common.PageEffectNone {
		return
	}
	if c.effect != nil {
		c.effect.Stop()
	}
	duration := dimDuration
	if effect == common.PageEffectFade {
		duration = fadeDuration
	}
	c.surface.SetEffect(effect, true)
	c.effect = c.clock.AfterFunc(duration, func() {
		c.effect = nil
		c.surface.SetEffect(effect, false)
	})
}

// CurrentChapter returns the last chapter root whose offset is within
// threshold of the top edge, scanning in document order.
func (c *Controller) CurrentChapter() string {
	chapters := c.surface.Chapters()
	if len(chapters) == 0 {
		return firstChapterID
	}
	candidate := chapters[0]
	for _, ch := range chapters {
		if ch.Offset > chapterTopThreshold {
			break
		}
		candidate = ch
	}
	if candidate.ID == "" {
		return firstChapterID
	}
	return candidate.ID
}

func (c *Controller) reportProgress() {
	chapterID := c.CurrentChapter()
	left := c.surface.ScrollLeft()
	w := c.surface.ClientWidth()
	if w == 0 {
		w = 1
	}
	pageIndex := int(math.Round(left / w))
	p := &book.ProgressPatch{ChapterID: &chapterID, ScrollLeft: &left, PageIndex: &pageIndex}
	if c.settings.DisplayMode == common.DisplayModeScrollY {
		top := c.surface.ScrollTop()
		p.ScrollTop = &top
	}
	if c.sink != nil {
		c.sink.UpdateProgress(p)
	}
}

// Restore applies stored position after two frames. Vertical scroll restores
// top offset, other modes restore page index, falling back to raw left
// offset.
func (c *Controller) Restore(p *book.ProgressPatch) {
	c.frames.RequestFrame(func() {
		c.frames.RequestFrame(func() {
			c.restore(p)
			c.refresh()
		})
	})
}

func (c *Controller) restore(p *book.ProgressPatch) {
	if p == nil {
		return
	}
	left, top := c.surface.ScrollLeft(), c.surface.ScrollTop()
	if c.settings.DisplayMode == common.DisplayModeScrollY && p.ScrollTop != nil {
		c.surface.SetScroll(left, book.OrDefault(*p.ScrollTop, 0))
		return
	}
	w := c.surface.ClientWidth()
	if w == 0 {
		w = 1
	}
	switch {
	case p.PageIndex != nil:
		c.surface.SetScroll(float64(*p.PageIndex)*w, top)
	case p.ScrollLeft != nil:
		c.surface.SetScroll(book.OrDefault(*p.ScrollLeft, 0), top)
	}
}

// SetSlider moves content to slider position.
func (c *Controller) SetSlider(v float64) {
	c.slider.Value = v
	c.surface.SetScroll(v, c.surface.ScrollTop())
}

func (c *Controller) refresh() {
	w := c.surface.ClientWidth()
	c.surface.SetPageWidth(w)
	limit := math.Max(0, c.surface.ScrollWidth()-w)
	c.slider = Slider{Max: limit, Value: math.Min(limit, c.surface.ScrollLeft()), Disabled: limit == 0}
}

func (c *Controller) scheduleRefresh() {
	c.frames.RequestFrame(func() {
		c.refresh()
		c.frames.RequestFrame(c.refresh)
	})
}
