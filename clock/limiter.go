package clock

import "time"

// Throttle runs action at most once per window. First trigger arms timer,
// triggers within the window are coalesced and action runs once when it
// fires, so it always sees the latest state.
type Throttle struct {
	clock  Clock
	window time.Duration
	action func()
	timer  Timer
}

func NewThrottle(c Clock, window time.Duration, action func()) *Throttle {
	return &Throttle{clock: c, window: window, action: action}
}

func (t *Throttle) Trigger() {
	if t.timer != nil {
		return
	}
	t.timer = t.clock.AfterFunc(t.window, func() {
		t.timer = nil
		t.action()
	})
}

// Pending reports whether action is scheduled.
func (t *Throttle) Pending() bool {
	return t.timer != nil
}

// Cancel drops scheduled action.
func (t *Throttle) Cancel() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Suppressor is a short lived "ignore next event" flag: after Mark events
// are suppressed until window elapses.
type Suppressor struct {
	clock  Clock
	window time.Duration
	last   time.Time
	marked bool
}

func NewSuppressor(c Clock, window time.Duration) *Suppressor {
	return &Suppressor{clock: c, window: window}
}

func (s *Suppressor) Mark() {
	s.last, s.marked = s.clock.Now(), true
}

func (s *Suppressor) Suppressed() bool {
	return s.marked && s.clock.Now().Sub(s.last) < s.window
}

// Lock is set for a fixed duration, relocking restarts the period.
type Lock struct {
	clock    Clock
	duration time.Duration
	timer    Timer
}

func NewLock(c Clock, d time.Duration) *Lock {
	return &Lock{clock: c, duration: d}
}

func (l *Lock) Engage() {
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = l.clock.AfterFunc(l.duration, func() {
		l.timer = nil
	})
}

func (l *Lock) Locked() bool {
	return l.timer != nil
}

// Release unlocks immediately.
func (l *Lock) Release() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}
