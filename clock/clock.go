// Package clock abstracts time for the event driven parts of the reader so
// gesture timing can be exercised without wall clock.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop prevents callback from running, returns false if it already ran
	// or was stopped.
	Stop() bool
}

// Source provides current time.
type Source interface {
	Now() time.Time
}

// Clock provides current time and delayed callbacks.
type Clock interface {
	Source
	AfterFunc(d time.Duration, f func()) Timer
}

// Frames schedules callbacks for the next rendering tick.
type Frames interface {
	RequestFrame(f func())
}

// System is wall clock. It has no delayed callbacks: Controller expects them
// on its own goroutine and wall clock timers would fire elsewhere.
type System struct{}

func (System) Now() time.Time {
	return time.Now()
}

// Manual is deterministic clock and frame scheduler. Time moves only on
// Advance, frames run only on RunFrames. Callbacks always run on the calling
// goroutine and may schedule more work.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
	frames []func()
}

type manualTimer struct {
	m    *Manual
	due  time.Time
	seq  int
	f    func()
	done bool
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	if t.done {
		return false
	}
	t.done = true
	t.m.remove(t)
	return true
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d < 0 {
		d = 0
	}
	m.seq++
	t := &manualTimer{m: m, due: m.now.Add(d), seq: m.seq, f: f}
	m.timers = append(m.timers, t)
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].due.Equal(m.timers[j].due) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].due.Before(m.timers[j].due)
	})
	return t
}

func (m *Manual) remove(t *manualTimer) {
	for i, v := range m.timers {
		if v == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}

// Advance moves time forward by d firing due timers in order. Timers
// scheduled by callbacks fire too if they become due within d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for len(m.timers) > 0 && !m.timers[0].due.After(target) {
		t := m.timers[0]
		m.timers = m.timers[1:]
		t.done = true
		if t.due.After(m.now) {
			m.now = t.due
		}
		m.mu.Unlock()
		t.f()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

// Pending returns number of timers not yet fired.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *Manual) RequestFrame(f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, f)
}

// RunFrames runs one rendering tick: callbacks requested before the call.
// Callbacks requested while running wait for the next tick. Returns number
// of callbacks run.
func (m *Manual) RunFrames() int {
	m.mu.Lock()
	frames := m.frames
	m.frames = nil
	m.mu.Unlock()

	for _, f := range frames {
		f()
	}
	return len(frames)
}

// PendingFrames returns number of callbacks waiting for the next tick.
func (m *Manual) PendingFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}
