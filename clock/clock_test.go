package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func TestManual_Advance(t *testing.T) {
	m := NewManual(epoch)

	var fired []string
	m.AfterFunc(20*time.Millisecond, func() { fired = append(fired, "b") })
	m.AfterFunc(10*time.Millisecond, func() {
		fired = append(fired, "a")
		m.AfterFunc(5*time.Millisecond, func() { fired = append(fired, "a2") })
	})
	m.AfterFunc(20*time.Millisecond, func() { fired = append(fired, "c") })
	stopped := m.AfterFunc(15*time.Millisecond, func() { fired = append(fired, "never") })

	if !stopped.Stop() {
		t.Error("Stop() of pending timer = false")
	}
	if stopped.Stop() {
		t.Error("second Stop() = true")
	}

	m.Advance(9 * time.Millisecond)
	if len(fired) != 0 {
		t.Fatalf("fired too early: %v", fired)
	}
	m.Advance(11 * time.Millisecond)

	want := []string{"a", "a2", "b", "c"}
	if len(fired) != len(want) {
		t.Fatalf("fired = %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Errorf("fired[%d] = %q, want %q", i, fired[i], want[i])
		}
	}
	if got := m.Now().Sub(epoch); got != 20*time.Millisecond {
		t.Errorf("Now() moved by %v", got)
	}
	if m.Pending() != 0 {
		t.Errorf("Pending() = %d", m.Pending())
	}
}

func TestManual_NowInsideCallback(t *testing.T) {
	m := NewManual(epoch)
	var at time.Duration
	m.AfterFunc(7*time.Millisecond, func() { at = m.Now().Sub(epoch) })
	m.Advance(time.Second)
	if at != 7*time.Millisecond {
		t.Errorf("callback saw %v, want 7ms", at)
	}
}

func TestManual_Frames(t *testing.T) {
	m := NewManual(epoch)
	ticks := 0
	m.RequestFrame(func() {
		ticks++
		m.RequestFrame(func() { ticks++ })
	})

	if n := m.RunFrames(); n != 1 || ticks != 1 {
		t.Fatalf("first tick ran %d callbacks, ticks = %d", n, ticks)
	}
	if m.PendingFrames() != 1 {
		t.Fatalf("PendingFrames() = %d, want 1", m.PendingFrames())
	}
	if n := m.RunFrames(); n != 1 || ticks != 2 {
		t.Fatalf("second tick ran %d callbacks, ticks = %d", n, ticks)
	}
	if n := m.RunFrames(); n != 0 {
		t.Errorf("idle tick ran %d callbacks", n)
	}
}

func TestThrottle(t *testing.T) {
	m := NewManual(epoch)
	state, seen, calls := 0, 0, 0
	th := NewThrottle(m, 250*time.Millisecond, func() {
		calls++
		seen = state
	})

	for i := 1; i <= 5; i++ {
		state = i
		th.Trigger()
		m.Advance(40 * time.Millisecond)
	}
	if calls != 0 {
		t.Fatalf("action ran before window elapsed")
	}
	m.Advance(50 * time.Millisecond)
	if calls != 1 || seen != 5 {
		t.Errorf("calls = %d, seen = %d, want 1 call with latest state", calls, seen)
	}

	th.Trigger()
	if !th.Pending() {
		t.Error("Pending() = false after Trigger()")
	}
	th.Cancel()
	m.Advance(time.Second)
	if calls != 1 {
		t.Errorf("cancelled throttle fired")
	}
}

func TestSuppressor(t *testing.T) {
	m := NewManual(epoch)
	s := NewSuppressor(m, 450*time.Millisecond)
	if s.Suppressed() {
		t.Error("suppressed before Mark()")
	}
	s.Mark()
	m.Advance(449 * time.Millisecond)
	if !s.Suppressed() {
		t.Error("not suppressed inside window")
	}
	m.Advance(time.Millisecond)
	if s.Suppressed() {
		t.Error("suppressed after window")
	}
}

func TestLock(t *testing.T) {
	m := NewManual(epoch)
	l := NewLock(m, 320*time.Millisecond)
	l.Engage()
	m.Advance(300 * time.Millisecond)
	l.Engage()
	m.Advance(300 * time.Millisecond)
	if !l.Locked() {
		t.Error("relocking must restart the period")
	}
	m.Advance(20 * time.Millisecond)
	if l.Locked() {
		t.Error("still locked after period")
	}
	l.Engage()
	l.Release()
	if l.Locked() || m.Pending() != 0 {
		t.Error("Release() left lock engaged")
	}
}

func TestSystem_HasNoCallbacks(t *testing.T) {
	var src Source = System{}
	if _, ok := src.(Clock); ok {
		t.Error("System must not schedule callbacks")
	}
	if src.Now().IsZero() {
		t.Error("System.Now() returned zero time")
	}
}
