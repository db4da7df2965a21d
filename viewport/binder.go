package viewport

import "fmt"

// EventType enumerates input and layout notifications delivered by host.
type EventType int

const (
	EventClick EventType = iota
	EventTouchStart
	EventTouchMove
	EventTouchEnd
	EventWheel
	EventScroll
	EventResize
	EventOrientation
)

func (t EventType) String() string {
	switch t {
	case EventClick:
		return "click"
	case EventTouchStart:
		return "touchstart"
	case EventTouchMove:
		return "touchmove"
	case EventTouchEnd:
		return "touchend"
	case EventWheel:
		return "wheel"
	case EventScroll:
		return "scroll"
	case EventResize:
		return "resize"
	case EventOrientation:
		return "orientationchange"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is a single host notification. Coordinates are relative to the
// viewport left/top edge. Touches is the number of active touch points, for
// touch end it counts changed touches.
type Event struct {
	Type    EventType
	X, Y    float64
	DeltaX  float64
	DeltaY  float64
	Touches int
}

type Listener func(Event)

type binding struct {
	scope *Scope
	typ   EventType
	fn    Listener
}

// Binder dispatches events to listeners attached through scopes.
type Binder struct {
	bindings []*binding
}

func NewBinder() *Binder {
	return &Binder{}
}

// NewScope returns fresh revocable scope.
func (b *Binder) NewScope() *Scope {
	return &Scope{binder: b}
}

// Dispatch delivers event to listeners in the order they were attached and
// returns number of listeners called. A listener whose scope is cancelled
// during dispatch is not called.
func (b *Binder) Dispatch(e Event) int {
	snapshot := make([]*binding, 0, len(b.bindings))
	for _, v := range b.bindings {
		if v.typ == e.Type {
			snapshot = append(snapshot, v)
		}
	}
	called := 0
	for _, v := range snapshot {
		if v.scope.cancelled {
			continue
		}
		v.fn(e)
		called++
	}
	return called
}

// Len returns number of attached listeners.
func (b *Binder) Len() int {
	return len(b.bindings)
}

// Count returns number of attached listeners for event type.
func (b *Binder) Count(t EventType) int {
	n := 0
	for _, v := range b.bindings {
		if v.typ == t {
			n++
		}
	}
	return n
}

func (b *Binder) detach(s *Scope) {
	kept := b.bindings[:0]
	for _, v := range b.bindings {
		if v.scope != s {
			kept = append(kept, v)
		}
	}
	for i := len(kept); i < len(b.bindings); i++ {
		b.bindings[i] = nil
	}
	b.bindings = kept
}

// Scope groups listeners so they can be released at once.
type Scope struct {
	binder    *Binder
	cancelled bool
}

// On attaches listener, it is ignored for cancelled scope.
func (s *Scope) On(t EventType, fn Listener) {
	if s.cancelled {
		return
	}
	s.binder.bindings = append(s.binder.bindings, &binding{scope: s, typ: t, fn: fn})
}

// Cancel detaches all listeners of the scope. It is safe to call more than
// once and from within a listener.
func (s *Scope) Cancel() {
	if s.cancelled {
		return
	}
	s.cancelled = true
	s.binder.detach(s)
}

func (s *Scope) Cancelled() bool {
	return s.cancelled
}
