package viewport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"tsukiyomi/book"
	"tsukiyomi/clock"
	"tsukiyomi/common"
)

const frameInterval = 16 * time.Millisecond

// Geometry of simulated viewport.
type Geometry struct {
	Width         float64 `yaml:"width"`
	Height        float64 `yaml:"height"`
	ChapterExtent float64 `yaml:"chapter_extent"`
}

// Script is a scripted list of timed gestures.
type Script struct {
	Viewport *Geometry `yaml:"viewport,omitempty"`
	Steps    []Step    `yaml:"steps"`
}

// Step waits, then performs action.
type Step struct {
	Wait    time.Duration      `yaml:"wait,omitempty"`
	Action  string             `yaml:"action"`
	X       float64            `yaml:"x,omitempty"`
	Y       float64            `yaml:"y,omitempty"`
	DX      float64            `yaml:"dx,omitempty"`
	DY      float64            `yaml:"dy,omitempty"`
	Value   float64            `yaml:"value,omitempty"`
	Pages   int                `yaml:"pages,omitempty"`
	Width   float64            `yaml:"width,omitempty"`
	Height  float64            `yaml:"height,omitempty"`
	Mode    common.DisplayMode `yaml:"mode,omitempty"`
	Effect  common.PageEffect  `yaml:"effect,omitempty"`
	Enabled bool               `yaml:"enabled,omitempty"`
	Chapter string             `yaml:"chapter,omitempty"`
}

// StepResult is surface state observed after step.
type StepResult struct {
	Step   int      `yaml:"step"`
	Action string   `yaml:"action"`
	State  SimState `yaml:"state"`
	Slider Slider   `yaml:"slider"`
}

// LoadScript decodes YAML script rejecting unknown fields.
func LoadScript(r io.Reader) (*Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Script
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return &s, nil
		}
		return nil, fmt.Errorf("unable to decode replay script: %w", err)
	}
	return &s, nil
}

// Replay drives controller over simulated surface with manual clock.
type Replay struct {
	Controller *Controller
	Surface    *SimSurface
	Clock      *clock.Manual
	log        *zap.Logger
}

func NewReplay(b *book.Book, g Geometry, sink Sink, start time.Time, log *zap.Logger) *Replay {
	if log == nil {
		log = zap.NewNop()
	}
	clk := clock.NewManual(start)
	surface := NewSimSurface(g.Width, g.Height, g.ChapterExtent, ChapterIDs(b), clk)
	ctrl := New(surface, sink, clk, clk, log)
	surface.Connect(ctrl.Dispatch)
	return &Replay{Controller: ctrl, Surface: surface, Clock: clk, log: log.Named("replay")}
}

// Tick advances time frame by frame.
func (r *Replay) Tick(d time.Duration) {
	for d > 0 {
		step := min(d, frameInterval)
		r.Clock.Advance(step)
		r.Clock.RunFrames()
		d -= step
	}
}

// Settle runs frames and timers until nothing is pending, bounded to a few
// seconds of simulated time.
func (r *Replay) Settle() {
	for i := 0; i < 250 && (r.Clock.Pending() > 0 || r.Clock.PendingFrames() > 0); i++ {
		r.Tick(frameInterval)
	}
}

// Run opens session state on the surface and performs all script steps.
func (r *Replay) Run(ctx context.Context, s book.Settings, p *book.ProgressPatch, script *Script) ([]StepResult, error) {
	r.Controller.Open(s, p)
	r.Settle()

	results := make([]StepResult, 0, len(script.Steps))
	for i, st := range script.Steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		r.Tick(st.Wait)
		if err := r.perform(st); err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		r.Tick(frameInterval)
		results = append(results, StepResult{Step: i + 1, Action: st.Action, State: r.Surface.State(), Slider: r.Controller.Slider()})
		r.log.Debug("Step performed", zap.Int("step", i+1), zap.String("action", st.Action),
			zap.Float64("left", r.Surface.ScrollLeft()), zap.Float64("top", r.Surface.ScrollTop()))
	}
	r.Settle()
	return results, nil
}

func (r *Replay) perform(st Step) error {
	c, s := r.Controller, r.Surface
	switch st.Action {
	case "wait":
	case "click":
		c.Dispatch(Event{Type: EventClick, X: st.X, Y: st.Y})
	case "tap":
		c.Dispatch(Event{Type: EventTouchStart, X: st.X, Y: st.Y, Touches: 1})
		c.Dispatch(Event{Type: EventTouchEnd, X: st.X, Y: st.Y, Touches: 1})
	case "drag":
		c.Dispatch(Event{Type: EventTouchStart, X: st.X, Y: st.Y, Touches: 1})
		c.Dispatch(Event{Type: EventTouchMove, X: st.X + st.DX/2, Y: st.Y + st.DY/2, Touches: 1})
		c.Dispatch(Event{Type: EventTouchMove, X: st.X + st.DX, Y: st.Y + st.DY, Touches: 1})
		c.Dispatch(Event{Type: EventTouchEnd, X: st.X + st.DX, Y: st.Y + st.DY, Touches: 1})
	case "wheel":
		c.Dispatch(Event{Type: EventWheel, DeltaX: st.DX, DeltaY: st.DY})
	case "scroll":
		s.SetScroll(st.X, st.Y)
	case "slider":
		c.SetSlider(st.Value)
	case "resize":
		s.Resize(st.Width, st.Height)
	case "orientation":
		s.Resize(st.Height, st.Width)
		c.Dispatch(Event{Type: EventOrientation})
	case "mode":
		if !st.Mode.IsValid() {
			return fmt.Errorf("invalid display mode %q", st.Mode)
		}
		c.SetDisplayMode(st.Mode)
	case "effect":
		if !st.Effect.IsValid() {
			return fmt.Errorf("invalid page effect %q", st.Effect)
		}
		c.UpdateSettings(&book.SettingsPatch{PageEffect: &st.Effect})
	case "tap_in_scroll":
		c.UpdateSettings(&book.SettingsPatch{TapInScroll: &st.Enabled})
	case "chapter":
		if !c.GoToChapter(st.Chapter) {
			return fmt.Errorf("no chapter %q", st.Chapter)
		}
	case "page":
		c.PageBy(st.Pages)
	default:
		return fmt.Errorf("unknown action %q", st.Action)
	}
	return nil
}
