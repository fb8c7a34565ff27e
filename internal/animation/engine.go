// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package animation

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/kortschak/flipbook/internal/event"
	"github.com/kortschak/flipbook/internal/slogext"
)

// Surface is a drawing surface.
type Surface interface {
	// SetSize sets the pixel dimensions of the surface.
	SetSize(width, height int)
	// Clear clears the whole surface.
	Clear()
	// DrawImage draws the sr region of src into the dr region
	// of the surface, scaling as necessary.
	DrawImage(src image.Image, sr, dr image.Rectangle)
}

// Frames is a table of loaded frames.
type Frames interface {
	// Frame returns the frame at index i and whether
	// it has been loaded.
	Frame(i int) (image.Image, bool)
}

// Clock is a monotonic time source.
type Clock interface {
	Now() time.Time
}

// Scheduler provides display refresh opportunities.
type Scheduler interface {
	// RequestFrame arranges for fn to be called at the next
	// refresh opportunity and returns a function that cancels
	// the request. RequestFrame must not call fn synchronously.
	RequestFrame(fn func()) (cancel func())
}

// Emitter is the destination for playback events.
type Emitter interface {
	Emit(event.Kind)
}

// Mapping is a source to destination rectangle mapping for drawing a
// frame onto the surface. Src is relative to the frame's origin.
type Mapping struct {
	Src, Dst image.Rectangle
}

// Config holds the construction parameters for an Engine.
type Config struct {
	// Count is the number of frames in the sequence.
	Count int
	// Direction is the initial playback direction. Values
	// greater than zero are forward, otherwise backward.
	Direction int
	// FPS is the target frame rate. If FPS is zero, playback
	// advances on every refresh opportunity.
	FPS float64
	// Loop and Reversible specify the boundary policy.
	Loop       bool
	Reversible bool

	// FrameSize is the native frame size and CanvasSize is
	// the viewport size.
	FrameSize  image.Point
	CanvasSize image.Point
	// Resize, if not nil, replaces the default whole-frame to
	// whole-viewport mapping.
	Resize *Mapping

	Frames    Frames
	Surface   Surface
	Events    Emitter
	Clock     Clock
	Scheduler Scheduler
}

// Engine is a flip-book playback engine.
type Engine struct {
	frames  Frames
	surface Surface
	events  Emitter
	clock   Clock
	sched   Scheduler
	log     *slog.Logger

	count      int
	fps        float64
	loop       bool
	reversible bool

	mu         sync.Mutex
	current    int
	direction  int
	frameSize  image.Point
	canvasSize image.Point
	resize     *Mapping

	running  bool
	stopped  bool
	stepping bool
	cancel   func()
	interval time.Duration
	then     time.Time
}

// NewEngine returns a new Engine. The initial frame is the first frame
// for forward playback and the last for backward playback.
func NewEngine(cfg Config, log *slog.Logger) *Engine {
	dir := Forward
	current := 0
	if cfg.Direction < 0 {
		dir = Backward
		current = cfg.Count - 1
	}
	return &Engine{
		frames:     cfg.Frames,
		surface:    cfg.Surface,
		events:     cfg.Events,
		clock:      cfg.Clock,
		sched:      cfg.Scheduler,
		log:        log,
		count:      cfg.Count,
		fps:        cfg.FPS,
		loop:       cfg.Loop,
		reversible: cfg.Reversible,
		current:    current,
		direction:  dir,
		frameSize:  cfg.FrameSize,
		canvasSize: cfg.CanvasSize,
		resize:     cfg.Resize,
	}
}

// Play starts playback. The sequence is immediately advanced by one
// frame and then advanced at each accepted refresh opportunity until
// Pause is called or a non-looping sequence reaches its end. Calling
// Play while playing restarts the frame rate cadence.
func (e *Engine) Play() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if e.fps > 0 {
		e.interval = time.Duration(float64(time.Second) / e.fps)
		e.then = e.clock.Now()
	}
	e.running = true
	e.stopped = false
	// Play called from an event handler during a step must
	// not step again, the pending schedule handles it.
	stepping := e.stepping
	frame, interval := e.current, e.interval
	e.mu.Unlock()
	e.log.LogAttrs(context.Background(), slog.LevelDebug, "play", slog.Int("frame", frame), slog.Duration("interval", interval))

	if !stepping {
		e.step()
	}
	e.schedule()
}

// Pause stops playback. It is a no-op if the engine is not playing.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.log.LogAttrs(context.Background(), slog.LevelDebug, "pause", slog.Int("frame", e.current))
}

// Running returns whether playback is scheduled.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Stopped returns whether playback was ended by reaching the final frame
// of a non-looping sequence. It is reset by Play.
func (e *Engine) Stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// schedule requests the next refresh if the engine is running and no
// request is pending.
func (e *Engine) schedule() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.cancel != nil {
		return
	}
	e.cancel = e.sched.RequestFrame(e.render)
}

// render is the refresh callback.
func (e *Engine) render() {
	e.mu.Lock()
	e.cancel = nil
	if !e.running {
		e.mu.Unlock()
		return
	}
	advance := true
	if e.fps > 0 && e.interval > 0 {
		now := e.clock.Now()
		elapsed := now.Sub(e.then)
		if elapsed > e.interval {
			// Rebase rather than reset to now so that scheduling
			// jitter does not accumulate as rate drift.
			e.then = now.Add(-(elapsed % e.interval))
		} else {
			advance = false
		}
	}
	e.mu.Unlock()

	if advance {
		e.step()
	}
	e.schedule()
}

// step advances the sequence by one frame according to the loop and
// reversible policy and draws the resulting frame.
func (e *Engine) step() {
	e.mu.Lock()
	e.stepping = true
	next, dir, outcome := Advance(e.current, e.direction, e.count, e.loop, e.reversible)
	e.direction = dir
	if outcome != Reversed {
		e.current = next
	}
	e.stopped = outcome == Stopped
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.stepping = false
		e.mu.Unlock()
	}()

	switch outcome {
	case Stopped:
		e.Pause()
	case Reversed:
		// Handlers may move the current frame, so the inward
		// step is taken from wherever they leave it.
		e.events.Emit(event.Reversible)
		e.mu.Lock()
		if dir == Backward {
			e.current = max(e.current-1, 0)
		} else {
			e.current = min(e.current+1, max(e.count-1, 0))
		}
		e.mu.Unlock()
	case Looped:
		e.events.Emit(event.Looped)
	}
	e.DrawFrame(e.CurrentFrame())
}

// DrawFrame draws frame i to the surface and emits an Update event.
// If frame i has not been loaded DrawFrame is a no-op.
func (e *Engine) DrawFrame(i int) {
	img, ok := e.frames.Frame(i)
	if !ok {
		e.log.LogAttrs(context.Background(), slog.LevelDebug, "draw unloaded frame", slog.Int("frame", i))
		return
	}
	e.mu.Lock()
	var sr, dr image.Rectangle
	if e.resize != nil {
		sr, dr = e.resize.Src, e.resize.Dst
	} else {
		sr = image.Rectangle{Max: e.frameSize}
		dr = image.Rectangle{Max: e.canvasSize}
	}
	e.mu.Unlock()

	e.surface.Clear()
	e.surface.DrawImage(img, sr.Add(img.Bounds().Min), dr)
	e.events.Emit(event.Update)
}

// Count returns the number of frames in the sequence.
func (e *Engine) Count() int {
	return e.count
}

// CurrentFrame returns the current frame index.
func (e *Engine) CurrentFrame() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// SetCurrentFrame sets the current frame index. The index is not
// validated.
func (e *Engine) SetCurrentFrame(i int) {
	e.mu.Lock()
	e.current = i
	e.mu.Unlock()
}

// Direction returns the current playback direction.
func (e *Engine) Direction() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.direction
}

// SetDirection sets the playback direction.
func (e *Engine) SetDirection(dir int) {
	e.mu.Lock()
	e.direction = dir
	e.mu.Unlock()
}

// CanvasSize returns the viewport size.
func (e *Engine) CanvasSize() image.Point {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canvasSize
}

// SetCanvasSize sets the viewport size and resizes the surface.
func (e *Engine) SetCanvasSize(width, height int) {
	e.mu.Lock()
	e.canvasSize = image.Point{X: width, Y: height}
	e.mu.Unlock()
	e.surface.SetSize(width, height)
}

// FrameSize returns the native frame size.
func (e *Engine) FrameSize() image.Point {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frameSize
}

// SetFrameSize sets the native frame size used by the default mapping.
func (e *Engine) SetFrameSize(width, height int) {
	e.mu.Lock()
	e.frameSize = image.Point{X: width, Y: height}
	e.mu.Unlock()
}

// Resize returns the custom drawing mapping, or nil if the default
// mapping is used.
func (e *Engine) Resize() *Mapping {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.resize == nil {
		return nil
	}
	m := *e.resize
	return &m
}

// SetResize sets the custom drawing mapping. A nil m restores the
// default mapping.
func (e *Engine) SetResize(m *Mapping) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m == nil {
		e.log.LogAttrs(context.Background(), slog.LevelDebug, "default mapping")
		e.resize = nil
		return
	}
	e.log.LogAttrs(context.Background(), slog.LevelDebug, "set mapping", slog.Any("src", slogext.Rectangle(m.Src)), slog.Any("dst", slogext.Rectangle(m.Dst)))
	c := *m
	e.resize = &c
}
