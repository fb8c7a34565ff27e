// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sequence provides flip-book playback of numbered image
// sequences.
//
// A Sequence loads every frame of a sequence concurrently and plays the
// loaded frames onto a drawing surface at a target frame rate, stopping,
// looping or bouncing at the ends of the sequence. Progress and playback
// transitions are reported as events.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kortschak/flipbook/config"
	"github.com/kortschak/flipbook/internal/animation"
	"github.com/kortschak/flipbook/internal/event"
	"github.com/kortschak/flipbook/internal/fetch"
	"github.com/kortschak/flipbook/internal/loader"
	"github.com/kortschak/flipbook/internal/slogext"
)

// Kind is a sequence event kind.
type Kind = event.Kind

// Sequence events.
const (
	FirstLoaded = event.FirstLoaded
	Loading     = event.Loading
	Loaded      = event.Loaded
	ErrorLoad   = event.ErrorLoad
	Reversible  = event.Reversible
	Looped      = event.Looped
	Update      = event.Update
)

// Handler is an event handler.
type Handler = event.Handler

// Bus is an event bus. A Sequence's events bubble to the Bus provided
// as Options.Parent.
type Bus = event.Bus

// NewBus returns a new Bus with the provided parent, which may be nil.
func NewBus(parent *Bus, log *slog.Logger) *Bus {
	return event.NewBus(parent, log)
}

// Surface is a drawing surface.
type Surface = animation.Surface

// Scheduler provides display refresh opportunities.
type Scheduler = animation.Scheduler

// Clock is a time source.
type Clock = animation.Clock

// Fetcher fetches and decodes a single frame.
type Fetcher = loader.Fetcher

// Options holds the run-time dependencies of a Sequence.
type Options struct {
	// Scheduler is the source of refresh opportunities.
	// It must not be nil.
	Scheduler Scheduler
	// Clock is used for frame rate capping. If nil, the
	// system clock is used.
	Clock Clock
	// Fetcher is used to fetch frames. If nil, frames are
	// fetched from files, http(s) and data URLs with relative
	// paths resolved against the working directory.
	Fetcher Fetcher
	// Post, if not nil, is used to deliver frame load
	// completions, typically to the goroutine running
	// the Scheduler.
	Post func(func())
	// Parent is the parent event bus.
	Parent *Bus
	// Logger is the sequence logger. If nil, logging
	// is discarded.
	Logger *slog.Logger
}

// Sequence is a flip-book image sequence.
type Sequence struct {
	cfg     config.Sequence
	ctx     context.Context
	log     *slog.Logger
	session string

	bus      *Bus
	frames   *loader.Loader
	engine   *animation.Engine
	handlers map[Kind][]action

	mu          sync.Mutex
	initialised bool
}

// New returns a new Sequence playing the sequence described by cfg onto
// surface. Unless cfg.Prevent is true, the sequence is initialised and
// frame loading started before New returns. Frame fetches run until they
// complete or ctx is cancelled.
func New(ctx context.Context, cfg *config.Sequence, surface Surface, opts Options) (*Sequence, error) {
	if cfg == nil {
		return nil, errors.New("missing configuration")
	}
	if surface == nil {
		return nil, errors.New("missing surface")
	}
	if opts.Scheduler == nil {
		return nil, errors.New("missing scheduler")
	}
	if cfg.CountFrames <= 0 {
		return nil, fmt.Errorf("invalid frame count: %d", cfg.CountFrames)
	}
	handlers, err := compileHandlers(cfg.On)
	if err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Fetcher == nil {
		opts.Fetcher = fetch.NewMux(".", nil)
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	session := uuid.NewString()
	log = log.With(slog.String("component", "sequence"), slog.String("session", session))

	s := &Sequence{
		cfg:      *cfg,
		ctx:      ctx,
		log:      log,
		session:  session,
		bus:      event.NewBus(opts.Parent, log),
		handlers: handlers,
	}
	s.frames = loader.New(loader.Config{
		Naming: loader.Naming{
			Dir:    cfg.PathToFrames,
			Prefix: cfg.NameFrames,
			Pad:    cfg.PadFrames,
			Ext:    cfg.FormatFrames,
		},
		Count:   cfg.CountFrames,
		Reverse: cfg.Direction < 0,
		Fetcher: opts.Fetcher,
		Events:  s.bus,
		Post:    opts.Post,
	}, log.With(slog.String("component", "loader")))

	frameSize := image.Point{X: cfg.WidthFrames, Y: cfg.HeightFrames}
	canvasSize := frameSize
	if cfg.WidthCanvas != nil {
		canvasSize.X = *cfg.WidthCanvas
	}
	if cfg.HeightCanvas != nil {
		canvasSize.Y = *cfg.HeightCanvas
	}
	s.engine = animation.NewEngine(animation.Config{
		Count:      cfg.CountFrames,
		Direction:  cfg.Direction,
		FPS:        cfg.FPS,
		Loop:       cfg.Loop,
		Reversible: cfg.Reversible,
		FrameSize:  frameSize,
		CanvasSize: canvasSize,
		Resize:     mapping(cfg.Resize),
		Frames:     s.frames,
		Surface:    surface,
		Events:     s.bus,
		Clock:      opts.Clock,
		Scheduler:  opts.Scheduler,
	}, log.With(slog.String("component", "engine")))

	log.LogAttrs(ctx, slog.LevelInfo, "new sequence",
		slog.Int("count", cfg.CountFrames),
		slog.String("first", s.frames.URL(0)),
		slog.Any("frame_size", slogext.Point(frameSize)),
		slog.Any("canvas_size", slogext.Point(canvasSize)),
		slog.Float64("fps", cfg.FPS),
		slog.Bool("loop", cfg.Loop),
		slog.Bool("reversible", cfg.Reversible),
	)
	if !cfg.Prevent {
		s.Init()
	}
	return s, nil
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// mapping returns the drawing mapping corresponding to r.
func mapping(r *config.Resize) *animation.Mapping {
	if r == nil {
		return nil
	}
	return &animation.Mapping{
		Src: image.Rect(r.SX, r.SY, r.SX+r.SWidth, r.SY+r.SHeight),
		Dst: image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height),
	}
}

// Init registers the configured and built-in event handlers, sizes the
// surface and starts loading frames. Init is called by New unless the
// configuration's Prevent field is true. Calls after the first have no
// effect.
func (s *Sequence) Init() {
	s.mu.Lock()
	if s.initialised {
		s.mu.Unlock()
		s.log.LogAttrs(s.ctx, slog.LevelWarn, "sequence already initialised")
		return
	}
	s.initialised = true
	s.mu.Unlock()

	for k, actions := range s.handlers {
		for _, a := range actions {
			s.bus.On(k, func(k Kind) { s.perform(k, a) })
		}
	}
	if s.cfg.RenderFirstFrame {
		s.bus.On(FirstLoaded, func(Kind) {
			s.DrawFrame(s.CurrentFrame())
		})
	}
	s.bus.On(Loaded, func(Kind) {
		s.log.LogAttrs(s.ctx, slog.LevelInfo, "all frames loaded", slog.Int("count", s.Count()))
		if s.cfg.StartAfterLoading {
			s.Play()
		}
	})
	s.bus.On(ErrorLoad, func(Kind) {
		s.log.LogAttrs(s.ctx, slog.LevelError, "frame load failed", slog.Int("loaded", s.CountLoading()), slog.Int("pending", s.Pending()))
	})
	size := s.engine.CanvasSize()
	s.SetSizeCanvas(size.X, size.Y)
	s.LoadFrames()
}

// Session returns the unique session identifier of the sequence.
func (s *Sequence) Session() string {
	return s.session
}

// LoadFrames starts loading all frames. It should be called only once
// and is called by Init.
func (s *Sequence) LoadFrames() {
	s.frames.LoadAll(s.ctx)
}

// DrawFrame draws frame i to the surface. It is a no-op if frame i has
// not been loaded.
func (s *Sequence) DrawFrame(i int) {
	s.engine.DrawFrame(i)
}

// Play starts playback.
func (s *Sequence) Play() {
	s.engine.Play()
}

// Pause stops playback.
func (s *Sequence) Pause() {
	s.engine.Pause()
}

// Running returns whether the sequence is playing.
func (s *Sequence) Running() bool {
	return s.engine.Running()
}

// Stopped returns whether playback ended at the final frame of a
// non-looping sequence. Pausing does not count as stopping.
func (s *Sequence) Stopped() bool {
	return s.engine.Stopped()
}

// On registers h to be called when events of kind k are emitted.
func (s *Sequence) On(k Kind, h Handler) {
	s.bus.On(k, h)
}

// Dispatch emits the named event. Unknown event names are logged as
// errors.
func (s *Sequence) Dispatch(name string) {
	s.bus.Dispatch(name)
}

// SizeCanvas returns the viewport size.
func (s *Sequence) SizeCanvas() (width, height int) {
	p := s.engine.CanvasSize()
	return p.X, p.Y
}

// SetSizeCanvas sets the viewport size and resizes the surface.
func (s *Sequence) SetSizeCanvas(width, height int) {
	s.engine.SetCanvasSize(width, height)
}

// SizeFrames returns the native frame size.
func (s *Sequence) SizeFrames() (width, height int) {
	p := s.engine.FrameSize()
	return p.X, p.Y
}

// SetSizeFrames sets the native frame size.
func (s *Sequence) SetSizeFrames(width, height int) {
	s.engine.SetFrameSize(width, height)
}

// SetResize sets the frame to viewport mapping. A nil r restores the
// whole frame to whole viewport mapping.
func (s *Sequence) SetResize(r *config.Resize) {
	s.engine.SetResize(mapping(r))
}

// Direction returns the playback direction.
func (s *Sequence) Direction() int {
	return s.engine.Direction()
}

// SetDirection sets the playback direction.
func (s *Sequence) SetDirection(dir int) {
	s.engine.SetDirection(dir)
}

// CurrentFrame returns the current frame index.
func (s *Sequence) CurrentFrame() int {
	return s.engine.CurrentFrame()
}

// SetCurrentFrame sets the current frame index. The index is not
// checked.
func (s *Sequence) SetCurrentFrame(i int) {
	s.engine.SetCurrentFrame(i)
}

// PercentLoading returns the percentage of frames loaded, rounded down.
func (s *Sequence) PercentLoading() int {
	return s.frames.LoadedPercent()
}

// CountLoading returns the number of frames loaded.
func (s *Sequence) CountLoading() int {
	return s.frames.LoadedCount()
}

// Count returns the number of frames in the sequence.
func (s *Sequence) Count() int {
	return s.frames.Count()
}

// Pending returns the number of frame fetches that have not completed.
func (s *Sequence) Pending() int {
	return s.frames.Pending()
}
