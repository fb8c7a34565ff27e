// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package animation

import (
	"bytes"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kortschak/flipbook/internal/event"
	"github.com/kortschak/flipbook/internal/slogext"
)

var (
	verbose = flag.Bool("verbose_log", false, "print full logging")
	lines   = flag.Bool("show_lines", false, "log source code position")
)

func newTestLogger(t *testing.T) *slog.Logger {
	t.Helper()
	var logBuf bytes.Buffer
	t.Cleanup(func() {
		if *verbose {
			t.Logf("log:\n%s\n", &logBuf)
		}
	})
	return slog.New(slogext.NewJSONHandler(&logBuf, &slogext.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: slogext.NewAtomicBool(*lines),
	}))
}

// manualScheduler is a Scheduler that runs requested callbacks only when
// tick is called.
type manualScheduler struct {
	next    int
	pending map[int]func()
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{pending: make(map[int]func())}
}

func (s *manualScheduler) RequestFrame(fn func()) func() {
	id := s.next
	s.next++
	s.pending[id] = fn
	return func() { delete(s.pending, id) }
}

// tick runs all callbacks requested before the call.
func (s *manualScheduler) tick() {
	pending := s.pending
	s.pending = make(map[int]func())
	for _, fn := range pending {
		fn()
	}
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type table []image.Image

func (t table) Frame(i int) (image.Image, bool) {
	if i < 0 || i >= len(t) || t[i] == nil {
		return nil, false
	}
	return t[i], true
}

func newTable(n int, size image.Point) table {
	t := make(table, n)
	for i := range t {
		img := image.NewRGBA(image.Rectangle{Max: size})
		img.Set(0, 0, color.RGBA{R: uint8(i), A: 0xff})
		t[i] = img
	}
	return t
}

type drawOp struct {
	Src    int // Red value of the src origin pixel.
	SR, DR image.Rectangle
}

type fakeSurface struct {
	size  image.Point
	clear int
	draws []drawOp
}

func (s *fakeSurface) SetSize(w, h int) { s.size = image.Point{X: w, Y: h} }
func (s *fakeSurface) Clear()           { s.clear++ }
func (s *fakeSurface) DrawImage(src image.Image, sr, dr image.Rectangle) {
	r, _, _, _ := src.At(src.Bounds().Min.X, src.Bounds().Min.Y).RGBA()
	s.draws = append(s.draws, drawOp{Src: int(r >> 8), SR: sr, DR: dr})
}

type harness struct {
	engine  *Engine
	sched   *manualScheduler
	clock   *fakeClock
	surface *fakeSurface
	bus     *event.Bus

	// trace is the sequence of drawn frames and
	// non-update events.
	trace []string
}

func newHarness(t *testing.T, cfg Config, frames Frames) *harness {
	t.Helper()
	log := newTestLogger(t)
	h := &harness{
		sched:   newManualScheduler(),
		clock:   &fakeClock{now: time.Unix(0, 0)},
		surface: &fakeSurface{},
		bus:     event.NewBus(nil, log),
	}
	cfg.Frames = frames
	cfg.Surface = h.surface
	cfg.Events = h.bus
	cfg.Clock = h.clock
	cfg.Scheduler = h.sched
	h.engine = NewEngine(cfg, log)
	for _, k := range event.Kinds() {
		h.bus.On(k, func(k event.Kind) {
			if k == event.Update {
				h.trace = append(h.trace, fmt.Sprint(h.engine.CurrentFrame()))
			} else {
				h.trace = append(h.trace, k.String())
			}
		})
	}
	return h
}

var advanceTests = []struct {
	index, dir, count int
	loop, reversible  bool

	wantNext, wantDir int
	wantOutcome       Outcome
}{
	{index: 0, dir: 1, count: 4, wantNext: 1, wantDir: 1, wantOutcome: Stepped},
	{index: 3, dir: 1, count: 4, wantNext: 3, wantDir: 1, wantOutcome: Stopped},
	{index: 3, dir: 1, count: 4, loop: true, wantNext: 0, wantDir: 1, wantOutcome: Looped},
	{index: 3, dir: 1, count: 4, loop: true, reversible: true, wantNext: 2, wantDir: -1, wantOutcome: Reversed},
	{index: 3, dir: 1, count: 4, reversible: true, wantNext: 3, wantDir: 1, wantOutcome: Stopped},
	{index: 2, dir: -1, count: 4, wantNext: 1, wantDir: -1, wantOutcome: Stepped},
	{index: 0, dir: -1, count: 4, wantNext: 0, wantDir: -1, wantOutcome: Stopped},
	{index: 0, dir: -1, count: 4, loop: true, wantNext: 3, wantDir: -1, wantOutcome: Looped},
	{index: 0, dir: -1, count: 4, loop: true, reversible: true, wantNext: 1, wantDir: 1, wantOutcome: Reversed},
	{index: 0, dir: 1, count: 1, loop: true, reversible: true, wantNext: 0, wantDir: -1, wantOutcome: Reversed},
	{index: 0, dir: -1, count: 1, loop: true, reversible: true, wantNext: 0, wantDir: 1, wantOutcome: Reversed},
	{index: 0, dir: 5, count: 4, wantNext: 1, wantDir: 1, wantOutcome: Stepped},
}

func TestAdvance(t *testing.T) {
	for _, test := range advanceTests {
		name := fmt.Sprintf("index=%d_dir=%d_count=%d_loop=%t_rev=%t", test.index, test.dir, test.count, test.loop, test.reversible)
		t.Run(name, func(t *testing.T) {
			next, dir, o := Advance(test.index, test.dir, test.count, test.loop, test.reversible)
			if next != test.wantNext || dir != test.wantDir || o != test.wantOutcome {
				t.Errorf("unexpected result: got:(%d, %d, %v) want:(%d, %d, %v)",
					next, dir, o, test.wantNext, test.wantDir, test.wantOutcome)
			}
		})
	}
}

var scenarioTests = []struct {
	name  string
	cfg   Config
	ticks int

	wantStart   int
	wantTrace   []string
	wantRunning bool
}{
	{
		name:      "forward_once",
		cfg:       Config{Count: 4, Direction: 1},
		ticks:     6,
		wantStart: 0,
		// The final frame is redrawn when playback stops
		// and then nothing more happens.
		wantTrace:   []string{"1", "2", "3", "3"},
		wantRunning: false,
	},
	{
		name:      "backward_once",
		cfg:       Config{Count: 3, Direction: -1},
		ticks:     6,
		wantStart: 2,
		wantTrace: []string{"1", "0", "0"},
	},
	{
		name:      "forward_bounce",
		cfg:       Config{Count: 4, Direction: 1, Loop: true, Reversible: true},
		ticks:     8,
		wantStart: 0,
		wantTrace: []string{
			"1", "2", "3",
			"reversible", "2", "1", "0",
			"reversible", "1", "2", "3",
		},
		wantRunning: true,
	},
	{
		name:      "backward_loop",
		cfg:       Config{Count: 3, Direction: -1, Loop: true},
		ticks:     5,
		wantStart: 2,
		wantTrace: []string{
			"1", "0",
			"looped", "2", "1", "0",
			"looped", "2",
		},
		wantRunning: true,
	},
	{
		name:      "forward_loop",
		cfg:       Config{Count: 2, Direction: 1, Loop: true},
		ticks:     3,
		wantStart: 0,
		wantTrace: []string{
			"1",
			"looped", "0", "1",
			"looped", "0",
		},
		wantRunning: true,
	},
}

func TestScenarios(t *testing.T) {
	for _, test := range scenarioTests {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t, test.cfg, newTable(test.cfg.Count, image.Point{X: 4, Y: 4}))
			if got := h.engine.CurrentFrame(); got != test.wantStart {
				t.Errorf("unexpected start frame: got:%d want:%d", got, test.wantStart)
			}
			h.engine.Play()
			for range test.ticks {
				h.sched.tick()
			}
			if !cmp.Equal(test.wantTrace, h.trace) {
				t.Errorf("unexpected trace:\n--- want:\n+++ got:\n%s", cmp.Diff(test.wantTrace, h.trace))
			}
			if got := h.engine.Running(); got != test.wantRunning {
				t.Errorf("unexpected running state: got:%t want:%t", got, test.wantRunning)
			}
			if !test.wantRunning && len(h.sched.pending) != 0 {
				t.Errorf("unexpected pending refresh requests after stop: %d", len(h.sched.pending))
			}
		})
	}
}

func TestBounceNeverRepeatsBoundary(t *testing.T) {
	for count := 2; count <= 6; count++ {
		h := newHarness(t, Config{Count: count, Direction: 1, Loop: true, Reversible: true}, newTable(count, image.Point{X: 1, Y: 1}))
		h.engine.Play()
		for range 10 * count {
			h.sched.tick()
		}
		var drawn []int
		for _, d := range h.surface.draws {
			drawn = append(drawn, d.Src)
		}
		for i := 1; i < len(drawn); i++ {
			if drawn[i] == drawn[i-1] {
				t.Errorf("count=%d: frame %d drawn twice consecutively at draw %d", count, drawn[i], i)
			}
		}
	}
}

func TestReversibleHandlerMovesFrame(t *testing.T) {
	for _, test := range []struct {
		name      string
		dir       int
		start     int
		moveTo    int
		wantFrame int
		wantDir   int
	}{
		{name: "forward", dir: 1, start: 3, moveTo: 1, wantFrame: 0, wantDir: Backward},
		{name: "backward", dir: -1, start: 0, moveTo: 2, wantFrame: 3, wantDir: Forward},
		{name: "forward_clamp", dir: 1, start: 3, moveTo: 0, wantFrame: 0, wantDir: Backward},
		{name: "backward_clamp", dir: -1, start: 0, moveTo: 3, wantFrame: 3, wantDir: Forward},
	} {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t, Config{Count: 4, Direction: test.dir, Loop: true, Reversible: true}, newTable(4, image.Point{X: 1, Y: 1}))
			h.engine.SetCurrentFrame(test.start)
			h.bus.On(event.Reversible, func(event.Kind) {
				h.engine.SetCurrentFrame(test.moveTo)
			})
			h.engine.Play()
			if got := h.engine.CurrentFrame(); got != test.wantFrame {
				t.Errorf("unexpected frame after bounce: got:%d want:%d", got, test.wantFrame)
			}
			if got := h.engine.Direction(); got != test.wantDir {
				t.Errorf("unexpected direction after bounce: got:%d want:%d", got, test.wantDir)
			}
			if n := len(h.surface.draws); n != 1 || h.surface.draws[0].Src != test.wantFrame {
				t.Errorf("unexpected draws after bounce: %+v", h.surface.draws)
			}
		})
	}
}

func TestStopped(t *testing.T) {
	h := newHarness(t, Config{Count: 3, Direction: 1}, newTable(3, image.Point{X: 1, Y: 1}))
	h.engine.Play()
	h.engine.Pause()
	if h.engine.Stopped() {
		t.Error("pause reported as stop")
	}

	h.engine.Play()
	for range 3 {
		h.sched.tick()
	}
	if h.engine.Running() {
		t.Error("engine running after final frame")
	}
	if !h.engine.Stopped() {
		t.Error("final frame not reported as stop")
	}

	h.engine.SetCurrentFrame(0)
	h.engine.Play()
	if h.engine.Stopped() {
		t.Error("stop not reset by play")
	}
}

func TestLoopedOncePerWrap(t *testing.T) {
	const count = 5
	h := newHarness(t, Config{Count: count, Direction: 1, Loop: true}, newTable(count, image.Point{X: 1, Y: 1}))
	h.engine.Play()
	const ticks = 4*count - 1
	for range ticks {
		h.sched.tick()
	}
	var looped, resets int
	for i, e := range h.trace {
		switch e {
		case "looped":
			looped++
			if i+1 >= len(h.trace) || h.trace[i+1] != "0" {
				t.Errorf("looped not followed by frame 0 at %d: %v", i, h.trace)
			}
		case "0":
			resets++
		}
	}
	if looped != 4 || resets != 4 {
		t.Errorf("unexpected wrap counts: looped=%d resets=%d want 4", looped, resets)
	}
}

func TestFrameRateConvergence(t *testing.T) {
	for _, fps := range []float64{1, 7, 10, 24, 29.97} {
		t.Run(fmt.Sprint(fps), func(t *testing.T) {
			h := newHarness(t, Config{Count: 3, Direction: 1, Loop: true}, newTable(3, image.Point{X: 1, Y: 1}))
			h.engine.fps = fps
			interval := time.Duration(float64(time.Second) / fps)

			var accepted []time.Time
			h.bus.On(event.Update, func(event.Kind) {
				accepted = append(accepted, h.clock.Now())
			})

			start := h.clock.Now()
			h.engine.Play()
			rnd := rand.New(rand.NewPCG(1, uint64(fps*100)))
			for range 20000 {
				// Display refresh at about 60Hz with up to ±5ms jitter.
				h.clock.advance(16667*time.Microsecond + time.Duration(rnd.IntN(10001)-5000)*time.Microsecond)
				h.sched.tick()
			}
			elapsed := h.clock.Now().Sub(start)

			// Exclude the immediate step on Play.
			got := len(accepted) - 1
			want := int(elapsed / interval)
			if got < want-1 || got > want {
				t.Errorf("unexpected number of advances: got:%d want:%d±1", got, want)
			}

			mean := accepted[len(accepted)-1].Sub(accepted[1]) / time.Duration(len(accepted)-2)
			if d := mean - interval; d < -interval/100 || interval/100 < d {
				t.Errorf("mean advance interval not within 1%% of target: got:%v want:%v", mean, interval)
			}
		})
	}
}

func TestPause(t *testing.T) {
	h := newHarness(t, Config{Count: 4, Direction: 1, Loop: true}, newTable(4, image.Point{X: 1, Y: 1}))

	// Pausing a paused engine is a no-op.
	h.engine.Pause()
	if h.engine.Running() {
		t.Fatal("engine running before play")
	}

	h.engine.Play()
	h.sched.tick()
	if len(h.sched.pending) != 1 {
		t.Fatalf("unexpected number of pending requests: %d", len(h.sched.pending))
	}
	h.engine.Pause()
	h.engine.Pause()
	if len(h.sched.pending) != 0 {
		t.Errorf("pending request not cancelled: %d", len(h.sched.pending))
	}
	frame := h.engine.CurrentFrame()
	for range 5 {
		h.sched.tick()
	}
	if got := h.engine.CurrentFrame(); got != frame {
		t.Errorf("frame changed while paused: got:%d want:%d", got, frame)
	}

	// Playing twice does not create a second loop.
	h.engine.Play()
	h.engine.Play()
	if len(h.sched.pending) != 1 {
		t.Errorf("unexpected number of pending requests after double play: %d", len(h.sched.pending))
	}
}

func TestPlayFromHandler(t *testing.T) {
	h := newHarness(t, Config{Count: 3, Direction: 1}, newTable(3, image.Point{X: 1, Y: 1}))
	var updates int
	h.bus.On(event.Update, func(event.Kind) {
		updates++
		h.engine.Play()
	})
	h.engine.Play()
	if updates != 1 {
		t.Errorf("unexpected number of updates after play: %d", updates)
	}
	if len(h.sched.pending) != 1 {
		t.Errorf("unexpected number of pending requests: %d", len(h.sched.pending))
	}
	h.sched.tick()
	if updates != 2 {
		t.Errorf("unexpected number of updates after tick: %d", updates)
	}
}

func TestDrawFrame(t *testing.T) {
	frames := newTable(3, image.Point{X: 8, Y: 6})
	// Frame with a non-zero origin.
	sub := image.NewRGBA(image.Rect(10, 20, 18, 26))
	sub.Set(10, 20, color.RGBA{R: 7, A: 0xff})
	frames[1] = sub
	frames[2] = nil

	h := newHarness(t, Config{
		Count:      3,
		FrameSize:  image.Point{X: 8, Y: 6},
		CanvasSize: image.Point{X: 16, Y: 12},
	}, frames)

	h.engine.DrawFrame(0)
	h.engine.DrawFrame(1)
	h.engine.DrawFrame(2) // Not loaded.
	h.engine.DrawFrame(-1)
	h.engine.SetResize(&Mapping{Src: image.Rect(1, 1, 5, 5), Dst: image.Rect(2, 2, 10, 10)})
	h.engine.DrawFrame(1)
	h.engine.SetResize(nil)
	h.engine.SetFrameSize(4, 3)
	h.engine.SetCanvasSize(4, 3)
	h.engine.DrawFrame(0)

	want := []drawOp{
		{Src: 0, SR: image.Rect(0, 0, 8, 6), DR: image.Rect(0, 0, 16, 12)},
		{Src: 7, SR: image.Rect(10, 20, 18, 26), DR: image.Rect(0, 0, 16, 12)},
		{Src: 7, SR: image.Rect(11, 21, 15, 25), DR: image.Rect(2, 2, 10, 10)},
		{Src: 0, SR: image.Rect(0, 0, 4, 3), DR: image.Rect(0, 0, 4, 3)},
	}
	if !cmp.Equal(want, h.surface.draws) {
		t.Errorf("unexpected draws:\n--- want:\n+++ got:\n%s", cmp.Diff(want, h.surface.draws))
	}
	if h.surface.clear != len(want) {
		t.Errorf("unexpected clear count: got:%d want:%d", h.surface.clear, len(want))
	}
	if got, want := h.surface.size, (image.Point{X: 4, Y: 3}); got != want {
		t.Errorf("unexpected surface size: got:%v want:%v", got, want)
	}
	var updates int
	for _, e := range h.trace {
		if e != "reversible" && e != "looped" {
			updates++
		}
	}
	if updates != len(want) {
		t.Errorf("unexpected update count: got:%d want:%d", updates, len(want))
	}
}

func TestSetters(t *testing.T) {
	h := newHarness(t, Config{Count: 4, Direction: -1}, newTable(4, image.Point{X: 1, Y: 1}))
	if got := h.engine.Direction(); got != Backward {
		t.Errorf("unexpected initial direction: got:%d want:%d", got, Backward)
	}
	h.engine.SetDirection(Forward)
	h.engine.SetCurrentFrame(10) // Not validated.
	if got := h.engine.CurrentFrame(); got != 10 {
		t.Errorf("unexpected current frame: got:%d want:10", got)
	}
	if h.engine.Resize() != nil {
		t.Error("unexpected non-nil resize")
	}
	m := &Mapping{Dst: image.Rect(0, 0, 1, 1)}
	h.engine.SetResize(m)
	m.Dst = image.Rectangle{}
	if got := h.engine.Resize(); got == nil || got.Dst != image.Rect(0, 0, 1, 1) {
		t.Errorf("resize mapping not copied: %v", got)
	}
}
