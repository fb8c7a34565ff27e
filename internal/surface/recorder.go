// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package surface

import (
	"context"
	"errors"
	"image"
	"image/color/palette"
	"image/gif"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/image/draw"
)

// Clock is a time source.
type Clock interface {
	Now() time.Time
}

// Recorder is a Canvas that records every drawn frame and every status
// text so that the drawing history can be written as an animated GIF.
type Recorder struct {
	*Canvas

	clock Clock
	log   *slog.Logger

	mu     sync.Mutex
	frames []*image.Paletted
	times  []time.Time
}

// NewRecorder returns a new Recorder wrapping the provided canvas.
func NewRecorder(c *Canvas, clock Clock, log *slog.Logger) *Recorder {
	return &Recorder{Canvas: c, clock: clock, log: log}
}

// SetSize sets the size of the canvas. Any frames recorded at a
// different size are discarded.
func (r *Recorder) SetSize(width, height int) {
	r.Canvas.SetSize(width, height)
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) != 0 && r.frames[0].Rect.Size() != image.Pt(width, height) {
		r.log.LogAttrs(context.Background(), slog.LevelWarn, "discard recorded frames", slog.Int("frames", len(r.frames)))
		r.frames = nil
		r.times = nil
	}
}

// DrawImage draws to the canvas and records the result.
func (r *Recorder) DrawImage(src image.Image, sr, dr image.Rectangle) {
	r.Canvas.mu.Lock()
	r.Canvas.drawImage(src, sr, dr)
	img := r.Canvas.snapshot()
	r.Canvas.mu.Unlock()
	r.record(img)
}

// Text renders msg to the canvas and records the result.
func (r *Recorder) Text(msg string) {
	r.Canvas.mu.Lock()
	r.Canvas.text(msg)
	img := r.Canvas.snapshot()
	r.Canvas.mu.Unlock()
	r.record(img)
}

func (r *Recorder) record(img *image.RGBA) {
	if img.Rect.Empty() {
		return
	}
	p := image.NewPaletted(img.Rect, palette.Plan9)
	draw.FloydSteinberg.Draw(p, p.Rect, img, img.Rect.Min)
	now := r.clock.Now()
	r.mu.Lock()
	r.frames = append(r.frames, p)
	r.times = append(r.times, now)
	r.mu.Unlock()
}

// Len returns the number of recorded frames.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// defaultDelay is the delay of the final frame when there is no
// preceding interval, in 100ths of a second.
const defaultDelay = 10

// Encode writes the recorded frames to w as an animated GIF. Frame
// delays are the intervals between recordings.
func (r *Recorder) Encode(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return errors.New("no frames recorded")
	}
	g := &gif.GIF{
		Image: r.frames,
		Delay: make([]int, len(r.frames)),
	}
	last := defaultDelay
	for i := range r.frames {
		if i+1 < len(r.times) {
			last = max(int(r.times[i+1].Sub(r.times[i]).Round(10*time.Millisecond)/(10*time.Millisecond)), 1)
		}
		g.Delay[i] = last
	}
	return gif.EncodeAll(w, g)
}
