// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package surface provides drawing surfaces for flip-book playback.
package surface

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font/basicfont"

	"github.com/kortschak/flipbook/internal/text"
)

// Interpolators is the set of named frame scaling interpolators.
var Interpolators = map[string]draw.Interpolator{
	"nearest":    draw.NearestNeighbor,
	"approx":     draw.ApproxBiLinear,
	"bilinear":   draw.BiLinear,
	"catmullrom": draw.CatmullRom,
}

// Interpolator returns the named interpolator. The empty name is
// the bilinear interpolator.
func Interpolator(name string) (draw.Interpolator, error) {
	if name == "" {
		name = "bilinear"
	}
	s, ok := Interpolators[name]
	if !ok {
		return nil, fmt.Errorf("unknown interpolation: %q", name)
	}
	return s, nil
}

// Canvas is an in-memory RGBA drawing surface. It is safe for
// concurrent use.
type Canvas struct {
	mu     sync.Mutex
	img    *image.RGBA
	scaler draw.Interpolator

	// Foreground and Background are the text and
	// clear colors.
	Foreground color.Color
	Background color.Color
}

// NewCanvas returns a new canvas of the given size using the named
// interpolation for scaling frames.
func NewCanvas(width, height int, interpolation string) (*Canvas, error) {
	s, err := Interpolator(interpolation)
	if err != nil {
		return nil, err
	}
	return &Canvas{
		img:        image.NewRGBA(image.Rect(0, 0, max(width, 0), max(height, 0))),
		scaler:     s,
		Foreground: color.White,
		Background: color.Black,
	}, nil
}

// SetSize sets the size of the canvas. The canvas is cleared if its
// size changes.
func (c *Canvas) SetSize(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := image.Rect(0, 0, max(width, 0), max(height, 0))
	if r == c.img.Rect {
		return
	}
	c.img = image.NewRGBA(r)
	c.clear()
}

// Size returns the size of the canvas.
func (c *Canvas) Size() image.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.img.Rect.Size()
}

// Clear fills the canvas with its background color.
func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clear()
}

func (c *Canvas) clear() {
	draw.Draw(c.img, c.img.Rect, &image.Uniform{c.Background}, image.Point{}, draw.Src)
}

// DrawImage draws the sr region of src into the dr region of the
// canvas, scaling with the canvas interpolator when the sizes differ.
func (c *Canvas) DrawImage(src image.Image, sr, dr image.Rectangle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drawImage(src, sr, dr)
}

func (c *Canvas) drawImage(src image.Image, sr, dr image.Rectangle) {
	if sr.Size() == dr.Size() {
		draw.Copy(c.img, dr.Min, src, sr, draw.Over, nil)
		return
	}
	c.scaler.Scale(c.img, dr, src, sr, draw.Over, nil)
}

// Text clears the canvas and renders msg centered on it.
func (c *Canvas) Text(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text(msg)
}

func (c *Canvas) text(msg string) {
	c.clear()
	dst := text.Outlined[*image.RGBA]{
		Text:         image.NewRGBA(c.img.Rect),
		Background:   image.NewRGBA(c.img.Rect),
		OutlineColor: c.Background,
	}
	text.Draw(text.Shrink{Image: dst, Margin: 1}, msg, c.Foreground, basicfont.Face7x13, 0.5, 0.5, true)
	draw.Draw(c.img, c.img.Rect, dst, image.Point{}, draw.Over)
}

// Image returns a copy of the current canvas.
func (c *Canvas) Image() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Canvas) snapshot() *image.RGBA {
	img := image.NewRGBA(c.img.Rect)
	copy(img.Pix, c.img.Pix)
	return img
}
