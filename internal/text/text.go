// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package text renders loading and failure status messages in
// [basicfont.Face] fonts onto frame surfaces.
package text

import (
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/bbrks/wrap/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const ellipsis = "..."

// KeepAspectRatio returns the largest rectangle centered in dst that
// has the aspect ratio of src. It can be used in a call to a
// draw.Scaler to letterbox src in dst.
//
//	draw.BiLinear.Scale(dst, KeepAspectRatio(dst.Bounds(), sr), src, sr, op, opts)
func KeepAspectRatio(dst, src image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	if sw <= 0 || sh <= 0 {
		return dst
	}
	w, h := dst.Dx(), dst.Dy()
	switch {
	case sw*h < sh*w:
		w = sw * h / sh
	case sw*h > sh*w:
		h = sh * w / sw
	default:
		return dst
	}
	min := dst.Min.Add(image.Pt((dst.Dx()-w)/2, (dst.Dy()-h)/2))
	return image.Rectangle{Min: min, Max: min.Add(image.Pt(w, h))}
}

// Draw draws msg onto dst in col. The block of text is placed at the
// relative position (dx, dy) within the free space of dst, so (0, 0) is
// the top left and (0.5, 0.5) is centered. If words is true, lines are
// broken at word boundaries where possible. Text that does not fit is
// truncated with an ellipsis. Nothing is drawn if dst cannot hold a
// single line of at least four characters.
func Draw(dst draw.Image, msg string, col color.Color, face *basicfont.Face, dx, dy float64, words bool) {
	rows, cols := grid(dst.Bounds(), face)
	if rows < 1 || cols <= len(ellipsis) {
		return
	}
	lines := truncate(layout(msg, cols, words), rows, cols)

	origin := dst.Bounds().Min
	dot := func(i int) fixed.Point26_6 {
		return fixed.P(origin.X, origin.Y+face.Ascent+face.Height*i)
	}
	if dx != 0 || dy != 0 {
		ext := emptyExtent(dst.Bounds())
		for i, l := range lines {
			ext.add(l, face, dot(i))
		}
		dst = ext.place(dst, dx, dy)
	}
	d := font.Drawer{Dst: dst, Src: image.NewUniform(col), Face: face}
	for i, l := range lines {
		d.Dot = dot(i)
		d.DrawString(l)
	}
}

// grid returns the number of text rows and columns that fit in bound.
func grid(bound image.Rectangle, face *basicfont.Face) (rows, cols int) {
	return bound.Dy() / face.Height, bound.Dx() / (face.Width + 1)
}

// layout splits msg into lines of at most cols runes.
func layout(msg string, cols int, words bool) []string {
	if words {
		w := wrap.NewWrapper()
		w.StripTrailingNewline = true
		w.CutLongWords = true
		lines := strings.Split(w.Wrap(msg, cols), "\n")
		if len(lines) < 2 || lines[0] != "" {
			for i, l := range lines {
				lines[i] = strings.TrimSpace(l)
			}
		}
		return lines
	}
	var lines []string
	for r := []rune(msg); len(r) != 0; {
		n := min(cols, len(r))
		lines = append(lines, string(r[:n]))
		r = r[n:]
	}
	return lines
}

// truncate limits lines to rows, marking elided text with an ellipsis.
func truncate(lines []string, rows, cols int) []string {
	if len(lines) <= rows {
		return lines
	}
	lines = lines[:rows]
	last := lines[rows-1]
	if len(last) > cols-len(ellipsis) {
		last = last[:cols-len(ellipsis)]
	}
	lines[rows-1] = last + ellipsis
	return lines
}

// Outlined is an image that renders a single pixel width outline
// around a drawing.
type Outlined[T draw.Image] struct {
	Text       T
	Background T

	OutlineColor color.Color
}

func (o Outlined[T]) Set(x, y int, c color.Color) {
	o.Text.Set(x, y, c)
	for _, p := range [...]image.Point{image.Pt(-1, 0), image.Pt(0, 0), image.Pt(1, 0), image.Pt(0, -1), image.Pt(0, 1)} {
		o.Background.Set(x+p.X, y+p.Y, o.OutlineColor)
	}
}

// At returns the text color composited over the outline.
func (o Outlined[T]) At(x, y int) color.Color {
	// m is the maximum color value returned by image.Color.RGBA.
	const m = 1<<16 - 1

	tr, tg, tb, ta := o.Text.At(x, y).RGBA()
	br, bg, bb, ba := o.Background.At(x, y).RGBA()
	a := m - ta
	a |= a << 8
	over := func(b, t uint32) uint8 { return uint8((b*a/m + t) >> 8) }
	return color.RGBA{R: over(br, tr), G: over(bg, tg), B: over(bb, tb), A: over(ba, ta)}
}

func (o Outlined[T]) Bounds() image.Rectangle {
	return o.Text.Bounds().Intersect(o.Background.Bounds())
}

func (o Outlined[T]) ColorModel() color.Model {
	return o.Text.ColorModel()
}

// Shrink reduces the bounds of an Image by a margin.
type Shrink struct {
	draw.Image

	// Margin is the margin size in pixels.
	Margin int
}

func (s Shrink) Bounds() image.Rectangle {
	return s.Image.Bounds().Inset(s.Margin)
}

// extent is the pixel extent of rendered glyphs.
type extent image.Rectangle

// emptyExtent returns an inverted extent that any glyph will grow.
func emptyExtent(r image.Rectangle) *extent {
	return &extent{Min: r.Max, Max: r.Min}
}

// add grows the extent to cover s drawn at dot.
func (e *extent) add(s string, face font.Face, dot fixed.Point26_6) {
	prev := rune(-1)
	for _, c := range s {
		if prev >= 0 {
			dot.X += face.Kern(prev, c)
		}
		dr, _, _, advance, ok := face.Glyph(dot, c)
		if !ok {
			continue
		}
		e.cover(dr.Min)
		e.cover(dr.Max)
		dot.X += advance
		prev = c
	}
}

func (e *extent) cover(p image.Point) {
	e.Min.X = min(e.Min.X, p.X)
	e.Min.Y = min(e.Min.Y, p.Y)
	e.Max.X = max(e.Max.X, p.X)
	e.Max.Y = max(e.Max.Y, p.Y)
}

// place returns img translated so that the extent sits at the relative
// position (dx, dy) of the free space of img.
func (e *extent) place(img draw.Image, dx, dy float64) draw.Image {
	free := img.Bounds().Max.Sub(e.Max)
	return shifted{Image: img, by: image.Pt(int(float64(free.X)*dx), int(float64(free.Y)*dy))}
}

// shifted is an image with its drawing operations translated.
type shifted struct {
	draw.Image
	by image.Point
}

func (s shifted) Set(x, y int, c color.Color) {
	s.Image.Set(x+s.by.X, y+s.by.Y, c)
}

func (s shifted) At(x, y int) color.Color {
	return s.Image.At(x+s.by.X, y+s.by.Y)
}
