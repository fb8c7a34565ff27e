// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package surface

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"reflect"
	"sync"

	"github.com/kortschak/ardilla"

	"github.com/kortschak/flipbook/internal/slogext"
	"github.com/kortschak/flipbook/internal/text"
)

// Device is a Stream Deck device.
type Device interface {
	Bounds() (image.Rectangle, error)
	RawImage(image.Image) (*ardilla.RawImage, error)
	SetImage(row, col int, img image.Image) error
	Reset() error
	Close() error
}

// Deck is a surface that renders to a single Stream Deck button. The
// canvas is fixed at the button's size and frames are letterboxed into
// the button. Rendered button images are cached so that frames are only
// converted to the device's image format the first time they are shown.
type Deck struct {
	*Canvas

	dev      Device
	row, col int
	log      *slog.Logger

	mu    sync.Mutex
	cache map[cacheKey]*ardilla.RawImage
}

type cacheKey struct {
	src    image.Image
	sr, dr image.Rectangle
}

// OpenDeck opens the Stream Deck with the given serial, or the first
// device found if serial is empty, and returns a Deck rendering to the
// button at row and col.
func OpenDeck(serial string, row, col int, interpolation string, log *slog.Logger) (*Deck, error) {
	dev, err := ardilla.NewDeck(0, serial)
	if err != nil {
		return nil, err
	}
	if serial == "" {
		serial, err = dev.Serial()
		if err != nil {
			dev.Close()
			return nil, err
		}
	}
	rows, cols := dev.Layout()
	if row < 0 || rows <= row || col < 0 || cols <= col {
		dev.Close()
		return nil, fmt.Errorf("button out of range: row=%d col=%d layout=%dx%d", row, col, rows, cols)
	}
	log.LogAttrs(context.Background(), slog.LevelInfo, "opened deck", slog.String("model", dev.PID().String()), slog.String("serial", serial))
	d, err := NewDeck(dev, row, col, interpolation, log)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return d, nil
}

// NewDeck returns a Deck rendering to the button at row and col on dev.
func NewDeck(dev Device, row, col int, interpolation string, log *slog.Logger) (*Deck, error) {
	bounds, err := dev.Bounds()
	if err != nil {
		return nil, err
	}
	c, err := NewCanvas(bounds.Dx(), bounds.Dy(), interpolation)
	if err != nil {
		return nil, err
	}
	return &Deck{
		Canvas: c,
		dev:    dev,
		row:    row,
		col:    col,
		log:    log,
		cache:  make(map[cacheKey]*ardilla.RawImage),
	}, nil
}

// SetSize is a no-op. The size of a Deck is the size of its button.
func (d *Deck) SetSize(width, height int) {
	if size := d.Size(); size != image.Pt(width, height) {
		d.log.LogAttrs(context.Background(), slog.LevelDebug, "ignore deck resize", slog.Any("button", slogext.Point(size)), slog.Any("requested", slogext.Point{X: width, Y: height}))
	}
}

// DrawImage draws the sr region of src letterboxed into the dr region
// of the button.
func (d *Deck) DrawImage(src image.Image, sr, dr image.Rectangle) {
	dr = text.KeepAspectRatio(dr, sr)
	key := cacheKey{src: src, sr: sr, dr: dr}
	cacheable := reflect.TypeOf(src).Comparable()
	if cacheable {
		d.mu.Lock()
		raw, ok := d.cache[key]
		d.mu.Unlock()
		if ok {
			d.Canvas.DrawImage(src, sr, dr)
			d.set(raw)
			return
		}
	}

	d.Canvas.mu.Lock()
	d.Canvas.drawImage(src, sr, dr)
	img := d.Canvas.snapshot()
	d.Canvas.mu.Unlock()
	raw, err := d.dev.RawImage(img)
	if err != nil {
		d.log.LogAttrs(context.Background(), slog.LevelError, "make raw image", slog.Int("row", d.row), slog.Int("col", d.col), slog.Any("error", err))
		return
	}
	if cacheable {
		d.mu.Lock()
		d.cache[key] = raw
		d.mu.Unlock()
	}
	d.set(raw)
}

// Text renders msg to the button.
func (d *Deck) Text(msg string) {
	d.Canvas.mu.Lock()
	d.Canvas.text(msg)
	img := d.Canvas.snapshot()
	d.Canvas.mu.Unlock()
	raw, err := d.dev.RawImage(img)
	if err != nil {
		d.log.LogAttrs(context.Background(), slog.LevelError, "make raw image", slog.Int("row", d.row), slog.Int("col", d.col), slog.Any("error", err))
		return
	}
	d.set(raw)
}

func (d *Deck) set(img *ardilla.RawImage) {
	err := d.dev.SetImage(d.row, d.col, img)
	if err != nil {
		d.log.LogAttrs(context.Background(), slog.LevelError, "set image", slog.Int("row", d.row), slog.Int("col", d.col), slog.Any("error", err))
	}
}

// Close resets and closes the device.
func (d *Deck) Close() error {
	d.dev.Reset()
	return d.dev.Close()
}
