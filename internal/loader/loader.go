// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package loader provides concurrent loading of numbered frame images.
package loader

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/kortschak/flipbook/internal/event"
)

// Fetcher fetches and decodes a single frame.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (image.Image, error)
}

// Naming is a frame naming template. The URL of frame i is
//
//	Dir + Prefix + zero-padded i + "." + Ext
//
// where i is padded to at least Pad digits.
type Naming struct {
	Dir    string
	Prefix string
	Pad    int
	Ext    string
}

// URL returns the URL of frame i.
func (n Naming) URL(i int) string {
	idx := strconv.Itoa(i)
	if len(idx) < n.Pad {
		idx = strings.Repeat("0", n.Pad-len(idx)) + idx
	}
	return n.Dir + n.Prefix + idx + "." + n.Ext
}

// Config holds the construction parameters for a Loader.
type Config struct {
	Naming Naming
	// Count is the number of frames.
	Count int
	// Reverse specifies that fetches are issued from the
	// last frame to the first.
	Reverse bool

	Fetcher Fetcher
	Events  interface{ Emit(event.Kind) }
	// Post, if not nil, is used to run fetch completions.
	// It is intended to deliver completions to the goroutine
	// running playback. If Post is nil, completions are run
	// on the fetching goroutine.
	Post func(func())
}

// Loader loads a sequence of frames into a frame table, reporting
// progress with FirstLoaded, Loading, Loaded and ErrorLoad events.
type Loader struct {
	naming  Naming
	count   int
	reverse bool
	fetcher Fetcher
	events  interface{ Emit(event.Kind) }
	post    func(func())
	log     *slog.Logger

	mu      sync.Mutex
	frames  []image.Image
	loaded  int
	pending int
}

// New returns a new Loader with an empty frame table.
func New(cfg Config, log *slog.Logger) *Loader {
	post := cfg.Post
	if post == nil {
		post = func(fn func()) { fn() }
	}
	return &Loader{
		naming:  cfg.Naming,
		count:   cfg.Count,
		reverse: cfg.Reverse,
		fetcher: cfg.Fetcher,
		events:  cfg.Events,
		post:    post,
		log:     log,
		frames:  make([]image.Image, max(cfg.Count, 0)),
	}
}

// LoadAll starts a fetch for every frame in the sequence and returns
// without waiting for them to complete. All fetches run concurrently.
// LoadAll should be called once; calling it again issues duplicate
// fetches, although a loaded frame is never replaced.
func (l *Loader) LoadAll(ctx context.Context) {
	if l.count <= 0 {
		return
	}
	l.mu.Lock()
	l.pending += l.count
	l.mu.Unlock()
	l.log.LogAttrs(ctx, slog.LevelDebug, "load frames", slog.Int("count", l.count), slog.Bool("reverse", l.reverse))
	if l.reverse {
		for i := l.count - 1; i >= 0; i-- {
			l.load(ctx, i)
		}
	} else {
		for i := range l.count {
			l.load(ctx, i)
		}
	}
}

func (l *Loader) load(ctx context.Context, i int) {
	url := l.naming.URL(i)
	go func() {
		img, err := l.fetcher.Fetch(ctx, url)
		if err == nil && img == nil {
			err = fmt.Errorf("no image for frame %d", i)
		}
		l.post(func() { l.complete(ctx, i, url, img, err) })
	}()
}

// complete records the result of fetching frame i and emits the
// corresponding events.
func (l *Loader) complete(ctx context.Context, i int, url string, img image.Image, err error) {
	if err != nil {
		l.mu.Lock()
		l.pending--
		l.mu.Unlock()
		l.log.LogAttrs(ctx, slog.LevelError, "load frame", slog.Int("frame", i), slog.String("url", url), slog.Any("error", err))
		l.events.Emit(event.ErrorLoad)
		return
	}

	l.mu.Lock()
	l.pending--
	if l.frames[i] != nil {
		l.mu.Unlock()
		l.log.LogAttrs(ctx, slog.LevelDebug, "duplicate frame load", slog.Int("frame", i))
		return
	}
	l.frames[i] = img
	l.loaded++
	loaded := l.loaded
	l.mu.Unlock()
	l.log.LogAttrs(ctx, slog.LevelDebug, "loaded frame", slog.Int("frame", i), slog.String("url", url), slog.Int("loaded", loaded))

	l.events.Emit(event.Loading)
	if i == 0 {
		l.events.Emit(event.FirstLoaded)
	}
	if loaded == l.count {
		l.events.Emit(event.Loaded)
	}
}

// Count returns the number of frames in the sequence.
func (l *Loader) Count() int {
	return l.count
}

// URL returns the URL of frame i.
func (l *Loader) URL(i int) string {
	return l.naming.URL(i)
}

// Frame returns frame i and whether it has been loaded.
func (l *Loader) Frame(i int) (image.Image, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.frames) || l.frames[i] == nil {
		return nil, false
	}
	return l.frames[i], true
}

// LoadedCount returns the number of frames successfully loaded.
func (l *Loader) LoadedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// LoadedPercent returns the integer percentage of frames successfully
// loaded, rounded down. It is 100 only when every frame has loaded.
func (l *Loader) LoadedPercent() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded == 0 {
		return 0
	}
	return l.loaded * 100 / l.count
}

// Pending returns the number of fetches that have not yet completed,
// successfully or otherwise.
func (l *Loader) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending
}
