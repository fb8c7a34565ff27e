// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"context"
	"crypto/sha1"
	"hash"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileDebounce is the default duration we wait for the contents to have
// stabilised to work around some editors writing an empty file and then the
// buffer.
const FileDebounce = 10 * time.Millisecond

// Change is a configuration change identified by a Watcher.
type Change struct {
	Event  []fsnotify.Event
	Config *Sequence
	Err    error
}

// Op returns an aggregated fsnotify.Op for all elements of the receivers'
// Event field.
func (c Change) Op() fsnotify.Op {
	var op fsnotify.Op
	for _, e := range c.Event {
		op |= e.Op
	}
	return op
}

// Watcher watches a single configuration file and sends semantically
// meaningful changes to its contents.
type Watcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	changes  chan<- Change
	hash     hash.Hash
	last     Sum
	log      *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// Watch starts watching the configuration file at path, sending changes
// on the changes channel. The current configuration is sent as an initial
// Create change. The file's directory is watched so that editors that
// replace the file on save are handled. The debounce parameter specifies
// how long to wait after an fsnotify.Event before reading the file to
// ensure that writes will be reflected in the checksum. If it is less than
// zero, FileDebounce is used.
func Watch(ctx context.Context, path string, changes chan<- Change, debounce time.Duration, log *slog.Logger) (*Watcher, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	err = w.Add(filepath.Dir(path))
	if err != nil {
		w.Close()
		return nil, err
	}
	if debounce < 0 {
		debounce = FileDebounce
	}
	ctx, cancel := context.WithCancel(ctx)
	cw := &Watcher{
		path:     path,
		debounce: debounce,
		watcher:  w,
		changes:  changes,
		hash:     sha1.New(),
		log:      log.With(slog.String("component", "config_watcher")),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go cw.run(ctx)
	return cw, nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	w.read(ctx, fsnotify.Event{Name: w.path, Op: fsnotify.Create})
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			switch {
			case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create):
				w.log.LogAttrs(ctx, slog.LevelDebug, "change", slog.String("name", ev.Name), slog.String("op", ev.Op.String()))
				time.Sleep(w.debounce)
				w.read(ctx, ev)
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				// A replacement file will arrive as a Create.
				w.log.LogAttrs(ctx, slog.LevelInfo, "config file removed", slog.String("name", ev.Name))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.LogAttrs(ctx, slog.LevelError, "watcher error", slog.Any("error", err))
			w.send(ctx, Change{Err: err})
		}
	}
}

func (w *Watcher) read(ctx context.Context, ev fsnotify.Event) {
	b, err := os.ReadFile(w.path)
	if err != nil {
		w.log.LogAttrs(ctx, slog.LevelError, "read file", slog.Any("error", err))
		w.send(ctx, Change{Event: []fsnotify.Event{ev}, Err: err})
		return
	}
	cfg, sum, err := unmarshalConfig(w.hash, b)
	w.hash.Reset()
	if err == nil {
		if sum == w.last {
			w.log.LogAttrs(ctx, slog.LevelDebug, "no change", slog.Any("sum", sumValue{sum}))
			return
		}
		w.last = sum
	}
	w.send(ctx, Change{Event: []fsnotify.Event{ev}, Config: cfg, Err: err})
}

func (w *Watcher) send(ctx context.Context, c Change) {
	w.log.LogAttrs(ctx, slog.LevelDebug, "send change", slog.Any("change", c))
	select {
	case w.changes <- c:
	case <-ctx.Done():
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	<-w.done
	return err
}
