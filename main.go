// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The flipbook command plays numbered image sequences as flip-book
// animations.
//
// A sequence is described by a TOML configuration file. By default the
// configuration is read from flipbook/sequence.toml in the user's
// configuration directory. Frames are drawn to an in-memory canvas, to
// an animated GIF written when the program exits, or to a Stream Deck
// button.
//
// The program exits when a non-looping sequence reaches its final frame,
// when the -for duration elapses or on interrupt. A sequence paused by a
// configured handler keeps the program running. It exits with a non-zero
// status if any frame failed to load once all frame fetches have
// completed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/kortschak/flipbook/internal/config"
	"github.com/kortschak/flipbook/internal/fetch"
	"github.com/kortschak/flipbook/internal/loop"
	"github.com/kortschak/flipbook/internal/slogext"
	"github.com/kortschak/flipbook/internal/surface"
	"github.com/kortschak/flipbook/internal/version"
	"github.com/kortschak/flipbook/internal/xdg"
	"github.com/kortschak/flipbook/sequence"
)

func main() {
	os.Exit(Main())
}

// Main is the flipbook program entry point.
func Main() int {
	cfgPath := flag.String("config", "", "sequence configuration file (default flipbook/sequence.toml in the user config directory)")
	logging := flag.String("log", "info", "logging level (debug, info, warn or error)")
	lines := flag.Bool("lines", false, "display source line details in logs")
	v := flag.Bool("version", false, "print version and exit")
	hz := flag.Float64("hz", 60, "display refresh rate")
	dur := flag.Duration("for", 0, "play for the given duration (zero is unbounded)")
	watch := flag.Bool("watch", false, "restart the sequence when the configuration changes")
	progress := flag.Bool("progress", false, "render loading progress before the first frame")
	flag.Parse()
	if *v {
		err := version.Fprint(os.Stdout)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	var level slog.LevelVar
	err := level.UnmarshalText([]byte(*logging))
	if err != nil {
		flag.Usage()
		return 2
	}
	logSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "log" {
			logSet = true
		}
	})
	addSource := slogext.NewAtomicBool(*lines)

	// log is the root logger.
	log := slog.New(slogext.GoID{Handler: slogext.NewJSONHandler(os.Stderr, &slogext.HandlerOptions{
		Level:     &level,
		AddSource: addSource,
	})})
	// mlog is the logger for main.
	mlog := log.With(slog.String("component", "flipbook.main"))

	if *cfgPath == "" {
		*cfgPath, err = xdg.Config(filepath.Join("flipbook", "sequence.toml"), false)
		if err != nil {
			fmt.Fprintln(os.Stderr, "no configuration: use -config or create flipbook/sequence.toml in the user config directory")
			return 2
		}
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if cfg.LogLevel != nil && !logSet {
		level.Set(*cfg.LogLevel)
	}
	mlog.LogAttrs(context.Background(), slog.LevelInfo, "config", slog.String("path", *cfgPath), slog.Any("sum", slogext.Stringer{Stringer: cfg.Sum}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		select {
		case <-c:
			log.LogAttrs(ctx, slog.LevelInfo, "terminating")
			cancel()
		case <-ctx.Done():
		}
	}()

	lp := loop.New(*hz, log.With(slog.String("component", "loop")))
	disp, closeDisplay, err := openDisplay(cfg, lp, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() {
		err := closeDisplay()
		if err != nil {
			mlog.LogAttrs(ctx, slog.LevelError, "close display", slog.Any("error", err))
		}
	}()

	p := &player{
		root:     filepath.Dir(*cfgPath),
		loop:     lp,
		display:  disp,
		progress: *progress,
		hold:     *watch,
		log:      log,
		done:     make(chan error, 1),
	}

	loopErr := make(chan error, 1)
	go func() { loopErr <- lp.Run(ctx) }()
	lp.Post(func() { p.start(ctx, cfg) })

	var changes chan config.Change
	if *watch {
		changes = make(chan config.Change)
		w, err := config.Watch(ctx, *cfgPath, changes, config.FileDebounce, log)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer w.Close()
	}
	var timeout <-chan time.Time
	if *dur > 0 {
		timer := time.NewTimer(*dur)
		defer timer.Stop()
		timeout = timer.C
	}

	status := 0
	last := cfg.Sum
	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case <-timeout:
			mlog.LogAttrs(ctx, slog.LevelInfo, "play duration elapsed", slog.Duration("duration", *dur))
			running = false
		case err := <-p.done:
			if err != nil {
				mlog.LogAttrs(ctx, slog.LevelError, "sequence failed", slog.Any("error", err))
				status = 1
			}
			running = false
		case ch := <-changes:
			if ch.Err != nil {
				mlog.LogAttrs(ctx, slog.LevelWarn, "config stream error", slog.Any("change", ch))
				continue
			}
			if ch.Config.Sum.Equal(last) {
				continue
			}
			last = ch.Config.Sum
			mlog.LogAttrs(ctx, slog.LevelInfo, "restart sequence", slog.Any("change", ch))
			if ch.Config.Canvas != cfg.Canvas {
				mlog.LogAttrs(ctx, slog.LevelWarn, "canvas change requires restart", slog.String("canvas", cfg.Canvas), slog.String("requested", ch.Config.Canvas))
			}
			if ch.Config.LogLevel != nil && !logSet {
				level.Set(*ch.Config.LogLevel)
			}
			next := ch.Config
			if strings.HasPrefix(cfg.Canvas, "deck:") {
				next.WidthCanvas, next.HeightCanvas = cfg.WidthCanvas, cfg.HeightCanvas
			}
			lp.Post(func() { p.start(ctx, next) })
		}
	}
	cancel()
	err = <-loopErr
	if err != nil && !errors.Is(err, context.Canceled) {
		mlog.LogAttrs(context.Background(), slog.LevelError, "refresh loop", slog.Any("error", err))
		status = 1
	}
	p.stop()
	return status
}

// display is a drawing surface that can also render status text.
type display interface {
	sequence.Surface
	Text(msg string)
}

// openDisplay returns the output surface selected by cfg.Canvas and a
// function that releases it. For deck output, cfg's canvas size is set
// to the button size.
func openDisplay(cfg *config.Sequence, clock surface.Clock, log *slog.Logger) (display, func() error, error) {
	kind, arg, _ := strings.Cut(cfg.Canvas, ":")
	switch kind {
	case "none":
		c, err := surface.NewCanvas(cfg.WidthFrames, cfg.HeightFrames, cfg.Interpolation)
		if err != nil {
			return nil, nil, err
		}
		return c, func() error { return nil }, nil

	case "gif":
		c, err := surface.NewCanvas(cfg.WidthFrames, cfg.HeightFrames, cfg.Interpolation)
		if err != nil {
			return nil, nil, err
		}
		rec := surface.NewRecorder(c, clock, log.With(slog.String("component", "recorder")))
		return rec, func() error {
			f, err := os.Create(arg)
			if err != nil {
				return err
			}
			err = rec.Encode(f)
			if err != nil {
				f.Close()
				os.Remove(arg)
				return err
			}
			log.LogAttrs(context.Background(), slog.LevelInfo, "wrote recording", slog.String("path", arg), slog.Int("frames", rec.Len()))
			return f.Close()
		}, nil

	case "deck":
		unlock, err := lockDeck(arg)
		if err != nil {
			return nil, nil, err
		}
		d, err := surface.OpenDeck(arg, cfg.DeckRow, cfg.DeckCol, cfg.Interpolation, log.With(slog.String("component", "deck")))
		if err != nil {
			unlock()
			return nil, nil, err
		}
		size := d.Size()
		cfg.WidthCanvas = &size.X
		cfg.HeightCanvas = &size.Y
		return d, func() error {
			defer unlock()
			return d.Close()
		}, nil

	default:
		return nil, nil, fmt.Errorf("invalid canvas: %q", cfg.Canvas)
	}
}

// lockDeck takes an exclusive lock for the deck with the given serial.
func lockDeck(serial string) (unlock func(), err error) {
	dir, ok := xdg.RuntimeDir()
	if !ok {
		dir = os.TempDir()
	}
	name := "flipbook-deck"
	if serial != "" {
		name += "-" + serial
	}
	path := filepath.Join(dir, name+".lock")
	fl := flock.New(path)
	ok, err = fl.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("deck is in use: %s", path)
	}
	return func() {
		fl.Unlock()
		os.Remove(path)
	}, nil
}

// player runs sequences on the refresh loop. Its methods other than
// stop must only be called on the loop's goroutine.
type player struct {
	root     string
	loop     *loop.Loop
	display  display
	progress bool
	hold     bool
	log      *slog.Logger

	seq    *sequence.Sequence
	cancel context.CancelFunc
	done   chan error
}

// start replaces any running sequence with a new sequence described
// by cfg.
func (p *player) start(ctx context.Context, cfg *config.Sequence) {
	p.stop()
	ctx, p.cancel = context.WithCancel(ctx)

	c := *cfg
	c.Prevent = true
	seq, err := sequence.New(ctx, &c, p.display, sequence.Options{
		Scheduler: p.loop,
		Clock:     p.loop,
		Fetcher:   fetch.NewMux(p.root, nil),
		Post:      p.loop.Post,
		Logger:    p.log,
	})
	if err != nil {
		p.finish(err)
		return
	}
	p.seq = seq

	var drawn bool
	settled := func() {
		if p.seq != seq || seq.Pending() != 0 || seq.CountLoading() == seq.Count() {
			return
		}
		err := fmt.Errorf("failed to load %d of %d frames", seq.Count()-seq.CountLoading(), seq.Count())
		if !drawn {
			p.display.Text(err.Error())
		}
		p.finish(err)
	}
	seq.On(sequence.Loading, func(sequence.Kind) {
		if p.progress && !drawn {
			p.display.Text(fmt.Sprintf("loading %d%%", seq.PercentLoading()))
		}
		settled()
	})
	seq.On(sequence.ErrorLoad, func(sequence.Kind) { settled() })
	seq.On(sequence.Update, func(sequence.Kind) {
		if p.seq != seq {
			return
		}
		drawn = true
		if seq.Stopped() && !p.hold {
			p.log.LogAttrs(ctx, slog.LevelInfo, "playback stopped", slog.Int("frame", seq.CurrentFrame()))
			p.finish(nil)
		}
	})
	if p.progress {
		p.display.Text("loading 0%")
	}
	seq.Init()
}

// finish reports the outcome of the current sequence. Failures are
// only logged when the player is holding for configuration changes.
func (p *player) finish(err error) {
	if p.hold {
		if err != nil {
			p.log.LogAttrs(context.Background(), slog.LevelError, "sequence failed", slog.Any("error", err))
		}
		return
	}
	select {
	case p.done <- err:
	default:
	}
}

// stop pauses the current sequence and cancels its pending fetches.
func (p *player) stop() {
	if p.seq != nil {
		p.seq.Pause()
		p.seq = nil
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}
