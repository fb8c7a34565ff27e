// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sequence

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/kortschak/flipbook/config"
	"github.com/kortschak/flipbook/internal/event"
	"github.com/kortschak/flipbook/internal/trigger"
)

// action is a configured event reaction.
type action struct {
	do   string
	when *trigger.Predicate
}

// compileHandlers returns the actions for the configured event handlers
// keyed by event kind.
func compileHandlers(on map[string][]config.Handler) (map[Kind][]action, error) {
	if len(on) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(on))
	for name := range on {
		names = append(names, name)
	}
	slices.Sort(names)

	var errs []error
	handlers := make(map[Kind][]action)
	for _, name := range names {
		k, err := event.ParseKind(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("on: %w", err))
			continue
		}
		for i, h := range on[name] {
			switch h.Do {
			case "play", "pause", "toggle", "forward", "reverse", "rewind", "log":
			case "draw":
				if k == Update {
					// Drawing emits update.
					errs = append(errs, fmt.Errorf("on.%s.%d: draw action would recur", name, i))
					continue
				}
			default:
				errs = append(errs, fmt.Errorf("on.%s.%d: unknown action: %q", name, i, h.Do))
				continue
			}
			a := action{do: h.Do}
			if h.When != "" {
				a.when, err = trigger.Compile(h.When)
				if err != nil {
					errs = append(errs, fmt.Errorf("on.%s.%d: %w", name, i, err))
					continue
				}
			}
			handlers[k] = append(handlers[k], a)
		}
	}
	if len(errs) != 0 {
		return nil, errors.Join(errs...)
	}
	return handlers, nil
}

// state returns the playback state seen by trigger predicates.
func (s *Sequence) state(k Kind) trigger.State {
	return trigger.State{
		Event:     k.String(),
		Frame:     s.CurrentFrame(),
		Direction: s.Direction(),
		Count:     s.Count(),
		Loaded:    s.CountLoading(),
		Percent:   s.PercentLoading(),
		Running:   s.Running(),
	}
}

// perform runs a if its predicate holds for the current state.
func (s *Sequence) perform(k Kind, a action) {
	st := s.state(k)
	if a.when != nil {
		ok, err := a.when.Eval(st)
		if err != nil {
			s.log.LogAttrs(s.ctx, slog.LevelError, "trigger", slog.String("event", st.Event), slog.String("when", a.when.String()), slog.Any("error", err))
			return
		}
		if !ok {
			return
		}
	}
	s.log.LogAttrs(s.ctx, slog.LevelDebug, "action", slog.String("event", st.Event), slog.String("do", a.do), slog.Int("frame", st.Frame))
	switch a.do {
	case "play":
		s.Play()
	case "pause":
		s.Pause()
	case "toggle":
		if st.Running {
			s.Pause()
		} else {
			s.Play()
		}
	case "forward":
		s.SetDirection(1)
	case "reverse":
		s.SetDirection(-1)
	case "rewind":
		if s.Direction() < 0 {
			s.SetCurrentFrame(s.Count() - 1)
		} else {
			s.SetCurrentFrame(0)
		}
	case "draw":
		s.DrawFrame(st.Frame)
	case "log":
		s.log.LogAttrs(s.ctx, slog.LevelInfo, "event",
			slog.String("event", st.Event),
			slog.Int("frame", st.Frame),
			slog.Int("direction", st.Direction),
			slog.Int("loaded", st.Loaded),
			slog.Int("percent", st.Percent),
			slog.Bool("running", st.Running),
		)
	}
}
