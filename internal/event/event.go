// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package event provides the closed set of sequence events and a bus for
// observing them.
package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Kind is a sequence event kind.
type Kind int

const (
	// FirstLoaded is emitted when the frame at index 0 has loaded.
	FirstLoaded Kind = iota + 1
	// Loading is emitted each time a frame loads.
	Loading
	// Loaded is emitted once when every frame has loaded.
	Loaded
	// ErrorLoad is emitted when a frame fails to load.
	ErrorLoad
	// Reversible is emitted when playback bounces at a boundary.
	Reversible
	// Looped is emitted when playback wraps to the opposite end.
	Looped
	// Update is emitted after each frame is drawn.
	Update
)

var names = [...]string{
	FirstLoaded: "firstLoaded",
	Loading:     "loading",
	Loaded:      "loaded",
	ErrorLoad:   "errorLoad",
	Reversible:  "reversible",
	Looped:      "looped",
	Update:      "update",
}

// Kinds returns all valid event kinds in declaration order.
func Kinds() []Kind {
	return []Kind{FirstLoaded, Loading, Loaded, ErrorLoad, Reversible, Looped, Update}
}

func (k Kind) String() string {
	if !k.IsValid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return names[k]
}

// IsValid returns whether k is a known event kind.
func (k Kind) IsValid() bool {
	return FirstLoaded <= k && k <= Update
}

// ParseKind returns the Kind with the given name.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds() {
		if names[k] == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event: %q", name)
}

// MarshalText implements the encoding.TextMarshaler interface.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.IsValid() {
		return nil, fmt.Errorf("invalid event kind: %d", int(k))
	}
	return []byte(names[k]), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (k *Kind) UnmarshalText(text []byte) error {
	v, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Handler is an event observer. Handlers are called synchronously by
// Emit and must not block.
type Handler func(Kind)

// Bus is a registry of event handlers. Events emitted on a Bus are
// delivered to its own handlers in registration order and then bubble
// to the parent Bus, if there is one.
type Bus struct {
	parent *Bus
	log    *slog.Logger

	mu       sync.Mutex
	handlers map[Kind][]Handler
}

// NewBus returns a new Bus. If parent is not nil, events emitted on the
// returned Bus bubble to parent.
func NewBus(parent *Bus, log *slog.Logger) *Bus {
	return &Bus{
		parent:   parent,
		log:      log,
		handlers: make(map[Kind][]Handler),
	}
}

// On registers h to be called when an event of kind k is emitted.
// Registering an invalid kind is logged and ignored.
func (b *Bus) On(k Kind, h Handler) {
	if !k.IsValid() {
		b.log.LogAttrs(context.Background(), slog.LevelError, "register handler", slog.Any("error", fmt.Errorf("invalid event kind: %d", int(k))))
		return
	}
	if h == nil {
		return
	}
	b.mu.Lock()
	b.handlers[k] = append(b.handlers[k], h)
	b.mu.Unlock()
}

// Emit delivers k to all handlers registered for it. The handler list
// is snapshotted before delivery, so handlers may register further
// handlers or emit other events.
func (b *Bus) Emit(k Kind) {
	if !k.IsValid() {
		b.log.LogAttrs(context.Background(), slog.LevelError, "emit", slog.Any("error", fmt.Errorf("invalid event kind: %d", int(k))))
		return
	}
	for bus := b; bus != nil; bus = bus.parent {
		bus.mu.Lock()
		hs := bus.handlers[k]
		bus.mu.Unlock()
		for _, h := range hs {
			h(k)
		}
	}
}

// Dispatch emits the event with the given name. Unknown names are
// reported to the log and otherwise ignored.
func (b *Bus) Dispatch(name string) {
	k, err := ParseKind(name)
	if err != nil {
		b.log.LogAttrs(context.Background(), slog.LevelError, "dispatch", slog.Any("error", err))
		return
	}
	b.Emit(k)
}
