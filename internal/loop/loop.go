// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package loop provides a single goroutine refresh loop that serves as
// the display scheduler and work queue for playback.
package loop

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"
)

// Loop is a refresh loop. Functions posted to the loop and frame
// requests are all run on the goroutine calling Run.
type Loop struct {
	period time.Duration
	log    *slog.Logger

	mu       sync.Mutex
	queue    []func()
	requests map[uint64]func()
	next     uint64
	wake     chan struct{}
}

// New returns a new Loop that offers refresh opportunities at the
// provided rate in Hz.
func New(hz float64, log *slog.Logger) *Loop {
	if hz <= 0 {
		hz = 60
	}
	return &Loop{
		period:   time.Duration(float64(time.Second) / hz),
		log:      log,
		requests: make(map[uint64]func()),
		wake:     make(chan struct{}, 1),
	}
}

// Period returns the interval between refresh opportunities.
func (l *Loop) Period() time.Duration {
	return l.period
}

// Now returns the current time.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Post arranges for fn to be run on the loop's goroutine. Post never
// blocks and may be called from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// RequestFrame arranges for fn to be called at the next refresh
// opportunity. The returned function cancels the request if it has
// not yet been run.
func (l *Loop) RequestFrame(fn func()) (cancel func()) {
	l.mu.Lock()
	id := l.next
	l.next++
	l.requests[id] = fn
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.requests, id)
		l.mu.Unlock()
	}
}

// Run runs the loop until ctx is cancelled, returning the context's
// error.
func (l *Loop) Run(ctx context.Context) error {
	l.log.LogAttrs(ctx, slog.LevelDebug, "start loop", slog.Duration("period", l.period))
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.log.LogAttrs(ctx, slog.LevelDebug, "stop loop", slog.Any("reason", ctx.Err()))
			return ctx.Err()
		case <-l.wake:
			l.drain()
		case <-ticker.C:
			l.drain()
			l.Tick()
		}
	}
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		queue := l.queue
		l.queue = nil
		l.mu.Unlock()
		if len(queue) == 0 {
			return
		}
		for _, fn := range queue {
			fn()
		}
	}
}

// Tick runs all outstanding frame requests in the order they were
// made. Requests made while running are deferred to the next Tick.
// Tick is called by Run and is exported for use when the loop is
// driven externally.
func (l *Loop) Tick() {
	l.mu.Lock()
	ids := slices.Sorted(maps.Keys(l.requests))
	l.mu.Unlock()
	for _, id := range ids {
		l.mu.Lock()
		fn, ok := l.requests[id]
		delete(l.requests, id)
		l.mu.Unlock()
		if ok {
			fn()
		}
	}
}
