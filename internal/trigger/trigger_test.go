// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trigger

import (
	"strings"
	"testing"
)

var predicateTests = []struct {
	name    string
	src     string
	state   State
	want    bool
	compile string
	eval    string
}{
	{
		name:  "last_frame",
		src:   "frame == count-1",
		state: State{Frame: 9, Count: 10},
		want:  true,
	},
	{
		name:  "not_last_frame",
		src:   "frame == count-1",
		state: State{Frame: 3, Count: 10},
		want:  false,
	},
	{
		name:  "half_loaded",
		src:   "percent >= 50 && !running",
		state: State{Percent: 50, Loaded: 5, Count: 10},
		want:  true,
	},
	{
		name:  "backward_event",
		src:   `event == "reversible" && direction < 0`,
		state: State{Event: "reversible", Direction: -1},
		want:  true,
	},
	{
		name:  "every",
		src:   "every(frame, 4)",
		state: State{Frame: 8},
		want:  true,
	},
	{
		name:  "every_miss",
		src:   "every(frame, 4)",
		state: State{Frame: 9},
		want:  false,
	},
	{
		name:  "every_zero",
		src:   "every(frame, 0)",
		state: State{Frame: 9},
		eval:  "failed eval",
	},
	{
		name:    "not_bool",
		src:     "frame + 1",
		compile: "predicate is not bool",
	},
	{
		name:    "undeclared",
		src:     "frames == 1",
		compile: "failed compilation",
	},
	{
		name:    "syntax",
		src:     "frame ==",
		compile: "failed compilation",
	},
}

func TestPredicate(t *testing.T) {
	for _, test := range predicateTests {
		t.Run(test.name, func(t *testing.T) {
			p, err := Compile(test.src)
			if err != nil {
				if test.compile == "" || !strings.Contains(err.Error(), test.compile) {
					t.Fatalf("unexpected compile error: got:%v want:%s", err, test.compile)
				}
				return
			}
			if test.compile != "" {
				t.Fatalf("expected compile error containing %q", test.compile)
			}
			if p.String() != test.src {
				t.Errorf("unexpected source: got:%q want:%q", p, test.src)
			}
			got, err := p.Eval(test.state)
			if err != nil {
				if test.eval == "" || !strings.Contains(err.Error(), test.eval) {
					t.Fatalf("unexpected eval error: got:%v want:%s", err, test.eval)
				}
				return
			}
			if test.eval != "" {
				t.Fatalf("expected eval error containing %q", test.eval)
			}
			if got != test.want {
				t.Errorf("unexpected result: got:%t want:%t", got, test.want)
			}
		})
	}
}
