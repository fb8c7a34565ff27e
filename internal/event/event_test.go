// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(k.String())
		if err != nil {
			t.Errorf("unexpected error parsing %q: %v", k, err)
			continue
		}
		if got != k {
			t.Errorf("unexpected kind: got:%v want:%v", got, k)
		}
	}
	for _, name := range []string{"", "Update", "load", "error"} {
		_, err := ParseKind(name)
		if err == nil {
			t.Errorf("expected error parsing %q", name)
		}
	}
}

func TestKindText(t *testing.T) {
	var k Kind
	err := k.UnmarshalText([]byte("looped"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k != Looped {
		t.Errorf("unexpected kind: got:%v want:%v", k, Looped)
	}
	_, err = Kind(0).MarshalText()
	if err == nil {
		t.Error("expected error marshaling zero kind")
	}
	if got, want := Kind(42).String(), "Kind(42)"; got != want {
		t.Errorf("unexpected string: got:%q want:%q", got, want)
	}
}

func TestBus(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	var got []string
	root := NewBus(nil, log)
	root.On(Update, func(k Kind) { got = append(got, "root:"+k.String()) })

	b := NewBus(root, log)
	b.On(Update, func(k Kind) { got = append(got, "first:"+k.String()) })
	b.On(Update, func(k Kind) {
		got = append(got, "second:"+k.String())
		// Registration during delivery is seen by later emissions only.
		b.On(Update, func(k Kind) { got = append(got, "late:"+k.String()) })
	})
	b.On(Looped, func(k Kind) { got = append(got, "first:"+k.String()) })

	b.Emit(Update)
	b.Dispatch("looped")
	b.Dispatch("bogus")
	root.Emit(Update)

	want := []string{
		"first:update",
		"second:update",
		"root:update",
		"first:looped",
		"root:update",
	}
	if !cmp.Equal(want, got) {
		t.Errorf("unexpected deliveries:\n--- want:\n+++ got:\n%s", cmp.Diff(want, got))
	}
	if !strings.Contains(buf.String(), `unknown event: \"bogus\"`) {
		t.Errorf("expected unknown event to be logged, got:\n%s", buf.String())
	}
}
