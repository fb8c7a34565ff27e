// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fetch

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kortschak/flipbook/internal/animation"
)

func testPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for y := range 2 {
		for x := range 3 {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	err := png.Encode(&buf, img)
	if err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func checkImage(t *testing.T, img image.Image, want color.Color) {
	t.Helper()
	if got := img.Bounds(); got != image.Rect(0, 0, 3, 2) {
		t.Errorf("unexpected bounds: got:%v want:%v", got, image.Rect(0, 0, 3, 2))
	}
	got := color.NRGBAModel.Convert(img.At(1, 1))
	if !cmp.Equal(got, want) {
		t.Errorf("unexpected pixel value: got:%v want:%v", got, want)
	}
}

var red = color.NRGBA{R: 0xff, A: 0xff}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "f0.png"), testPNG(t, red), 0o644)
	if err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}
	err = os.WriteFile(filepath.Join(dir, "junk.png"), []byte("not an image"), 0o644)
	if err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}

	ctx := context.Background()
	f := Files{Root: dir}
	for _, path := range []string{"f0.png", filepath.Join(dir, "f0.png"), "file://" + filepath.Join(dir, "f0.png")} {
		img, err := f.Fetch(ctx, path)
		if err != nil {
			t.Errorf("unexpected error fetching %s: %v", path, err)
			continue
		}
		checkImage(t, img, red)
	}

	_, err = f.Fetch(ctx, "missing.png")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("unexpected error for missing file: got:%v want:%v", err, os.ErrNotExist)
	}
	_, err = f.Fetch(ctx, "junk.png")
	if !errors.Is(err, animation.ErrUnknownFormat) {
		t.Errorf("unexpected error for invalid file: got:%v want:%v", err, animation.ErrUnknownFormat)
	}
}

func TestHTTP(t *testing.T) {
	frame := testPNG(t, red)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/f0.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(frame)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	h := HTTP{Client: srv.Client()}
	img, err := h.Fetch(ctx, srv.URL+"/f0.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkImage(t, img, red)

	_, err = h.Fetch(ctx, srv.URL+"/f1.png")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("unexpected error type: %T %[1]v", err)
	}
	if statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("unexpected status code: got:%d want:%d", statusErr.StatusCode, http.StatusNotFound)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = h.Fetch(cctx, srv.URL+"/f0.png")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error for cancelled fetch: got:%v want:%v", err, context.Canceled)
	}
}

func TestData(t *testing.T) {
	frame := base64.StdEncoding.EncodeToString(testPNG(t, red))
	for _, test := range []struct {
		uri     string
		wantErr error
		wantMsg string
	}{
		{uri: "data:image/png;base64," + frame},
		{uri: "data:image/*;base64," + frame},
		{uri: "data:image/png;title=x;base64," + frame},
		{uri: "data:text/plain,hello", wantErr: ErrNotImage},
		{uri: "data:image/png," + frame, wantMsg: "invalid encoding in image uri: data:image/png," + frame},
		{uri: "data:image/png;base64", wantMsg: "invalid data uri: data:image/png;base64"},
		{uri: "file:image.png", wantMsg: "invalid scheme: file:image.png"},
	} {
		img, err := Data{}.Fetch(context.Background(), test.uri)
		switch {
		case test.wantErr != nil:
			if !errors.Is(err, test.wantErr) {
				t.Errorf("unexpected error for %q: got:%v want:%v", test.uri, err, test.wantErr)
			}
		case test.wantMsg != "":
			if err == nil || err.Error() != test.wantMsg {
				t.Errorf("unexpected error for %q: got:%v want:%s", test.uri, err, test.wantMsg)
			}
		default:
			if err != nil {
				t.Errorf("unexpected error for %q: %v", test.uri, err)
				continue
			}
			checkImage(t, img, red)
		}
	}
}

type recordingFetcher struct {
	name string
	got  *[]string
}

func (f recordingFetcher) Fetch(_ context.Context, url string) (image.Image, error) {
	*f.got = append(*f.got, f.name+" "+url)
	return image.NewGray(image.Rect(0, 0, 1, 1)), nil
}

func TestMux(t *testing.T) {
	var got []string
	m := &Mux{
		Schemes: map[string]Fetcher{
			"http": recordingFetcher{name: "web", got: &got},
			"data": recordingFetcher{name: "data", got: &got},
		},
		Default: recordingFetcher{name: "file", got: &got},
	}
	for _, url := range []string{
		"http://example.com/f0.png",
		"HTTP://example.com/f1.png",
		"data:image/png;base64,AAAA",
		"frames/f2.png",
		"/abs/f3.png",
		"ftp://example.com/f4.png",
	} {
		_, err := m.Fetch(context.Background(), url)
		if err != nil {
			t.Errorf("unexpected error for %s: %v", url, err)
		}
	}
	want := []string{
		"web http://example.com/f0.png",
		"web HTTP://example.com/f1.png",
		"data data:image/png;base64,AAAA",
		"file frames/f2.png",
		"file /abs/f3.png",
		"file ftp://example.com/f4.png",
	}
	if !cmp.Equal(want, got) {
		t.Errorf("unexpected dispatch:\n--- want:\n+++ got:\n%s", cmp.Diff(want, got))
	}

	_, err := (&Mux{}).Fetch(context.Background(), "f0.png")
	if err == nil {
		t.Error("expected error from empty mux")
	}
}
