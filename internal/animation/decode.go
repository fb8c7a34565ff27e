// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package animation

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"io"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ReadPeeker is an io.Reader that can also peek n bytes ahead.
type ReadPeeker interface {
	io.Reader
	Peek(n int) ([]byte, error)
}

// AsReadPeeker converts an io.Reader to a ReadPeeker.
func AsReadPeeker(r io.Reader) ReadPeeker {
	if r, ok := r.(ReadPeeker); ok {
		return r
	}
	return bufio.NewReader(r)
}

// IsGIF returns whether the data held by r is a GIF image.
func IsGIF(r ReadPeeker) bool {
	return hasMagic("GIF8?a", r)
}

// formats is the set of frame formats understood by Decode. A '?' in
// the magic matches any byte.
var formats = []struct {
	name, magic string
}{
	{"png", "\x89PNG\r\n\x1a\n"},
	{"jpeg", "\xff\xd8"},
	{"gif", "GIF8?a"},
	{"bmp", "BM????\x00\x00\x00\x00"},
	{"tiff", "II*\x00"},
	{"tiff", "MM\x00*"},
	{"webp", "RIFF????WEBPVP8"},
}

// Format returns the name of the image format held in r, or the empty
// string if the format is not known.
func Format(r ReadPeeker) string {
	for _, f := range formats {
		if hasMagic(f.magic, r) {
			return f.name
		}
	}
	return ""
}

// hasMagic returns whether r starts with the provided magic bytes.
func hasMagic(magic string, r ReadPeeker) bool {
	b, err := r.Peek(len(magic))
	if err != nil || len(b) != len(magic) {
		return false
	}
	for i, c := range b {
		if magic[i] != c && magic[i] != '?' {
			return false
		}
	}
	return true
}

// ErrUnknownFormat is returned by Decode when the frame data is not
// in a recognised image format.
var ErrUnknownFormat = errors.New("unknown frame format")

// Decode decodes a single frame from r. Frames may be PNG, JPEG, GIF,
// BMP, TIFF or WebP encoded. Only the first image of an animated GIF is
// used as the frame.
func Decode(r io.Reader) (image.Image, error) {
	rp := AsReadPeeker(r)
	if IsGIF(rp) {
		g, err := gif.DecodeAll(rp)
		if err != nil {
			return nil, fmt.Errorf("gif: %w", err)
		}
		if len(g.Image) == 0 {
			return nil, errors.New("gif: no frames")
		}
		return g.Image[0], nil
	}
	if Format(rp) == "" {
		return nil, ErrUnknownFormat
	}
	img, format, err := image.Decode(rp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", format, err)
	}
	return img, nil
}
