// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config provides flipbook sequence configuration types and schemas.
package config

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// Sequence is a complete image sequence configuration.
type Sequence struct {
	// Canvas selects the output surface. It is one of "none",
	// "gif:<path>" or "deck:<serial>", where an empty serial
	// selects the first available device.
	Canvas string `json:"canvas" toml:"canvas"`
	// DeckRow and DeckCol are the button used for deck output.
	DeckRow int `json:"deck_row,omitempty" toml:"deck_row"`
	DeckCol int `json:"deck_col,omitempty" toml:"deck_col"`

	// The URL of frame i is constructed as
	//
	//  path_to_frames + name_frames + pad(i, pad_frames) + "." + format_frames
	//
	// PathToFrames may be a directory, a file: URL or an http(s) URL
	// prefix.
	PathToFrames string `json:"path_to_frames" toml:"path_to_frames"`
	CountFrames  int    `json:"count_frames" toml:"count_frames"`
	FormatFrames string `json:"format_frames" toml:"format_frames"`
	NameFrames   string `json:"name_frames" toml:"name_frames"`
	PadFrames    int    `json:"pad_frames" toml:"pad_frames"`

	// WidthFrames and HeightFrames are the native frame size.
	WidthFrames  int `json:"width_frames" toml:"width_frames"`
	HeightFrames int `json:"height_frames" toml:"height_frames"`
	// WidthCanvas and HeightCanvas are the viewport size. If
	// they are nil, the frame size is used.
	WidthCanvas  *int `json:"width_canvas,omitempty" toml:"width_canvas"`
	HeightCanvas *int `json:"height_canvas,omitempty" toml:"height_canvas"`
	// Resize replaces the default whole frame to whole canvas
	// mapping if it is not nil.
	Resize *Resize `json:"resize,omitempty" toml:"resize"`

	// Direction is the initial playback direction, 1 for
	// forward and -1 for backward.
	Direction int `json:"direction" toml:"direction"`
	// FPS is the target frame rate. Zero means advance on
	// every refresh.
	FPS        float64 `json:"fps" toml:"fps"`
	Loop       bool    `json:"loop" toml:"loop"`
	Reversible bool    `json:"reversible" toml:"reversible"`

	RenderFirstFrame  bool `json:"render_first_frame" toml:"render_first_frame"`
	StartAfterLoading bool `json:"start_after_loading" toml:"start_after_loading"`
	// Prevent suppresses automatic initialisation of a new
	// sequence. The CLI always initialises after installing
	// its own handlers.
	Prevent bool `json:"prevent" toml:"prevent"`

	// On is the set of configured event handlers keyed
	// by event name.
	On map[string][]Handler `json:"on,omitempty" toml:"on"`

	// Interpolation is the name of the frame scaling
	// interpolator; nearest, approx, bilinear or catmullrom.
	Interpolation string      `json:"interpolation,omitempty" toml:"interpolation"`
	LogLevel      *slog.Level `json:"log_level,omitempty" toml:"log_level"`

	Sum *Sum `json:"sum,omitempty" toml:"-"`
}

// Resize is a source rectangle to destination rectangle mapping.
type Resize struct {
	SX      int `json:"sx" toml:"sx"`
	SY      int `json:"sy" toml:"sy"`
	SWidth  int `json:"swidth" toml:"swidth"`
	SHeight int `json:"sheight" toml:"sheight"`
	X       int `json:"x" toml:"x"`
	Y       int `json:"y" toml:"y"`
	Width   int `json:"width" toml:"width"`
	Height  int `json:"height" toml:"height"`
}

// Handler is a configured event handler. Do is performed when the
// event fires and the CEL expression When, if present, is true.
type Handler struct {
	When string `json:"when,omitempty" toml:"when"`
	Do   string `json:"do" toml:"do"`
}

// Defaults returns a Sequence holding the default values for fields
// that are not the zero value by default.
func Defaults() Sequence {
	return Sequence{
		Canvas:    "none",
		Direction: 1,
	}
}

// Schema is the schema for a valid configuration.
const Schema = `
{
	canvas:              =~"^(?:none|gif:.+|deck:.*)$"
	deck_row?:           uint
	deck_col?:           uint
	path_to_frames:      string
	count_frames:        uint
	format_frames:       !=""
	name_frames:         string
	pad_frames:          uint
	width_frames:        uint
	height_frames:       uint
	width_canvas?:       uint
	height_canvas?:      uint
	resize?:             _#resize
	direction:           1 | -1
	fps:                 number & >=0
	loop:                bool
	reversible:          bool
	render_first_frame:  bool
	start_after_loading: bool
	prevent:             bool
	on?:                 {[string]: [... _#handler]}
	interpolation?:      "" | "nearest" | "approx" | "bilinear" | "catmullrom"
	log_level?:          _#log_level
}

_#resize: {
	sx:      uint
	sy:      uint
	swidth:  uint
	sheight: uint
	x:       uint
	y:       uint
	width:   uint
	height:  uint
}

_#handler: {
	when?: string
	do:    "play" | "pause" | "toggle" | "forward" | "reverse" | "rewind" | "draw" | "log"
}

_#log_level: =~"(?i)^(?:debug|info|warn|error)$"
`

// Sum is a comparable optional SHA-1 sum.
type Sum [sha1.Size]byte

// Equal returns whether s is equal to other.
func (s *Sum) Equal(other *Sum) bool {
	switch {
	case s == other:
		return true
	case s != nil && other != nil:
		return *s == *other
	default:
		return false
	}
}

func (s *Sum) String() string {
	if s == nil {
		return ""
	}
	return hex.EncodeToString(s[:])
}

func (s *Sum) UnmarshalText(text []byte) error {
	if len(text) != hex.EncodedLen(len(s)) {
		return fmt.Errorf("invalid length: %d != %d", len(text), hex.EncodedLen(len(s)))
	}
	_, err := hex.Decode(s[:], text)
	return err
}

func (s *Sum) MarshalText() (text []byte, err error) {
	if s == nil {
		return nil, nil
	}
	text = make([]byte, hex.EncodedLen(len(s)))
	hex.Encode(text, s[:])
	return text, nil
}
