// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package animation

// Forward and Backward are the two playback directions.
const (
	Forward  = 1
	Backward = -1
)

// Outcome is the result of a single playback step.
type Outcome int

const (
	// Stepped indicates the index moved one frame in the
	// current direction.
	Stepped Outcome = iota
	// Stopped indicates a non-looping sequence reached its
	// final frame. The index is unchanged.
	Stopped
	// Reversed indicates a reversible sequence bounced at a
	// boundary. The direction is flipped and the index has
	// moved one frame inward.
	Reversed
	// Looped indicates a looping sequence wrapped to the
	// opposite end.
	Looped
)

func (o Outcome) String() string {
	switch o {
	case Stepped:
		return "stepped"
	case Stopped:
		return "stopped"
	case Reversed:
		return "reversed"
	case Looped:
		return "looped"
	default:
		return "invalid"
	}
}

// Advance returns the frame index and direction following index when
// moving in the given direction through count frames. Any direction
// greater than zero is treated as Forward, otherwise Backward.
//
// When index is at the boundary in the direction of travel, a sequence
// that does not loop stops, a reversible looping sequence turns and
// steps inward so the boundary frame is not repeated, and a plain
// looping sequence wraps to the opposite end.
func Advance(index, direction, count int, loop, reversible bool) (next, dir int, o Outcome) {
	if direction > 0 {
		if index+1 < count {
			return index + 1, Forward, Stepped
		}
		switch {
		case !loop:
			return index, Forward, Stopped
		case reversible:
			return max(index-1, 0), Backward, Reversed
		default:
			return 0, Forward, Looped
		}
	}
	if index-1 >= 0 {
		return index - 1, Backward, Stepped
	}
	switch {
	case !loop:
		return index, Backward, Stopped
	case reversible:
		return min(index+1, max(count-1, 0)), Forward, Reversed
	default:
		return count - 1, Backward, Looped
	}
}
