// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package animation provides flip-book playback of a sequence of
// still frames onto a drawing surface.
//
// An [Engine] holds the current frame index and direction and steps
// through the frames according to its loop and reversible policy each
// time its [Scheduler] offers a refresh opportunity. When a frame rate
// is set, refresh opportunities are gated by the elapsed time reported
// by the engine's [Clock] so that the long run frame rate matches the
// target independent of the refresh rate.
package animation
