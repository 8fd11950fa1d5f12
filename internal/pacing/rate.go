// Package pacing paces frame acquisition and sheds detection work under
// load.
package pacing

import "time"

const (
	// DefaultFPS is used when no max_fps is configured.
	DefaultFPS = 30

	// MaxSkip bounds the adaptive skip count.
	MaxSkip = 2

	// SleepFloor is the smallest remainder worth sleeping for.
	SleepFloor = time.Millisecond
)

// RateController decides when a new frame may be consumed and which
// frames get detection work. It is owned by a single worker.
type RateController struct {
	target  time.Duration
	skip    int
	counter uint64
}

// NewRateController creates a controller for the given target frame
// interval. A non-positive target falls back to DefaultFPS.
func NewRateController(target time.Duration) *RateController {
	if target <= 0 {
		target = time.Second / DefaultFPS
	}
	return &RateController{target: target}
}

// Target returns the target frame interval.
func (r *RateController) Target() time.Duration {
	return r.target
}

// Pace reports whether a frame may be consumed given the time elapsed
// since the previous one. When not ready, wait is how long to sleep
// before re-checking; it is zero when the remainder is under SleepFloor.
func (r *RateController) Pace(elapsed time.Duration) (wait time.Duration, ready bool) {
	if elapsed >= r.target {
		return 0, true
	}
	remaining := r.target - elapsed
	if remaining <= SleepFloor {
		return 0, false
	}
	return remaining, false
}

// Next advances the frame counter and reports whether the new frame
// should get detection work.
func (r *RateController) Next() bool {
	r.counter++
	return r.counter%uint64(r.skip+1) == 0
}

// Adjust feeds one frame's elapsed time into the adaptive skip count and
// reports whether the count changed.
func (r *RateController) Adjust(elapsed time.Duration) bool {
	switch {
	case elapsed > 2*r.target && r.skip < MaxSkip:
		r.skip++
		return true
	case elapsed*10 < r.target*8 && r.skip > 0:
		r.skip--
		return true
	}
	return false
}

// SkipCount returns the current skip count, always in [0, MaxSkip].
func (r *RateController) SkipCount() int {
	return r.skip
}

// Frames returns the number of frames counted so far.
func (r *RateController) Frames() uint64 {
	return r.counter
}
