// Package gesture turns a landmark result into a smoothed thumb-to-pinky
// proximity value and an "active" flag.
package gesture

import (
	"math"

	"github.com/vzahanych/gesture-guard/internal/landmark"
)

// State is the smoothing state carried across frames.
type State struct {
	Smoothed float64
	Seeded   bool
}

// Result is the outcome of one evaluation.
type Result struct {
	Smoothed float64
	Active   bool
	// Hand is the hand that was evaluated, nil when none was reported.
	Hand *landmark.Hand
}

// Detector evaluates landmark results against a proximity threshold.
// It holds no state; the caller owns State.
type Detector struct {
	alpha     float64
	threshold float64
}

// NewDetector creates a detector. alpha must be in (0,1].
func NewDetector(alpha, threshold float64) *Detector {
	return &Detector{alpha: alpha, threshold: threshold}
}

// Evaluate uses only the first hand. With no usable hand it reports
// inactive and returns prior unchanged.
func (d *Detector) Evaluate(hands []landmark.Hand, prior State) (Result, State) {
	if len(hands) == 0 {
		return Result{Smoothed: prior.Smoothed}, prior
	}
	hand := hands[0]

	raw, ok := Proximity(hand)
	if !ok {
		return Result{Smoothed: prior.Smoothed}, prior
	}

	p := prior.Smoothed
	if !prior.Seeded {
		p = raw
	}
	smoothed := d.alpha*raw + (1-d.alpha)*p

	return Result{
		Smoothed: smoothed,
		Active:   smoothed < d.threshold,
		Hand:     &hand,
	}, State{Smoothed: smoothed, Seeded: true}
}

// Proximity is the Manhattan distance between the thumb tip and the
// pinky tip in normalized coordinates.
func Proximity(h landmark.Hand) (float64, bool) {
	thumb, ok := h.Point(landmark.ThumbTip)
	if !ok {
		return 0, false
	}
	pinky, ok := h.Point(landmark.PinkyTip)
	if !ok {
		return 0, false
	}
	return math.Abs(thumb.X-pinky.X) + math.Abs(thumb.Y-pinky.Y), true
}
