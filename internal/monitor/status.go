package monitor

import (
	"fmt"
	"slices"
	"time"

	"github.com/vzahanych/gesture-guard/internal/alarm"
	"github.com/vzahanych/gesture-guard/internal/config"
)

// StatusVersion is bumped whenever CameraStatus changes shape.
const StatusVersion = 1

const stateReconnecting = "reconnecting"

// CameraStatus is the record a worker publishes after every frame. A
// published value is never modified.
type CameraStatus struct {
	Version           int        `json:"version"`
	CameraID          int        `json:"camera_id"`
	State             string     `json:"state"`
	Status            string     `json:"status"`
	FPS               float64    `json:"fps"`
	DetectionDuration float64    `json:"detection_seconds"`
	AlarmLevel        int        `json:"alarm_level"`
	FiredThresholds   []int      `json:"fired_thresholds"`
	Continuous        bool       `json:"continuous"`
	Smoothed          float64    `json:"smoothed"`
	SkipCount         int        `json:"skip_count"`
	Reconnecting      bool       `json:"reconnecting"`
	Reconnects        int        `json:"reconnects"`
	ROI               config.ROI `json:"roi"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (s *CameraStatus) clone() *CameraStatus {
	out := *s
	out.FiredThresholds = slices.Clone(s.FiredThresholds)
	return &out
}

// StatusText renders the human-readable alarm status.
func StatusText(s alarm.Snapshot, reconnecting bool) string {
	if reconnecting {
		return stateReconnecting
	}
	switch s.State {
	case alarm.Alarming:
		highest := s.Fired[len(s.Fired)-1]
		if s.Continuous {
			return fmt.Sprintf("continuous alarm (%ds)", highest)
		}
		return fmt.Sprintf("alarm (%ds)", highest)
	case alarm.Detecting:
		return "detecting"
	default:
		return "idle"
	}
}

// fpsWindow is a moving average over the last fpsSamples rates.
const fpsSamples = 30

type fpsWindow struct {
	samples [fpsSamples]float64
	n       int
	next    int
	sum     float64
}

func (f *fpsWindow) add(v float64) {
	if f.n == fpsSamples {
		f.sum -= f.samples[f.next]
	} else {
		f.n++
	}
	f.samples[f.next] = v
	f.sum += v
	f.next = (f.next + 1) % fpsSamples
}

func (f *fpsWindow) average() float64 {
	if f.n == 0 {
		return 0
	}
	return f.sum / float64(f.n)
}
