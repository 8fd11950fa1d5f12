package monitor

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/vzahanych/gesture-guard/internal/config"
	"github.com/vzahanych/gesture-guard/internal/fault"
	"github.com/vzahanych/gesture-guard/internal/landmark"
	"github.com/vzahanych/gesture-guard/internal/pacing"
	"github.com/vzahanych/gesture-guard/internal/service"
	"github.com/vzahanych/gesture-guard/internal/video"
)

func TestWorker_EscalatesAndClears(t *testing.T) {
	h := newHarness(t, testConfig(5, 10, 30))
	h.activeUntil(12 * time.Second)

	levelAt11 := -1
	h.runUntil(12500*time.Millisecond, func(at time.Duration) bool {
		if at >= 11*time.Second && levelAt11 < 0 {
			levelAt11 = h.worker.Status().AlarmLevel
		}
		return true
	})
	h.newWorker()
	h.run()

	plays, stops := h.channel.snapshot()
	if diff := cmp.Diff([]play{{5, false}, {10, false}}, plays, cmp.AllowUnexported(play{})); diff != "" {
		t.Errorf("plays mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, levelAt11)
	assert.GreaterOrEqual(t, stops, 1)

	fired := h.events.ofType(service.EventTypeAlarmFired)
	require.Len(t, fired, 2)
	assert.Equal(t, 5, fired[0].Data[service.DataThreshold])
	assert.Equal(t, 10, fired[1].Data[service.DataThreshold])
	assert.Equal(t, 0, fired[0].Data[service.DataCameraID])
	assert.Len(t, h.events.ofType(service.EventTypeSessionStarted), 1)
	assert.Len(t, h.events.ofType(service.EventTypeAlarmCleared), 1)

	status := h.worker.Status()
	assert.Equal(t, "idle", status.State)
	assert.Equal(t, "idle", status.Status)
	assert.Equal(t, 0, status.AlarmLevel)
	assert.Empty(t, status.FiredThresholds)
	assert.Equal(t, StatusVersion, status.Version)
	assert.InDelta(t, 10, status.FPS, 0.01)
}

func TestWorker_ReleasesResourcesOnExit(t *testing.T) {
	h := newHarness(t, testConfig(5))
	h.runUntil(time.Second, nil)
	h.newWorker()
	h.run()

	require.Len(t, h.captures, 1)
	assert.True(t, h.captures[0].isClosed())
	assert.Equal(t, 1, h.detector.closed)
	_, stops := h.channel.snapshot()
	assert.Equal(t, 1, stops)
	assert.Equal(t, 10, h.sink.count(0))
}

func TestWorker_StreamFaultKeepsWallClockSession(t *testing.T) {
	h := newHarness(t, testConfig(5, 10, 30))
	h.activeUntil(time.Hour)

	failed := false
	h.runUntil(6*time.Second, func(at time.Duration) bool {
		if at >= 3*time.Second && !failed {
			failed = true
			return false
		}
		return true
	})
	h.newWorker()
	h.run()

	assert.Equal(t, 2, h.openCount())
	require.Len(t, h.captures, 2)
	assert.True(t, h.captures[0].isClosed())

	status := h.worker.Status()
	// the session started on the first frame at 100ms and kept running
	// through the one second outage
	want := (6*time.Second - 100*time.Millisecond).Seconds()
	assert.InDelta(t, want, status.DetectionDuration, 1e-6)
	assert.Equal(t, 1, status.Reconnects)
	assert.False(t, status.Reconnecting)
	assert.Equal(t, 1, status.AlarmLevel)

	assert.Len(t, h.events.ofType(service.EventTypeStreamLost), 1)
	assert.Len(t, h.events.ofType(service.EventTypeStreamRecovered), 1)
	assert.Empty(t, h.events.ofType(service.EventTypeAlarmCleared))
}

func TestWorker_ReconnectRetriesUntilSourceReturns(t *testing.T) {
	h := newHarness(t, testConfig(5))

	var statesDuringOutage []string
	h.openErr = func(n int) error {
		if n == 1 {
			return nil
		}
		statesDuringOutage = append(statesDuringOutage, h.worker.Status().State)
		if n == 2 || n == 3 {
			return errCameraGone
		}
		return nil
	}

	failed := false
	h.runUntil(8*time.Second, func(at time.Duration) bool {
		if at >= time.Second && !failed {
			failed = true
			return false
		}
		return true
	})
	h.newWorker()
	h.run()

	assert.Equal(t, 4, h.openCount())
	assert.Equal(t, []string{"reconnecting", "reconnecting", "reconnecting"}, statesDuringOutage)
	assert.Len(t, h.events.ofType(service.EventTypeStreamLost), 1)
	assert.Len(t, h.events.ofType(service.EventTypeStreamRecovered), 1)
	assert.Equal(t, 1, h.worker.Status().Reconnects)
	assert.GreaterOrEqual(t, h.clk.Slept(), 3*time.Second)
	assert.Equal(t, 1, h.logs.FilterMessage("Stream lost, reconnecting").Len())
	assert.Equal(t, 2, h.logs.FilterMessage("Reconnect failed").Len())
	assert.Equal(t, 1, h.logs.FilterMessage("Reconnected").Len())
}

func TestWorker_PauseKeepsLevelAndDoesNotRefire(t *testing.T) {
	h := newHarness(t, testConfig(1, 2, 3))
	h.activeUntil(time.Hour)

	var beforePause, afterPause []play
	paused := false
	h.runUntil(5*time.Second, func(at time.Duration) bool {
		if at >= 3500*time.Millisecond && !paused {
			beforePause, _ = h.channel.snapshot()
			h.worker.Pause()
			paused = true
		}
		return true
	})
	h.newWorker()
	h.run()

	want := []play{{1, false}, {2, false}, {3, true}}
	if diff := cmp.Diff(want, beforePause, cmp.AllowUnexported(play{})); diff != "" {
		t.Errorf("plays before pause mismatch (-want +got):\n%s", diff)
	}
	afterPause, _ = h.channel.snapshot()
	if diff := cmp.Diff(want, afterPause, cmp.AllowUnexported(play{})); diff != "" {
		t.Errorf("thresholds re-fired after pause (-want +got):\n%s", diff)
	}

	status := h.worker.Status()
	assert.Equal(t, 3, status.AlarmLevel)
	assert.True(t, status.Continuous)
	assert.Equal(t, "continuous alarm (3s)", status.Status)
	assert.Equal(t, []int{1, 2, 3}, status.FiredThresholds)
}

func TestWorker_ResetClearsSession(t *testing.T) {
	h := newHarness(t, testConfig(1, 5))
	h.activeUntil(time.Hour)

	var statusAfterReset *CameraStatus
	reset := false
	h.runUntil(2500*time.Millisecond, func(at time.Duration) bool {
		if at >= 2*time.Second && !reset {
			h.worker.Reset()
			h.worker.Reset()
			reset = true
		}
		if reset && statusAfterReset == nil && at > 2*time.Second {
			statusAfterReset = h.worker.Status()
		}
		return true
	})
	h.newWorker()
	h.run()

	require.NotNil(t, statusAfterReset)
	// the gesture is still held, so the next frame starts a new session
	assert.Equal(t, "detecting", statusAfterReset.State)
	assert.Len(t, h.events.ofType(service.EventTypeAlarmCleared), 1)
	assert.Len(t, h.events.ofType(service.EventTypeSessionStarted), 2)
	plays, _ := h.channel.snapshot()
	assert.Equal(t, []play{{1, false}}, plays)
}

func TestWorker_DetectionFailuresAreIsolated(t *testing.T) {
	h := newHarness(t, testConfig(1))
	h.detector.respond = func(call int) ([]landmark.Hand, error) {
		switch {
		case call >= 3 && call <= 5:
			return nil, errors.New("sidecar timeout")
		case call == 7:
			panic("corrupt landmark payload")
		}
		return []landmark.Hand{handWithGap(0.02)}, nil
	}
	h.runUntil(2*time.Second, nil)
	h.newWorker()
	h.run()

	assert.Equal(t, 20, h.detector.calls)
	assert.Equal(t, 3, h.logs.FilterMessage("Landmark detection failed").Len())
	assert.Equal(t, 1, h.logs.FilterMessage("Frame processing failed").Len())
	assert.Equal(t, 1, h.detector.closed)

	// the panicking frame is never shown; every other one is
	assert.Equal(t, 19, h.sink.count(0))

	plays, _ := h.channel.snapshot()
	assert.Equal(t, []play{{1, false}}, plays)
}

func TestWorker_DetectionInterval(t *testing.T) {
	cfg := testConfig(5)
	cfg.DetectionInterval = 0.5
	h := newHarness(t, cfg)
	h.runUntil(2*time.Second, nil)
	h.newWorker()
	h.run()

	// frames every 100ms, detection at most every 500ms
	assert.Equal(t, 4, h.detector.calls)
	assert.Equal(t, 20, h.sink.count(0))
}

func TestWorker_SkipsDetectionUnderLoadAndRecovers(t *testing.T) {
	h := newHarness(t, testConfig(5))

	// every detection costs 2.5 frame intervals for the first 3s
	offSchedule := 0
	h.detector.respond = func(int) ([]landmark.Hand, error) {
		if skip := h.worker.rate.SkipCount(); h.worker.rate.Frames()%uint64(skip+1) != 0 {
			offSchedule++
		}
		if h.elapsed() < 3*time.Second {
			h.clk.Advance(250 * time.Millisecond)
		}
		return nil, nil
	}

	maxSkip := 0
	h.runUntil(6*time.Second, func(time.Duration) bool {
		if s := h.worker.Status().SkipCount; s > maxSkip {
			maxSkip = s
		}
		return true
	})
	h.newWorker()
	h.run()

	assert.Equal(t, pacing.MaxSkip, maxSkip)
	assert.Zero(t, h.worker.Status().SkipCount)
	assert.Zero(t, offSchedule)
	assert.Equal(t, 4, h.logs.FilterMessage("Adjusted frame skipping").Len())

	// skipped frames still reach the display
	frames := int(h.worker.rate.Frames())
	assert.Equal(t, frames, h.sink.count(0))
	assert.Less(t, h.detector.calls, frames)
}

func TestWorker_DrawsEvaluatedHand(t *testing.T) {
	cfg := testConfig(5)
	cfg.ShowROI = false
	cfg.ShowFPS = false
	h := newHarness(t, cfg)

	// an open hand: evaluated but not the alarm gesture
	h.detector.respond = func(int) ([]landmark.Hand, error) {
		return []landmark.Hand{handWithGap(0.8)}, nil
	}

	// thumb tip at the ROI centre
	drawn := 0
	h.sink.inspect = func(frame gocv.Mat) {
		px := frame.GetVecbAt(50, 60)
		if px[0] != 0 || px[1] != 0 || px[2] != 0 {
			drawn++
		}
	}
	h.runUntil(time.Second, nil)
	h.newWorker()
	h.run()

	assert.Equal(t, h.sink.count(0), drawn)
	assert.Positive(t, drawn)
	plays, _ := h.channel.snapshot()
	assert.Empty(t, plays)
}

func TestWorker_UpdateROI(t *testing.T) {
	h := newHarness(t, testConfig(5))
	w := h.newWorker()
	assert.Equal(t, image.Rect(10, 10, 110, 90), w.ROI())

	cam := h.cam
	cam.ROI = config.ROI{X: 120, Y: 100, W: 100, H: 100}
	cam.MinConfidence = 0.8
	applied, err := w.UpdateROI(cam)
	require.NoError(t, err)
	assert.Equal(t, config.ROI{X: 120, Y: 100, W: 40, H: 20}, applied)
	assert.Equal(t, image.Rect(120, 100, 160, 120), w.ROI())
	assert.Equal(t, 1, h.logs.FilterMessage("ROI exceeds frame, adjusting").Len())

	h.runUntil(300*time.Millisecond, nil)
	h.run()
	assert.Equal(t, 0.8, h.detector.lastMinConfidence())
}

func TestWorker_UpdateROI_Invalid(t *testing.T) {
	h := newHarness(t, testConfig(5))
	w := h.newWorker()

	for _, roi := range []config.ROI{
		{X: 0, Y: 0, W: 0, H: 10},
		{X: 0, Y: 0, W: 10, H: -5},
		{X: -1, Y: 0, W: 10, H: 10},
	} {
		cam := h.cam
		cam.ROI = roi
		_, err := w.UpdateROI(cam)
		assert.True(t, fault.Is(err, fault.Configuration), "roi %+v: %v", roi, err)
	}
	assert.Equal(t, image.Rect(10, 10, 110, 90), w.ROI())
}

func TestWorker_ResolutionMismatchClampsToActual(t *testing.T) {
	cfg := testConfig(5)
	cfg.Cameras[0].Resolution = [2]int{1280, 720}
	cfg.Cameras[0].ROI = config.ROI{X: 100, Y: 50, W: 200, H: 200}
	h := newHarness(t, cfg)

	deps := h.deps()
	deps.Open = func(cam config.CameraConfig) (video.Capture, error) {
		cam.Resolution = [2]int{testWidth, testHeight}
		return h.open(cam)
	}
	w, err := NewWorker(cfg, cfg.Cameras[0], deps, h.log)
	require.NoError(t, err)

	assert.Equal(t, image.Rect(100, 50, 160, 120), w.ROI())
	assert.Equal(t, 1, h.logs.FilterMessage("Camera resolution differs from configuration").Len())
}

func TestNewWorker_Failures(t *testing.T) {
	t.Run("capture open", func(t *testing.T) {
		h := newHarness(t, testConfig(5))
		h.openErr = func(int) error { return errCameraGone }

		_, err := NewWorker(h.cfg, h.cam, h.deps(), h.log)
		require.Error(t, err)
		assert.True(t, fault.Is(err, fault.Resource))
		assert.ErrorIs(t, err, errCameraGone)
	})

	t.Run("detector construction", func(t *testing.T) {
		h := newHarness(t, testConfig(5))
		deps := h.deps()
		deps.NewDetector = func(config.CameraConfig) (landmark.Detector, error) {
			return nil, errors.New("model missing")
		}

		_, err := NewWorker(h.cfg, h.cam, deps, h.log)
		require.Error(t, err)
		assert.True(t, fault.Is(err, fault.FatalInit))
		require.Len(t, h.captures, 1)
		assert.True(t, h.captures[0].isClosed())
	})

	t.Run("missing dependencies", func(t *testing.T) {
		h := newHarness(t, testConfig(5))
		deps := h.deps()
		deps.Channels = nil

		_, err := NewWorker(h.cfg, h.cam, deps, h.log)
		assert.True(t, fault.Is(err, fault.FatalInit))
		assert.Zero(t, h.openCount())
	})
}
