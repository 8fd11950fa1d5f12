// Package monitor runs one gesture-watching worker per camera and keeps
// the registry of running workers.
package monitor

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/vzahanych/gesture-guard/internal/alarm"
	"github.com/vzahanych/gesture-guard/internal/clock"
	"github.com/vzahanych/gesture-guard/internal/config"
	"github.com/vzahanych/gesture-guard/internal/fault"
	"github.com/vzahanych/gesture-guard/internal/gesture"
	"github.com/vzahanych/gesture-guard/internal/landmark"
	"github.com/vzahanych/gesture-guard/internal/logger"
	"github.com/vzahanych/gesture-guard/internal/pacing"
	"github.com/vzahanych/gesture-guard/internal/service"
	"github.com/vzahanych/gesture-guard/internal/video"
)

const fpsRefresh = 500 * time.Millisecond

// DetectorFactory builds the landmark detector owned by one worker.
type DetectorFactory func(cam config.CameraConfig) (landmark.Detector, error)

// ChannelProvider returns the audio channel for a camera id.
type ChannelProvider func(cameraID int) alarm.Channel

// Publisher receives worker events. *service.EventBus implements it.
type Publisher interface {
	Publish(event service.Event)
}

// WorkerDeps are the collaborators a worker is built from.
type WorkerDeps struct {
	Open        video.Opener
	NewDetector DetectorFactory
	Channels    ChannelProvider
	Sink        video.Sink
	Events      Publisher
	Clock       clock.Clock
}

// Worker processes one camera: pace, read, evaluate, escalate, render.
// Run owns the capture, detector and channel; UpdateROI, Pause, Reset and
// Status may be called from any goroutine.
type Worker struct {
	id     int
	cfg    *config.Config
	deps   WorkerDeps
	logger *logger.Logger

	capture    video.Capture
	detector   landmark.Detector
	channel    alarm.Channel
	gesture    *gesture.Detector
	rate       *pacing.RateController
	escalation *alarm.Escalation

	mu            sync.Mutex
	cam           config.CameraConfig
	roi           image.Rectangle
	frameSize     image.Point
	minConfidence float64

	status       atomic.Pointer[CameraStatus]
	reconnecting atomic.Bool
	reconnects   atomic.Int64

	smoothing     gesture.State
	lastDetection time.Time
	prevFrame     time.Time
	fps           fpsWindow
	fpsShown      int
	fpsShownAt    time.Time

	done chan struct{}
}

// NewWorker opens the camera and builds every owned component. A capture
// that cannot be opened is a Resource error; any other construction
// failure is FatalInit. Nothing is left open on error.
func NewWorker(cfg *config.Config, cam config.CameraConfig, deps WorkerDeps, log *logger.Logger) (*Worker, error) {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Sink == nil {
		deps.Sink = video.NopSink{}
	}
	if deps.Open == nil || deps.NewDetector == nil || deps.Channels == nil {
		return nil, fault.New(fault.FatalInit, "new_worker", cam.ID, fmt.Errorf("incomplete worker dependencies"))
	}

	w := &Worker{
		id:            cam.ID,
		cfg:           cfg,
		deps:          deps,
		logger:        log.With("camera_id", cam.ID),
		cam:           cam,
		minConfidence: cam.MinConfidence,
		gesture:       gesture.NewDetector(cfg.SmoothFactor, cfg.GestureThreshold),
		rate:          pacing.NewRateController(cfg.TargetInterval()),
		done:          make(chan struct{}),
	}

	capture, err := deps.Open(cam)
	if err != nil {
		w.logger.Error("Failed to open camera", "source", cam.Source, "error", err)
		if fault.KindOf(err) == fault.Unknown {
			err = fault.New(fault.Resource, "open_capture", cam.ID, err)
		}
		return nil, err
	}
	w.capture = capture

	if err := w.applyFrameSize(); err != nil {
		capture.Close()
		return nil, fault.New(fault.FatalInit, "new_worker", cam.ID, err)
	}
	roi, err := w.clamp(cam.ROI)
	if err != nil {
		capture.Close()
		return nil, fault.New(fault.FatalInit, "new_worker", cam.ID, err)
	}
	w.roi = roi

	detector, err := deps.NewDetector(cam)
	if err != nil {
		capture.Close()
		return nil, fault.New(fault.FatalInit, "new_detector", cam.ID, err)
	}
	w.detector = detector

	w.channel = deps.Channels(cam.ID)
	if w.channel == nil {
		capture.Close()
		detector.Close()
		return nil, fault.New(fault.FatalInit, "audio_channel", cam.ID, fmt.Errorf("no audio channel"))
	}
	w.escalation = alarm.New(cfg.AlarmTriggers, w.channel, deps.Clock, alarm.WithEventHandler(w.onAlarmEvent))

	w.publish()
	w.logger.Info("Camera worker initialized",
		"source", cam.Source,
		"roi", video.FormatROI(w.roi),
		"target_interval", w.rate.Target(),
	)
	return w, nil
}

// ID returns the camera id.
func (w *Worker) ID() int {
	return w.id
}

// Done is closed once Run has returned and every resource is released.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Run is the frame loop. It returns when ctx is cancelled; cancellation
// is observed once per iteration and during every wait.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	defer w.release()

	frame := gocv.NewMat()
	defer frame.Close()

	w.prevFrame = w.deps.Clock.Now()
	for {
		if ctx.Err() != nil {
			return
		}

		elapsed := w.deps.Clock.Since(w.prevFrame)
		if wait, ready := w.rate.Pace(elapsed); !ready {
			if wait > 0 {
				w.wait(ctx, wait)
			}
			continue
		}

		readAt := w.deps.Clock.Now()
		if w.capture == nil || !w.capture.Read(&frame) {
			w.recoverStream(ctx)
			continue
		}

		w.step(ctx, &frame, readAt)
	}
}

// step handles one successfully read frame. A panic while processing is
// contained to the frame.
func (w *Worker) step(ctx context.Context, frame *gocv.Mat, readAt time.Time) {
	defer func() {
		if r := recover(); r != nil {
			err := fault.New(fault.Detection, "process_frame", w.id, fmt.Errorf("panic: %v", r))
			w.logger.Error("Frame processing failed", "error", err)
			w.prevFrame = w.deps.Clock.Now()
		}
	}()

	var hand *landmark.Hand
	if w.rate.Next() {
		hand = w.processFrame(ctx, frame)
		// skip follows the cost of reading and detecting, not the pacing gap
		if w.rate.Adjust(w.deps.Clock.Since(readAt)) {
			w.logger.Debug("Adjusted frame skipping", "skip_count", w.rate.SkipCount())
		}
	}

	roi := w.currentROI()
	if hand != nil {
		video.DrawHand(frame, roi, *hand)
	}
	snap := w.escalation.Snapshot()
	video.DrawOverlay(frame, video.Overlay{
		ShowROI:  w.cfg.ShowROI,
		ROI:      roi,
		ShowFPS:  w.cfg.ShowFPS,
		FPS:      w.displayFPS(),
		Status:   StatusText(snap, false),
		Alarming: snap.State == alarm.Alarming,
	})
	w.deps.Sink.Show(w.id, *frame)

	now := w.deps.Clock.Now()
	if dt := now.Sub(w.prevFrame); dt > 0 {
		w.fps.add(float64(time.Second) / float64(dt))
	}
	w.prevFrame = now
	w.publish()
}

// processFrame runs landmark detection on the ROI and feeds the result
// into the escalation. It returns the evaluated hand, if any, for
// drawing.
func (w *Worker) processFrame(ctx context.Context, frame *gocv.Mat) *landmark.Hand {
	now := w.deps.Clock.Now()
	if !w.lastDetection.IsZero() && now.Sub(w.lastDetection) < w.cfg.DetectionEvery() {
		return nil
	}
	w.lastDetection = now

	roi, minConfidence := w.detectionParams()
	if bounds := image.Rect(0, 0, frame.Cols(), frame.Rows()); !roi.In(bounds) {
		// the stream came back at a different size
		var err error
		if roi, err = w.reclamp(bounds.Size()); err != nil {
			w.logger.Error("ROI no longer fits the frame", "error", err)
			return nil
		}
	}

	region := frame.Region(roi)
	jpeg, err := video.EncodeJPEG(region, w.cfg.Landmarks.JPEGQuality)
	region.Close()
	if err != nil {
		w.logger.Error("Failed to encode detection region", "error", fault.New(fault.Detection, "encode_roi", w.id, err))
		return nil
	}

	hands, err := w.detector.Detect(ctx, jpeg, minConfidence)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("Landmark detection failed", "error", fault.New(fault.Detection, "detect", w.id, err))
		}
		return nil
	}

	result, state := w.gesture.Evaluate(hands, w.smoothing)
	w.smoothing = state
	w.escalation.Observe(result.Active)
	return result.Hand
}

// recoverStream releases the capture, waits the reconnect backoff and
// tries to reopen the source once. The alarm session is left running.
func (w *Worker) recoverStream(ctx context.Context) {
	if !w.reconnecting.Swap(true) {
		w.logger.Warn("Stream lost, reconnecting")
		w.emit(service.EventTypeStreamLost, nil)
	}
	w.publish()

	if w.capture != nil {
		if err := w.capture.Close(); err != nil {
			w.logger.Debug("Failed to close capture", "error", err)
		}
		w.capture = nil
	}

	if !w.wait(ctx, w.cfg.Stream.ReconnectBackoff) {
		return
	}

	w.mu.Lock()
	cam := w.cam
	w.mu.Unlock()

	capture, err := w.deps.Open(cam)
	if err != nil {
		w.logger.Error("Reconnect failed", "error", fault.New(fault.Stream, "reconnect", w.id, err))
		return
	}
	w.capture = capture
	if err := w.applyFrameSize(); err != nil {
		w.logger.Warn("Could not read frame size after reconnect", "error", err)
	}

	w.reconnecting.Store(false)
	n := w.reconnects.Add(1)
	w.logger.Info("Reconnected", "reconnects", n)
	w.emit(service.EventTypeStreamRecovered, map[string]interface{}{"reconnects": n})
	w.publish()
}

// UpdateROI re-validates cam's ROI against the current frame size,
// shrinking it to fit when needed, and applies it together with cam's
// minimum confidence. It returns the ROI in effect.
func (w *Worker) UpdateROI(cam config.CameraConfig) (config.ROI, error) {
	if cam.ROI.W <= 0 || cam.ROI.H <= 0 || cam.ROI.X < 0 || cam.ROI.Y < 0 {
		w.logger.Warn("Rejected invalid ROI", "roi", cam.ROI)
		return config.ROI{}, fault.New(fault.Configuration, "update_roi", w.id,
			fmt.Errorf("invalid roi x=%d y=%d w=%d h=%d", cam.ROI.X, cam.ROI.Y, cam.ROI.W, cam.ROI.H))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	roi, adjusted, err := video.ClampROI(cam.ROI, w.frameSize.X, w.frameSize.Y)
	if err != nil {
		return config.ROI{}, err
	}
	if adjusted {
		w.logger.Warn("ROI exceeds frame, adjusting",
			"requested", cam.ROI,
			"frame_width", w.frameSize.X,
			"frame_height", w.frameSize.Y,
		)
		w.logger.Info("ROI adjusted", "roi", video.FormatROI(roi))
	}

	w.cam.ROI = cam.ROI
	w.roi = roi
	w.minConfidence = cam.MinConfidence
	w.logger.Info("ROI updated", "roi", video.FormatROI(roi), "min_confidence", cam.MinConfidence)
	return video.RectToROI(roi), nil
}

// Pause stops playback; the session and fired thresholds are kept.
func (w *Worker) Pause() {
	w.escalation.Pause()
	w.logger.Info("Alarm paused")
}

// Reset forces the escalation back to idle.
func (w *Worker) Reset() {
	w.escalation.Reset()
	w.logger.Info("Alarm reset")
}

// Status returns a copy of the last published status.
func (w *Worker) Status() *CameraStatus {
	return w.status.Load().clone()
}

// ROI returns the clamped ROI currently used for detection.
func (w *Worker) ROI() image.Rectangle {
	return w.currentROI()
}

func (w *Worker) publish() {
	snap := w.escalation.Snapshot()
	reconnecting := w.reconnecting.Load()

	state := snap.State.String()
	if reconnecting {
		state = stateReconnecting
	}
	w.status.Store(&CameraStatus{
		Version:           StatusVersion,
		CameraID:          w.id,
		State:             state,
		Status:            StatusText(snap, reconnecting),
		FPS:               w.fps.average(),
		DetectionDuration: snap.Duration.Seconds(),
		AlarmLevel:        snap.Level,
		FiredThresholds:   snap.Fired,
		Continuous:        snap.Continuous,
		Smoothed:          w.smoothing.Smoothed,
		SkipCount:         w.rate.SkipCount(),
		Reconnecting:      reconnecting,
		Reconnects:        int(w.reconnects.Load()),
		ROI:               video.RectToROI(w.currentROI()),
		UpdatedAt:         w.deps.Clock.Now(),
	})
}

// displayFPS returns the overlay figure, refreshed at most every
// fpsRefresh.
func (w *Worker) displayFPS() int {
	now := w.deps.Clock.Now()
	if w.fpsShownAt.IsZero() || now.Sub(w.fpsShownAt) >= fpsRefresh {
		w.fpsShown = int(w.fps.average())
		w.fpsShownAt = now
	}
	return w.fpsShown
}

func (w *Worker) onAlarmEvent(ev alarm.Event) {
	switch ev.Kind {
	case alarm.SessionStarted:
		w.logger.Debug("Gesture session started")
		w.emit(service.EventTypeSessionStarted, nil)
	case alarm.ThresholdFired:
		w.logger.Info("Alarm threshold fired",
			"threshold", ev.Threshold,
			"level", ev.Level,
			"continuous", ev.Continuous,
			"played", ev.Played,
		)
		w.emit(service.EventTypeAlarmFired, map[string]interface{}{
			service.DataThreshold:  ev.Threshold,
			service.DataLevel:      ev.Level,
			service.DataContinuous: ev.Continuous,
			service.DataPlayed:     ev.Played,
			service.DataSession:    ev.Session.Seconds(),
		})
	case alarm.SessionCleared:
		w.logger.Debug("Gesture session cleared", "level", ev.Level, "session", ev.Session)
		w.emit(service.EventTypeAlarmCleared, map[string]interface{}{
			service.DataThreshold: ev.Threshold,
			service.DataLevel:     ev.Level,
			service.DataSession:   ev.Session.Seconds(),
		})
	}
}

func (w *Worker) emit(eventType service.EventType, data map[string]interface{}) {
	if w.deps.Events == nil {
		return
	}
	if data == nil {
		data = make(map[string]interface{}, 1)
	}
	data[service.DataCameraID] = w.id
	w.deps.Events.Publish(service.Event{
		Type:      eventType,
		Source:    fmt.Sprintf("camera-%d", w.id),
		Timestamp: w.deps.Clock.Now(),
		Data:      data,
	})
}

// wait blocks for d or until ctx is done; it reports whether the full
// duration elapsed.
func (w *Worker) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-w.deps.Clock.After(d):
		return true
	}
}

// applyFrameSize reads the negotiated size from the capture, falling
// back to the configured resolution when the backend reports none.
func (w *Worker) applyFrameSize() error {
	if w.capture == nil {
		return nil
	}
	width, height := w.capture.Size()

	w.mu.Lock()
	defer w.mu.Unlock()

	want := w.cam.Resolution
	if width <= 0 || height <= 0 {
		width, height = want[0], want[1]
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("unknown frame size for %q", w.cam.Source)
	}
	if width != want[0] || height != want[1] {
		w.logger.Warn("Camera resolution differs from configuration",
			"requested_width", want[0],
			"requested_height", want[1],
			"actual_width", width,
			"actual_height", height,
		)
	}
	w.frameSize = image.Pt(width, height)
	return nil
}

func (w *Worker) clamp(roi config.ROI) (image.Rectangle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rect, adjusted, err := video.ClampROI(roi, w.frameSize.X, w.frameSize.Y)
	if err != nil {
		return image.Rectangle{}, err
	}
	if adjusted {
		w.logger.Warn("ROI exceeds frame, adjusting",
			"requested", roi,
			"frame_width", w.frameSize.X,
			"frame_height", w.frameSize.Y,
		)
		w.logger.Info("ROI adjusted", "roi", video.FormatROI(rect))
	}
	return rect, nil
}

func (w *Worker) reclamp(size image.Point) (image.Rectangle, error) {
	w.mu.Lock()
	roi := w.cam.ROI
	w.frameSize = size
	w.mu.Unlock()

	rect, err := w.clamp(roi)
	if err != nil {
		return image.Rectangle{}, err
	}
	w.mu.Lock()
	w.roi = rect
	w.mu.Unlock()
	return rect, nil
}

func (w *Worker) currentROI() image.Rectangle {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.roi
}

func (w *Worker) detectionParams() (image.Rectangle, float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.roi, w.minConfidence
}

// release closes everything Run owns. It runs on every exit path.
func (w *Worker) release() {
	if w.capture != nil {
		if err := w.capture.Close(); err != nil {
			w.logger.Error("Failed to close capture", "error", err)
		}
		w.capture = nil
	}
	if err := w.detector.Close(); err != nil {
		w.logger.Error("Failed to close detector", "error", err)
	}
	w.channel.Stop()
	w.logger.Info("Camera resources released")
}
