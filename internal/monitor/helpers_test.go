package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gocv.io/x/gocv"

	"github.com/vzahanych/gesture-guard/internal/alarm"
	"github.com/vzahanych/gesture-guard/internal/clock"
	"github.com/vzahanych/gesture-guard/internal/config"
	"github.com/vzahanych/gesture-guard/internal/landmark"
	"github.com/vzahanych/gesture-guard/internal/logger"
	"github.com/vzahanych/gesture-guard/internal/service"
	"github.com/vzahanych/gesture-guard/internal/video"
)

const (
	testWidth  = 160
	testHeight = 120
)

var errCameraGone = errors.New("camera gone")

func handWithGap(gap float64) landmark.Hand {
	points := make([]landmark.Point, landmark.NumLandmarks)
	points[landmark.ThumbTip] = landmark.Point{X: 0.5, Y: 0.5}
	points[landmark.PinkyTip] = landmark.Point{X: 0.5 + gap, Y: 0.5}
	return landmark.Hand{Points: points, Score: 0.9}
}

func testConfig(triggers ...int) *config.Config {
	fps := 10
	return &config.Config{
		Cameras: []config.CameraConfig{
			{ID: 0, Source: "fake://0", Resolution: [2]int{testWidth, testHeight}, ROI: config.ROI{X: 10, Y: 10, W: 100, H: 80}, MinConfidence: 0.5, BufferSize: 1},
			{ID: 1, Source: "fake://1", Resolution: [2]int{testWidth, testHeight}, ROI: config.ROI{X: 0, Y: 0, W: 50, H: 50}, MinConfidence: 0.6, BufferSize: 1},
			{ID: 2, Source: "fake://2", Resolution: [2]int{testWidth, testHeight}, ROI: config.ROI{X: 0, Y: 0, W: 50, H: 50}, MinConfidence: 0.5, BufferSize: 1},
		},
		AlarmTriggers:        triggers,
		SmoothFactor:         1,
		GestureThreshold:     0.1,
		DetectionInterval:    0.1,
		ShowROI:              true,
		ShowFPS:              true,
		MaxFPS:               &fps,
		StatusUpdateInterval: 1,
		Landmarks:            config.LandmarksConfig{JPEGQuality: 80},
		Stream:               config.StreamConfig{ReconnectBackoff: time.Second},
	}
}

// fakeCapture hands out copies of one blank frame. read decides, per
// call, whether the read succeeds.
type fakeCapture struct {
	frame  gocv.Mat
	read   func() bool
	width  int
	height int

	mu     sync.Mutex
	closed bool
}

func (c *fakeCapture) Read(dst *gocv.Mat) bool {
	if !c.read() {
		return false
	}
	c.frame.CopyTo(dst)
	return true
}

func (c *fakeCapture) Size() (int, int) { return c.width, c.height }

func (c *fakeCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeCapture) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeDetector struct {
	mu       sync.Mutex
	respond  func(call int) ([]landmark.Hand, error)
	calls    int
	minConfs []float64
	closed   int
}

func (d *fakeDetector) Detect(_ context.Context, jpeg []byte, minConfidence float64) ([]landmark.Hand, error) {
	d.mu.Lock()
	d.calls++
	call := d.calls
	d.minConfs = append(d.minConfs, minConfidence)
	respond := d.respond
	d.mu.Unlock()

	if len(jpeg) < 2 || jpeg[0] != 0xFF || jpeg[1] != 0xD8 {
		return nil, errors.New("not a jpeg")
	}
	if respond == nil {
		return nil, nil
	}
	return respond(call)
}

func (d *fakeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

func (d *fakeDetector) lastMinConfidence() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.minConfs) == 0 {
		return 0
	}
	return d.minConfs[len(d.minConfs)-1]
}

type play struct {
	threshold int
	loop      bool
}

// fakeChannel finishes one-shots instantly; a looping sound stays busy
// until Stop.
type fakeChannel struct {
	mu    sync.Mutex
	busy  bool
	plays []play
	stops int
}

func (c *fakeChannel) Play(threshold int, loop bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return false
	}
	c.plays = append(c.plays, play{threshold, loop})
	c.busy = loop
	return true
}

func (c *fakeChannel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	c.busy = false
}

func (c *fakeChannel) snapshot() ([]play, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]play(nil), c.plays...), c.stops
}

type countingSink struct {
	mu     sync.Mutex
	frames map[int]int

	// inspect, when set, sees every shown frame
	inspect func(frame gocv.Mat)
}

func (s *countingSink) Show(cameraID int, frame gocv.Mat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frames == nil {
		s.frames = make(map[int]int)
	}
	if !frame.Empty() {
		s.frames[cameraID]++
	}
	if s.inspect != nil {
		s.inspect(frame)
	}
}

func (s *countingSink) count(cameraID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames[cameraID]
}

type eventRecorder struct {
	mu     sync.Mutex
	events []service.Event
}

func (r *eventRecorder) Publish(event service.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) ofType(eventType service.EventType) []service.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []service.Event
	for _, ev := range r.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// harness drives a single worker on a fake clock. script runs on every
// frame read with the virtual time since start; it returns false to
// fail the read and may call stop.
type harness struct {
	t        *testing.T
	cfg      *config.Config
	cam      config.CameraConfig
	clk      *clock.Fake
	start    time.Time
	frame    gocv.Mat
	channel  *fakeChannel
	detector *fakeDetector
	sink     *countingSink
	events   *eventRecorder
	logs     *observer.ObservedLogs
	log      *logger.Logger

	mu       sync.Mutex
	opens    int
	openErr  func(n int) error
	captures []*fakeCapture

	script func(at time.Duration) bool
	worker *Worker
	ctx    context.Context
	stop   context.CancelFunc
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	h := &harness{
		t:        t,
		cfg:      cfg,
		cam:      cfg.Cameras[0],
		clk:      clock.NewFake(start),
		start:    start,
		frame:    gocv.NewMatWithSize(testHeight, testWidth, gocv.MatTypeCV8UC3),
		channel:  &fakeChannel{},
		detector: &fakeDetector{},
		sink:     &countingSink{},
		events:   &eventRecorder{},
		logs:     logs,
		log:      &logger.Logger{Logger: zap.New(core)},
	}
	h.ctx, h.stop = context.WithCancel(context.Background())
	t.Cleanup(func() {
		h.stop()
		h.frame.Close()
	})
	return h
}

func (h *harness) elapsed() time.Duration {
	return h.clk.Since(h.start)
}

// activeUntil makes the detector report a closed hand before d and an
// open one afterwards.
func (h *harness) activeUntil(d time.Duration) {
	h.detector.respond = func(int) ([]landmark.Hand, error) {
		if h.elapsed() < d {
			return []landmark.Hand{handWithGap(0.02)}, nil
		}
		return []landmark.Hand{handWithGap(0.8)}, nil
	}
}

// runUntil stops the worker on the first read at or after d.
func (h *harness) runUntil(d time.Duration, each func(at time.Duration) bool) {
	h.script = func(at time.Duration) bool {
		if at >= d {
			h.stop()
			return true
		}
		if each != nil {
			return each(at)
		}
		return true
	}
}

func (h *harness) open(cam config.CameraConfig) (video.Capture, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.opens++
	if h.openErr != nil {
		if err := h.openErr(h.opens); err != nil {
			return nil, err
		}
	}
	c := &fakeCapture{
		frame:  h.frame,
		width:  cam.Resolution[0],
		height: cam.Resolution[1],
		read: func() bool {
			if h.script == nil {
				return true
			}
			return h.script(h.elapsed())
		},
	}
	h.captures = append(h.captures, c)
	return c, nil
}

func (h *harness) deps() WorkerDeps {
	return WorkerDeps{
		Open:        h.open,
		NewDetector: func(config.CameraConfig) (landmark.Detector, error) { return h.detector, nil },
		Channels:    func(int) alarm.Channel { return h.channel },
		Sink:        h.sink,
		Events:      h.events,
		Clock:       h.clk,
	}
}

func (h *harness) newWorker() *Worker {
	h.t.Helper()
	w, err := NewWorker(h.cfg, h.cam, h.deps(), h.log)
	if err != nil {
		h.t.Fatalf("NewWorker failed: %v", err)
	}
	h.worker = w
	return w
}

// run blocks until the script stops the worker.
func (h *harness) run() {
	h.t.Helper()
	h.worker.Run(h.ctx)
	select {
	case <-h.worker.Done():
	default:
		h.t.Fatal("Done should be closed after Run returns")
	}
}

func (h *harness) openCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opens
}
