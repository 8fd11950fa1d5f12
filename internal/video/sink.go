package video

import (
	"image"
	"net/http"
	"sync"

	"github.com/hybridgroup/mjpeg"
	"gocv.io/x/gocv"

	"github.com/vzahanych/gesture-guard/internal/logger"
)

// Sink receives rendered frames for presentation.
type Sink interface {
	Show(cameraID int, frame gocv.Mat)
}

// NopSink drops every frame.
type NopSink struct{}

func (NopSink) Show(int, gocv.Mat) {}

// PreviewSink resizes frames to a fixed preview size and publishes them
// as per-camera MJPEG streams.
type PreviewSink struct {
	size    image.Point
	quality int
	logger  *logger.Logger

	mu      sync.Mutex
	streams map[int]*mjpeg.Stream
}

// NewPreviewSink creates a sink producing width x height previews.
func NewPreviewSink(width, height, quality int, log *logger.Logger) *PreviewSink {
	return &PreviewSink{
		size:    image.Pt(width, height),
		quality: quality,
		logger:  log,
		streams: make(map[int]*mjpeg.Stream),
	}
}

// Show resizes frame when needed (nearest neighbour) and pushes it to
// the camera's stream.
func (s *PreviewSink) Show(cameraID int, frame gocv.Mat) {
	if frame.Empty() {
		return
	}

	out := frame
	if frame.Cols() != s.size.X || frame.Rows() != s.size.Y {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(frame, &resized, s.size, 0, 0, gocv.InterpolationNearestNeighbor)
		out = resized
	}

	data, err := EncodeJPEG(out, s.quality)
	if err != nil {
		s.logger.Debug("Preview encode failed", "camera_id", cameraID, "error", err)
		return
	}
	s.stream(cameraID).UpdateJPEG(data)
}

// Handler returns the MJPEG handler for a camera.
func (s *PreviewSink) Handler(cameraID int) http.Handler {
	return s.stream(cameraID)
}

// Size returns the preview size.
func (s *PreviewSink) Size() image.Point {
	return s.size
}

func (s *PreviewSink) stream(cameraID int) *mjpeg.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streams[cameraID]
	if !ok {
		st = mjpeg.NewStream()
		s.streams[cameraID] = st
	}
	return st
}
