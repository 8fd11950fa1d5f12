// Package video wraps OpenCV capture, drawing and preview output.
package video

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/vzahanych/gesture-guard/internal/config"
	"github.com/vzahanych/gesture-guard/internal/fault"
)

// Capture is an open camera source.
type Capture interface {
	// Read grabs the next frame into dst; false means the read failed.
	Read(dst *gocv.Mat) bool
	// Size returns the negotiated frame size.
	Size() (width, height int)
	Close() error
}

// Opener opens the source of a camera slot.
type Opener func(cam config.CameraConfig) (Capture, error)

type gocvCapture struct {
	vc *gocv.VideoCapture
}

// OpenCapture opens cam.Source with OpenCV, requests the configured
// resolution and applies the buffer size.
func OpenCapture(cam config.CameraConfig) (Capture, error) {
	vc, err := gocv.OpenVideoCapture(cam.Source)
	if err != nil {
		return nil, fault.New(fault.Resource, "open_capture", cam.ID, fmt.Errorf("failed to open %q: %w", cam.Source, err))
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fault.New(fault.Resource, "open_capture", cam.ID, fmt.Errorf("capture %q is not opened", cam.Source))
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(cam.Resolution[0]))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cam.Resolution[1]))
	if cam.BufferSize > 0 {
		vc.Set(gocv.VideoCaptureBufferSize, float64(cam.BufferSize))
	}

	return &gocvCapture{vc: vc}, nil
}

func (c *gocvCapture) Read(dst *gocv.Mat) bool {
	return c.vc.Read(dst) && !dst.Empty()
}

func (c *gocvCapture) Size() (int, int) {
	return int(c.vc.Get(gocv.VideoCaptureFrameWidth)), int(c.vc.Get(gocv.VideoCaptureFrameHeight))
}

func (c *gocvCapture) Close() error {
	return c.vc.Close()
}

// EncodeJPEG encodes m as JPEG at the given quality.
func EncodeJPEG(m gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, m, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
