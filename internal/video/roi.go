package video

import (
	"fmt"
	"image"

	"github.com/vzahanych/gesture-guard/internal/config"
	"github.com/vzahanych/gesture-guard/internal/fault"
)

// ClampROI fits roi into a width x height frame. The origin is clamped
// into the frame and the size shrunk to the frame edge. adjusted reports
// whether the result differs from the request. A non-positive ROI size
// or frame size is rejected.
func ClampROI(roi config.ROI, width, height int) (rect image.Rectangle, adjusted bool, err error) {
	if roi.W <= 0 || roi.H <= 0 {
		return image.Rectangle{}, false, fault.Newf(fault.Configuration, "clamp_roi",
			"roi width and height must be positive, got %dx%d", roi.W, roi.H)
	}
	if width <= 0 || height <= 0 {
		return image.Rectangle{}, false, fault.Newf(fault.Resource, "clamp_roi",
			"invalid frame size %dx%d", width, height)
	}

	x1 := max(0, min(roi.X, width-1))
	y1 := max(0, min(roi.Y, height-1))
	x2 := min(x1+roi.W, width)
	y2 := min(y1+roi.H, height)

	rect = image.Rect(x1, y1, x2, y2)
	requested := image.Rect(roi.X, roi.Y, roi.X+roi.W, roi.Y+roi.H)
	return rect, rect != requested, nil
}

// RectToROI converts a rectangle back to config form.
func RectToROI(r image.Rectangle) config.ROI {
	return config.ROI{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// FormatROI renders a rectangle for logs.
func FormatROI(r image.Rectangle) string {
	return fmt.Sprintf("x=%d y=%d w=%d h=%d", r.Min.X, r.Min.Y, r.Dx(), r.Dy())
}
