package video

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/vzahanych/gesture-guard/internal/landmark"
)

var (
	roiColor   = color.RGBA{0, 255, 0, 0}
	textColor  = color.RGBA{0, 255, 0, 0}
	alarmColor = color.RGBA{255, 0, 0, 0}
	pointColor = color.RGBA{255, 0, 0, 0}
	boneColor  = color.RGBA{255, 255, 255, 0}
	handBones  = [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {0, 5}, {5, 6}, {6, 7}, {7, 8}, {5, 9}, {9, 10}, {10, 11}, {11, 12}, {9, 13}, {13, 14}, {14, 15}, {15, 16}, {13, 17}, {0, 17}, {17, 18}, {18, 19}, {19, 20}}
)

// Overlay is what gets drawn on a displayed frame.
type Overlay struct {
	ShowROI  bool
	ROI      image.Rectangle
	ShowFPS  bool
	FPS      int
	Status   string // drawn under the FPS line when non-empty
	Alarming bool
}

// DrawOverlay draws the ROI box and text lines onto frame.
func DrawOverlay(frame *gocv.Mat, o Overlay) {
	if o.ShowROI && !o.ROI.Empty() {
		c := roiColor
		if o.Alarming {
			c = alarmColor
		}
		gocv.Rectangle(frame, o.ROI, c, 2)
	}

	y := 30
	if o.ShowFPS {
		gocv.PutText(frame, fmt.Sprintf("FPS: %d", o.FPS), image.Pt(10, y), gocv.FontHersheySimplex, 1, textColor, 2)
		y += 35
	}
	if o.Status != "" {
		c := textColor
		if o.Alarming {
			c = alarmColor
		}
		gocv.PutText(frame, o.Status, image.Pt(10, y), gocv.FontHersheySimplex, 0.8, c, 2)
	}
}

// DrawHand draws a hand whose points are normalized to roi.
func DrawHand(frame *gocv.Mat, roi image.Rectangle, hand landmark.Hand) {
	pts := make([]image.Point, len(hand.Points))
	for i, p := range hand.Points {
		pts[i] = image.Pt(
			roi.Min.X+int(p.X*float64(roi.Dx())),
			roi.Min.Y+int(p.Y*float64(roi.Dy())),
		)
	}
	for _, b := range handBones {
		if b[0] < len(pts) && b[1] < len(pts) {
			gocv.Line(frame, pts[b[0]], pts[b[1]], boneColor, 2)
		}
	}
	for _, p := range pts {
		gocv.Circle(frame, p, 4, pointColor, -1)
	}
}
