package landmark

import "context"

// Hand landmark indices following MediaPipe convention.
const (
	Wrist        = 0
	ThumbTip     = 4
	IndexTip     = 8
	MiddleTip    = 12
	RingTip      = 16
	PinkyTip     = 20
	NumLandmarks = 21
)

// Point is a keypoint in coordinates normalized to the analysed image
// region ([0,1] on both axes).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Hand is one detected hand
type Hand struct {
	Points     []Point `json:"points"`
	Handedness string  `json:"handedness,omitempty"`
	Score      float64 `json:"score"`
}

// Point returns keypoint i, or false when the hand does not carry it.
func (h Hand) Point(i int) (Point, bool) {
	if i < 0 || i >= len(h.Points) {
		return Point{}, false
	}
	return h.Points[i], true
}

// Detector maps an image region to zero or more hands.
// The region is passed JPEG encoded.
type Detector interface {
	// Detect returns the hands found in the region; an empty slice when
	// there are none.
	Detect(ctx context.Context, jpeg []byte, minConfidence float64) ([]Hand, error)

	// Close releases any resources held by the detector.
	Close() error
}

// DetectRequest is the sidecar request body
type DetectRequest struct {
	Image         string  `json:"image"` // base64 JPEG
	MinConfidence float64 `json:"min_confidence"`
	MaxHands      int     `json:"max_hands"`
}

// DetectResponse is the sidecar response body
type DetectResponse struct {
	Hands           []Hand  `json:"hands"`
	InferenceTimeMs float64 `json:"inference_time_ms"`
}
