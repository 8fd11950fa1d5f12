// Package fault defines the error kinds shared by the monitoring engine.
//
// Codes are stable: a kind keeps its number across releases so log
// consumers and API clients can match on it.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// Unknown is returned by KindOf for errors that carry no kind.
	Unknown Kind = 0
	// Configuration covers invalid camera ids and invalid ROI updates.
	Configuration Kind = 1001
	// Resource covers capture-open and asset-load failures.
	Resource Kind = 1002
	// Stream covers transient frame-read failures.
	Stream Kind = 1003
	// Detection covers unexpected failures evaluating a single frame.
	Detection Kind = 1004
	// FatalInit covers failures constructing a worker's owned components.
	FatalInit Kind = 1005
	// Runtime covers illegal lifecycle requests such as starting a
	// camera that is already running.
	Runtime Kind = 1006
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case Resource:
		return "resource"
	case Stream:
		return "stream"
	case Detection:
		return "detection"
	case FatalInit:
		return "fatal_init"
	case Runtime:
		return "runtime"
	default:
		return "unknown"
	}
}

// Code returns the stable numeric code.
func (k Kind) Code() int {
	return int(k)
}

// Error is a classified error. CameraID is -1 when the failure is not
// tied to a camera.
type Error struct {
	Kind     Kind
	Op       string
	CameraID int
	Err      error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.CameraID >= 0 {
		msg = fmt.Sprintf("%s (camera %d)", msg, e.CameraID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error for a camera.
func New(kind Kind, op string, cameraID int, err error) *Error {
	return &Error{Kind: kind, Op: op, CameraID: cameraID, Err: err}
}

// Newf builds a classified error not tied to a camera.
func Newf(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, CameraID: -1, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err's chain carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
