package clutter

import (
	"errors"
	"fmt"
)

var (
	// ErrNoValidFrames means the stream held no frame that could be folded
	// into the statistics, so mean and variance are undefined.
	ErrNoValidFrames = errors.New("no valid frames in stream")

	// ErrShapeMismatch marks a frame whose shape differs from the expected one.
	ErrShapeMismatch = errors.New("frame shape mismatch")

	// ErrEmptyFrame marks a frame in which every gate is invalid.
	ErrEmptyFrame = errors.New("frame has no valid gates")

	// ErrRead and ErrWrite separate failures of the external radar reader and
	// the template writer.
	ErrRead  = errors.New("radar read failed")
	ErrWrite = errors.New("radar write failed")
)

// ShapeError reports a frame that was rejected for its shape.
type ShapeError struct {
	Path string
	Got  Shape
	Want Shape
}

func (e *ShapeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("frame shape %s, expected %s", e.Got, e.Want)
	}
	return fmt.Sprintf("%s: frame shape %s, expected %s", e.Path, e.Got, e.Want)
}

func (e *ShapeError) Unwrap() error { return ErrShapeMismatch }

// ReadError wraps a failure of the frame source for one input path.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() []error { return []error{ErrRead, e.Err} }

// WriteError wraps a failure to persist the clutter radar.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() []error { return []error{ErrWrite, e.Err} }
