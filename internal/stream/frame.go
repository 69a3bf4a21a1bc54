package stream

import (
	"image"
	"time"
)

// Frame is one decoded picture. A published frame is never mutated;
// annotators return a new Frame.
type Frame struct {
	Seq       uint64    // assigned by the session, strictly increasing
	Timestamp time.Time // capture time
	Image     image.Image
}

// Empty reports whether f carries no usable pixels.
func (f *Frame) Empty() bool {
	return f == nil || f.Image == nil || f.Image.Bounds().Empty()
}

// WithImage returns a copy of f carrying img.
func (f *Frame) WithImage(img image.Image) *Frame {
	return &Frame{Seq: f.Seq, Timestamp: f.Timestamp, Image: img}
}
