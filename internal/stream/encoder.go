package stream

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"sync"
)

const (
	// Boundary separates parts of the multipart response.
	Boundary = "frame"
	// ContentType is the response content type of a stream.
	ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

	DefaultJPEGQuality = 80
)

var (
	chunkHead = []byte("--" + Boundary + "\r\nContent-Type: image/jpeg\r\n\r\n")
	chunkTail = []byte("\r\n\r\n")
)

// Encoder turns frames into JPEG images and multipart chunks.
// Safe for concurrent use.
type Encoder struct {
	quality int
	bufs    sync.Pool
}

func NewEncoder(quality int) *Encoder {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &Encoder{
		quality: quality,
		bufs:    sync.Pool{New: func() any { return new(bytes.Buffer) }},
	}
}

// Encode returns the JPEG bytes of f.
func (e *Encoder) Encode(f *Frame) ([]byte, error) {
	if f.Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrEncodingFailure)
	}
	buf := e.bufs.Get().(*bytes.Buffer)
	buf.Reset()
	defer e.bufs.Put(buf)

	if err := jpeg.Encode(buf, f.Image, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodingFailure, err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

// Chunk encodes f and frames it as one multipart part.
func (e *Encoder) Chunk(f *Frame) ([]byte, error) {
	img, err := e.Encode(f)
	if err != nil {
		return nil, err
	}
	return AppendChunk(nil, img), nil
}

// AppendChunk appends "--frame\r\nContent-Type: image/jpeg\r\n\r\n<payload>\r\n\r\n"
// to dst. The payload is written verbatim.
func AppendChunk(dst, payload []byte) []byte {
	dst = append(dst, chunkHead...)
	dst = append(dst, payload...)
	return append(dst, chunkTail...)
}
