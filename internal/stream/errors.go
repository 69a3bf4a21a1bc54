package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnreachable means the source could not be opened or read.
	ErrSourceUnreachable = errors.New("source unreachable")
	// ErrEndOfStream means the source ended cleanly. It still triggers a reconnect.
	ErrEndOfStream = errors.New("end of stream")
	// ErrReadTimeout means a read exceeded the configured read timeout.
	ErrReadTimeout = fmt.Errorf("%w: read timeout", ErrSourceUnreachable)
	// ErrStreamExhausted means the reconnect budget ran out and the session stopped.
	ErrStreamExhausted = errors.New("stream exhausted")
	// ErrAnnotationFailure is logged when the annotator fails; the raw frame is used instead.
	ErrAnnotationFailure = errors.New("annotation failure")
	// ErrEncodingFailure means a frame could not be encoded.
	ErrEncodingFailure = errors.New("encoding failure")
	// ErrSessionStarted is returned by a second Session.Start.
	ErrSessionStarted = errors.New("session already started")
)

// Failure kinds used as the "kind" log field.
const (
	KindSourceUnreachable    = "SourceUnreachable"
	KindStreamExhausted      = "StreamExhausted"
	KindAnnotationFailure    = "AnnotationFailure"
	KindEncodingFailure      = "EncodingFailure"
	KindConsumerDisconnected = "ConsumerDisconnected"
)
