package stream

import "context"

// Opener connects to a media source. Implementations wrap failures with
// ErrSourceUnreachable.
type Opener interface {
	Open(ctx context.Context, url string) (Source, error)
}

// Source is one open connection. Read blocks until a frame is decoded, the
// read timeout elapses or ctx is done. A Source that failed a read is never
// read again; the session closes it and opens a new one.
type Source interface {
	Read(ctx context.Context) (*Frame, error)
	Close() error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, url string) (Source, error)

func (f OpenerFunc) Open(ctx context.Context, url string) (Source, error) { return f(ctx, url) }
