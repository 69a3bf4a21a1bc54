package stream

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Annotator draws inference results onto a frame. Implementations must not
// mutate the input frame.
type Annotator interface {
	Annotate(ctx context.Context, f *Frame) (*Frame, error)
}

// AnnotatorFunc adapts a function to Annotator.
type AnnotatorFunc func(ctx context.Context, f *Frame) (*Frame, error)

func (fn AnnotatorFunc) Annotate(ctx context.Context, f *Frame) (*Frame, error) { return fn(ctx, f) }

type annotateResult struct {
	frame *Frame
	err   error
}

// guard runs the annotator with a deadline and turns every failure into the
// raw frame. A nil annotator is the identity.
type guard struct {
	next    Annotator
	timeout time.Duration
	metrics *Metrics
}

// inflight holds one slot per stream. A call that outlives its deadline keeps
// the slot until the annotator returns, so a stuck annotator costs at most
// one goroutine per stream.
type inflight chan struct{}

func newInflight() inflight { return make(inflight, 1) }

func (g *guard) apply(ctx context.Context, log *zap.Logger, cameraID int64, f *Frame, slot inflight) *Frame {
	if g.next == nil {
		return f
	}
	select {
	case slot <- struct{}{}:
	default:
		log.Debug("annotator still busy, streaming raw frame", zap.Uint64("seq", f.Seq))
		return f
	}

	start := time.Now()
	out, err := g.call(ctx, f, slot)
	if err == nil && out.Empty() {
		err = fmt.Errorf("%w: empty output", ErrAnnotationFailure)
	}
	took := time.Since(start)
	g.metrics.annotated(cameraID, took, err != nil)

	if err != nil {
		if ctx.Err() == nil {
			log.Warn("annotation failed, streaming raw frame",
				zap.String("kind", KindAnnotationFailure),
				zap.Uint64("seq", f.Seq),
				zap.Duration("took", took),
				zap.Error(err))
		}
		return f
	}
	return out
}

// call releases slot when the annotator returns, not when ctx expires.
func (g *guard) call(ctx context.Context, f *Frame, slot inflight) (*Frame, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	res := make(chan annotateResult, 1)
	go func() {
		defer func() { <-slot }()
		defer func() {
			if r := recover(); r != nil {
				res <- annotateResult{err: fmt.Errorf("%w: panic: %v", ErrAnnotationFailure, r)}
			}
		}()
		out, err := g.next.Annotate(ctx, f)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrAnnotationFailure, err)
		}
		res <- annotateResult{frame: out, err: err}
	}()

	select {
	case r := <-res:
		return r.frame, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrAnnotationFailure, ctx.Err())
	}
}
