package detect

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/edirooss/firewatch-server/internal/stream"
)

// Detector is the model call behind an Annotator.
type Detector interface {
	Detect(ctx context.Context, jpeg []byte) ([]Detection, error)
}

type AnnotatorConfig struct {
	MinConfidence float64  // detections below are dropped
	Labels        []string // keep only these labels; empty keeps all
	Normalized    bool     // boxes are 0..1 fractions of the image size
	UploadQuality int      // JPEG quality of the submitted frame
}

// Annotator implements stream.Annotator by sending each frame to a Detector
// and drawing what comes back.
type Annotator struct {
	log      *zap.Logger
	detector Detector
	encoder  *stream.Encoder
	cfg      AnnotatorConfig
	labels   map[string]struct{}
}

func NewAnnotator(log *zap.Logger, d Detector, cfg AnnotatorConfig) *Annotator {
	a := &Annotator{
		log:      log.Named("detect"),
		detector: d,
		encoder:  stream.NewEncoder(cfg.UploadQuality),
		cfg:      cfg,
	}
	if len(cfg.Labels) > 0 {
		a.labels = make(map[string]struct{}, len(cfg.Labels))
		for _, l := range cfg.Labels {
			a.labels[strings.ToLower(l)] = struct{}{}
		}
	}
	return a
}

func (a *Annotator) Annotate(ctx context.Context, f *stream.Frame) (*stream.Frame, error) {
	payload, err := a.encoder.Encode(f)
	if err != nil {
		return nil, err
	}
	dets, err := a.detector.Detect(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("detect frame %d: %w", f.Seq, err)
	}

	kept := a.filter(dets)
	if len(kept) == 0 {
		return f, nil
	}
	a.log.Debug("objects detected", zap.Uint64("seq", f.Seq), zap.Int("count", len(kept)))

	sx, sy := 1.0, 1.0
	if a.cfg.Normalized {
		b := f.Image.Bounds()
		sx, sy = float64(b.Dx()), float64(b.Dy())
	}
	return f.WithImage(drawDetections(f.Image, kept, sx, sy)), nil
}

func (a *Annotator) filter(dets []Detection) []Detection {
	out := dets[:0:0]
	for _, d := range dets {
		if d.Confidence < a.cfg.MinConfidence {
			continue
		}
		if a.labels != nil {
			if _, ok := a.labels[strings.ToLower(d.Label)]; !ok {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}
