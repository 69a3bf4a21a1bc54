package cli

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/edirooss/firewatch-server/internal/capture/ffmpeg"
	"github.com/edirooss/firewatch-server/internal/config"
	"github.com/edirooss/firewatch-server/internal/stream"
)

type backendFactory func(log *zap.Logger, cfg config.SourceConfig) (stream.Opener, error)

// backends maps source.backend to its opener. gocv registers itself when
// built with -tags gocv.
var backends = map[string]backendFactory{
	config.BackendFFmpeg: newFFmpegOpener,
}

func newOpener(log *zap.Logger, cfg config.SourceConfig) (stream.Opener, error) {
	factory, ok := backends[cfg.Backend]
	if !ok {
		names := make([]string, 0, len(backends))
		for name := range backends {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("source backend %q not available in this build (have %s)",
			cfg.Backend, strings.Join(names, ", "))
	}
	return factory(log, cfg)
}

func newFFmpegOpener(log *zap.Logger, cfg config.SourceConfig) (stream.Opener, error) {
	return ffmpeg.NewOpener(log, ffmpeg.Config{
		Binary:        cfg.FFmpeg,
		Width:         cfg.Width,
		Height:        cfg.Height,
		FPS:           cfg.FPS,
		RTSPTransport: cfg.RTSPTransport,
		ReadTimeout:   cfg.ReadTimeout,
		SocketTimeout: cfg.SocketTimeout,
		StopGrace:     cfg.StopGrace,
	})
}
