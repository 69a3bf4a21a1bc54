//go:build gocv

package cli

import (
	"go.uber.org/zap"

	"github.com/edirooss/firewatch-server/internal/capture/gocv"
	"github.com/edirooss/firewatch-server/internal/config"
	"github.com/edirooss/firewatch-server/internal/stream"
)

func init() {
	backends[config.BackendGoCV] = func(log *zap.Logger, cfg config.SourceConfig) (stream.Opener, error) {
		return gocv.NewOpener(log, gocv.Config{ReadTimeout: cfg.ReadTimeout}), nil
	}
}
