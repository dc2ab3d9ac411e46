package detector

import (
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"objwatch/internal/config"
)

// NewEngine builds the configured engine wrapped in a score filter that
// follows cfg's live minimum score.
func NewEngine(cfg *config.Config, logger *zap.SugaredLogger) (Engine, error) {
	var (
		engine Engine
		err    error
	)

	switch cfg.Detector.Engine {
	case config.EngineRemote:
		engine = NewRemoteDetector(cfg.Detector.Host, cfg.Detector.MaxSide, logger)
	case config.EngineDNN:
		engine, err = newDNNEngine(cfg.Detector.ModelPath, cfg.Detector.ConfigPath, logger)
	default:
		err = errors.Errorf("unknown detector engine %q", cfg.Detector.Engine)
	}
	if err != nil {
		return nil, err
	}

	return FilterScore(engine, cfg.GetMinScore), nil
}

// Close releases the engine if it holds resources.
func Close(e Engine) error {
	if c, ok := e.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
