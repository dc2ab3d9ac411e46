package capture

import (
	"github.com/pkg/errors"

	"objwatch/internal/config"
)

func NewStreamer(cfg *config.Config) (VideoStreamer, error) {
	switch cfg.ActiveSource {
	case config.SourceWebcam:
		return NewFFmpegWebcam(cfg.Webcam.DeviceID, cfg.GetFPS(), cfg.GetWidth(), cfg.GetHeight()), nil
	case config.SourceLocal:
		return NewLocalStreamer(cfg.Local.Path, cfg.GetFPS(), cfg.GetWidth(), cfg.GetHeight())
	default:
		return nil, errors.Errorf("unknown source: %s", cfg.ActiveSource)
	}
}
