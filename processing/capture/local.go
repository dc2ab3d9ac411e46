package capture

import (
	"encoding/json"
	"os/exec"
	"time"

	"github.com/pkg/errors"
)

// NewLocalStreamer plays a video file at targetFPS, scaled to width x height.
func NewLocalStreamer(path string, targetFPS uint, width, height int) (VideoStreamer, error) {
	if _, _, err := probeVideoDimensions(path); err != nil {
		return nil, errors.Wrap(err, "probe video")
	}

	if targetFPS == 0 {
		targetFPS = standardFps
	}

	args := append([]string{"-i", path}, rawOutputArgs(targetFPS, width, height, "neighbor")...)
	return newFFmpegStreamer(args, width, height, time.Second/time.Duration(targetFPS)), nil
}

type probeData struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
}

func probeVideoDimensions(path string) (int, int, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, 0, errors.Wrap(err, "ffprobe")
	}

	return parseProbe(output)
}

func parseProbe(output []byte) (int, int, error) {
	var data probeData
	if err := json.Unmarshal(output, &data); err != nil {
		return 0, 0, errors.Wrap(err, "decode ffprobe output")
	}

	if len(data.Streams) == 0 {
		return 0, 0, errors.New("no video streams found")
	}

	return data.Streams[0].Width, data.Streams[0].Height, nil
}
