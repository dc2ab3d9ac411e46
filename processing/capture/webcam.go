package capture

import (
	"bytes"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
)

// NewFFmpegWebcam captures from a v4l2 device (or a dshow device name on
// Windows) scaled to width x height.
func NewFFmpegWebcam(deviceName string, targetFPS uint, width, height int) VideoStreamer {
	if targetFPS == 0 {
		targetFPS = standardFps
	}

	var input []string
	if runtime.GOOS == "windows" {
		input = []string{"-f", "dshow", "-i", fmt.Sprintf("video=%s", deviceName)}
	} else {
		input = []string{"-f", "v4l2", "-i", deviceName}
	}

	args := append(input, rawOutputArgs(targetFPS, width, height, "")...)
	return newFFmpegStreamer(args, width, height, 0)
}

var dshowVideoDevice = regexp.MustCompile(`"([^"]+)"\s+\(video\)`)

func ListCameras() ([]string, error) {
	if runtime.GOOS == "windows" {
		cmd := exec.Command("ffmpeg", "-list_devices", "true", "-f", "dshow", "-i", "dummy")
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		// ffmpeg always exits non-zero here; the listing is on stderr.
		_ = cmd.Run()

		return parseDShowDevices(stderr.String()), nil
	}

	return filepath.Glob("/dev/video*")
}

func parseDShowDevices(output string) []string {
	var cameras []string
	seen := make(map[string]bool)

	for _, m := range dshowVideoDevice.FindAllStringSubmatch(output, -1) {
		name := m[1]
		if name != "dummy" && !seen[name] {
			cameras = append(cameras, name)
			seen[name] = true
		}
	}
	return cameras
}
