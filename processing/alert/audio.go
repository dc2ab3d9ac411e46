package alert

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/wav"
	"github.com/pkg/errors"
)

// FFPlayNotifier plays an alarm clip through ffplay. Only one playback runs
// at a time; a new Play restarts the clip from the beginning.
type FFPlayNotifier struct {
	path   string
	binary string

	mu  sync.Mutex
	cmd *exec.Cmd
}

func NewFFPlayNotifier(path string) (*FFPlayNotifier, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, "alarm clip")
	}

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		if _, err := WavDuration(path); err != nil {
			return nil, err
		}
	}

	return &FFPlayNotifier{path: path, binary: "ffplay"}, nil
}

func (n *FFPlayNotifier) Play(ctx context.Context) error {
	if err := n.stopCurrent(); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, n.binary,
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		n.path,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "start %s", n.binary)
	}

	n.mu.Lock()
	n.cmd = cmd
	n.mu.Unlock()

	err := cmd.Wait()

	n.mu.Lock()
	replaced := n.cmd != cmd
	if !replaced {
		n.cmd = nil
	}
	n.mu.Unlock()

	if err != nil && !replaced && ctx.Err() == nil {
		return errors.Wrapf(err, "ffplay: %s", strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (n *FFPlayNotifier) stopCurrent() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	cmd := n.cmd
	n.cmd = nil
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return errors.Wrapf(err, "stop %s", n.binary)
	}
	return nil
}

// Close stops a playback in progress.
func (n *FFPlayNotifier) Close() error {
	return n.stopCurrent()
}

// WavDuration decodes the header of a WAV file and returns its length.
func WavDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open wav")
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, errors.Errorf("%s is not a valid wav file", path)
	}

	d, err := dec.Duration()
	if err != nil {
		return 0, errors.Wrap(err, "wav duration")
	}
	return d, nil
}

// Silent is an AudioNotifier that plays nothing, used when no clip is configured.
type Silent struct{}

func (Silent) Play(context.Context) error { return nil }
