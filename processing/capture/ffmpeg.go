package capture

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	bytesPerPixel = 4
	standardFps   = 30
)

// ffmpegStreamer runs ffmpeg with rawvideo RGBA output on stdout and slices
// the stream into frames of width*height*4 bytes.
type ffmpegStreamer struct {
	stopOnce sync.Once
	waitOnce sync.Once
	waitErr  error

	binary string

	args   []string
	width  int
	height int

	// pace > 0 reads one frame per tick (file input); otherwise frames are
	// read as fast as ffmpeg produces them and dropped when nobody is ready.
	pace time.Duration

	cmd       *exec.Cmd
	stderr    bytes.Buffer
	frameChan chan image.Image
	errChan   chan error
	stopChan  chan struct{}
}

func newFFmpegStreamer(args []string, width, height int, pace time.Duration) *ffmpegStreamer {
	return &ffmpegStreamer{
		binary:    "ffmpeg",
		args:      args,
		width:     width,
		height:    height,
		pace:      pace,
		frameChan: make(chan image.Image, 1),
		errChan:   make(chan error, 1),
		stopChan:  make(chan struct{}),
	}
}

func rawOutputArgs(fps uint, width, height int, scaleFlags string) []string {
	filter := fmt.Sprintf("fps=%d,scale=%d:%d", fps, width, height)
	if scaleFlags != "" {
		filter += ":flags=" + scaleFlags
	}
	return []string{
		"-vf", filter,
		"-f", "image2pipe",
		"-pix_fmt", "rgba",
		"-vcodec", "rawvideo",
		"-",
	}
}

func (s *ffmpegStreamer) Start() error {
	if s.width <= 0 || s.height <= 0 {
		return errors.Errorf("invalid frame size %dx%d", s.width, s.height)
	}

	s.cmd = exec.Command(s.binary, s.args...)
	s.cmd.Stderr = &s.stderr

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return err
	}

	if err := s.cmd.Start(); err != nil {
		return errors.Wrapf(err, "%s start: %s", s.binary, strings.TrimSpace(s.stderr.String()))
	}

	go s.readLoop(stdout)

	return nil
}

func (s *ffmpegStreamer) readLoop(stdout io.ReadCloser) {
	defer close(s.frameChan)
	defer close(s.errChan)
	defer stdout.Close()
	defer s.stopCmd()

	frameSize := s.width * s.height * bytesPerPixel
	buffer := make([]byte, frameSize)

	var tick <-chan time.Time
	if s.pace > 0 {
		ticker := time.NewTicker(s.pace)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-s.stopChan:
				return
			case <-tick:
			}
		} else {
			select {
			case <-s.stopChan:
				return
			default:
			}
		}

		if _, err := io.ReadFull(stdout, buffer); err != nil {
			if s.stopped() {
				return
			}
			if err := s.endOfStream(err); err != nil {
				s.errChan <- err
			}
			return
		}

		pixelData := make([]byte, len(buffer))
		copy(pixelData, buffer)

		img := &image.RGBA{
			Pix:    pixelData,
			Stride: s.width * bytesPerPixel,
			Rect:   image.Rect(0, 0, s.width, s.height),
		}

		select {
		case s.frameChan <- img:
		case <-s.stopChan:
			return
		default:
		}
	}
}

// endOfStream classifies a read failure. A clean ffmpeg exit at the end of
// the input is not an error; a non-zero exit reports ffmpeg's stderr.
func (s *ffmpegStreamer) endOfStream(readErr error) error {
	if !errors.Is(readErr, io.EOF) && !errors.Is(readErr, io.ErrUnexpectedEOF) {
		return errors.Wrap(readErr, "read error")
	}
	if err := s.wait(); err != nil {
		return errors.Wrapf(err, "%s exited: %s", s.binary, strings.TrimSpace(s.stderr.String()))
	}
	return nil
}

func (s *ffmpegStreamer) stopped() bool {
	select {
	case <-s.stopChan:
		return true
	default:
		return false
	}
}

func (s *ffmpegStreamer) wait() error {
	s.waitOnce.Do(func() {
		if s.cmd != nil && s.cmd.Process != nil {
			s.waitErr = s.cmd.Wait()
		}
	})
	return s.waitErr
}

func (s *ffmpegStreamer) stopCmd() {
	if s.cmd != nil && s.cmd.Process != nil {
		// The exit status from wait covers a process that already ended.
		_ = s.cmd.Process.Kill()
	}
	_ = s.wait()
}

func (s *ffmpegStreamer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.stopCmd()
	})
}

func (s *ffmpegStreamer) FrameChan() <-chan image.Image { return s.frameChan }
func (s *ffmpegStreamer) ErrorChan() <-chan error       { return s.errChan }
