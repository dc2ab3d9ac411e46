package capture

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStreamer struct {
	frames chan image.Image
	errs   chan error
	once   sync.Once
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{frames: make(chan image.Image), errs: make(chan error, 1)}
}

func (f *fakeStreamer) Start() error { return nil }

func (f *fakeStreamer) Stop() {
	f.once.Do(func() {
		close(f.frames)
		close(f.errs)
	})
}

func (f *fakeStreamer) FrameChan() <-chan image.Image { return f.frames }
func (f *fakeStreamer) ErrorChan() <-chan error       { return f.errs }

func frame(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func TestSourceNotReadyBeforeFirstFrame(t *testing.T) {
	fs := newFakeStreamer()
	src := NewSource(fs, nil)
	defer src.Close()

	assert.False(t, src.Ready())
	assert.Nil(t, src.Frame())
	w, h := src.Size()
	assert.Zero(t, w)
	assert.Zero(t, h)
}

func TestSourceKeepsNewestFrame(t *testing.T) {
	fs := newFakeStreamer()
	src := NewSource(fs, nil)
	defer src.Close()

	first := frame(4, 3)
	second := frame(8, 6)
	fs.frames <- first
	fs.frames <- second

	require.Eventually(t, func() bool { return src.Stats().Received == 2 }, time.Second, time.Millisecond)
	assert.True(t, src.Ready())
	assert.Same(t, second, src.Frame())

	w, h := src.Size()
	assert.Equal(t, 8, w)
	assert.Equal(t, 6, h)
	assert.Equal(t, uint64(1), src.Stats().Dropped)
}

func TestSourceReadFrameIsNotCountedAsDropped(t *testing.T) {
	fs := newFakeStreamer()
	src := NewSource(fs, nil)
	defer src.Close()

	fs.frames <- frame(2, 2)
	require.Eventually(t, src.Ready, time.Second, time.Millisecond)
	src.Frame()

	fs.frames <- frame(2, 2)
	require.Eventually(t, func() bool { return src.Stats().Received == 2 }, time.Second, time.Millisecond)
	assert.Zero(t, src.Stats().Dropped)
}

func TestSourceBecomesUnavailableOnStreamError(t *testing.T) {
	fs := newFakeStreamer()
	src := NewSource(fs, nil)

	fs.frames <- frame(2, 2)
	require.Eventually(t, src.Ready, time.Second, time.Millisecond)

	fs.errs <- errors.New("read error: EOF")
	fs.Stop()

	require.Eventually(t, func() bool { return src.Stats().Ended }, time.Second, time.Millisecond)
	assert.False(t, src.Ready())
	assert.Nil(t, src.Frame())
	assert.EqualError(t, src.Stats().LastErr, "read error: EOF")
	assert.NoError(t, src.Close())
}

func TestSourceCloseReleasesFrame(t *testing.T) {
	fs := newFakeStreamer()
	src := NewSource(fs, nil)

	fs.frames <- frame(2, 2)
	require.Eventually(t, src.Ready, time.Second, time.Millisecond)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	assert.False(t, src.Ready())
	assert.Nil(t, src.Frame())
}

func TestParseDShowDevices(t *testing.T) {
	out := `[dshow @ 0x1] "Integrated Camera" (video)
[dshow @ 0x1] "Integrated Camera" (video)
[dshow @ 0x1] "Microphone" (audio)
[dshow @ 0x1] "OBS Virtual Camera" (video)`

	assert.Equal(t, []string{"Integrated Camera", "OBS Virtual Camera"}, parseDShowDevices(out))
}

func TestParseProbe(t *testing.T) {
	w, h, err := parseProbe([]byte(`{"streams":[{"width":1920,"height":1080}]}`))
	require.NoError(t, err)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)

	_, _, err = parseProbe([]byte(`{"streams":[]}`))
	assert.Error(t, err)
}

func TestRawOutputArgs(t *testing.T) {
	args := rawOutputArgs(15, 640, 480, "neighbor")
	assert.Equal(t, "fps=15,scale=640:480:flags=neighbor", args[1])
	assert.Equal(t, "-", args[len(args)-1])
}

func TestFFmpegStreamerRejectsBadSize(t *testing.T) {
	s := NewFFmpegWebcam("/dev/video0", 30, 0, 480)
	assert.Error(t, s.Start())
}
