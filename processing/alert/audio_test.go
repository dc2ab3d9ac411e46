package alert

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWav(t *testing.T, path string, seconds int) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	const rate = 8000
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           make([]int, rate*seconds),
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

func TestWavDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alarm.wav")
	writeWav(t, path, 1)

	d, err := WavDuration(path)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d.Seconds(), 0.05)
}

func TestNewFFPlayNotifierRejectsBadClips(t *testing.T) {
	dir := t.TempDir()

	_, err := NewFFPlayNotifier(filepath.Join(dir, "missing.mp3"))
	assert.Error(t, err)

	bogus := filepath.Join(dir, "bogus.wav")
	require.NoError(t, os.WriteFile(bogus, []byte("not a wav"), 0o644))
	_, err = NewFFPlayNotifier(bogus)
	assert.Error(t, err)
}

func TestFFPlayNotifierReportsMissingBinary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alarm.wav")
	writeWav(t, path, 1)

	n, err := NewFFPlayNotifier(path)
	require.NoError(t, err)
	n.binary = filepath.Join(t.TempDir(), "no-such-player")

	assert.Error(t, n.Play(context.Background()))
	assert.NoError(t, n.Close())
}

func fakePlayer(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}
	path := filepath.Join(t.TempDir(), "player")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func TestFFPlayNotifierCloseStopsPlayback(t *testing.T) {
	clip := filepath.Join(t.TempDir(), "alarm.wav")
	writeWav(t, clip, 1)

	n, err := NewFFPlayNotifier(clip)
	require.NoError(t, err)
	n.binary = fakePlayer(t, "exec sleep 30")

	done := make(chan error, 1)
	go func() { done <- n.Play(context.Background()) }()

	require.Eventually(t, func() bool {
		n.mu.Lock()
		defer n.mu.Unlock()
		return n.cmd != nil
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, n.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("playback was not stopped")
	}
}

func TestFFPlayNotifierCloseAfterExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}
	cmd := exec.Command("sh", "-c", "exit 0")
	require.NoError(t, cmd.Run())

	n := &FFPlayNotifier{binary: "ffplay", cmd: cmd}
	assert.NoError(t, n.Close())
	assert.Nil(t, n.cmd)
}

func TestSilent(t *testing.T) {
	assert.NoError(t, Silent{}.Play(context.Background()))
}
