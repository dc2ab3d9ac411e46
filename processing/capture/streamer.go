// Package capture pulls raw RGBA frames from ffmpeg and exposes the most
// recent one as a frame source.
package capture

import (
	"image"
)

// VideoStreamer produces frames until Stop is called or the input ends.
// Both channels are closed when the streamer finishes.
type VideoStreamer interface {
	Start() error
	Stop()
	FrameChan() <-chan image.Image
	ErrorChan() <-chan error
}
