package capture

import (
	"image"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// SourceStats is a snapshot of Source counters.
type SourceStats struct {
	Received uint64
	// Dropped counts frames overwritten before anyone read them.
	Dropped uint64
	Ended   bool
	LastErr error
}

// Source keeps only the newest frame of a VideoStreamer. Readers never wait:
// Frame returns whatever arrived last, and a slow reader simply misses frames.
type Source struct {
	streamer VideoStreamer
	logger   *zap.SugaredLogger

	mu      sync.RWMutex
	frame   image.Image
	unread  bool
	ended   bool
	lastErr error

	received atomic.Uint64
	dropped  atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

// NewSource starts pumping frames from an already started streamer.
func NewSource(streamer VideoStreamer, logger *zap.SugaredLogger) *Source {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Source{
		streamer: streamer,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *Source) pump() {
	defer close(s.done)

	frames := s.streamer.FrameChan()
	errs := s.streamer.ErrorChan()

	for frames != nil || errs != nil {
		select {
		case frame, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			if frame != nil {
				s.publish(frame)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Warnw("frame source unavailable", "error", err)
			s.mu.Lock()
			s.lastErr = err
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	s.ended = true
	s.frame = nil
	s.unread = false
	s.mu.Unlock()
	s.logger.Infow("frame source ended", "received", s.received.Load(), "dropped", s.dropped.Load())
}

func (s *Source) publish(frame image.Image) {
	s.mu.Lock()
	if s.unread {
		s.dropped.Add(1)
	}
	s.frame = frame
	s.unread = true
	s.mu.Unlock()
	s.received.Add(1)
}

// Ready reports whether a frame is available for inference.
func (s *Source) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.ended && s.frame != nil
}

// Frame returns the newest frame, or nil when the source is not ready.
// Frames are shared and must not be modified.
func (s *Source) Frame() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil
	}
	s.unread = false
	return s.frame
}

// Size returns the pixel dimensions of the newest frame.
func (s *Source) Size() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return 0, 0
	}
	b := s.frame.Bounds()
	return b.Dx(), b.Dy()
}

func (s *Source) Stats() SourceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SourceStats{
		Received: s.received.Load(),
		Dropped:  s.dropped.Load(),
		Ended:    s.ended,
		LastErr:  s.lastErr,
	}
}

// Close stops the streamer, waits for the pump to exit and drops the frame.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.streamer.Stop()
		<-s.done
	})
	return nil
}
