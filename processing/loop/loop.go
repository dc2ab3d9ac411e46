// Package loop drives the per-frame detection cycle: read the newest frame,
// run inference, track presence, raise alerts, redraw the overlay and
// publish the results.
package loop

import (
	"context"
	"image"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"objwatch/internal/models"
	"objwatch/processing/detector"
	"objwatch/processing/overlay"
)

// FrameSource is the camera side of the loop.
type FrameSource interface {
	Ready() bool
	Frame() image.Image
}

type Notifier interface {
	Notify() bool
}

type Publisher interface {
	Set(dets []models.Detection, stats models.Statistics, presence models.Presence) models.Snapshot
}

// Display receives each completed cycle. overlay is a private copy of the
// drawn surface; frame must not be modified.
type Display func(frame, overlay image.Image, snap models.Snapshot)

type Option func(*Loop)

func WithClock(c clock.Clock) Option {
	return func(l *Loop) { l.clock = c }
}

func WithRefreshInterval(d time.Duration) Option {
	return func(l *Loop) { l.interval = d }
}

func WithGrace(d time.Duration) Option {
	return func(l *Loop) { l.presence.grace = d }
}

// WithInferenceTimeout bounds a single Detect call. Zero means no bound
// beyond Stop.
func WithInferenceTimeout(d time.Duration) Option {
	return func(l *Loop) { l.timeout = d }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(l *Loop) { l.logger = logger }
}

func WithDisplay(d Display) Option {
	return func(l *Loop) { l.display = d }
}

// WithErrorLimiter sets how often inference failures reach the log.
func WithErrorLimiter(lim *rate.Limiter) Option {
	return func(l *Loop) { l.errLimiter = lim }
}

type Loop struct {
	source   FrameSource
	engine   detector.Engine
	renderer *overlay.Renderer
	notifier Notifier
	store    Publisher

	clock      clock.Clock
	interval   time.Duration
	timeout    time.Duration
	logger     *zap.SugaredLogger
	display    Display
	errLimiter *rate.Limiter

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	inflight   atomic.Bool
	suppressed atomic.Int64

	// Owned by the scheduler goroutine.
	prevTick time.Time
	hasPrev  bool
	stats    models.Statistics
	dets     []models.Detection
	frame    image.Image
	presence presenceTracker
}

func New(source FrameSource, engine detector.Engine, renderer *overlay.Renderer, notifier Notifier, store Publisher, opts ...Option) *Loop {
	l := &Loop{
		source:     source,
		engine:     engine,
		renderer:   renderer,
		notifier:   notifier,
		store:      store,
		clock:      clock.New(),
		interval:   time.Second / 60,
		logger:     zap.NewNop().Sugar(),
		errLimiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
		presence:   presenceTracker{grace: time.Second},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start begins scheduling cycles. Calling Start on a running loop does
// nothing.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.hasPrev = false

	ticker := l.clock.Ticker(l.interval)
	l.wg.Add(1)
	go l.run(ctx, ticker)

	l.logger.Infow("detection loop started", "interval", l.interval)
}

// Stop cancels the scheduled cycle and any inference it is waiting on. No
// cycle runs after Stop returns; a result that arrives later is discarded.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel == nil {
		return
	}
	l.cancel()
	l.cancel = nil
	l.wg.Wait()

	l.frame = nil
	l.logger.Infow("detection loop stopped")
}

func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

func (l *Loop) run(ctx context.Context, ticker *clock.Ticker) {
	defer l.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			l.runCycle(ctx, t)
		}
	}
}

func (l *Loop) runCycle(ctx context.Context, t time.Time) {
	if ctx.Err() != nil {
		return
	}

	stats := l.stats
	stats.FPSValid = false
	if l.hasPrev {
		if delta := t.Sub(l.prevTick); delta > 0 {
			stats.FPS = int(math.Round(1000 / (float64(delta) / float64(time.Millisecond))))
			stats.FPSValid = true
		}
	}
	l.prevTick, l.hasPrev = t, true

	var frame image.Image
	if l.source.Ready() && !l.inflight.Load() {
		frame = l.source.Frame()
	}
	if frame == nil {
		if ctx.Err() != nil {
			return
		}
		l.stats = stats
		l.store.Set(l.dets, stats, l.presence.current())
		return
	}

	dets, err := l.infer(ctx, frame)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		l.logInferenceError(err)
		dets = nil
	}

	// Each step below is visible outside the loop; ctx is rechecked before
	// every one so a Stop issued mid-cycle commits nothing further.
	personSeen := models.HasPerson(dets)
	presence, changed := l.presence.observe(t, personSeen)
	if changed {
		if presence.IsPresent {
			l.logger.Infow("person detected", "at", t)
		} else {
			l.logger.Infow("person no longer detected", "last_seen", presence.LastSeenAt)
		}
	}
	if personSeen {
		l.notifier.Notify()
	}

	if ctx.Err() != nil {
		return
	}
	b := frame.Bounds()
	l.renderer.Resize(b.Dx(), b.Dy())
	l.renderer.Render(dets)

	if ctx.Err() != nil {
		return
	}
	stats.ObjectCount = len(dets)
	l.stats = stats
	l.dets = dets
	l.frame = frame

	snap := l.store.Set(dets, stats, presence)
	if l.display == nil || ctx.Err() != nil {
		return
	}
	l.display(frame, overlay.Snapshot(l.renderer.Canvas()), snap)
}

type inferResult struct {
	dets []models.Detection
	err  error
}

// infer runs one Detect call on its own goroutine and waits for it or for
// ctx. An abandoned call keeps inflight set until it returns.
func (l *Loop) infer(ctx context.Context, frame image.Image) ([]models.Detection, error) {
	ictx, cancel := ctx, context.CancelFunc(func() {})
	if l.timeout > 0 {
		ictx, cancel = context.WithTimeout(ctx, l.timeout)
	}
	defer cancel()

	done := make(chan inferResult, 1)
	l.inflight.Store(true)

	go func() {
		var r inferResult
		defer func() {
			if p := recover(); p != nil {
				r = inferResult{err: errors.Errorf("inference panicked: %v", p)}
			}
			l.inflight.Store(false)
			done <- r
		}()
		r.dets, r.err = l.engine.Detect(ictx, frame)
	}()

	select {
	case r := <-done:
		return r.dets, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Loop) logInferenceError(err error) {
	if !l.errLimiter.Allow() {
		l.suppressed.Add(1)
		return
	}
	l.logger.Warnw("inference failed", "error", err, "suppressed", l.suppressed.Swap(0))
}
