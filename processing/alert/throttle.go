// Package alert turns a stream of person sightings into a bounded rate of
// audible and visible alerts.
package alert

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const (
	DefaultCooldown        = 10 * time.Second
	DefaultDisplayDuration = 2 * time.Second

	playTimeout = 30 * time.Second
)

// AudioNotifier plays the alert sound. Play may block until playback ends.
type AudioNotifier interface {
	Play(ctx context.Context) error
}

type Option func(*Throttle)

func WithClock(c clock.Clock) Option {
	return func(t *Throttle) { t.clock = c }
}

func WithCooldown(d time.Duration) Option {
	return func(t *Throttle) { t.cooldown = d }
}

func WithDisplayDuration(d time.Duration) Option {
	return func(t *Throttle) { t.display = d }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(t *Throttle) { t.logger = l }
}

// WithNotification registers callbacks run when the notification becomes
// visible and when it is dismissed. Both run outside the throttle lock.
func WithNotification(onShow, onHide func()) Option {
	return func(t *Throttle) {
		t.onShow = onShow
		t.onHide = onHide
	}
}

// Throttle is a leading-edge rate limiter: the first Notify fires at once and
// every later call inside the cooldown is dropped.
type Throttle struct {
	audio    AudioNotifier
	clock    clock.Clock
	cooldown time.Duration
	display  time.Duration
	logger   *zap.SugaredLogger
	onShow   func()
	onHide   func()

	mu          sync.Mutex
	fired       bool
	lastFiredAt time.Time
	fireCount   int
	visible     bool
	dismiss     *clock.Timer
	generation  uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewThrottle(audio AudioNotifier, opts ...Option) *Throttle {
	t := &Throttle{
		audio:    audio,
		clock:    clock.New(),
		cooldown: DefaultCooldown,
		display:  DefaultDisplayDuration,
		logger:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	return t
}

// Notify reports a person sighting and returns whether an alert fired.
func (t *Throttle) Notify() bool {
	t.mu.Lock()

	now := t.clock.Now()
	if t.fired && now.Sub(t.lastFiredAt) < t.cooldown {
		t.mu.Unlock()
		return false
	}
	if t.ctx.Err() != nil {
		t.mu.Unlock()
		return false
	}

	t.fired = true
	t.lastFiredAt = now
	t.fireCount++
	t.visible = true
	t.generation++
	gen := t.generation

	if t.dismiss != nil {
		t.dismiss.Stop()
	}
	t.dismiss = t.clock.AfterFunc(t.display, func() { t.hide(gen) })
	if t.audio != nil {
		t.wg.Add(1)
	}
	t.mu.Unlock()

	t.logger.Infow("person alert fired", "at", now, "cooldown", t.cooldown)
	if t.audio != nil {
		go t.playAudio()
	}
	if t.onShow != nil {
		t.onShow()
	}
	return true
}

// playAudio never lets a notifier failure reach the caller; the visible
// notification is shown either way.
func (t *Throttle) playAudio() {
	defer t.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			t.logger.Errorw("audio notifier panicked", "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(t.ctx, playTimeout)
	defer cancel()

	if err := t.audio.Play(ctx); err != nil {
		t.logger.Warnw("alert audio failed", "error", err)
	}
}

func (t *Throttle) hide(gen uint64) {
	t.mu.Lock()
	if gen != t.generation || !t.visible {
		t.mu.Unlock()
		return
	}
	t.visible = false
	t.dismiss = nil
	t.mu.Unlock()

	if t.onHide != nil {
		t.onHide()
	}
}

// Visible reports whether the transient notification is currently shown.
func (t *Throttle) Visible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visible
}

func (t *Throttle) FireCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fireCount
}

// LastFiredAt returns the time of the last alert and false if none fired yet.
func (t *Throttle) LastFiredAt() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastFiredAt, t.fired
}

// Close cancels pending dismissal and in-flight audio and waits for audio
// goroutines to return. Notify is a no-op afterwards.
func (t *Throttle) Close() {
	t.mu.Lock()
	t.cancel()
	if t.dismiss != nil {
		t.dismiss.Stop()
		t.dismiss = nil
	}
	t.visible = false
	t.generation++
	t.mu.Unlock()

	t.wg.Wait()
}
