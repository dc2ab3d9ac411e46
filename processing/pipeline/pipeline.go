// Package pipeline wires a capture source, an engine and the detection loop
// together and restarts them when the source settings change.
package pipeline

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"objwatch/internal/config"
	"objwatch/internal/server"
	"objwatch/processing/alert"
	"objwatch/processing/capture"
	"objwatch/processing/detector"
	"objwatch/processing/loop"
	"objwatch/processing/overlay"
	"objwatch/processing/store"
)

type StreamerFactory func(cfg *config.Config) (capture.VideoStreamer, error)

type Pipeline struct {
	cfg      *config.Config
	logger   *zap.SugaredLogger
	engine   detector.Engine
	renderer *overlay.Renderer
	throttle *alert.Throttle
	store    *store.Store
	loopOpts []loop.Option

	NewStreamer StreamerFactory

	mu     sync.Mutex
	source *capture.Source
	loop   *loop.Loop
}

// New does not start anything. loopOpts are applied after the options
// derived from cfg.
func New(cfg *config.Config, engine detector.Engine, renderer *overlay.Renderer, throttle *alert.Throttle, st *store.Store, logger *zap.SugaredLogger, loopOpts ...loop.Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Pipeline{
		cfg:         cfg,
		logger:      logger,
		engine:      engine,
		renderer:    renderer,
		throttle:    throttle,
		store:       st,
		loopOpts:    loopOpts,
		NewStreamer: capture.NewStreamer,
	}
}

func (p *Pipeline) Store() *store.Store {
	return p.store
}

func (p *Pipeline) Throttle() *alert.Throttle {
	return p.throttle
}

// PrepareEngine runs the engine's setup step, e.g. the first dial of a
// remote detector.
func (p *Pipeline) PrepareEngine(ctx context.Context) error {
	return detector.Prepare(ctx, p.engine)
}

// Start (re)opens the configured source and starts the loop. A running
// pipeline is stopped first.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.stopLocked(); err != nil {
		p.logger.Warnw("closing previous source", "error", err)
	}

	streamer, err := p.NewStreamer(p.cfg)
	if err != nil {
		return errors.Wrap(err, "create streamer")
	}
	if err := streamer.Start(); err != nil {
		return errors.Wrap(err, "start streamer")
	}

	p.source = capture.NewSource(streamer, p.logger.Named("capture"))

	opts := []loop.Option{
		loop.WithRefreshInterval(p.cfg.RefreshInterval()),
		loop.WithGrace(p.cfg.Grace()),
		loop.WithLogger(p.logger.Named("loop")),
	}
	opts = append(opts, p.loopOpts...)

	p.loop = loop.New(p.source, p.engine, p.renderer, p.throttle, p.store, opts...)
	p.loop.Start()

	p.logger.Infow("pipeline started", "source", p.cfg.ActiveSource)
	return nil
}

func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.stopLocked(); err != nil {
		p.logger.Warnw("closing source", "error", err)
	}
}

func (p *Pipeline) stopLocked() error {
	if p.loop != nil {
		p.loop.Stop()
		p.loop = nil
	}
	if p.source == nil {
		return nil
	}
	err := p.source.Close()
	p.source = nil
	return errors.Wrap(err, "close source")
}

func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loop != nil && p.loop.Running()
}

func (p *Pipeline) Status() server.Status {
	p.mu.Lock()
	running := p.loop != nil && p.loop.Running()
	ready := p.source != nil && p.source.Ready()
	p.mu.Unlock()

	st := server.Status{
		Running:      running,
		SourceReady:  ready,
		AlertVisible: p.throttle.Visible(),
		AlertsFired:  p.throttle.FireCount(),
	}
	if at, ok := p.throttle.LastFiredAt(); ok {
		st.LastAlertAt = at
	}
	return st
}

// Close stops the pipeline and releases the engine and the throttle.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	err := p.stopLocked()
	p.mu.Unlock()

	p.throttle.Close()
	return multierr.Append(err, errors.Wrap(detector.Close(p.engine), "close engine"))
}
