package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"objwatch/internal/config"
	"objwatch/internal/logging"
	"objwatch/internal/server"
	"objwatch/internal/ui"
	"objwatch/processing/alert"
	"objwatch/processing/detector"
	"objwatch/processing/loop"
	"objwatch/processing/overlay"
	"objwatch/processing/pipeline"
	"objwatch/processing/store"
)

const (
	flagConfig   = "config"
	flagHeadless = "headless"
	flagDebug    = "debug"
	flagHTTP     = "http"
)

var app = &cli.App{
	Name:  "objwatch",
	Usage: "watch a camera for people and raise an alert",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Value:   config.DefaultConfigPath,
			Usage:   "load configuration from `FILE` (.json, .yaml)",
		},
		&cli.BoolFlag{
			Name:  flagHeadless,
			Usage: "run without a window; results are served over HTTP only",
		},
		&cli.BoolFlag{
			Name:  flagDebug,
			Usage: "enable debug logging",
		},
		&cli.StringFlag{
			Name:  flagHTTP,
			Usage: "serve snapshots on `ADDR`; empty string disables the server",
		},
	},
	Action: run,
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type deps struct {
	cfg      *config.Config
	logger   *zap.SugaredLogger
	engine   detector.Engine
	renderer *overlay.Renderer
	audio    alert.AudioNotifier
	store    *store.Store
}

func run(c *cli.Context) error {
	cfg, err := config.LoadConfigFile(c.String(flagConfig))
	if err != nil {
		return err
	}
	if c.Bool(flagDebug) {
		cfg.LogLevel = "debug"
	}
	if c.IsSet(flagHTTP) {
		cfg.HTTPAddr = c.String(flagHTTP)
	}

	logger, err := logging.NewLogger("objwatch", cfg.LogLevel)
	if err != nil {
		return errors.Wrap(err, "create logger")
	}
	defer logger.Sync()

	d, err := buildDeps(cfg, logger)
	if err != nil {
		return err
	}

	if c.Bool(flagHeadless) {
		return runHeadless(c.Context, d)
	}
	return runWindow(c.Context, d)
}

func buildDeps(cfg *config.Config, logger *zap.SugaredLogger) (*deps, error) {
	engine, err := detector.NewEngine(cfg, logger.Named("detector"))
	if err != nil {
		return nil, err
	}

	style, err := overlay.StyleFromHex(cfg.Overlay.PersonColor, cfg.Overlay.OtherColor, cfg.Overlay.FontSize)
	if err != nil {
		return nil, err
	}
	canvas := overlay.NewGGCanvas(cfg.GetWidth(), cfg.GetHeight(), style.FontSize)

	var audio alert.AudioNotifier = alert.Silent{}
	if cfg.Alert.AlarmPath != "" {
		player, err := alert.NewFFPlayNotifier(cfg.Alert.AlarmPath)
		if err != nil {
			logger.Warnw("alarm sound disabled", "error", err)
		} else {
			audio = player
		}
	}

	return &deps{
		cfg:      cfg,
		logger:   logger,
		engine:   engine,
		renderer: overlay.NewRenderer(canvas, style),
		audio:    audio,
		store:    store.New(),
	}, nil
}

func (d *deps) newThrottle(opts ...alert.Option) *alert.Throttle {
	opts = append([]alert.Option{
		alert.WithCooldown(d.cfg.Cooldown()),
		alert.WithDisplayDuration(d.cfg.DisplayDuration()),
		alert.WithLogger(d.logger.Named("alert")),
	}, opts...)
	return alert.NewThrottle(d.audio, opts...)
}

func (d *deps) close(p *pipeline.Pipeline) error {
	err := p.Close()
	if c, ok := d.audio.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	return err
}

func runHeadless(parent context.Context, d *deps) (err error) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(d.cfg, d.engine, d.renderer, d.newThrottle(), d.store, d.logger)
	defer func() { err = multierr.Append(err, d.close(p)) }()

	if err := p.PrepareEngine(ctx); err != nil {
		d.logger.Warnw("detection model not ready, retrying on first frame", "error", err)
	}
	if err := p.Start(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if d.cfg.HTTPAddr != "" {
		srv := server.New(d.store, p.Status, d.logger.Named("http"))
		g.Go(func() error {
			return srv.Run(ctx, d.cfg.HTTPAddr)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		p.Stop()
		return nil
	})

	return g.Wait()
}

func runWindow(parent context.Context, d *deps) (err error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	window := ui.CreateApp(d.cfg, d.logger.Named("ui"))
	throttle := d.newThrottle(alert.WithNotification(window.ShowAlert, window.HideAlert))
	p := pipeline.New(d.cfg, d.engine, d.renderer, throttle, d.store, d.logger, loop.WithDisplay(window.Display))
	defer func() { err = multierr.Append(err, d.close(p)) }()

	if d.cfg.HTTPAddr != "" {
		srv := server.New(d.store, p.Status, d.logger.Named("http"))
		go func() {
			if err := srv.Run(ctx, d.cfg.HTTPAddr); err != nil {
				d.logger.Warnw("http server stopped", "error", err)
			}
		}()
	}

	window.Run(p)
	return nil
}
