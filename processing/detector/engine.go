// Package detector runs object detection models against single frames.
package detector

import (
	"context"
	"image"

	"objwatch/internal/models"
)

// Engine is an opaque object detection model. Detect must be safe to call
// from a goroutine other than the one that created the engine; calls are
// never issued concurrently by the loop.
type Engine interface {
	Detect(ctx context.Context, frame image.Image) ([]models.Detection, error)
}

type EngineFunc func(ctx context.Context, frame image.Image) ([]models.Detection, error)

func (f EngineFunc) Detect(ctx context.Context, frame image.Image) ([]models.Detection, error) {
	return f(ctx, frame)
}

// Preparer is implemented by engines that have an expensive setup step
// (dialing a server, loading weights) which can be done ahead of the first
// frame.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Prepare calls e.Prepare when e implements Preparer.
func Prepare(ctx context.Context, e Engine) error {
	if p, ok := e.(Preparer); ok {
		return p.Prepare(ctx)
	}
	return nil
}

type scoreFilter struct {
	next     Engine
	minScore func() float64
}

// FilterScore drops detections scoring below minScore(). minScore is read
// on every call so it can follow a live setting.
func FilterScore(next Engine, minScore func() float64) Engine {
	return &scoreFilter{next: next, minScore: minScore}
}

func (f *scoreFilter) Detect(ctx context.Context, frame image.Image) ([]models.Detection, error) {
	dets, err := f.next.Detect(ctx, frame)
	if err != nil {
		return nil, err
	}

	threshold := f.minScore()
	kept := dets[:0:0]
	for _, d := range dets {
		if d.Score >= threshold {
			kept = append(kept, d)
		}
	}
	return kept, nil
}

func (f *scoreFilter) Prepare(ctx context.Context) error {
	return Prepare(ctx, f.next)
}

func (f *scoreFilter) Close() error {
	return Close(f.next)
}
