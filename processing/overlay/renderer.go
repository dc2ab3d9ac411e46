// Package overlay draws detection boxes and labels on a transparent surface
// laid over the video frame.
package overlay

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"

	"objwatch/internal/models"
)

type Style struct {
	PersonColor color.Color
	OtherColor  color.Color
	PersonFill  color.Color
	OtherFill   color.Color
	TextColor   color.Color
	LineWidth   float64
	FontSize    float64
}

func DefaultStyle() Style {
	return Style{
		PersonColor: color.RGBA{R: 0xff, A: 0xff},
		OtherColor:  color.RGBA{G: 0xff, B: 0xff, A: 0xff},
		PersonFill:  color.NRGBA{R: 0xff, A: 51},
		OtherFill:   color.Transparent,
		TextColor:   color.Black,
		LineWidth:   4,
		FontSize:    16,
	}
}

// StyleFromHex builds the default style with the class colours replaced by
// hex strings such as "#FF0000". Empty strings keep the default.
func StyleFromHex(person, other string, fontSize float64) (Style, error) {
	s := DefaultStyle()
	if fontSize > 0 {
		s.FontSize = fontSize
	}

	var err error
	if person != "" {
		if s.PersonColor, err = parseHex(person); err != nil {
			return s, errors.Wrap(err, "person color")
		}
	}
	if other != "" {
		if s.OtherColor, err = parseHex(other); err != nil {
			return s, errors.Wrap(err, "other color")
		}
	}
	return s, nil
}

func parseHex(s string) (color.Color, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return nil, err
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}, nil
}

// Renderer has no state of its own beyond the canvas it paints.
type Renderer struct {
	canvas Canvas
	style  Style
}

func NewRenderer(canvas Canvas, style Style) *Renderer {
	return &Renderer{canvas: canvas, style: style}
}

func (r *Renderer) Canvas() Canvas {
	return r.canvas
}

// Resize matches the surface to the frame size. It is a no-op when the size
// is unchanged.
func (r *Renderer) Resize(width, height int) {
	if w, h := r.canvas.Size(); w == width && h == height {
		return
	}
	r.canvas.Resize(width, height)
}

// Render clears the surface and draws dets in order, later ones on top.
// It returns the number of boxes drawn.
func (r *Renderer) Render(dets []models.Detection) int {
	r.canvas.Clear()

	for _, d := range dets {
		r.drawDetection(d)
	}
	return len(dets)
}

func (r *Renderer) drawDetection(d models.Detection) {
	stroke, fill := r.style.OtherColor, r.style.OtherFill
	if d.IsPerson() {
		stroke, fill = r.style.PersonColor, r.style.PersonFill
	}

	b := d.BBox
	r.canvas.StrokeRect(b.X, b.Y, b.Width, b.Height, r.style.LineWidth, stroke)
	r.canvas.FillRect(b.X, b.Y, b.Width, b.Height, fill)

	text := d.Label()
	textWidth := r.canvas.MeasureText(text)
	r.canvas.FillRect(b.X, b.Y, textWidth+4, r.style.FontSize+4, stroke)
	r.canvas.FillText(text, b.X+2, b.Y+2, r.style.TextColor)
}
