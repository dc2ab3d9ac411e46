package overlay

import (
	"image"
	"image/color"
)

type OpKind int

const (
	OpClear OpKind = iota
	OpStrokeRect
	OpFillRect
	OpFillText
)

type Op struct {
	Kind      OpKind
	X, Y      float64
	W, H      float64
	LineWidth float64
	Color     color.Color
	Text      string
}

// Recorder is a Canvas that remembers what was drawn since the last Clear.
// It has no pixels; Image returns a blank image of the current size.
type Recorder struct {
	width, height int
	charWidth     float64

	Ops    []Op
	Clears int
}

func NewRecorder(width, height int) *Recorder {
	return &Recorder{width: width, height: height, charWidth: 8}
}

func (r *Recorder) Size() (int, int) { return r.width, r.height }

func (r *Recorder) Resize(width, height int) {
	r.width, r.height = width, height
}

func (r *Recorder) Clear() {
	r.Clears++
	r.Ops = []Op{{Kind: OpClear}}
}

func (r *Recorder) StrokeRect(x, y, w, h, lineWidth float64, c color.Color) {
	r.Ops = append(r.Ops, Op{Kind: OpStrokeRect, X: x, Y: y, W: w, H: h, LineWidth: lineWidth, Color: c})
}

func (r *Recorder) FillRect(x, y, w, h float64, c color.Color) {
	r.Ops = append(r.Ops, Op{Kind: OpFillRect, X: x, Y: y, W: w, H: h, Color: c})
}

func (r *Recorder) MeasureText(s string) float64 {
	return float64(len(s)) * r.charWidth
}

func (r *Recorder) FillText(s string, x, y float64, c color.Color) {
	r.Ops = append(r.Ops, Op{Kind: OpFillText, X: x, Y: y, Color: c, Text: s})
}

func (r *Recorder) Image() image.Image {
	return image.NewRGBA(image.Rect(0, 0, r.width, r.height))
}

// Count returns the number of recorded ops of the given kind.
func (r *Recorder) Count(kind OpKind) int {
	n := 0
	for _, op := range r.Ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}
