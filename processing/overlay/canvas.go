package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

// Canvas is the 2D drawing surface the renderer paints on.
type Canvas interface {
	Size() (width, height int)
	Resize(width, height int)
	Clear()
	StrokeRect(x, y, w, h, lineWidth float64, c color.Color)
	FillRect(x, y, w, h float64, c color.Color)
	MeasureText(s string) float64
	// FillText draws s with its top-left corner at (x, y).
	FillText(s string, x, y float64, c color.Color)
	Image() image.Image
}

var (
	fontOnce sync.Once
	labelFnt *truetype.Font
)

func labelFont() *truetype.Font {
	fontOnce.Do(func() {
		var err error
		labelFnt, err = truetype.Parse(goregular.TTF)
		if err != nil {
			panic(err)
		}
	})
	return labelFnt
}

// GGCanvas draws on an RGBA image through fogleman/gg.
type GGCanvas struct {
	dc       *gg.Context
	fontSize float64
}

func NewGGCanvas(width, height int, fontSize float64) *GGCanvas {
	c := &GGCanvas{fontSize: fontSize}
	c.Resize(width, height)
	return c
}

func (c *GGCanvas) Size() (int, int) {
	return c.dc.Width(), c.dc.Height()
}

func (c *GGCanvas) Resize(width, height int) {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	if c.dc != nil && c.dc.Width() == width && c.dc.Height() == height {
		return
	}
	c.dc = gg.NewContext(width, height)
	c.dc.SetFontFace(truetype.NewFace(labelFont(), &truetype.Options{Size: c.fontSize}))
}

func (c *GGCanvas) Clear() {
	c.dc.SetColor(color.Transparent)
	c.dc.Clear()
}

func (c *GGCanvas) StrokeRect(x, y, w, h, lineWidth float64, col color.Color) {
	c.dc.DrawRectangle(x, y, w, h)
	c.dc.SetLineWidth(lineWidth)
	c.dc.SetColor(col)
	c.dc.Stroke()
}

func (c *GGCanvas) FillRect(x, y, w, h float64, col color.Color) {
	c.dc.DrawRectangle(x, y, w, h)
	c.dc.SetColor(col)
	c.dc.Fill()
}

func (c *GGCanvas) MeasureText(s string) float64 {
	w, _ := c.dc.MeasureString(s)
	return w
}

func (c *GGCanvas) FillText(s string, x, y float64, col color.Color) {
	c.dc.SetColor(col)
	c.dc.DrawStringAnchored(s, x, y, 0, 1)
}

func (c *GGCanvas) Image() image.Image {
	return c.dc.Image()
}

// Snapshot copies the canvas pixels so the caller can keep them after the
// next draw.
func Snapshot(c Canvas) *image.RGBA {
	src := c.Image()
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}
