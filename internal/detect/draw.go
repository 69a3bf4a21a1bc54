package detect

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	colorFire    = color.RGBA{R: 255, G: 40, B: 0, A: 255}
	colorSmoke   = color.RGBA{R: 170, G: 170, B: 170, A: 255}
	colorDefault = color.RGBA{R: 0, G: 220, B: 90, A: 255}
	colorText    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const thickness = 2

func labelColor(label string) color.RGBA {
	switch strings.ToLower(label) {
	case "fire", "flame":
		return colorFire
	case "smoke":
		return colorSmoke
	default:
		return colorDefault
	}
}

// drawDetections copies src and draws a box and caption for every detection.
// scaleX/scaleY map detection coordinates onto src.
func drawDetections(src image.Image, dets []Detection, scaleX, scaleY float64) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)

	face := basicfont.Face7x13
	for _, d := range dets {
		col := labelColor(d.Label)
		r := image.Rect(
			b.Min.X+int(d.Box[0]*scaleX), b.Min.Y+int(d.Box[1]*scaleY),
			b.Min.X+int(d.Box[2]*scaleX), b.Min.Y+int(d.Box[3]*scaleY),
		).Intersect(b)
		if r.Empty() {
			continue
		}
		outline(dst, r, col)

		text := fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
		w := font.MeasureString(face, text).Ceil() + 4
		h := face.Metrics().Height.Ceil() + 2
		top := r.Min.Y - h
		if top < b.Min.Y {
			top = r.Min.Y
		}
		bg := image.Rect(r.Min.X, top, r.Min.X+w, top+h).Intersect(b)
		draw.Draw(dst, bg, image.NewUniform(col), image.Point{}, draw.Src)

		dr := &font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(colorText),
			Face: face,
			Dot:  fixed.P(bg.Min.X+2, bg.Min.Y+face.Metrics().Ascent.Ceil()+1),
		}
		dr.DrawString(text)
	}
	return dst
}

func outline(dst *image.RGBA, r image.Rectangle, col color.RGBA) {
	u := image.NewUniform(col)
	t := thickness
	if r.Dx() < 2*t || r.Dy() < 2*t {
		t = 1
	}
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e, u, image.Point{}, draw.Src)
	}
}
