package rimage

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/golang/geo/r2"
	"golang.org/x/image/font/gofont/goregular"
)

var font *truetype.Font

// init sets up the fonts we want to use.
func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Font returns the font we use for drawing.
func Font() *truetype.Font {
	return font
}

// DrawString writes a string to the given context at a particular point.
func DrawString(dc *gg.Context, text string, p image.Point, c color.Color, size float64) {
	dc.SetFontFace(truetype.NewFace(Font(), &truetype.Options{Size: size}))
	dc.SetColor(c)
	dc.DrawStringWrapped(text, float64(p.X), float64(p.Y), 0, 0, float64(dc.Width()), 1, 0)
}

// PlotKeypoints draws the keypoints as small circles over a copy of img.
func PlotKeypoints(img image.Image, kps []r2.Point) image.Image {
	b := img.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.DrawImage(img, -b.Min.X, -b.Min.Y)

	dc.SetRGBA(0, 0, 1, 0.5)
	for _, p := range kps {
		dc.DrawCircle(p.X, p.Y, 3.0)
		dc.Fill()
	}
	return dc.Image()
}

// PlotMatchedLines places img1 and img2 side by side and joins each pts1[i] to pts2[i] with a line.
// The label, if any, is written in the top left corner.
func PlotMatchedLines(img1, img2 image.Image, pts1, pts2 []r2.Point, label string) image.Image {
	b1, b2 := img1.Bounds(), img2.Bounds()
	w := b1.Dx() + b2.Dx()
	h := b1.Dy()
	if b2.Dy() > h {
		h = b2.Dy()
	}
	dc := gg.NewContext(w, h)
	dc.SetColor(color.Black)
	dc.Clear()
	dc.DrawImage(img1, -b1.Min.X, -b1.Min.Y)
	dc.DrawImage(img2, b1.Dx()-b2.Min.X, -b2.Min.Y)

	offset := float64(b1.Dx())
	n := len(pts1)
	if len(pts2) < n {
		n = len(pts2)
	}
	dc.SetLineWidth(1)
	for i := 0; i < n; i++ {
		dc.SetRGBA(0, 1, 0, 0.8)
		dc.DrawLine(pts1[i].X, pts1[i].Y, pts2[i].X+offset, pts2[i].Y)
		dc.Stroke()
		dc.SetRGBA(1, 0, 0, 0.8)
		dc.DrawCircle(pts1[i].X, pts1[i].Y, 2)
		dc.DrawCircle(pts2[i].X+offset, pts2[i].Y, 2)
		dc.Fill()
	}
	if label != "" {
		DrawString(dc, label, image.Point{5, 5}, color.RGBA{255, 255, 0, 255}, 14)
	}
	return dc.Image()
}
