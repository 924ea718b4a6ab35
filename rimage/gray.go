// Package rimage holds the image operations used by the alignment pipeline:
// grayscale conversion, smoothing, resampling, perspective warping and debug drawing.
package rimage

import (
	"image"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
)

// MakeGray converts any image into a new image.Gray whose bounds start at the origin.
// The input is never modified.
func MakeGray(pic image.Image) *image.Gray {
	b := pic.Bounds()
	result := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(result, result.Bounds(), pic, b.Min, draw.Src)
	return result
}

// nrgbaToGray keeps the red channel of an NRGBA that holds gray values.
func nrgbaToGray(img *image.NRGBA) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		srcRow := img.Pix[y*img.Stride : y*img.Stride+4*b.Dx()]
		dstRow := out.Pix[y*out.Stride : y*out.Stride+b.Dx()]
		for x := range dstRow {
			dstRow[x] = srcRow[4*x]
		}
	}
	return out
}

// BlurGray returns a gaussian-blurred copy of a gray image. A non-positive sigma returns a plain copy.
func BlurGray(img *image.Gray, sigma float64) *image.Gray {
	if sigma <= 0 {
		return MakeGray(img)
	}
	return nrgbaToGray(imaging.Blur(img, sigma))
}

// ResizeGray resizes a gray image to width x height with a linear filter.
func ResizeGray(img *image.Gray, width, height int) *image.Gray {
	return nrgbaToGray(imaging.Resize(img, width, height, imaging.Linear))
}

// Downsample shrinks an image by factor in each dimension. Factors <= 1 return the input unchanged.
// Gray inputs stay gray; anything else comes back as *image.NRGBA.
func Downsample(img image.Image, factor float64) image.Image {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	w := int(math.Round(float64(b.Dx()) / factor))
	h := int(math.Round(float64(b.Dy()) / factor))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	rect := image.Rect(0, 0, w, h)
	if _, ok := img.(*image.Gray); ok {
		dst := image.NewGray(rect)
		xdraw.ApproxBiLinear.Scale(dst, rect, img, b, xdraw.Src, nil)
		return dst
	}
	dst := image.NewNRGBA(rect)
	xdraw.ApproxBiLinear.Scale(dst, rect, img, b, xdraw.Src, nil)
	return dst
}

// BilinearGray samples a gray image at a real-valued position, pixel centers being at integer
// coordinates relative to the image origin. ok is false outside [0, w-1] x [0, h-1].
func BilinearGray(img *image.Gray, x, y float64) (float64, bool) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	x, okX := snapToRange(x, w-1)
	y, okY := snapToRange(y, h-1)
	if !okX || !okY {
		return 0, false
	}
	x0, y0 := int(x), int(y)
	x1, y1 := x0+1, y0+1
	if x1 > w-1 {
		x1 = w - 1
	}
	if y1 > h-1 {
		y1 = h - 1
	}
	fx, fy := x-float64(x0), y-float64(y0)
	at := func(px, py int) float64 {
		return float64(img.Pix[py*img.Stride+px])
	}
	top := at(x0, y0)*(1-fx) + at(x1, y0)*fx
	bottom := at(x0, y1)*(1-fx) + at(x1, y1)*fx
	return top*(1-fy) + bottom*fy, true
}

// sampleEpsilon absorbs floating point noise on coordinates that should land exactly on the border.
const sampleEpsilon = 1e-6

// snapToRange clamps v into [0, maxV], rejecting values further than sampleEpsilon outside of it.
func snapToRange(v float64, maxV int) (float64, bool) {
	if math.IsNaN(v) || v < -sampleEpsilon || v > float64(maxV)+sampleEpsilon {
		return 0, false
	}
	if v < 0 {
		return 0, true
	}
	if v > float64(maxV) {
		return float64(maxV), true
	}
	return v, true
}

// clampUint8 rounds and clamps a float to a byte.
func clampUint8(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
