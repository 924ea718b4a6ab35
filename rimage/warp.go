package rimage

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/visualalign/utils"
)

// WarpPerspective resamples img through the 3x3 homography h, so that the output pixel p takes the
// value of the input at h^-1 p. The output has the same size as the input and samples falling
// outside the input are left at zero. Gray inputs produce *image.Gray, all others *image.NRGBA.
func WarpPerspective(img image.Image, h mat.Matrix) (image.Image, error) {
	if img == nil {
		return nil, errors.New("cannot warp a nil image")
	}
	if r, c := h.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("homography must be 3x3, got %dx%d", r, c)
	}
	var inv mat.Dense
	if err := inv.Inverse(h); err != nil {
		return nil, errors.Wrap(err, "homography is not invertible")
	}
	invAt := [9]float64{}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			invAt[3*i+j] = inv.At(i, j)
		}
	}
	mapBack := func(x, y int) (float64, float64, bool) {
		fx, fy := float64(x), float64(y)
		w := invAt[6]*fx + invAt[7]*fy + invAt[8]
		if math.Abs(w) < 1e-12 {
			return 0, 0, false
		}
		return (invAt[0]*fx + invAt[1]*fy + invAt[2]) / w, (invAt[3]*fx + invAt[4]*fy + invAt[5]) / w, true
	}

	size := image.Point{img.Bounds().Dx(), img.Bounds().Dy()}
	if gray, ok := img.(*image.Gray); ok {
		src := gray
		if gray.Bounds().Min != (image.Point{}) {
			src = MakeGray(gray)
		}
		out := image.NewGray(image.Rect(0, 0, size.X, size.Y))
		utils.ParallelForEachPixel(size, func(x, y int) {
			sx, sy, ok := mapBack(x, y)
			if !ok {
				return
			}
			if v, ok := BilinearGray(src, sx, sy); ok {
				out.Pix[y*out.Stride+x] = clampUint8(v)
			}
		})
		return out, nil
	}

	src := imaging.Clone(img)
	out := image.NewNRGBA(image.Rect(0, 0, size.X, size.Y))
	utils.ParallelForEachPixel(size, func(x, y int) {
		sx, sy, ok := mapBack(x, y)
		if !ok {
			return
		}
		if px, ok := bilinearNRGBA(src, sx, sy); ok {
			copy(out.Pix[y*out.Stride+4*x:], px[:])
		}
	})
	return out, nil
}

func bilinearNRGBA(img *image.NRGBA, x, y float64) ([4]uint8, bool) {
	var px [4]uint8
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	x, okX := snapToRange(x, w-1)
	y, okY := snapToRange(y, h-1)
	if !okX || !okY {
		return px, false
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
	for ch := 0; ch < 4; ch++ {
		at := func(px, py int) float64 {
			return float64(img.Pix[py*img.Stride+4*px+ch])
		}
		top := at(x0, y0)*(1-fx) + at(x1, y0)*fx
		bottom := at(x0, y1)*(1-fx) + at(x1, y1)*fx
		px[ch] = clampUint8(top*(1-fy) + bottom*fy)
	}
	return px, true
}
