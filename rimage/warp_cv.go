//go:build withcv

package rimage

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// WarpPerspectiveCV is WarpPerspective backed by OpenCV. It is only built with the withcv tag.
func WarpPerspectiveCV(img image.Image, h mat.Matrix) (image.Image, error) {
	if img == nil {
		return nil, errors.New("cannot warp a nil image")
	}
	var src gocv.Mat
	var err error
	if gray, ok := img.(*image.Gray); ok {
		src, err = gocv.ImageGrayToMatGray(gray)
	} else {
		src, err = gocv.ImageToMatRGB(img)
	}
	if err != nil {
		return nil, errors.Wrap(err, "cannot convert image to mat")
	}
	defer src.Close()

	hMat := toGocv(h)
	defer hMat.Close()

	warped := gocv.NewMatWithSize(src.Rows(), src.Cols(), src.Type())
	defer warped.Close()
	gocv.WarpPerspective(src, &warped, hMat, image.Point{src.Cols(), src.Rows()})

	out, err := warped.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "cannot convert warped mat to image")
	}
	return out, nil
}

func toGocv(input mat.Matrix) gocv.Mat {
	rows, cols := input.Dims()
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV64F)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.SetDoubleAt(r, c, input.At(r, c))
		}
	}
	return m
}
