//go:build withcv

package keypoints

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"go.viam.com/visualalign/rimage"
	"go.viam.com/visualalign/utils"
)

// AKAZEDetector computes OpenCV AKAZE keypoints and their binary descriptors. It is only built with
// the withcv tag. The underlying OpenCV object is not safe for concurrent use, so one is created per
// call.
type AKAZEDetector struct{}

// NewAKAZEDetector returns an AKAZE detector with OpenCV's default parameters.
func NewAKAZEDetector() *AKAZEDetector {
	return &AKAZEDetector{}
}

// Detect runs AKAZE over the full image.
func (d *AKAZEDetector) Detect(img image.Image) (*KeypointSet, error) {
	if img == nil {
		return nil, errors.New("cannot detect keypoints in a nil image")
	}
	src, err := gocv.ImageGrayToMatGray(rimage.MakeGray(img))
	if err != nil {
		return nil, errors.Wrap(err, "cannot convert image to mat")
	}
	defer src.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	akaze := gocv.NewAKAZE()
	defer akaze.Close()
	kps, desc := akaze.DetectAndCompute(src, mask)
	defer desc.Close()

	out := &KeypointSet{
		Points:       make([]r2.Point, len(kps)),
		Orientations: make([]float64, len(kps)),
		Descriptors:  make([]Descriptor, len(kps)),
	}
	if len(kps) == 0 {
		return out, nil
	}
	if desc.Rows() != len(kps) {
		return nil, errors.Errorf("got %d descriptors for %d keypoints", desc.Rows(), len(kps))
	}
	numBytes := desc.Cols()
	for i, kp := range kps {
		out.Points[i] = r2.Point{X: kp.X, Y: kp.Y}
		out.Orientations[i] = utils.DegToRad(kp.Angle)
		out.Descriptors[i] = packDescriptorRow(desc, i, numBytes)
	}
	return out, nil
}

// packDescriptorRow packs one row of an 8 bit descriptor mat into 64 bit words, little endian,
// zero padding the last word.
func packDescriptorRow(desc gocv.Mat, row, numBytes int) Descriptor {
	words := make(Descriptor, (numBytes+7)/8)
	for b := 0; b < numBytes; b++ {
		words[b/8] |= uint64(desc.GetUCharAt(row, b)) << (8 * (b % 8))
	}
	return words
}
