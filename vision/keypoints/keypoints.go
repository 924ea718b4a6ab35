// Package keypoints contains the feature pipeline used for alignment. For now:
// - FAST keypoints with non-maximum suppression
// - steered BRIEF descriptors
// - ORB over an image pyramid
// - brute-force Hamming matching with a ratio test
package keypoints

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
)

// Descriptor is a binary descriptor packed in 64 bit words.
type Descriptor []uint64

// KeypointSet holds keypoint locations and, at the same index, their orientation and descriptor.
// Locations are pixel coordinates in the full resolution image.
type KeypointSet struct {
	Points       []r2.Point
	Orientations []float64
	Descriptors  []Descriptor
}

// Len returns the number of keypoints.
func (kps *KeypointSet) Len() int {
	if kps == nil {
		return 0
	}
	return len(kps.Points)
}

// Detector extracts keypoints and descriptors from an image. Implementations must be safe for
// concurrent use and deterministic for a given image.
type Detector interface {
	Detect(img image.Image) (*KeypointSet, error)
}

// orientationRadius is the radius of the disc used for the intensity centroid.
const orientationRadius = 15

// orientationRowHalfWidths holds, per row offset of the disc, the half width of that row.
var orientationRowHalfWidths = []int{15, 15, 15, 15, 14, 14, 14, 13, 13, 12, 11, 10, 9, 8, 6, 3}

// computeKeypointsOrientations returns the intensity centroid angle of each keypoint. Keypoints are
// expected to be at least orientationRadius pixels away from the border.
func computeKeypointsOrientations(img *image.Gray, kps []image.Point) []float64 {
	orientations := make([]float64, len(kps))
	for i, kp := range kps {
		m01, m10 := 0, 0
		for dy := -orientationRadius; dy <= orientationRadius; dy++ {
			halfWidth := orientationRowHalfWidths[absInt(dy)]
			row := (kp.Y+dy)*img.Stride + kp.X
			m01Temp := 0
			for dx := -halfWidth; dx <= halfWidth; dx++ {
				pixVal := int(img.Pix[row+dx])
				m10 += pixVal * dx
				m01Temp += pixVal
			}
			m01 += m01Temp * dy
		}
		orientations[i] = math.Atan2(float64(m01), float64(m10))
	}
	return orientations
}

// RescaleKeypoints maps keypoints found on a pyramid level back to full resolution coordinates.
func RescaleKeypoints(kps []image.Point, scale float64) []r2.Point {
	out := make([]r2.Point, len(kps))
	for i, kp := range kps {
		out[i] = r2.Point{X: float64(kp.X) * scale, Y: float64(kp.Y) * scale}
	}
	return out
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
