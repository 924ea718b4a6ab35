package keypoints

import (
	"image"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/visualalign/rimage"
)

// SamplingType stores 0 if a sampling of image points for BRIEF is uniform, 1 if gaussian.
type SamplingType int

const (
	uniform SamplingType = iota // 0
	normal                      // 1
)

// briefBlurSigma is the gaussian smoothing applied before comparing pixel pairs.
const briefBlurSigma = 2.

// SamplePairs are N pairs of points used to create the BRIEF Descriptors of a patch.
type SamplePairs struct {
	P0 []image.Point
	P1 []image.Point
	N  int
}

// GenerateSamplePairs generates n sample pairs inside a square patch with the chosen sampling type.
// The pairs only depend on seed.
func GenerateSamplePairs(dist SamplingType, n, patchSize int, seed int64) *SamplePairs {
	rng := rand.New(rand.NewSource(seed))
	half := patchSize / 2
	sample := func() int {
		if dist == normal {
			// isotropic gaussian with sigma^2 = patchSize^2 / 25
			v := int(math.Round(rng.NormFloat64() * float64(patchSize) / 5))
			if v < -half {
				return -half
			}
			if v > half {
				return half
			}
			return v
		}
		return rng.Intn(2*half+1) - half
	}
	p0 := make([]image.Point, 0, n)
	p1 := make([]image.Point, 0, n)
	for i := 0; i < n; i++ {
		p0 = append(p0, image.Point{X: sample(), Y: sample()})
		p1 = append(p1, image.Point{X: sample(), Y: sample()})
	}
	return &SamplePairs{P0: p0, P1: p1, N: n}
}

// BRIEFConfig stores the parameters.
type BRIEFConfig struct {
	N              int          `json:"n"` // number of samples taken
	Sampling       SamplingType `json:"sampling"`
	UseOrientation bool         `json:"use_orientation"`
	PatchSize      int          `json:"patch_size"`
	Seed           int64        `json:"seed"`
}

// DefaultBRIEFConfig returns 256 bit steered BRIEF on a 31 pixel patch.
func DefaultBRIEFConfig() *BRIEFConfig {
	return &BRIEFConfig{
		N:              256,
		Sampling:       normal,
		UseOrientation: true,
		PatchSize:      31,
		Seed:           0,
	}
}

// Validate ensures all parts of the BRIEFConfig are valid.
func (config *BRIEFConfig) Validate(path string) error {
	if config.N <= 0 || config.N%64 != 0 {
		return utils.NewConfigValidationError(path, errors.New("n should be a positive multiple of 64"))
	}
	if config.Sampling != uniform && config.Sampling != normal {
		return utils.NewConfigValidationError(path, errors.Errorf("unknown sampling type %d", config.Sampling))
	}
	if config.PatchSize < 5 {
		return utils.NewConfigValidationError(path, errors.New("patch_size should be >= 5"))
	}
	return nil
}

// patchBorder is the distance to the image border a keypoint needs so that its rotated sample
// pairs and its orientation disc stay inside the image.
func (config *BRIEFConfig) patchBorder() int {
	border := int(math.Ceil(float64(config.PatchSize/2)*math.Sqrt2)) + 1
	if border < orientationRadius+1 {
		border = orientationRadius + 1
	}
	return border
}

// ComputeBRIEFDescriptors computes BRIEF descriptors on image img at keypoints kps. Orientations may
// be nil. keep[i] is false when the rotated pattern of keypoint i leaves the image; its descriptor
// is then nil.
func ComputeBRIEFDescriptors(
	img *image.Gray,
	sp *SamplePairs,
	kps []image.Point,
	orientations []float64,
	cfg *BRIEFConfig,
) ([]Descriptor, []bool, error) {
	if sp.N%64 != 0 {
		return nil, nil, errors.Errorf("number of sample pairs should be a multiple of 64, got %d", sp.N)
	}
	if orientations != nil && len(orientations) != len(kps) {
		return nil, nil, errors.Errorf("got %d orientations for %d keypoints", len(orientations), len(kps))
	}
	blurred := rimage.BlurGray(img, briefBlurSigma)
	bnd := blurred.Bounds()

	descs := make([]Descriptor, len(kps))
	keep := make([]bool, len(kps))
	for k, kp := range kps {
		cosTheta := 1.0
		sinTheta := 0.0
		// if use orientation and keypoints are oriented, compute rotation matrix
		if cfg.UseOrientation && orientations != nil {
			cosTheta = math.Cos(orientations[k])
			sinTheta = math.Sin(orientations[k])
		}
		// Divide by 64 since we store a descriptor as a uint64 array.
		descriptor := make(Descriptor, sp.N/64)
		inside := true
		for i := 0; i < sp.N && inside; i++ {
			x0, y0 := float64(sp.P0[i].X), float64(sp.P0[i].Y)
			x1, y1 := float64(sp.P1[i].X), float64(sp.P1[i].Y)
			q0 := image.Point{
				X: kp.X + int(math.Round(cosTheta*x0-sinTheta*y0)),
				Y: kp.Y + int(math.Round(sinTheta*x0+cosTheta*y0)),
			}
			q1 := image.Point{
				X: kp.X + int(math.Round(cosTheta*x1-sinTheta*y1)),
				Y: kp.Y + int(math.Round(sinTheta*x1+cosTheta*y1)),
			}
			if !q0.In(bnd) || !q1.In(bnd) {
				inside = false
				break
			}
			if blurred.GrayAt(q0.X, q0.Y).Y > blurred.GrayAt(q1.X, q1.Y).Y {
				// This flips the bit at i%64 of word i/64 to 1.
				descriptor[i/64] |= 1 << (i % 64)
			}
		}
		if inside {
			descs[k] = descriptor
			keep[k] = true
		}
	}
	return descs, keep, nil
}
