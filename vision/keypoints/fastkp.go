package keypoints

import (
	"image"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/floats"
)

// FASTConfig holds the parameters of the FAST corner detector.
type FASTConfig struct {
	// Threshold is the minimum intensity difference to the center, as a fraction of 255.
	Threshold      float64 `json:"threshold"`
	NMatchesCircle int     `json:"n_matches"`
	NMSWinSize     int     `json:"nms_win_size"`
}

// DefaultFASTConfig returns FAST-9 with a 20 gray level threshold.
func DefaultFASTConfig() *FASTConfig {
	return &FASTConfig{
		Threshold:      20. / 255.,
		NMatchesCircle: 9,
		NMSWinSize:     7,
	}
}

// Validate ensures all parts of the FASTConfig are valid.
func (config *FASTConfig) Validate(path string) error {
	if config.Threshold <= 0 || config.Threshold >= 1 {
		return utils.NewConfigValidationError(path, errors.New("threshold should be in (0, 1)"))
	}
	if config.NMatchesCircle < 1 || config.NMatchesCircle > len(CircleIdx) {
		return utils.NewConfigValidationError(path, errors.Errorf("n_matches should be in [1, %d]", len(CircleIdx)))
	}
	if config.NMSWinSize < 1 {
		return utils.NewConfigValidationError(path, errors.New("nms_win_size should be >= 1"))
	}
	return nil
}

// CircleIdx is the Bresenham circle of radius 3 around a candidate, clockwise from the top.
var CircleIdx = []image.Point{
	{0, -3}, {1, -3}, {2, -2}, {3, -1},
	{3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
	{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// fastRadius is the radius of CircleIdx.
const fastRadius = 3

// fastScore returns the corner score of the pixel at (x, y), 0 if it is not a corner. The score is
// the larger of the summed excess brightness or darkness over the circle.
func fastScore(img *image.Gray, x, y, threshold, nMatches int) int {
	center := int(img.Pix[y*img.Stride+x])
	var brighter, darker [16]bool
	brightSum, darkSum := 0, 0
	for i, off := range CircleIdx {
		v := int(img.Pix[(y+off.Y)*img.Stride+x+off.X])
		switch {
		case v > center+threshold:
			brighter[i] = true
			brightSum += v - center - threshold
		case v < center-threshold:
			darker[i] = true
			darkSum += center - threshold - v
		}
	}
	score := 0
	if hasContiguousRun(brighter[:], nMatches) {
		score = brightSum
	}
	if hasContiguousRun(darker[:], nMatches) && darkSum > score {
		score = darkSum
	}
	return score
}

// hasContiguousRun reports whether the circular slice holds n consecutive true values.
func hasContiguousRun(vals []bool, n int) bool {
	run := 0
	for i := 0; i < 2*len(vals); i++ {
		if vals[i%len(vals)] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

// DetectFAST returns the FAST corners of img that are at least border pixels away from the image
// edges, after non-maximum suppression, together with their scores. At most maxFeatures of the
// strongest corners are kept when maxFeatures is positive. Output is in raster order.
func DetectFAST(img *image.Gray, cfg *FASTConfig, border, maxFeatures int) ([]image.Point, []int) {
	if border < fastRadius {
		border = fastRadius
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 2*border || h <= 2*border {
		return nil, nil
	}
	threshold := int(cfg.Threshold*255 + 0.5)
	scores := make([]int, w*h)
	candidates := make([]image.Point, 0)
	for y := border; y < h-border; y++ {
		for x := border; x < w-border; x++ {
			if s := fastScore(img, x, y, threshold, cfg.NMatchesCircle); s > 0 {
				scores[y*w+x] = s
				candidates = append(candidates, image.Point{x, y})
			}
		}
	}

	half := cfg.NMSWinSize / 2
	kps := make([]image.Point, 0, len(candidates))
	kpScores := make([]int, 0, len(candidates))
	for _, c := range candidates {
		s := scores[c.Y*w+c.X]
		if isLocalMax(scores, w, h, c, s, half) {
			kps = append(kps, c)
			kpScores = append(kpScores, s)
		}
	}
	if maxFeatures <= 0 || len(kps) <= maxFeatures {
		return kps, kpScores
	}
	return strongestKeypoints(kps, kpScores, maxFeatures)
}

// isLocalMax reports whether no neighbor in the window beats s. Ties go to the earliest pixel in
// raster order so exactly one of a plateau survives.
func isLocalMax(scores []int, w, h int, c image.Point, s, half int) bool {
	idx := c.Y*w + c.X
	for y := c.Y - half; y <= c.Y+half; y++ {
		if y < 0 || y >= h {
			continue
		}
		for x := c.X - half; x <= c.X+half; x++ {
			if x < 0 || x >= w {
				continue
			}
			nIdx := y*w + x
			if nIdx == idx {
				continue
			}
			if scores[nIdx] > s || (scores[nIdx] == s && nIdx < idx) {
				return false
			}
		}
	}
	return true
}

// strongestKeypoints keeps the n highest scores, preserving raster order among the survivors.
func strongestKeypoints(kps []image.Point, scores []int, n int) ([]image.Point, []int) {
	negScores := make([]float64, len(scores))
	for i, s := range scores {
		// scores are integers, the index breaks ties in favor of earlier keypoints
		negScores[i] = -float64(s) + float64(i)/float64(len(scores)+1)
	}
	inds := make([]int, len(scores))
	floats.Argsort(negScores, inds)
	keep := make([]bool, len(kps))
	for _, i := range inds[:n] {
		keep[i] = true
	}
	outKps := make([]image.Point, 0, n)
	outScores := make([]int, 0, n)
	for i, k := range keep {
		if k {
			outKps = append(outKps, kps[i])
			outScores = append(outScores, scores[i])
		}
	}
	return outKps, outScores
}
