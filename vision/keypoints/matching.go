package keypoints

import (
	"math"
	"math/bits"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	uts "go.viam.com/utils"

	"go.viam.com/visualalign/utils"
)

// DefaultRatioThreshold is the default ratio between the nearest and second nearest descriptor
// distances under which a match is accepted.
const DefaultRatioThreshold = 0.7

// ErrDescriptorLength is returned when descriptors of different lengths are compared.
var ErrDescriptorLength = errors.New("descriptors must have the same length")

// MatchingConfig contains the parameters for matching descriptors.
type MatchingConfig struct {
	RatioThreshold float64 `json:"ratio_threshold"`
	DoCrossCheck   bool    `json:"do_cross_check"`
	// MaxDist rejects matches whose Hamming distance is not below it. 0 disables the check.
	MaxDist int `json:"max_dist"`
}

// DefaultMatchingConfig returns a ratio test at DefaultRatioThreshold and nothing else.
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{RatioThreshold: DefaultRatioThreshold}
}

// Validate ensures all parts of the MatchingConfig are valid.
func (cfg *MatchingConfig) Validate(path string) error {
	if cfg.RatioThreshold <= 0 || cfg.RatioThreshold > 1 {
		return uts.NewConfigValidationError(path, errors.New("ratio_threshold should be in (0, 1]"))
	}
	if cfg.MaxDist < 0 {
		return uts.NewConfigValidationError(path, errors.New("max_dist should be >= 0"))
	}
	return nil
}

// Match is a pair of indices into two keypoint sets and the distance between their descriptors.
type Match struct {
	Idx1     int
	Idx2     int
	Distance int
}

// HammingDistance counts the differing bits of two descriptors.
func HammingDistance(d1, d2 Descriptor) (int, error) {
	if len(d1) != len(d2) {
		return 0, errors.Wrapf(ErrDescriptorLength, "%d != %d", len(d1), len(d2))
	}
	return hamming(d1, d2), nil
}

func hamming(d1, d2 Descriptor) int {
	dist := 0
	for i := range d1 {
		dist += bits.OnesCount64(d1[i] ^ d2[i])
	}
	return dist
}

// nearest holds the two smallest distances from one descriptor to a set.
type nearest struct {
	best, second       int
	bestIdx, secondIdx int
}

// twoNearest returns the two nearest neighbors of d in set. Missing neighbors have index -1.
func twoNearest(d Descriptor, set []Descriptor) nearest {
	n := nearest{best: math.MaxInt, second: math.MaxInt, bestIdx: -1, secondIdx: -1}
	for j, other := range set {
		dist := hamming(d, other)
		switch {
		case dist < n.best:
			n.second, n.secondIdx = n.best, n.bestIdx
			n.best, n.bestIdx = dist, j
		case dist < n.second:
			n.second, n.secondIdx = dist, j
		}
	}
	return n
}

func checkDescriptorLengths(desc1, desc2 []Descriptor) error {
	if len(desc1) == 0 {
		return nil
	}
	length := len(desc1[0])
	for _, d := range append(append([]Descriptor{}, desc1...), desc2...) {
		if len(d) != length {
			return errors.Wrapf(ErrDescriptorLength, "%d != %d", len(d), length)
		}
	}
	return nil
}

// allNearest computes twoNearest for every descriptor of src, in parallel.
func allNearest(src, dst []Descriptor) []nearest {
	out := make([]nearest, len(src))
	utils.GroupWorkParallel(len(src), func(_, _, _, _ int) utils.MemberWorkFunc {
		return func(_, workNum int) {
			out[workNum] = twoNearest(src[workNum], dst)
		}
	})
	return out
}

// MatchKeypoints matches every descriptor of desc1 to its nearest neighbor in desc2 and keeps the
// match when it passes the ratio test and the optional max distance and cross check. Descriptors
// with fewer than two candidates are never matched. The result follows the order of desc1.
func MatchKeypoints(desc1, desc2 []Descriptor, cfg *MatchingConfig) ([]Match, error) {
	if cfg == nil {
		cfg = DefaultMatchingConfig()
	}
	if err := cfg.Validate("matching"); err != nil {
		return nil, err
	}
	if err := checkDescriptorLengths(desc1, desc2); err != nil {
		return nil, err
	}
	matches := make([]Match, 0)
	if len(desc1) == 0 || len(desc2) < 2 {
		return matches, nil
	}
	forward := allNearest(desc1, desc2)
	var backward []nearest
	if cfg.DoCrossCheck {
		backward = allNearest(desc2, desc1)
	}
	for i, n := range forward {
		if n.secondIdx < 0 || float64(n.best) >= cfg.RatioThreshold*float64(n.second) {
			continue
		}
		if cfg.MaxDist > 0 && n.best >= cfg.MaxDist {
			continue
		}
		if cfg.DoCrossCheck && backward[n.bestIdx].bestIdx != i {
			continue
		}
		matches = append(matches, Match{Idx1: i, Idx2: n.bestIdx, Distance: n.best})
	}
	return matches, nil
}

// CountMatches returns the number of matches between two keypoint sets without building them for
// the caller.
func CountMatches(kps1, kps2 *KeypointSet, cfg *MatchingConfig) (int, error) {
	if kps1.Len() == 0 || kps2.Len() == 0 {
		return 0, nil
	}
	matches, err := MatchKeypoints(kps1.Descriptors, kps2.Descriptors, cfg)
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

// GetMatchingKeyPoints takes the matches and the keypoints and returns the corresponding keypoints that are matched.
func GetMatchingKeyPoints(matches []Match, kps1, kps2 *KeypointSet) ([]r2.Point, []r2.Point, error) {
	n1, n2 := kps1.Len(), kps2.Len()
	if _, ok := lo.Find(matches, func(m Match) bool {
		return m.Idx1 < 0 || m.Idx1 >= n1 || m.Idx2 < 0 || m.Idx2 >= n2
	}); ok {
		return nil, nil, errors.Errorf("match index out of range of keypoint sets of size %d and %d", n1, n2)
	}
	matchedKps1 := lo.Map(matches, func(m Match, _ int) r2.Point { return kps1.Points[m.Idx1] })
	matchedKps2 := lo.Map(matches, func(m Match, _ int) r2.Point { return kps2.Points[m.Idx2] })
	return matchedKps1, matchedKps2, nil
}
