package alignment

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/visualalign/rimage/transform"
	"go.viam.com/visualalign/spatialmath"
)

// yawBucketsPerRadian sets the width of the buckets used to find agreeing yaws.
const yawBucketsPerRadian = 50

// ConsensusYaw combines the yaws of several successful alignments. Yaws are grouped in buckets of
// 1/50 rad; when at least two fall in the most popular bucket their mean is returned, otherwise the
// circular mean of all of them. Ties between buckets go to the one seen first.
func ConsensusYaw(yaws []float64) (float64, error) {
	if len(yaws) == 0 {
		return 0, errors.New("cannot compute the consensus of no yaws")
	}
	buckets := lo.Map(yaws, func(yaw float64, _ int) int { return int(yaw * yawBucketsPerRadian) })
	counts := lo.CountValues(buckets)
	best := buckets[0]
	for _, b := range buckets {
		if counts[b] > counts[best] {
			best = b
		}
	}
	if counts[best] < 2 {
		sinMean, err := stats.Mean(lo.Map(yaws, func(yaw float64, _ int) float64 { return math.Sin(yaw) }))
		if err != nil {
			return 0, err
		}
		cosMean, err := stats.Mean(lo.Map(yaws, func(yaw float64, _ int) float64 { return math.Cos(yaw) }))
		if err != nil {
			return 0, err
		}
		return math.Atan2(sinMean, cosMean), nil
	}
	agreeing := lo.Filter(yaws, func(_ float64, i int) bool { return buckets[i] == best })
	return stats.Mean(agreeing)
}

// RelativeTransform maps the camera pose at which the reference image was captured (alignPose) to
// the current camera pose, using the yaw and leveling rotations of an estimate. Nil leveling
// rotations count as identity.
func RelativeTransform(cameraPose, alignPose mat.Matrix, est *transform.PoseEstimate) (*mat.Dense, error) {
	if est == nil {
		return nil, errors.New("pose estimate is nil")
	}
	for _, pose := range []mat.Matrix{cameraPose, alignPose} {
		if r, c := pose.Dims(); r != 4 || c != 4 {
			return nil, errors.Errorf("pose must be 4x4, got %dx%d", r, c)
		}
	}
	leveledAlignPose := levelPose(alignPose, est.SquareRotation1)
	leveledCameraPose := levelPose(cameraPose, est.SquareRotation2)
	yawRotation := spatialmath.NewRotationMatrixFromR4AA(spatialmath.NewR4AAFromAxis(est.Yaw, r3.Vector{X: -1}))
	yawPose := transform.NewPose(yawRotation, r3.Vector{})

	var out mat.Dense
	out.Mul(leveledCameraPose, transform.InvertPose(yawPose))
	out.Mul(&out, transform.InvertPose(leveledAlignPose))
	return &out, nil
}

// levelPose undoes the leveling rotation on the rotation part of pose, keeping its translation.
func levelPose(pose mat.Matrix, squareRotation *mat.Dense) *mat.Dense {
	rot := transform.PoseRotation(pose)
	if squareRotation != nil {
		// the inverse of a rotation is its transpose
		rot.Mul(squareRotation.T(), rot)
	}
	return transform.NewPose(rot, transform.PoseTranslation(pose))
}

// RelativeYaw is the heading of the x axis of a relative transform in the world's horizontal plane.
func RelativeYaw(relative mat.Matrix) float64 {
	return math.Atan2(relative.At(2, 0), relative.At(0, 0))
}

// ConsensusTransform is the world correction applied once the consensus yaw is known: a rotation
// about world up that keeps the first aligned camera position on the reference position.
func ConsensusTransform(yaw float64, alignPose, firstCameraPose mat.Matrix) *mat.Dense {
	rot := spatialmath.NewRotationMatrixFromR4AA(spatialmath.NewR4AAFromAxis(yaw, r3.Vector{Y: 1}))
	t := transform.PoseTranslation(alignPose).Sub(spatialmath.MulVec(rot, transform.PoseTranslation(firstCameraPose)))
	return transform.InvertPose(transform.NewPose(rot, t))
}
