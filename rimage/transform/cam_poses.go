package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/visualalign/spatialmath"
)

// DefaultMaxTriangulationDepth is the distance, in units of the baseline, beyond which triangulated
// points are considered to be at infinity and do not vote in the cheirality check.
const DefaultMaxTriangulationDepth = 50.

// CamPose stores the 3x4 pose matrix [R|t] mapping points of the first camera frame into the second.
type CamPose struct {
	PoseMat     *mat.Dense
	Rotation    *mat.Dense
	Translation r3.Vector
}

// NewCamPoseFromMat creates a pointer to a Camera pose from a 3x4 pose dense matrix.
func NewCamPoseFromMat(pose *mat.Dense) *CamPose {
	return &CamPose{
		PoseMat:     pose,
		Rotation:    PoseRotation(pose),
		Translation: PoseTranslation(pose),
	}
}

// adjustPoseSign adjusts the sign of a pose so that its rotation block has a positive determinant.
func adjustPoseSign(pose *mat.Dense) *mat.Dense {
	subPose := pose.Slice(0, 3, 0, 3)
	if m := mat.DenseCopyOf(subPose); mat.Det(m) < 0 {
		pose.Scale(-1, pose)
	}
	return pose
}

// GetPossibleCameraPoses computes all 4 possible poses from the essential matrix.
func GetPossibleCameraPoses(essMat *mat.Dense) ([]*mat.Dense, error) {
	R1, R2, t, err := DecomposeEssentialMatrix(essMat)
	if err != nil {
		return nil, err
	}
	tMat := mat.NewDense(3, 1, []float64{t.X, t.Y, t.Z})
	var tOpp mat.Dense
	tOpp.Scale(-1, tMat)
	poses := make([]mat.Dense, 4)
	poses[0].Augment(R1, tMat)
	poses[1].Augment(R1, &tOpp)
	poses[2].Augment(R2, tMat)
	poses[3].Augment(R2, &tOpp)
	posesOut := make([]*mat.Dense, 4)
	for i := range poses {
		posesOut[i] = mat.DenseCopyOf(adjustPoseSign(&poses[i]))
	}
	return posesOut, nil
}

// TriangulatePoint computes the 3D point, in the first camera frame, seen at homogeneous
// camera-normalized positions p1 and p2, with the second camera at pose [R|t]. ok is false when the
// point is at infinity.
func TriangulatePoint(pose mat.Matrix, p1, p2 r3.Vector) (r3.Vector, bool, error) {
	// identity pose for p1
	P := mat.NewDense(3, 4, nil)
	P.Set(0, 0, 1)
	P.Set(1, 1, 1)
	P.Set(2, 2, 1)

	var p1CrossP, p2CrossPdash, A mat.Dense
	p1CrossP.Mul(spatialmath.Skew(p1), P)
	p2CrossPdash.Mul(spatialmath.Skew(p2), pose)
	A.Stack(&p1CrossP, &p2CrossPdash)

	var svd mat.SVD
	if ok := svd.Factorize(&A, mat.SVDFull); !ok {
		return r3.Vector{}, false, errors.New("failed to factorize triangulation system")
	}
	var V mat.Dense
	svd.VTo(&V)
	// homogeneous solution is the right singular vector of the smallest singular value
	w := V.At(3, 3)
	if math.Abs(w) < 1e-12 {
		return r3.Vector{}, false, nil
	}
	return r3.Vector{X: V.At(0, 3) / w, Y: V.At(1, 3) / w, Z: V.At(2, 3) / w}, true, nil
}

// cheiralityMask marks the correspondences whose triangulated point lies in front of both cameras
// and closer than maxDepth. Only entries set in mask are tested; a nil mask tests all of them.
func cheiralityMask(pose mat.Matrix, pts1, pts2 []r3.Vector, mask []bool, maxDepth float64) ([]bool, int) {
	rot := PoseRotation(pose)
	t := r3.Vector{X: pose.At(0, 3), Y: pose.At(1, 3), Z: pose.At(2, 3)}
	good := make([]bool, len(pts1))
	nGood := 0
	for i := range pts1 {
		if mask != nil && !mask[i] {
			continue
		}
		pt, ok, err := TriangulatePoint(pose, pts1[i], pts2[i])
		if err != nil || !ok {
			continue
		}
		pt2 := spatialmath.MulVec(rot, pt).Add(t)
		if pt.Z > 0 && pt.Z < maxDepth && pt2.Z > 0 && pt2.Z < maxDepth {
			good[i] = true
			nGood++
		}
	}
	return good, nGood
}

// RecoverPose picks, among the four poses encoded by the essential matrix, the one placing the most
// correspondences in front of both cameras. pts1 and pts2 are camera-normalized. It returns the pose,
// the number of correspondences passing the cheirality check and their mask.
func RecoverPose(essMat *mat.Dense, pts1, pts2 []r2.Point, mask []bool, maxDepth float64) (*CamPose, int, []bool, error) {
	if len(pts1) != len(pts2) {
		return nil, 0, nil, ErrMismatchedCorrespondences
	}
	if mask != nil && len(mask) != len(pts1) {
		return nil, 0, nil, errors.Errorf("mask has %d entries for %d correspondences", len(mask), len(pts1))
	}
	poses, err := GetPossibleCameraPoses(essMat)
	if err != nil {
		return nil, 0, nil, err
	}
	pts1H := Convert2DPointsToHomogeneousPoints(pts1)
	pts2H := Convert2DPointsToHomogeneousPoints(pts2)

	bestIdx, bestCount := 0, -1
	var bestMask []bool
	for i, pose := range poses {
		good, nGood := cheiralityMask(pose, pts1H, pts2H, mask, maxDepth)
		if nGood > bestCount {
			bestIdx, bestCount, bestMask = i, nGood, good
		}
	}
	return NewCamPoseFromMat(poses[bestIdx]), bestCount, bestMask, nil
}
