package transform

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/visualalign/spatialmath"
)

// minPointsRotation is the minimal sample of the rotation-only model.
const minPointsRotation = 2

// RANSACParams configures a robust model fit.
type RANSACParams struct {
	// Threshold is the inlier threshold, in camera-normalized units.
	Threshold     float64
	Confidence    float64
	MaxIterations int
	Seed          int64
}

// RANSACResult is the outcome of a robust model fit.
type RANSACResult struct {
	Model      *mat.Dense
	Inliers    []bool
	NumInliers int
	Iterations int
}

// adaptiveIterations is the number of draws needed to get one all-inlier sample with the given confidence.
func adaptiveIterations(inlierRatio float64, sampleSize int, confidence float64, maxIterations int) int {
	good := math.Pow(inlierRatio, float64(sampleSize))
	if good >= 1 {
		return 1
	}
	if good <= 0 {
		return maxIterations
	}
	n := math.Log(1-confidence) / math.Log(1-good)
	if math.IsNaN(n) || n > float64(maxIterations) {
		return maxIterations
	}
	return int(math.Ceil(n))
}

// sampleIndices draws k distinct indices in [0, n) into dst.
func sampleIndices(rng *rand.Rand, n, k int, dst []int) {
	for i := 0; i < k; i++ {
	draw:
		for {
			idx := rng.Intn(n)
			for j := 0; j < i; j++ {
				if dst[j] == idx {
					continue draw
				}
			}
			dst[i] = idx
			break
		}
	}
}

func essentialInliers(e mat.Matrix, pts1, pts2 []r2.Point, threshold float64, mask []bool) int {
	thr2 := threshold * threshold
	n := 0
	for i := range pts1 {
		mask[i] = SampsonDistance(e, pts1[i], pts2[i]) <= thr2
		if mask[i] {
			n++
		}
	}
	return n
}

// EstimateEssentialMatrixRANSAC robustly fits an essential matrix to camera-normalized
// correspondences with eight-point samples scored by Sampson distance, then refits it on all inliers.
// The random generator is seeded from params, so calls are repeatable.
func EstimateEssentialMatrixRANSAC(pts1, pts2 []r2.Point, params RANSACParams) (*RANSACResult, error) {
	if len(pts1) != len(pts2) {
		return nil, ErrMismatchedCorrespondences
	}
	n := len(pts1)
	if n < minPointsEightPoint {
		return nil, ErrDegenerateCorrespondences
	}
	rng := rand.New(rand.NewSource(params.Seed)) //nolint:gosec

	best := &RANSACResult{Inliers: make([]bool, n)}
	mask := make([]bool, n)
	idx := make([]int, minPointsEightPoint)
	s1 := make([]r2.Point, minPointsEightPoint)
	s2 := make([]r2.Point, minPointsEightPoint)

	needed := params.MaxIterations
	iter := 0
	for ; iter < needed && iter < params.MaxIterations; iter++ {
		sampleIndices(rng, n, minPointsEightPoint, idx)
		for j, k := range idx {
			s1[j], s2[j] = pts1[k], pts2[k]
		}
		e, err := ComputeEssentialMatrix(s1, s2)
		if err != nil {
			continue
		}
		count := essentialInliers(e, pts1, pts2, params.Threshold, mask)
		if count > best.NumInliers {
			best.Model, best.NumInliers = e, count
			copy(best.Inliers, mask)
			needed = adaptiveIterations(float64(count)/float64(n), minPointsEightPoint, params.Confidence, params.MaxIterations)
		}
	}
	best.Iterations = iter
	if best.Model == nil || best.NumInliers < minPointsEightPoint {
		return nil, ErrDegenerateCorrespondences
	}

	in1 := make([]r2.Point, 0, best.NumInliers)
	in2 := make([]r2.Point, 0, best.NumInliers)
	for i, ok := range best.Inliers {
		if ok {
			in1 = append(in1, pts1[i])
			in2 = append(in2, pts2[i])
		}
	}
	if refit, err := ComputeEssentialMatrix(in1, in2); err == nil {
		if count := essentialInliers(refit, pts1, pts2, params.Threshold, mask); count >= best.NumInliers {
			best.Model, best.NumInliers = refit, count
			copy(best.Inliers, mask)
		}
	}
	return best, nil
}

// FitRotation returns the rotation R minimizing sum |b_i - R a_i|^2 (Kabsch).
func FitRotation(a, b []r3.Vector) (*mat.Dense, error) {
	if len(a) != len(b) {
		return nil, ErrMismatchedCorrespondences
	}
	if len(a) < minPointsRotation {
		return nil, ErrDegenerateCorrespondences
	}
	cov := mat.NewDense(3, 3, nil)
	for i := range a {
		bv := []float64{b[i].X, b[i].Y, b[i].Z}
		av := []float64{a[i].X, a[i].Y, a[i].Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				cov.Set(r, c, cov.At(r, c)+bv[r]*av[c])
			}
		}
	}
	mats := performSVD(cov)
	if mats == nil || mats.S.At(1, 1) < 1e-12 {
		return nil, ErrDegenerateCorrespondences
	}
	var uvt mat.Dense
	uvt.Mul(mats.U, mats.VT)
	d := eye(3)
	if mat.Det(&uvt) < 0 {
		d.Set(2, 2, -1)
	}
	var rot mat.Dense
	rot.Mul(mats.U, d)
	rot.Mul(&rot, mats.VT)
	return &rot, nil
}

// rotationReprojectionError is the distance in the normalized plane between R*ray1 and p2.
func rotationReprojectionError(rot mat.Matrix, ray1 r3.Vector, p2 r2.Point) float64 {
	q := spatialmath.MulVec(rot, ray1)
	if q.Z <= 0 {
		return math.Inf(1)
	}
	return math.Hypot(q.X/q.Z-p2.X, q.Y/q.Z-p2.Y)
}

func rotationInliers(rot mat.Matrix, rays1 []r3.Vector, pts2 []r2.Point, threshold float64, mask []bool) int {
	n := 0
	for i := range rays1 {
		mask[i] = rotationReprojectionError(rot, rays1[i], pts2[i]) <= threshold
		if mask[i] {
			n++
		}
	}
	return n
}

// EstimateRotationRANSAC robustly fits a pure rotation (no translation) to camera-normalized
// correspondences, as seen when the camera turns in place or the scene is far away.
func EstimateRotationRANSAC(pts1, pts2 []r2.Point, params RANSACParams) (*RANSACResult, error) {
	if len(pts1) != len(pts2) {
		return nil, ErrMismatchedCorrespondences
	}
	n := len(pts1)
	if n < minPointsRotation {
		return nil, ErrDegenerateCorrespondences
	}
	rays1 := make([]r3.Vector, n)
	rays2 := make([]r3.Vector, n)
	for i := range pts1 {
		rays1[i] = r3.Vector{X: pts1[i].X, Y: pts1[i].Y, Z: 1}.Normalize()
		rays2[i] = r3.Vector{X: pts2[i].X, Y: pts2[i].Y, Z: 1}.Normalize()
	}
	rng := rand.New(rand.NewSource(params.Seed)) //nolint:gosec

	best := &RANSACResult{Inliers: make([]bool, n)}
	mask := make([]bool, n)
	idx := make([]int, minPointsRotation)
	s1 := make([]r3.Vector, minPointsRotation)
	s2 := make([]r3.Vector, minPointsRotation)

	needed := params.MaxIterations
	iter := 0
	for ; iter < needed && iter < params.MaxIterations; iter++ {
		sampleIndices(rng, n, minPointsRotation, idx)
		for j, k := range idx {
			s1[j], s2[j] = rays1[k], rays2[k]
		}
		rot, err := FitRotation(s1, s2)
		if err != nil {
			continue
		}
		count := rotationInliers(rot, rays1, pts2, params.Threshold, mask)
		if count > best.NumInliers {
			best.Model, best.NumInliers = rot, count
			copy(best.Inliers, mask)
			needed = adaptiveIterations(float64(count)/float64(n), minPointsRotation, params.Confidence, params.MaxIterations)
		}
	}
	best.Iterations = iter
	if best.Model == nil || best.NumInliers < minPointsRotation {
		return nil, ErrDegenerateCorrespondences
	}

	in1 := make([]r3.Vector, 0, best.NumInliers)
	in2 := make([]r3.Vector, 0, best.NumInliers)
	for i, ok := range best.Inliers {
		if ok {
			in1 = append(in1, rays1[i])
			in2 = append(in2, rays2[i])
		}
	}
	if refit, err := FitRotation(in1, in2); err == nil {
		if count := rotationInliers(refit, rays1, pts2, params.Threshold, mask); count >= best.NumInliers {
			best.Model, best.NumInliers = refit, count
			copy(best.Inliers, mask)
		}
	}
	return best, nil
}
