package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// minPointsEightPoint is the sample size of the eight-point algorithm.
const minPointsEightPoint = 8

// ErrDegenerateCorrespondences is returned when a two-view model cannot be fitted to the points.
var ErrDegenerateCorrespondences = errors.New("correspondences are degenerate for two-view estimation")

// ComputeEssentialMatrix computes the essential matrix from camera-normalized correspondences
// (pixels mapped through the inverse camera matrix) with the normalized eight-point algorithm.
// The result has singular values (1, 1, 0).
func ComputeEssentialMatrix(pts1, pts2 []r2.Point) (*mat.Dense, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.New("sets of points pts1 and pts2 must have the same number of elements")
	}
	if len(pts1) < minPointsEightPoint {
		return nil, errors.Errorf("sets of points must have at least %d elements", minPointsEightPoint)
	}
	nPoints := len(pts1)

	points1, T1, err := normalizePoints(pts1)
	if err != nil {
		return nil, err
	}
	points2, T2, err := normalizePoints(pts2)
	if err != nil {
		return nil, err
	}

	m := mat.NewDense(nPoints, 9, nil)
	for i := range points1 {
		v1 := points1[i]
		v2 := points2[i]
		row := []float64{
			v2.X * v1.X, v2.X * v1.Y, v2.X,
			v2.Y * v1.X, v2.Y * v1.Y, v2.Y,
			v1.X, v1.Y, 1,
		}
		m.SetRow(i, row)
	}

	mats1 := performSVD(m)
	if mats1 == nil {
		return nil, ErrDegenerateCorrespondences
	}
	lastColV := mats1.V.ColView(8)
	lastColVdata := make([]float64, 9)
	for i := range lastColVdata {
		lastColVdata[i] = lastColV.AtVec(i)
	}
	E := mat.NewDense(3, 3, lastColVdata)

	// undo normalization: T2^T @ E @ T1
	E.Mul(T2.T(), E)
	E.Mul(E, T1)
	return enforceEssentialConstraints(E)
}

// enforceEssentialConstraints projects a 3x3 matrix to the closest essential matrix by setting its
// singular values to (1, 1, 0).
func enforceEssentialConstraints(m *mat.Dense) (*mat.Dense, error) {
	mats := performSVD(m)
	if mats == nil {
		return nil, ErrDegenerateCorrespondences
	}
	if mats.S.At(0, 0) < 1e-12 {
		return nil, ErrDegenerateCorrespondences
	}
	S := eye(3)
	S.Set(2, 2, 0)
	var essMat mat.Dense
	essMat.Mul(mats.U, S)
	essMat.Mul(&essMat, mats.VT)
	return &essMat, nil
}

// DecomposeEssentialMatrix decomposes the Essential matrix into 2 possible 3D rotations and a 3D translation.
func DecomposeEssentialMatrix(essMat *mat.Dense) (*mat.Dense, *mat.Dense, r3.Vector, error) {
	mats := performSVD(essMat)
	if mats == nil {
		return nil, nil, r3.Vector{}, errors.New("failed to factorize the essential matrix")
	}
	// check determinant sign of U and V
	if mat.Det(mats.U) < 0 {
		mats.U.Scale(-1, mats.U)
	}
	if mat.Det(mats.VT) < 0 {
		mats.VT.Scale(-1, mats.VT)
	}
	W := mat.NewDense(3, 3, nil)
	W.Set(0, 1, 1)
	W.Set(1, 0, -1)
	W.Set(2, 2, 1)
	var R1, R2 mat.Dense
	// UWV^T
	R1.Mul(mats.U, W)
	R1.Mul(&R1, mats.VT)
	// UW^TV^T
	R2.Mul(mats.U, W.T())
	R2.Mul(&R2, mats.VT)
	U3 := mats.U.ColView(2)
	t := r3.Vector{X: U3.AtVec(0), Y: U3.AtVec(1), Z: U3.AtVec(2)}
	return &R1, &R2, t, nil
}

// SampsonDistance is the first-order geometric error of the correspondence (p1, p2) with respect to
// the epipolar constraint p2^T E p1 = 0. It is a squared distance, in the units of the points.
func SampsonDistance(e mat.Matrix, p1, p2 r2.Point) float64 {
	ex1 := r3.Vector{
		X: e.At(0, 0)*p1.X + e.At(0, 1)*p1.Y + e.At(0, 2),
		Y: e.At(1, 0)*p1.X + e.At(1, 1)*p1.Y + e.At(1, 2),
		Z: e.At(2, 0)*p1.X + e.At(2, 1)*p1.Y + e.At(2, 2),
	}
	etx2 := r3.Vector{
		X: e.At(0, 0)*p2.X + e.At(1, 0)*p2.Y + e.At(2, 0),
		Y: e.At(0, 1)*p2.X + e.At(1, 1)*p2.Y + e.At(2, 1),
		Z: e.At(0, 2)*p2.X + e.At(1, 2)*p2.Y + e.At(2, 2),
	}
	x2tex1 := p2.X*ex1.X + p2.Y*ex1.Y + ex1.Z
	denom := ex1.X*ex1.X + ex1.Y*ex1.Y + etx2.X*etx2.X + etx2.Y*etx2.Y
	if denom == 0 {
		return math.Inf(1)
	}
	return x2tex1 * x2tex1 / denom
}

// Convert2DPointsToHomogeneousPoints converts float64 image coordinates to homogeneous float64 coordinates.
func Convert2DPointsToHomogeneousPoints(pts []r2.Point) []r3.Vector {
	ptsHomogeneous := make([]r3.Vector, len(pts))
	for i, pt := range pts {
		ptsHomogeneous[i] = r3.Vector{
			X: pt.X,
			Y: pt.Y,
			Z: 1,
		}
	}
	return ptsHomogeneous
}

// helpers
// normalizePoints normalizes points as described in Multiple View Geometry, Alg 11.1.
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense, error) {
	nPoints := len(pts)
	mu := r2.Point{X: 0, Y: 0}
	for _, pt := range pts {
		mu.X += pt.X
		mu.Y += pt.Y
	}
	mu = mu.Mul(1. / float64(nPoints))
	// compute scale factor
	d := 0.0
	for _, pt := range pts {
		d += pt.Sub(mu).Norm() / float64(nPoints)
	}
	if d < 1e-15 {
		return nil, nil, ErrDegenerateCorrespondences
	}
	scale := math.Sqrt(2) / d
	transformData := []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	}
	T := mat.NewDense(3, 3, transformData)
	pointsTransformed := make([]r2.Point, nPoints)
	for i := range pointsTransformed {
		pointsTransformed[i] = r2.Point{X: scale * (pts[i].X - mu.X), Y: scale * (pts[i].Y - mu.Y)}
	}
	return pointsTransformed, T, nil
}

// eye create an identity matrix of size nxn.
func eye(n int) *mat.Dense {
	if n <= 0 {
		return nil
	}
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// matsSVD stores the matrices from SVD decomposition.
type matsSVD struct {
	U  *mat.Dense
	V  *mat.Dense
	VT *mat.Dense
	S  *mat.Dense
}

// performSVD performs SVD on inputMatrix and returns matrices U, Sigma and V from the decomposition.
func performSVD(inputMatrix mat.Matrix) *matsSVD {
	var svd mat.SVD
	ok := svd.Factorize(inputMatrix, mat.SVDFull)
	if !ok {
		return nil
	}

	u, v, sigma, vt := &mat.Dense{}, &mat.Dense{}, &mat.Dense{}, &mat.Dense{}

	svd.UTo(u)
	svd.VTo(v)
	vt.CloneFrom(v.T())

	singularValues := svd.Values(nil)
	sigma.CloneFrom(mat.NewDiagDense(len(singularValues), singularValues))

	return &matsSVD{u, v, vt, sigma}
}
