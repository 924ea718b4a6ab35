package transform

import (
	"math"
	"math/cmplx"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

const (
	// QEPDeterminantThreshold is the |det(M)| below which M is treated as singular. It is only reached
	// when there is no rotation.
	QEPDeterminantThreshold = 1e-12
	// QEPImagEigenvalueTolerance is the distance to +-i under which an eigenvalue is a root of s^2+1,
	// an artifact of the parameterization.
	QEPImagEigenvalueTolerance = 1e-12
	// QEPRealEigenvalueTolerance is the largest imaginary part, relative to the magnitude, of an
	// eigenvalue still accepted as real.
	QEPRealEigenvalueTolerance = 1e-9
)

// PartialRotationSolution is one candidate relative pose of the three-point solver.
type PartialRotationSolution struct {
	Rotation    quat.Number
	Translation r3.Vector
}

// SolveQEP solves the quadratic eigenvalue problem (s^2 M + s C + K) x = 0 by linearizing it into
// the standard eigenvalue problem of the 6x6 companion matrix
//
//	[ -M^-1 C  -M^-1 K ] z = s z,  z = [ s x ]
//	[    I        0    ]               [  x  ]
//
// It returns the real eigenvalues with their unit eigenvectors x. ok is false when M is singular.
func SolveQEP(m, c, k mat.Matrix) (eigenvalues []float64, eigenvectors []r3.Vector, ok bool, err error) {
	if math.Abs(mat.Det(m)) < QEPDeterminantThreshold {
		return nil, nil, false, nil
	}
	var invM mat.Dense
	if err := invM.Inverse(m); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, nil, false, errors.Wrap(err, "cannot invert M")
		}
	}
	invM.Scale(-1, &invM)

	var upperLeft, upperRight mat.Dense
	upperLeft.Mul(&invM, c)
	upperRight.Mul(&invM, k)

	constraint := mat.NewDense(6, 6, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			constraint.Set(i, j, upperLeft.At(i, j))
			constraint.Set(i, j+3, upperRight.At(i, j))
		}
		constraint.Set(i+3, i, 1)
	}

	var eig mat.Eigen
	if !eig.Factorize(constraint, mat.EigenRight) {
		return nil, nil, false, errors.New("eigen decomposition of the QEP constraint matrix failed")
	}
	values := eig.Values(nil)
	var vectors mat.CDense
	eig.VectorsTo(&vectors)

	for i, v := range values {
		// roots of s^2 + 1
		if math.Abs(imag(v)-1) < QEPImagEigenvalueTolerance || math.Abs(imag(v)+1) < QEPImagEigenvalueTolerance {
			continue
		}
		if math.Abs(imag(v)) > QEPRealEigenvalueTolerance*math.Max(1, cmplx.Abs(v)) {
			continue
		}
		x := r3.Vector{
			X: real(vectors.At(3, i)),
			Y: real(vectors.At(4, i)),
			Z: real(vectors.At(5, i)),
		}
		if x.Norm() == 0 {
			continue
		}
		eigenvalues = append(eigenvalues, real(v))
		eigenvectors = append(eigenvectors, x.Normalize())
	}
	return eigenvalues, eigenvectors, true, nil
}

// ThreePointRelativePosePartialRotation computes the relative poses consistent with three ray
// correspondences when the rotation is about a known axis. Rays and axis need not be unit length
// but must be non-zero.
//
// The rotation is parameterized, up to scale, as R ~ 2(v v^T + s[v]x) + (s^2 - 1)I where v is the
// axis, and the epipolar constraint of each correspondence gives one row of (s^2 M + s C + K) t = 0.
// Every real root s gives the rotation quaternion (s, v) and a translation direction t, returned
// with both signs. Without rotation M is singular and t is its null space.
//
// The result always has an even length. The generalized eigenproblem has at most four real roots,
// so at most 8 solutions come back; 4 is typical. The zero-rotation branch returns exactly 2, and
// an empty slice means no real root survived.
//
// The function keeps no state and is meant to be the minimal solver inside a robust estimation loop.
func ThreePointRelativePosePartialRotation(
	axis r3.Vector,
	rays1, rays2 [3]r3.Vector,
) ([]PartialRotationSolution, error) {
	if axis.Norm() == 0 {
		return nil, errors.New("rotation axis must be non-zero")
	}
	v := axis.Normalize()
	M := mat.NewDense(3, 3, nil)
	C := mat.NewDense(3, 3, nil)
	K := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		if rays1[i].Norm() == 0 || rays2[i].Norm() == 0 {
			return nil, errors.Errorf("ray pair %d has a zero-length ray", i)
		}
		q1 := rays1[i].Normalize()
		q2 := rays2[i].Normalize()
		m := q2.Cross(q1)
		c := q2.Cross(v.Cross(q1)).Mul(2)
		k := q2.Cross(v).Mul(2 * q1.Dot(v)).Sub(q2.Cross(q1))
		M.SetRow(i, []float64{m.X, m.Y, m.Z})
		C.SetRow(i, []float64{c.X, c.Y, c.Z})
		K.SetRow(i, []float64{k.X, k.Y, k.Z})
	}

	eigenvalues, eigenvectors, ok, err := SolveQEP(M, C, K)
	if err != nil {
		return nil, err
	}
	if !ok {
		// no rotation: C and K carry the axis and drop out, leaving M t = 0
		t, err := nullVector(M)
		if err != nil {
			return nil, err
		}
		identity := quat.Number{Real: 1}
		return []PartialRotationSolution{
			{Rotation: identity, Translation: t},
			{Rotation: identity, Translation: t.Mul(-1)},
		}, nil
	}

	solutions := make([]PartialRotationSolution, 0, 2*len(eigenvalues))
	for i, s := range eigenvalues {
		q := quat.Number{Real: s, Imag: v.X, Jmag: v.Y, Kmag: v.Z}
		q = quat.Scale(1/quat.Abs(q), q)
		solutions = append(solutions,
			PartialRotationSolution{Rotation: q, Translation: eigenvectors[i]},
			PartialRotationSolution{Rotation: q, Translation: eigenvectors[i].Mul(-1)},
		)
	}
	return solutions, nil
}

// nullVector returns the unit right singular vector of the smallest singular value.
func nullVector(m mat.Matrix) (r3.Vector, error) {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return r3.Vector{}, errors.New("failed to factorize M")
	}
	var V mat.Dense
	svd.VTo(&V)
	return r3.Vector{X: V.At(0, 2), Y: V.At(1, 2), Z: V.At(2, 2)}.Normalize(), nil
}
