package transform

import (
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/visualalign/spatialmath"
)

var testIntrinsics = &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 1000, Fy: 1000, Ppx: 320, Ppy: 240}

// sceneParams describes a synthetic two-view scene where points move as X2 = R X1 + t.
type sceneParams struct {
	numPoints   int
	numOutliers int
	rotation    *mat.Dense
	translation r3.Vector
	planar      bool
	noisePx     float64
	seed        int64
}

func yawRotation(theta float64) *mat.Dense {
	return spatialmath.NewRotationMatrixFromR4AA(&spatialmath.R4AA{Theta: theta, RX: 0, RY: 1, RZ: 0})
}

// makeScene returns pixel correspondences of random 3D points and their 3D positions in the first frame.
func makeScene(p sceneParams) (*CorrespondenceSet, []r3.Vector) {
	rng := rand.New(rand.NewSource(p.seed))
	cs := &CorrespondenceSet{}
	var pts3d []r3.Vector
	for len(cs.Points1) < p.numPoints {
		x1 := r3.Vector{X: -5 + 10*rng.Float64(), Y: -3.5 + 7*rng.Float64(), Z: 10}
		if !p.planar {
			x1.Z = 4 + 8*rng.Float64()
		}
		x2 := spatialmath.MulVec(p.rotation, x1).Add(p.translation)
		if x2.Z <= 0.5 {
			continue
		}
		u1, v1 := testIntrinsics.PointToPixel(x1.X, x1.Y, x1.Z)
		u2, v2 := testIntrinsics.PointToPixel(x2.X, x2.Y, x2.Z)
		cs.Points1 = append(cs.Points1, r2.Point{X: u1 + p.noisePx*rng.NormFloat64(), Y: v1 + p.noisePx*rng.NormFloat64()})
		cs.Points2 = append(cs.Points2, r2.Point{X: u2 + p.noisePx*rng.NormFloat64(), Y: v2 + p.noisePx*rng.NormFloat64()})
		pts3d = append(pts3d, x1)
	}
	for i := 0; i < p.numOutliers; i++ {
		cs.Points1 = append(cs.Points1, r2.Point{X: 640 * rng.Float64(), Y: 480 * rng.Float64()})
		cs.Points2 = append(cs.Points2, r2.Point{X: 640 * rng.Float64(), Y: 480 * rng.Float64()})
	}
	return cs, pts3d
}

func normalizedPoints(cs *CorrespondenceSet) ([]r2.Point, []r2.Point) {
	pts1 := make([]r2.Point, cs.Len())
	pts2 := make([]r2.Point, cs.Len())
	for i := range pts1 {
		pts1[i] = testIntrinsics.PixelToNormalized(cs.Points1[i])
		pts2[i] = testIntrinsics.PixelToNormalized(cs.Points2[i])
	}
	return pts1, pts2
}

func vecAlmostEqual(a, b r3.Vector, tol float64) bool {
	return a.Sub(b).Norm() <= tol
}
