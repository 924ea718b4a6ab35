package transform

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/visualalign/spatialmath"
)

func TestEstimateYawTranslatedScene(t *testing.T) {
	rot := yawRotation(0.2)
	trans := r3.Vector{X: 1, Y: 0, Z: 0.2}
	cs, _ := makeScene(sceneParams{numPoints: 120, numOutliers: 20, rotation: rot, translation: trans, noisePx: 0.2, seed: 10})

	est, err := EstimateYaw(cs, testIntrinsics, DefaultPoseConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.RotationOnly, test.ShouldBeFalse)
	test.That(t, est.Valid, test.ShouldBeTrue)
	test.That(t, est.Yaw, test.ShouldAlmostEqual, 0.2, 0.01)
	test.That(t, est.NumInliers, test.ShouldBeGreaterThanOrEqualTo, 100)
	test.That(t, est.NumMatches, test.ShouldEqual, 140)
	test.That(t, math.Abs(est.ResidualAngle), test.ShouldBeLessThanOrEqualTo, 0.01)
	test.That(t, spatialmath.IsRotationMatrix(est.Rotation, 1e-9), test.ShouldBeTrue)
	test.That(t, est.Translation.Norm(), test.ShouldAlmostEqual, 1., 1e-9)
	test.That(t, vecAlmostEqual(est.Translation, trans.Normalize(), 0.05), test.ShouldBeTrue)
	test.That(t, est.Diagnostics, test.ShouldBeNil)
}

func TestEstimateYawPlanarSceneTenDegrees(t *testing.T) {
	theta := 10 * math.Pi / 180
	cs, _ := makeScene(sceneParams{numPoints: 150, numOutliers: 15, rotation: yawRotation(theta), planar: true, noisePx: 0.3, seed: 11})

	est, err := EstimateYaw(cs, testIntrinsics, DefaultPoseConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.Yaw, test.ShouldAlmostEqual, 0.1745, 0.02)
	test.That(t, est.Valid, test.ShouldBeTrue)
	test.That(t, est.NumInliers, test.ShouldBeGreaterThan, 20)
	test.That(t, est.RotationOnly, test.ShouldBeTrue)
	test.That(t, est.Translation, test.ShouldResemble, r3.Vector{})
	test.That(t, spatialmath.IsRotationMatrix(est.Rotation, 1e-9), test.ShouldBeTrue)
}

func TestEstimateYawIdenticalImages(t *testing.T) {
	cs, _ := makeScene(sceneParams{numPoints: 80, rotation: spatialmath.Identity3(), seed: 12})
	cs.Points2 = append([]r2.Point(nil), cs.Points1...)

	est, err := EstimateYaw(cs, testIntrinsics, DefaultPoseConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.Yaw, test.ShouldAlmostEqual, 0., 1e-9)
	test.That(t, est.ResidualAngle, test.ShouldAlmostEqual, 0., 1e-6)
	test.That(t, est.Valid, test.ShouldBeTrue)
	test.That(t, est.NumInliers, test.ShouldEqual, 80)
	test.That(t, mat.EqualApprox(est.Rotation, spatialmath.Identity3(), 1e-9), test.ShouldBeTrue)
}

func TestEstimateYawDegenerate(t *testing.T) {
	cs, _ := makeScene(sceneParams{numPoints: 7, rotation: yawRotation(0.1), translation: r3.Vector{X: 1}, seed: 13})
	est, err := EstimateYaw(cs, testIntrinsics, DefaultPoseConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.Valid, test.ShouldBeFalse)
	test.That(t, est.NumMatches, test.ShouldEqual, 7)
	test.That(t, mat.Equal(est.Rotation, spatialmath.Identity3()), test.ShouldBeTrue)

	empty := &CorrespondenceSet{}
	est, err = EstimateYaw(empty, testIntrinsics, DefaultPoseConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.Valid, test.ShouldBeFalse)

	// too few inliers to be trusted
	cs, _ = makeScene(sceneParams{numPoints: 12, rotation: yawRotation(0.1), translation: r3.Vector{X: 1}, seed: 14})
	est, err = EstimateYaw(cs, testIntrinsics, DefaultPoseConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.Valid, test.ShouldBeFalse)

	// points on a single horizontal line fit a pure rotation but do not pin it down
	line := lineScene(yawRotation(10*math.Pi/180), r3.Vector{})
	est, err = EstimateYaw(line, testIntrinsics, DefaultPoseConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.Valid, test.ShouldBeFalse)

	line.Points2 = append([]r2.Point(nil), line.Points1...)
	est, err = EstimateYaw(line, testIntrinsics, DefaultPoseConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.Valid, test.ShouldBeFalse)

	est, err = EstimateYaw(lineScene(yawRotation(0.1), r3.Vector{X: 1, Z: 0.2}), testIntrinsics, DefaultPoseConfig())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.Valid, test.ShouldBeFalse)
}

// lineScene projects 60 points of the 3D line y = 0.5, z = 8 into two views.
func lineScene(rot *mat.Dense, trans r3.Vector) *CorrespondenceSet {
	cs := &CorrespondenceSet{}
	for i := 0; i < 60; i++ {
		x1 := r3.Vector{X: -4 + 8*float64(i)/59, Y: 0.5, Z: 8}
		x2 := spatialmath.MulVec(rot, x1).Add(trans)
		u1, v1 := testIntrinsics.PointToPixel(x1.X, x1.Y, x1.Z)
		u2, v2 := testIntrinsics.PointToPixel(x2.X, x2.Y, x2.Z)
		cs.Points1 = append(cs.Points1, r2.Point{X: u1, Y: v1})
		cs.Points2 = append(cs.Points2, r2.Point{X: u2, Y: v2})
	}
	return cs
}

func TestEstimateYawMinInliersIsExclusive(t *testing.T) {
	cs, _ := makeScene(sceneParams{numPoints: 80, rotation: spatialmath.Identity3(), seed: 12})
	cs.Points2 = append([]r2.Point(nil), cs.Points1...)

	cfg := DefaultPoseConfig()
	cfg.MinInliers = 79
	est, err := EstimateYaw(cs, testIntrinsics, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.NumInliers, test.ShouldEqual, 80)
	test.That(t, est.Valid, test.ShouldBeTrue)

	cfg.MinInliers = 80
	est, err = EstimateYaw(cs, testIntrinsics, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.Valid, test.ShouldBeFalse)
}

func TestCorrespondenceSpread(t *testing.T) {
	square := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}}
	test.That(t, CorrespondenceSpread(square, nil), test.ShouldAlmostEqual, 1, 1e-12)

	line := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 2}, {X: 2, Y: 4}, {X: 3, Y: 6}}
	test.That(t, CorrespondenceSpread(line, nil), test.ShouldAlmostEqual, 0, 1e-12)

	// the point off the line is masked out
	mixed := append(append([]r2.Point{}, line...), r2.Point{X: 5, Y: -5})
	test.That(t, CorrespondenceSpread(mixed, nil), test.ShouldBeGreaterThan, 0.01)
	test.That(t, CorrespondenceSpread(mixed, []bool{true, true, true, true, false}), test.ShouldAlmostEqual, 0, 1e-12)

	test.That(t, CorrespondenceSpread(square[:2], nil), test.ShouldEqual, 0.)
	test.That(t, CorrespondenceSpread(nil, nil), test.ShouldEqual, 0.)
}

func TestEstimateYawContractViolations(t *testing.T) {
	cs := &CorrespondenceSet{Points1: make([]r2.Point, 10), Points2: make([]r2.Point, 9)}
	_, err := EstimateYaw(cs, testIntrinsics, DefaultPoseConfig())
	test.That(t, errors.Is(err, ErrMismatchedCorrespondences), test.ShouldBeTrue)

	_, err = NewCorrespondenceSet(make([]r2.Point, 3), make([]r2.Point, 4))
	test.That(t, errors.Is(err, ErrMismatchedCorrespondences), test.ShouldBeTrue)

	_, err = EstimateYaw(nil, testIntrinsics, DefaultPoseConfig())
	test.That(t, err, test.ShouldNotBeNil)

	good, _ := makeScene(sceneParams{numPoints: 20, rotation: yawRotation(0.1), translation: r3.Vector{X: 1}, seed: 15})
	bad := &PinholeCameraIntrinsics{Fx: 0, Fy: 1000, Ppx: 320, Ppy: 240}
	_, err = EstimateYaw(good, bad, DefaultPoseConfig())
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
	_, err = EstimateYawWithIntrinsics(good, testIntrinsics, bad, DefaultPoseConfig())
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)

	cfg := DefaultPoseConfig()
	cfg.Confidence = 1
	_, err = EstimateYaw(good, testIntrinsics, cfg)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEstimateYawDiagnostics(t *testing.T) {
	cs, _ := makeScene(sceneParams{numPoints: 60, rotation: yawRotation(-0.1), translation: r3.Vector{X: -1, Z: 0.3}, noisePx: 0.1, seed: 16})
	cfg := DefaultPoseConfig()
	cfg.Diagnostics = true

	est, err := EstimateYaw(cs, testIntrinsics, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.Diagnostics, test.ShouldNotBeNil)
	test.That(t, est.Diagnostics.EssentialMatrix, test.ShouldNotBeNil)
	test.That(t, len(est.Diagnostics.EssentialInliers), test.ShouldEqual, 60)
	test.That(t, est.Diagnostics.NumEssentialInliers, test.ShouldBeGreaterThanOrEqualTo, est.NumInliers)
	test.That(t, est.Diagnostics.Iterations, test.ShouldBeGreaterThan, 0)

	// the detail flag never changes the result itself
	cfg.Diagnostics = false
	plain, err := EstimateYaw(cs, testIntrinsics, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, plain.Yaw, test.ShouldEqual, est.Yaw)
	test.That(t, plain.NumInliers, test.ShouldEqual, est.NumInliers)
	test.That(t, plain.Valid, test.ShouldEqual, est.Valid)
}

func TestYawAndResidual(t *testing.T) {
	for _, theta := range []float64{-1, -0.2, 0, 0.3, 2} {
		rot := yawRotation(theta)
		yaw := YawFromRotation(rot)
		test.That(t, yaw, test.ShouldAlmostEqual, theta, 1e-9)
		test.That(t, ResidualAngle(rot, yaw), test.ShouldAlmostEqual, 0., 1e-7)
	}
	// a pitch has no yaw but a full rotation angle
	pitch := spatialmath.NewRotationMatrixFromR4AA(&spatialmath.R4AA{Theta: 0.3, RX: 1})
	yaw := YawFromRotation(pitch)
	test.That(t, yaw, test.ShouldAlmostEqual, 0., 1e-12)
	test.That(t, ResidualAngle(pitch, yaw), test.ShouldAlmostEqual, -0.3, 1e-9)
}

func TestPoseConfigValidate(t *testing.T) {
	cfg := DefaultPoseConfig()
	test.That(t, cfg.Validate("pose"), test.ShouldBeNil)

	bad := cfg
	bad.ThresholdPx = 0
	test.That(t, bad.Validate("pose"), test.ShouldNotBeNil)
	bad = cfg
	bad.MinInliers = 3
	test.That(t, bad.Validate("pose"), test.ShouldNotBeNil)
	bad = cfg
	bad.MaxIterations = 0
	test.That(t, bad.Validate("pose"), test.ShouldNotBeNil)
	bad = cfg
	bad.MaxResidualAngle = -1
	test.That(t, bad.Validate("pose").Error(), test.ShouldContainSubstring, "max_residual_angle")
	bad = cfg
	bad.MinCorrespondenceSpread = 1
	test.That(t, bad.Validate("pose").Error(), test.ShouldContainSubstring, "min_correspondence_spread")
	bad.MinCorrespondenceSpread = 0
	test.That(t, bad.Validate("pose"), test.ShouldBeNil)
}
