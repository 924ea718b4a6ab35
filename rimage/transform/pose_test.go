package transform

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/visualalign/spatialmath"
)

func TestPoseFromColumnMajor(t *testing.T) {
	data := make([]float64, 16)
	for i := range data {
		data[i] = float64(i)
	}
	pose, err := PoseFromColumnMajor(data)
	test.That(t, err, test.ShouldBeNil)
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			test.That(t, pose.At(row, col), test.ShouldEqual, data[4*col+row])
		}
	}
	test.That(t, PoseTranslation(pose), test.ShouldResemble, r3.Vector{X: 12, Y: 13, Z: 14})

	_, err = PoseFromColumnMajor(data[:15])
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPoseRotationTranslation(t *testing.T) {
	rot := spatialmath.NewRotationMatrixFromR4AA(&spatialmath.R4AA{Theta: 0.7, RX: 1, RY: 2, RZ: 3})
	trans := r3.Vector{X: 1, Y: -2, Z: 3}
	pose := NewPose(rot, trans)
	test.That(t, mat.Equal(PoseRotation(pose), rot), test.ShouldBeTrue)
	test.That(t, PoseTranslation(pose), test.ShouldResemble, trans)
	test.That(t, pose.At(3, 3), test.ShouldEqual, 1.)

	var prod mat.Dense
	prod.Mul(pose, InvertPose(pose))
	test.That(t, mat.EqualApprox(&prod, eye(4), 1e-12), test.ShouldBeTrue)
}

func TestHomography(t *testing.T) {
	_, err := NewHomographyFromMatrix(mat.NewDense(2, 3, nil))
	test.That(t, err.Error(), test.ShouldEqual, "homography must be 3x3, got 2x3")

	m := mat.NewDense(3, 3, []float64{1, 0, 5, 0, 1, -3, 0, 0, 1})
	h, err := NewHomographyFromMatrix(m)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, h.At(0, 2), test.ShouldEqual, 5.)
	test.That(t, h.At(1, 2), test.ShouldEqual, -3.)

	// the homography owns its values
	m.Set(0, 2, 7)
	test.That(t, h.At(0, 2), test.ShouldEqual, 5.)
	out := h.Matrix()
	out.Set(1, 2, 0)
	test.That(t, h.At(1, 2), test.ShouldEqual, -3.)
}
