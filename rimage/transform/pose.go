package transform

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// PoseFromColumnMajor re-indexes a 4x4 homogeneous pose stored column by column (as graphics
// APIs do) into a row-major matrix. Values are not altered.
func PoseFromColumnMajor(data []float64) (*mat.Dense, error) {
	if len(data) != 16 {
		return nil, errors.Errorf("column-major pose must have length of 16. Has length of %d", len(data))
	}
	pose := mat.NewDense(4, 4, nil)
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			pose.Set(row, col, data[4*col+row])
		}
	}
	return pose, nil
}

// NewPose assembles a 4x4 homogeneous pose from a 3x3 rotation and a translation.
func NewPose(rotation mat.Matrix, translation r3.Vector) *mat.Dense {
	pose := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			pose.Set(i, j, rotation.At(i, j))
		}
	}
	pose.Set(0, 3, translation.X)
	pose.Set(1, 3, translation.Y)
	pose.Set(2, 3, translation.Z)
	pose.Set(3, 3, 1)
	return pose
}

// PoseRotation copies the upper-left 3x3 rotation block of a pose.
func PoseRotation(pose mat.Matrix) *mat.Dense {
	rot := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot.Set(i, j, pose.At(i, j))
		}
	}
	return rot
}

// PoseTranslation returns the translation column of a pose.
func PoseTranslation(pose mat.Matrix) r3.Vector {
	return r3.Vector{X: pose.At(0, 3), Y: pose.At(1, 3), Z: pose.At(2, 3)}
}

// InvertPose inverts a rigid 4x4 transform using the transpose of its rotation.
func InvertPose(pose mat.Matrix) *mat.Dense {
	rot := PoseRotation(pose)
	t := PoseTranslation(pose)
	var rotT mat.Dense
	rotT.CloneFrom(rot.T())
	tInv := r3.Vector{
		X: -(rotT.At(0, 0)*t.X + rotT.At(0, 1)*t.Y + rotT.At(0, 2)*t.Z),
		Y: -(rotT.At(1, 0)*t.X + rotT.At(1, 1)*t.Y + rotT.At(1, 2)*t.Z),
		Z: -(rotT.At(2, 0)*t.X + rotT.At(2, 1)*t.Y + rotT.At(2, 2)*t.Z),
	}
	return NewPose(&rotT, tInv)
}
