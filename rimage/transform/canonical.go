package transform

import (
	"image"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/visualalign/rimage"
	"go.viam.com/visualalign/spatialmath"
	"go.viam.com/visualalign/utils"
)

// ErrUndefinedRotationAxis is returned when the device's lateral axis points straight down, so no
// unique leveling rotation exists.
var ErrUndefinedRotationAxis = errors.New("ideal rotation axis is undefined: lateral axis is parallel to world up")

// canonicalWarp resamples images for WarpToCanonical. Builds with the withcv tag use OpenCV.
var canonicalWarp = rimage.WarpPerspective

// rotationAxisEpsilon is the cross product norm below which the lateral axis counts as vertical.
const rotationAxisEpsilon = 1e-9

// phoneToCamera maps device axes to camera axes. The device x axis runs from the front camera to
// the bottom of the device.
var phoneToCamera = mat.NewDense(3, 3, []float64{
	0, 1, 0,
	1, 0, 0,
	0, 0, -1,
})

// IdealRotation returns the rotation, in world coordinates, that takes a device held upright to
// the orientation of pose. The polar angle is the angle between world up and the device's -x axis.
// A device already upright yields the identity rotation.
func IdealRotation(pose mat.Matrix) (*spatialmath.R4AA, error) {
	lateral := spatialmath.Column(pose, 0).Mul(-1)
	polar := utils.SafeAcos(lateral.Y)
	axis := r3.Vector{X: 0, Y: 1, Z: 0}.Cross(lateral)
	if axis.Norm() < rotationAxisEpsilon {
		if lateral.Y > 0 {
			return spatialmath.NewR4AA(), nil
		}
		return nil, ErrUndefinedRotationAxis
	}
	return spatialmath.NewR4AAFromAxis(polar, axis.Normalize()), nil
}

// CanonicalHomography builds the pure rotation homography K * R * K^-1 where R is the ideal
// rotation re-expressed in the camera frame of a device with rotation poseRotation.
func CanonicalHomography(
	intrinsics *PinholeCameraIntrinsics,
	poseRotation mat.Matrix,
	ideal *spatialmath.R4AA,
) (*Homography, error) {
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	if ideal == nil {
		return nil, errors.New("ideal rotation is nil")
	}
	var phoneInWorld mat.Dense
	phoneInWorld.Mul(poseRotation, phoneToCamera)
	// the inverse of a rotation is its transpose
	axisCam := spatialmath.MulVec(phoneInWorld.T(), ideal.Axis())
	rotCam := spatialmath.NewRotationMatrixFromR4AA(spatialmath.NewR4AAFromAxis(ideal.Theta, axisCam))

	var h mat.Dense
	h.Mul(intrinsics.GetCameraMatrix(), rotCam)
	h.Mul(&h, intrinsics.GetInverseCameraMatrix())
	return NewHomographyFromMatrix(&h)
}

// WarpToCanonical resamples img as seen by an upright, forward-facing virtual camera. The output has
// the input's size; areas with no source pixels are left black. The input is never modified.
func WarpToCanonical(
	img image.Image,
	intrinsics *PinholeCameraIntrinsics,
	poseRotation mat.Matrix,
	ideal *spatialmath.R4AA,
) (image.Image, error) {
	h, err := CanonicalHomography(intrinsics, poseRotation, ideal)
	if err != nil {
		return nil, err
	}
	return canonicalWarp(img, h.Matrix())
}
