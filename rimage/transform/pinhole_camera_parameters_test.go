package transform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestCheckValid(t *testing.T) {
	var nilIntrinsics *PinholeCameraIntrinsics
	test.That(t, errors.Is(nilIntrinsics.CheckValid(), ErrNoIntrinsics), test.ShouldBeTrue)

	tests := []struct {
		name   string
		params PinholeCameraIntrinsics
		valid  bool
	}{
		{"valid", PinholeCameraIntrinsics{Fx: 1000, Fy: 1000, Ppx: 320, Ppy: 240}, true},
		{"valid with size", PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 1, Fy: 1}, true},
		{"zero fx", PinholeCameraIntrinsics{Fx: 0, Fy: 1000, Ppx: 320, Ppy: 240}, false},
		{"negative fy", PinholeCameraIntrinsics{Fx: 1000, Fy: -1, Ppx: 320, Ppy: 240}, false},
		{"negative ppx", PinholeCameraIntrinsics{Fx: 1000, Fy: 1000, Ppx: -3, Ppy: 240}, false},
		{"negative ppy", PinholeCameraIntrinsics{Fx: 1000, Fy: 1000, Ppx: 3, Ppy: -240}, false},
		{"negative width", PinholeCameraIntrinsics{Width: -1, Fx: 1000, Fy: 1000}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.params.CheckValid()
			if tc.valid {
				test.That(t, err, test.ShouldBeNil)
			} else {
				test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
			}
		})
	}
}

func TestCameraMatrixRoundTrip(t *testing.T) {
	params := &PinholeCameraIntrinsics{Fx: 1000.5, Fy: 999.25, Ppx: 320.125, Ppy: 240.75}
	k := params.GetCameraMatrix()
	expected := mat.NewDense(3, 3, []float64{1000.5, 0, 320.125, 0, 999.25, 240.75, 0, 0, 1})
	test.That(t, mat.Equal(k, expected), test.ShouldBeTrue)

	back, err := NewPinholeCameraIntrinsicsFromMatrix(k)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldResemble, params)

	var prod mat.Dense
	prod.Mul(k, params.GetInverseCameraMatrix())
	test.That(t, mat.EqualApprox(&prod, eye(3), 1e-12), test.ShouldBeTrue)

	_, err = NewPinholeCameraIntrinsicsFromMatrix(mat.NewDense(2, 3, nil))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewPinholeCameraIntrinsicsFromMatrix(mat.NewDense(3, 3, nil))
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)

	var nilIntrinsics *PinholeCameraIntrinsics
	test.That(t, nilIntrinsics.GetCameraMatrix(), test.ShouldBeNil)
}

func TestIntrinsicsFromVector(t *testing.T) {
	params, err := NewPinholeCameraIntrinsicsFromVector([]float64{1000, 1001, 320, 240})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, params.Fx, test.ShouldEqual, 1000.)
	test.That(t, params.Fy, test.ShouldEqual, 1001.)
	test.That(t, params.Ppx, test.ShouldEqual, 320.)
	test.That(t, params.Ppy, test.ShouldEqual, 240.)

	_, err = NewPinholeCameraIntrinsicsFromVector([]float64{1, 2, 3})
	test.That(t, err, test.ShouldBeError, errors.New("packed intrinsics must have length of 4. Has length of 3"))
	_, err = NewPinholeCameraIntrinsicsFromVector([]float64{0, 2, 3, 4})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestIntrinsicsFromJSONFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "intrinsics.json")
	err := os.WriteFile(path, []byte(`{"fx": 1000, "fy": 1000, "ppx": 320, "ppy": 240}`), 0o600)
	test.That(t, err, test.ShouldBeNil)
	params, err := NewPinholeCameraIntrinsicsFromJSONFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, params, test.ShouldResemble, &PinholeCameraIntrinsics{Fx: 1000, Fy: 1000, Ppx: 320, Ppy: 240})

	_, err = NewPinholeCameraIntrinsicsFromJSONFile(filepath.Join(dir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)

	bad := filepath.Join(dir, "bad.json")
	test.That(t, os.WriteFile(bad, []byte(`{"fx": 0}`), 0o600), test.ShouldBeNil)
	_, err = NewPinholeCameraIntrinsicsFromJSONFile(bad)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
}

func TestScaleAndProjection(t *testing.T) {
	half := testIntrinsics.Scale(2)
	test.That(t, half, test.ShouldResemble, &PinholeCameraIntrinsics{Width: 320, Height: 240, Fx: 500, Fy: 500, Ppx: 160, Ppy: 120})

	u, v := testIntrinsics.PointToPixel(1, -0.5, 10)
	test.That(t, u, test.ShouldAlmostEqual, 420.)
	test.That(t, v, test.ShouldAlmostEqual, 190.)
	n := testIntrinsics.PixelToNormalized(r2.Point{X: u, Y: v})
	test.That(t, n.X, test.ShouldAlmostEqual, 0.1)
	test.That(t, n.Y, test.ShouldAlmostEqual, -0.05)

	u, v = testIntrinsics.PointToPixel(1, 1, 0)
	test.That(t, u, test.ShouldEqual, -1.)
	test.That(t, v, test.ShouldEqual, -1.)
}
