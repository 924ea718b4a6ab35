package utils

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestDegRad(t *testing.T) {
	test.That(t, DegToRad(180), test.ShouldAlmostEqual, math.Pi)
	test.That(t, RadToDeg(math.Pi/2), test.ShouldAlmostEqual, 90.)
	test.That(t, RadToDeg(DegToRad(10)), test.ShouldAlmostEqual, 10.)
}

func TestClampF64(t *testing.T) {
	test.That(t, ClampF64(-2, -1, 1), test.ShouldEqual, -1.)
	test.That(t, ClampF64(2, -1, 1), test.ShouldEqual, 1.)
	test.That(t, ClampF64(0.5, -1, 1), test.ShouldEqual, 0.5)
}

func TestWrapAngle(t *testing.T) {
	tests := []struct {
		in       float64
		expected float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{0.25, 0.25},
	}
	for _, tst := range tests {
		test.That(t, WrapAngle(tst.in), test.ShouldAlmostEqual, tst.expected, 1e-12)
	}
}

func TestSafeAcos(t *testing.T) {
	test.That(t, SafeAcos(1+1e-12), test.ShouldEqual, 0.)
	test.That(t, SafeAcos(-1-1e-12), test.ShouldAlmostEqual, math.Pi)
	test.That(t, math.IsNaN(SafeAcos(0.3)), test.ShouldBeFalse)
}
