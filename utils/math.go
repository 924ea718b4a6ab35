// Package utils contains small numerical and concurrency helpers shared by the
// image and geometry packages.
package utils

import (
	"math"
)

// Epsilon is the default tolerance for float comparisons.
const Epsilon = 1e-9

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// ClampF64 clamps num to [min, max].
func ClampF64(num, min, max float64) float64 {
	if num < min {
		return min
	}
	if num > max {
		return max
	}
	return num
}

// WrapAngle maps an angle in radians to (-pi, pi].
func WrapAngle(angle float64) float64 {
	wrapped := math.Mod(angle, 2*math.Pi)
	if wrapped <= -math.Pi {
		wrapped += 2 * math.Pi
	} else if wrapped > math.Pi {
		wrapped -= 2 * math.Pi
	}
	return wrapped
}

// SafeAcos is math.Acos with its argument clamped to [-1, 1] so that rounding
// noise on a cosine never produces NaN.
func SafeAcos(x float64) float64 {
	return math.Acos(ClampF64(x, -1, 1))
}
