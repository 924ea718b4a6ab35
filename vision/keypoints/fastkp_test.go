package keypoints

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"go.viam.com/test"
)

func createTestImage() *image.Gray {
	rectImage := image.NewGray(image.Rect(0, 0, 300, 200))
	whiteRect := image.Rect(50, 30, 100, 150)
	white := color.Gray{255}
	black := color.Gray{0}
	draw.Draw(rectImage, rectImage.Bounds(), &image.Uniform{black}, image.Point{0, 0}, draw.Src)
	draw.Draw(rectImage, whiteRect, &image.Uniform{white}, image.Point{0, 0}, draw.Src)
	return rectImage
}

func TestFASTConfigValidate(t *testing.T) {
	test.That(t, DefaultFASTConfig().Validate("fast"), test.ShouldBeNil)

	cfg := DefaultFASTConfig()
	cfg.Threshold = 0
	test.That(t, cfg.Validate("fast"), test.ShouldNotBeNil)

	cfg = DefaultFASTConfig()
	cfg.NMatchesCircle = 17
	err := cfg.Validate("fast")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "n_matches")

	cfg = DefaultFASTConfig()
	cfg.NMSWinSize = 0
	test.That(t, cfg.Validate("fast"), test.ShouldNotBeNil)
}

func TestHasContiguousRun(t *testing.T) {
	tests := []struct {
		s        []bool
		n        int
		expected bool
	}{
		{[]bool{false, false, false, false, false}, 3, false},
		{[]bool{true, true, true, true, true, true, true}, 3, true},
		{[]bool{false, true, true, true, false, true, true}, 3, true},
		{[]bool{false, true, true, false, false, true, false}, 3, false},
		// runs wrap around the circle
		{[]bool{true, true, false, false, false, true, true}, 4, true},
	}
	for _, tst := range tests {
		test.That(t, hasContiguousRun(tst.s, tst.n), test.ShouldEqual, tst.expected)
	}
}

func TestDetectFASTRectangle(t *testing.T) {
	rectImage := createTestImage()
	kps, scores := DetectFAST(rectImage, DefaultFASTConfig(), 0, 0)
	test.That(t, len(kps), test.ShouldEqual, len(scores))
	test.That(t, len(kps), test.ShouldBeBetweenOrEqual, 4, 8)

	corners := []image.Point{{50, 30}, {99, 30}, {50, 149}, {99, 149}}
	for _, c := range corners {
		found := false
		for _, kp := range kps {
			if absInt(kp.X-c.X) <= 2 && absInt(kp.Y-c.Y) <= 2 {
				found = true
			}
		}
		test.That(t, found, test.ShouldBeTrue)
	}
	for _, s := range scores {
		test.That(t, s, test.ShouldBeGreaterThan, 0)
	}
}

func TestDetectFASTBorderAndCap(t *testing.T) {
	rectImage := createTestImage()
	// the rectangle corners at y = 30 are within 40 pixels of the top edge
	kps, _ := DetectFAST(rectImage, DefaultFASTConfig(), 40, 0)
	for _, kp := range kps {
		test.That(t, kp.Y, test.ShouldBeGreaterThanOrEqualTo, 40)
		test.That(t, kp.X, test.ShouldBeGreaterThanOrEqualTo, 40)
	}

	all, _ := DetectFAST(rectImage, DefaultFASTConfig(), 0, 0)
	capped, _ := DetectFAST(rectImage, DefaultFASTConfig(), 0, 2)
	test.That(t, len(capped), test.ShouldEqual, 2)
	test.That(t, len(all), test.ShouldBeGreaterThan, 2)

	// uniform images have no corners
	uniformImg := image.NewGray(image.Rect(0, 0, 64, 64))
	kps, scores := DetectFAST(uniformImg, DefaultFASTConfig(), 0, 0)
	test.That(t, kps, test.ShouldBeEmpty)
	test.That(t, scores, test.ShouldBeEmpty)

	// too small for the border
	kps, _ = DetectFAST(image.NewGray(image.Rect(0, 0, 10, 10)), DefaultFASTConfig(), 5, 0)
	test.That(t, kps, test.ShouldBeEmpty)
}

func TestStrongestKeypoints(t *testing.T) {
	kps := []image.Point{{0, 0}, {1, 0}, {2, 0}, {3, 0}, {4, 0}}
	scores := []int{5, 9, 5, 1, 9}
	out, outScores := strongestKeypoints(kps, scores, 3)
	test.That(t, out, test.ShouldResemble, []image.Point{{0, 0}, {1, 0}, {4, 0}})
	test.That(t, outScores, test.ShouldResemble, []int{5, 9, 9})
}

func TestOrientationOfGradient(t *testing.T) {
	// brightness increasing to the right puts the centroid on +x
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetGray(x, y, color.Gray{uint8(x * 4)})
		}
	}
	orientations := computeKeypointsOrientations(img, []image.Point{{32, 32}})
	test.That(t, orientations[0], test.ShouldAlmostEqual, 0, 1e-9)

	// brightness increasing downwards puts it on +y
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetGray(x, y, color.Gray{uint8(y * 4)})
		}
	}
	orientations = computeKeypointsOrientations(img, []image.Point{{32, 32}})
	test.That(t, orientations[0], test.ShouldAlmostEqual, 1.5707963267948966, 1e-9)
}
