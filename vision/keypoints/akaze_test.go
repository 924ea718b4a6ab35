//go:build withcv

package keypoints

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/visualalign/rimage"
)

func TestAKAZEDetect(t *testing.T) {
	img := rimage.NewSyntheticTexture(320, 240, 60, 2)
	kps, err := NewAKAZEDetector().Detect(img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, kps.Len(), test.ShouldBeGreaterThan, 0)
	test.That(t, len(kps.Descriptors), test.ShouldEqual, kps.Len())
	for _, d := range kps.Descriptors {
		// 61 byte descriptors
		test.That(t, len(d), test.ShouldEqual, 8)
	}

	// descriptors match themselves
	matches, err := MatchKeypoints(kps.Descriptors, kps.Descriptors, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(matches), test.ShouldBeGreaterThan, 0)

	_, err = NewAKAZEDetector().Detect(nil)
	test.That(t, err, test.ShouldNotBeNil)
}
