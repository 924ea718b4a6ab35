//go:build withcv

package alignment

import "go.viam.com/visualalign/vision/keypoints"

func init() {
	newAKAZEDetector = func() keypoints.Detector { return keypoints.NewAKAZEDetector() }
}
