//go:build withcv

package transform

import "go.viam.com/visualalign/rimage"

func init() {
	canonicalWarp = rimage.WarpPerspectiveCV
}
