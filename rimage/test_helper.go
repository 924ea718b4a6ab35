package rimage

import (
	"image"
	"image/color"
	"image/draw"
	"math/rand"
)

// NewSyntheticTexture draws numRects random gray rectangles over a mid-gray background. The result
// is fully determined by seed, which makes it a repeatable feature-rich test image.
func NewSyntheticTexture(width, height, numRects int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.Gray{128}}, image.Point{}, draw.Src)
	for i := 0; i < numRects; i++ {
		x0 := rng.Intn(width)
		y0 := rng.Intn(height)
		w := 4 + rng.Intn(width/8+1)
		h := 4 + rng.Intn(height/8+1)
		c := color.Gray{uint8(rng.Intn(256))}
		draw.Draw(img, image.Rect(x0, y0, x0+w, y0+h), &image.Uniform{c}, image.Point{}, draw.Src)
	}
	return img
}
