package extract

import (
	"image"

	"github.com/anthonynsimon/bild/blend"
	"github.com/anthonynsimon/bild/convolution"
)

const (
	claheClip     = 2.0
	claheTiles    = 8
	sharpenWeight = 0.3
)

// enhance restores legibility of an enlarged name cell: edge-preserving
// denoise, local contrast equalization of lightness, then sharpening.
// Builds with the gocv tag run the first two steps through OpenCV.
func enhance(img image.Image) image.Image {
	if img.Bounds().Empty() {
		return img
	}
	return sharpen(equalize(img))
}

// sharpen blends a 3x3 high-boost filtered copy over the image.
func sharpen(img image.Image) image.Image {
	k := convolution.NewKernel(3, 3)
	k.Matrix = []float64{
		-1, -1, -1,
		-1, 9, -1,
		-1, -1, -1,
	}
	boosted := convolution.Convolve(img, k, &convolution.Options{Bias: 0, Wrap: false, KeepAlpha: true})
	return blend.Opacity(img, boosted, sharpenWeight)
}

