package extract

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// trim drops n pixels from the top and left edges, each only when that
// dimension is larger than n.
func trim(img image.Image, n int) image.Image {
	b := img.Bounds()
	top, left := 0, 0
	if b.Dy() > n {
		top = n
	}
	if b.Dx() > n {
		left = n
	}
	if top == 0 && left == 0 {
		return img
	}
	return imaging.Crop(img, image.Rect(b.Min.X+left, b.Min.Y+top, b.Max.X, b.Max.Y))
}

// fitName scales img to fit a size x size white canvas preserving aspect
// ratio, enhancing it first when it was enlarged by more than enhanceAbove.
func fitName(img image.Image, size int, enhanceAbove float64) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	nw := max(1, min(size, int(float64(w)*scale)))
	nh := max(1, min(size, int(float64(h)*scale)))

	filter := imaging.Box
	if scale > 1 {
		filter = imaging.Lanczos
	}
	resized := imaging.Resize(img, nw, nh, filter)
	var placed image.Image = resized
	if scale > enhanceAbove {
		placed = enhance(resized)
	}

	canvas := imaging.New(size, size, color.White)
	return imaging.Paste(canvas, placed, image.Pt((size-nw)/2, (size-nh)/2))
}

// frameMark centres img unscaled on a size x size white canvas, keeping only
// its top-left size x size part when it is larger.
func frameMark(img image.Image, size int) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	aw, ah := min(w, size), min(h, size)
	if aw != w || ah != h {
		img = imaging.Crop(img, image.Rect(b.Min.X, b.Min.Y, b.Min.X+aw, b.Min.Y+ah))
	}
	canvas := imaging.New(size, size, color.White)
	return imaging.Paste(canvas, img, image.Pt(max(0, (size-w)/2), max(0, (size-h)/2)))
}
