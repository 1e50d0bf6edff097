package rectify

import (
	"image"

	"github.com/MeKo-Tech/ballotcount/internal/utils"
	"github.com/disintegration/imaging"
)

// canonicalCorners returns the destination corners TL, TR, BR, BL of a w x h frame.
func canonicalCorners(w, h int) []utils.Point {
	return []utils.Point{
		{X: 0, Y: 0},
		{X: float64(w - 1), Y: 0},
		{X: float64(w - 1), Y: float64(h - 1)},
		{X: 0, Y: float64(h - 1)},
	}
}

// warpPerspective resamples src into a dstW x dstH frame. H maps destination
// pixels to source coordinates; sampling is bilinear and pixels that map
// outside src are black.
func warpPerspective(src image.Image, H Homography, dstW, dstH int) *image.NRGBA {
	in := imaging.Clone(src) // origin at (0,0), tightly indexed Pix
	out := image.NewNRGBA(image.Rect(0, 0, dstW, dstH))
	for y := range dstH {
		row := out.Pix[y*out.Stride:]
		for x := range dstW {
			sx, sy := H.Apply(float64(x), float64(y))
			bilinearSample(in, sx, sy, row[4*x:4*x+4])
		}
	}
	return out
}

// bilinearSample writes the interpolated pixel at (x, y) into px.
func bilinearSample(src *image.NRGBA, x, y float64, px []uint8) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	x, y = snap(x, float64(w-1)), snap(y, float64(h-1))
	if x < 0 || y < 0 || x > float64(w-1) || y > float64(h-1) {
		px[0], px[1], px[2], px[3] = 0, 0, 0, 255
		return
	}
	x0, y0 := int(x), int(y)
	x1, y1 := min(x0+1, w-1), min(y0+1, h-1)
	fx, fy := x-float64(x0), y-float64(y0)

	i00 := y0*src.Stride + 4*x0
	i10 := y0*src.Stride + 4*x1
	i01 := y1*src.Stride + 4*x0
	i11 := y1*src.Stride + 4*x1
	for c := range 4 {
		top := lerp(float64(src.Pix[i00+c]), float64(src.Pix[i10+c]), fx)
		bot := lerp(float64(src.Pix[i01+c]), float64(src.Pix[i11+c]), fx)
		px[c] = uint8(lerp(top, bot, fy) + 0.5)
	}
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

// snap pulls coordinates within solver noise of the image border onto it.
func snap(v, hi float64) float64 {
	const eps = 1e-6
	switch {
	case v < 0 && v > -eps:
		return 0
	case v > hi && v < hi+eps:
		return hi
	}
	return v
}
