//go:build !gocv

package extract

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"
)

const denoiseRadius = 1.5

// equalize denoises with a median filter and equalizes lightness in Lab.
func equalize(img image.Image) image.Image {
	denoised := effect.Median(img, denoiseRadius)
	return equalizeLightness(imaging.Clone(denoised), claheClip, claheTiles)
}

// equalizeLightness applies contrast-limited adaptive histogram equalization
// to the CIE L* channel, leaving chroma untouched.
func equalizeLightness(img *image.NRGBA, clip float64, tiles int) *image.NRGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	n := w * h
	if n == 0 {
		return img
	}

	ls := make([]uint8, n)
	as := make([]float64, n)
	bs := make([]float64, n)
	for y := range h {
		row := img.Pix[y*img.Stride:]
		for x := range w {
			i := y*w + x
			c := colorful.Color{R: float64(row[4*x]) / 255, G: float64(row[4*x+1]) / 255, B: float64(row[4*x+2]) / 255}
			l, a, b := c.Lab()
			ls[i] = uint8(clamp01(l)*255 + 0.5)
			as[i], bs[i] = a, b
		}
	}

	eq := clahe(ls, w, h, clip, tiles)

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		src := img.Pix[y*img.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := range w {
			i := y*w + x
			r, g, b := colorful.Lab(float64(eq[i])/255, as[i], bs[i]).Clamped().RGB255()
			dst[4*x], dst[4*x+1], dst[4*x+2], dst[4*x+3] = r, g, b, src[4*x+3]
		}
	}
	return out
}

// clahe equalizes an 8-bit plane with per-tile clipped histograms and
// bilinear interpolation between neighbouring tile mappings.
func clahe(px []uint8, w, h int, clip float64, tiles int) []uint8 {
	tx, ty := min(tiles, w), min(tiles, h)
	tw, th := float64(w)/float64(tx), float64(h)/float64(ty)

	luts := make([][256]uint8, tx*ty)
	for j := range ty {
		y0, y1 := int(float64(j)*th), int(float64(j+1)*th)
		for i := range tx {
			x0, x1 := int(float64(i)*tw), int(float64(i+1)*tw)
			luts[j*tx+i] = tileLUT(px, w, x0, y0, x1, y1, clip)
		}
	}

	out := make([]uint8, len(px))
	for y := range h {
		fy := (float64(y)+0.5)/th - 0.5
		j0 := clampInt(int(math.Floor(fy)), 0, ty-1)
		j1 := clampInt(j0+1, 0, ty-1)
		wy := clamp01(fy - float64(j0))
		for x := range w {
			fx := (float64(x)+0.5)/tw - 0.5
			i0 := clampInt(int(math.Floor(fx)), 0, tx-1)
			i1 := clampInt(i0+1, 0, tx-1)
			wx := clamp01(fx - float64(i0))

			v := px[y*w+x]
			top := (1-wx)*float64(luts[j0*tx+i0][v]) + wx*float64(luts[j0*tx+i1][v])
			bot := (1-wx)*float64(luts[j1*tx+i0][v]) + wx*float64(luts[j1*tx+i1][v])
			out[y*w+x] = uint8((1-wy)*top + wy*bot + 0.5)
		}
	}
	return out
}

func tileLUT(px []uint8, stride, x0, y0, x1, y1 int, clip float64) [256]uint8 {
	var hist [256]int
	area := (x1 - x0) * (y1 - y0)
	var lut [256]uint8
	if area <= 0 {
		for v := range lut {
			lut[v] = uint8(v)
		}
		return lut
	}
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[px[y*stride+x]]++
		}
	}

	limit := max(1, int(clip*float64(area)/256))
	excess := 0
	for v := range hist {
		if hist[v] > limit {
			excess += hist[v] - limit
			hist[v] = limit
		}
	}
	// Spread the clipped mass evenly, then the remainder one bin at a time.
	bonus, rest := excess/256, excess%256
	for v := range hist {
		hist[v] += bonus
	}
	if rest > 0 {
		step := max(1, 256/rest)
		for v := 0; v < 256 && rest > 0; v += step {
			hist[v]++
			rest--
		}
	}

	scale := 255.0 / float64(area)
	sum := 0
	for v := range hist {
		sum += hist[v]
		lut[v] = uint8(min(255, float64(sum)*scale+0.5))
	}
	return lut
}

func clampInt(v, lo, hi int) int { return max(lo, min(hi, v)) }

func clamp01(v float64) float64 { return max(0, min(1, v)) }
