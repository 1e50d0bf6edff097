package utils

import (
	"errors"
	"image"

	"github.com/MeKo-Tech/ballotcount/internal/mempool"
	"github.com/disintegration/imaging"
)

// ImageToCHW converts img into a planar RGB float32 tensor scaled to [0,1].
// The buffer comes from mempool; callers return it with mempool.PutFloat32.
func ImageToCHW(img image.Image) ([]float32, int, int, error) {
	if img == nil {
		return nil, 0, 0, &ImageProcessingError{Operation: "normalize", Err: errors.New("input image is nil")}
	}
	nrgba := imaging.Clone(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	if w <= 0 || h <= 0 {
		return nil, 0, 0, &ImageProcessingError{Operation: "normalize", Err: errors.New("invalid image dimensions")}
	}

	plane := w * h
	data := mempool.GetFloat32(3 * plane)
	for y := range h {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := range w {
			i := y*w + x
			data[i] = float32(row[4*x]) / 255
			data[plane+i] = float32(row[4*x+1]) / 255
			data[2*plane+i] = float32(row[4*x+2]) / 255
		}
	}
	return data, w, h, nil
}
