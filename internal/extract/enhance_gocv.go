//go:build gocv

package extract

import (
	"image"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

const (
	bilateralDiameter = 9
	bilateralSigma    = 75
)

// equalize runs a bilateral filter, then CLAHE on the L channel of Lab.
// Images OpenCV cannot take are returned unchanged.
func equalize(img image.Image) image.Image {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return img
	}
	defer src.Close()

	denoised := gocv.NewMat()
	defer denoised.Close()
	gocv.BilateralFilter(src, &denoised, bilateralDiameter, bilateralSigma, bilateralSigma)

	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(denoised, &lab, gocv.ColorBGRToLab)

	planes := gocv.Split(lab)
	defer func() {
		for _, p := range planes {
			p.Close()
		}
	}()

	// CLAHE objects are not safe for concurrent use; one per call.
	clahe := gocv.NewCLAHEWithParams(claheClip, image.Point{X: claheTiles, Y: claheTiles})
	defer clahe.Close()
	l := gocv.NewMat()
	clahe.Apply(planes[0], &l)
	planes[0].Close()
	planes[0] = l

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge(planes, &merged)

	out := gocv.NewMat()
	defer out.Close()
	gocv.CvtColor(merged, &out, gocv.ColorLabToBGR)

	res, err := out.ToImage()
	if err != nil {
		return img
	}
	return imaging.Clone(res)
}
