//go:build aruco_gocv

package fiducial

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/MeKo-Tech/ballotcount/internal/utils"
	"gocv.io/x/gocv"
)

// ErrNoBackend is never returned when the gocv backend is linked.
var ErrNoBackend = errors.New("fiducial: no marker detector linked")

var dictionaries = map[string]gocv.ArucoDictionaryCode{
	"4x4_50":  gocv.ArucoDict4x4_50,
	"4x4_100": gocv.ArucoDict4x4_100,
	"5x5_50":  gocv.ArucoDict5x5_50,
	"6x6_50":  gocv.ArucoDict6x6_50,
}

type arucoDetector struct {
	dict gocv.ArucoDictionaryCode
	ids  map[int]Corner
}

func newDefaultDetector(opts Options) (Detector, error) {
	code, ok := dictionaries[opts.Dictionary]
	if !ok {
		return nil, fmt.Errorf("fiducial: unknown aruco dictionary %q", opts.Dictionary)
	}
	return &arucoDetector{dict: code, ids: opts.IDs}, nil
}

// Detect runs the OpenCV ArUco detector. A fresh detector is built per call
// since gocv objects are not safe for concurrent use.
func (d *arucoDetector) Detect(ctx context.Context, img image.Image) (MarkerSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("fiducial: convert image: %w", err)
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorRGBToGray)

	params := gocv.NewArucoDetectorParameters()
	det := gocv.NewArucoDetectorWithParams(gocv.GetPredefinedDictionary(d.dict), params)
	defer det.Close()

	corners, ids, _ := det.DetectMarkers(gray)
	set := make(MarkerSet, 4)
	for i, id := range ids {
		c, ok := d.ids[id]
		if !ok || i >= len(corners) {
			continue
		}
		pts := make([]utils.Point, 0, len(corners[i]))
		for _, p := range corners[i] {
			pts = append(pts, utils.Point{X: float64(p.X), Y: float64(p.Y)})
		}
		set[c] = utils.Centroid(pts)
	}
	return set, nil
}
