//go:build !aruco_gocv

package fiducial

import (
	"context"
	"errors"
	"image"
)

var ErrNoBackend = errors.New("fiducial: no marker detector linked; build with -tags=aruco_gocv or provide marker sidecar files")

type defaultDetector struct{}

func newDefaultDetector(Options) (Detector, error) { return defaultDetector{}, nil }

func (defaultDetector) Detect(context.Context, image.Image) (MarkerSet, error) {
	return nil, ErrNoBackend
}
