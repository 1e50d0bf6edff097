package fiducial

import (
	"context"
	"image"
)

// Detector finds corner markers in a raw ballot image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) (MarkerSet, error)
}

// Options tunes the built-in detector backend.
type Options struct {
	// Dictionary names the ArUco dictionary the forms are printed with.
	Dictionary string
	// IDs maps printed marker ids to corners. Defaults to 0..3 = TL, TR, BR, BL.
	IDs map[int]Corner
}

// DefaultOptions matches the printed ballot forms.
func DefaultOptions() Options {
	return Options{
		Dictionary: "4x4_50",
		IDs:        map[int]Corner{0: TopLeft, 1: TopRight, 2: BottomRight, 3: BottomLeft},
	}
}

// NewDetector returns the detector compiled into this binary. Without the
// aruco_gocv build tag it returns a detector that always fails with ErrNoBackend.
func NewDetector(opts Options) (Detector, error) {
	if opts.IDs == nil {
		opts.IDs = DefaultOptions().IDs
	}
	return newDefaultDetector(opts)
}
