// Package rectify maps a photographed ballot into the canonical frame the
// layout templates are calibrated against, using the form's corner markers.
package rectify

import (
	"errors"
	"fmt"
	"image"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
	"github.com/MeKo-Tech/ballotcount/internal/fiducial"
)

// Result describes a rectification.
type Result struct {
	Image     *image.NRGBA
	Quad      fiducial.Quad
	Estimated fiducial.Corner // -1 when all four markers were observed
	Transform Homography      // canonical -> source
}

// Rectifier warps ballots into the canonical frame. It holds no mutable state
// and may be shared between workers.
type Rectifier struct {
	cfg Config
}

// New creates a rectifier.
func New(cfg Config) (*Rectifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Rectifier{cfg: cfg}, nil
}

// Config returns the rectifier configuration.
func (r *Rectifier) Config() Config { return r.cfg }

// Apply completes the marker set and resamples img into the canonical frame.
// id names the debug images written when a debug directory is configured.
// It fails with ballot.ErrInsufficientMarkers when fewer than three markers
// were observed, and ballot.ErrMissingMarkerEstimationFailed when the missing
// one cannot be estimated.
func (r *Rectifier) Apply(id string, img image.Image, markers fiducial.MarkerSet) (*Result, error) {
	if img == nil {
		return nil, errors.New("rectify: nil image")
	}
	quad, estimated, err := fiducial.Complete(markers)
	if err != nil {
		return nil, err
	}

	// Collinear or coincident markers carry no usable geometry.
	H, err := computeHomography(canonicalCorners(r.cfg.Width, r.cfg.Height), quad.Points())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ballot.ErrInsufficientMarkers, err)
	}
	dst := warpPerspective(img, H, r.cfg.Width, r.cfg.Height)

	if r.cfg.DebugDir != "" {
		_ = dumpOverlayPNG(debugPath(r.cfg.DebugDir, id, "overlay"), img, quad.Points())
		_ = dumpComparePNG(debugPath(r.cfg.DebugDir, id, "compare"), img, quad.Points(), dst)
	}

	return &Result{Image: dst, Quad: quad, Estimated: estimated, Transform: H}, nil
}
