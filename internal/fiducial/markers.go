// Package fiducial models the four corner markers printed on every ballot
// form. Detectors report whatever markers they find; Complete turns a set of
// three or four observations into the ordered quad used for rectification.
package fiducial

import (
	"fmt"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
	"github.com/MeKo-Tech/ballotcount/internal/utils"
)

// Corner identifies a fiducial marker by its position on the form.
type Corner int

const (
	TopLeft Corner = iota
	TopRight
	BottomRight
	BottomLeft
)

// Corners lists all marker ids in rectification order.
var Corners = [4]Corner{TopLeft, TopRight, BottomRight, BottomLeft}

func (c Corner) String() string {
	switch c {
	case TopLeft:
		return "TL"
	case TopRight:
		return "TR"
	case BottomRight:
		return "BR"
	case BottomLeft:
		return "BL"
	default:
		return fmt.Sprintf("Corner(%d)", int(c))
	}
}

// Valid reports whether c is one of the four marker ids.
func (c Corner) Valid() bool { return c >= TopLeft && c <= BottomLeft }

// MarkerSet maps observed marker ids to their centre in image coordinates.
type MarkerSet map[Corner]utils.Point

// Missing returns the marker ids absent from the set, in id order.
func (m MarkerSet) Missing() []Corner {
	var out []Corner
	for _, c := range Corners {
		if _, ok := m[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// Observed counts the valid marker ids present in the set.
func (m MarkerSet) Observed() int {
	n := 0
	for c := range m {
		if c.Valid() {
			n++
		}
	}
	return n
}

// neighbours lists, per corner, its two adjacent corners and the corner
// diagonally opposite it.
var neighbours = map[Corner][3]Corner{
	TopLeft:     {TopRight, BottomLeft, BottomRight},
	TopRight:    {TopLeft, BottomRight, BottomLeft},
	BottomRight: {TopRight, BottomLeft, TopLeft},
	BottomLeft:  {TopLeft, BottomRight, TopRight},
}

// Estimate returns the position of the missing corner treating the four
// markers as a parallelogram: adjacent + adjacent - opposite.
//
//	TL = TR + BL - BR
//	TR = TL + BR - BL
//	BR = TR + BL - TL
//	BL = TL + BR - TR
func Estimate(m MarkerSet, missing Corner) (utils.Point, error) {
	n, ok := neighbours[missing]
	if !ok {
		return utils.Point{}, fmt.Errorf("corner %v: %w", missing, ballot.ErrMissingMarkerEstimationFailed)
	}
	a, okA := m[n[0]]
	b, okB := m[n[1]]
	o, okO := m[n[2]]
	if !okA || !okB || !okO {
		return utils.Point{}, fmt.Errorf("corner %v needs %v, %v and %v: %w",
			missing, n[0], n[1], n[2], ballot.ErrMissingMarkerEstimationFailed)
	}
	return a.Add(b).Sub(o), nil
}

// Quad is the ordered TL, TR, BR, BL corner list.
type Quad [4]utils.Point

// Points returns the quad as a slice.
func (q Quad) Points() []utils.Point { return q[:] }

// Complete returns the ordered quad for m, estimating at most one missing
// marker. estimated is -1 when all four were observed.
func Complete(m MarkerSet) (q Quad, estimated Corner, err error) {
	if m.Observed() < 3 {
		return Quad{}, -1, fmt.Errorf("%d of 4 observed: %w", m.Observed(), ballot.ErrInsufficientMarkers)
	}
	estimated = -1
	for i, c := range Corners {
		p, ok := m[c]
		if !ok {
			p, err = Estimate(m, c)
			if err != nil {
				return Quad{}, -1, err
			}
			estimated = c
		}
		q[i] = p
	}
	return q, estimated, nil
}
