package rectify

import (
	"errors"
	"math"

	"github.com/MeKo-Tech/ballotcount/internal/utils"
	"gonum.org/v1/gonum/mat"
)

var errDegenerate = errors.New("rectify: degenerate marker quad")

// Homography is a 3x3 projective transform in row-major order with h[8] = 1.
type Homography [9]float64

// computeHomography solves for H mapping p[i] -> q[i] in the least-squares
// sense. With four correspondences the system is square and the solution exact.
func computeHomography(p, q []utils.Point) (Homography, error) {
	if len(p) != len(q) || len(p) < 4 {
		return Homography{}, errors.New("rectify: need at least 4 point pairs")
	}

	// Two rows per correspondence for the 8 unknowns h00..h21.
	n := len(p)
	A := mat.NewDense(2*n, 8, nil)
	b := mat.NewVecDense(2*n, nil)
	for i := range n {
		X, Y := p[i].X, p[i].Y
		x, y := q[i].X, q[i].Y
		r := 2 * i
		// x' = (h00 X + h01 Y + h02)/(h20 X + h21 Y + 1)
		A.SetRow(r, []float64{X, Y, 1, 0, 0, 0, -X * x, -Y * x})
		b.SetVec(r, x)
		// y' = (h10 X + h11 Y + h12)/(h20 X + h21 Y + 1)
		A.SetRow(r+1, []float64{0, 0, 0, X, Y, 1, -X * y, -Y * y})
		b.SetVec(r+1, y)
	}

	var qr mat.QR
	qr.Factorize(A)
	var h mat.VecDense
	if err := qr.SolveVecTo(&h, false, b); err != nil {
		return Homography{}, errDegenerate
	}

	H := Homography{
		h.AtVec(0), h.AtVec(1), h.AtVec(2),
		h.AtVec(3), h.AtVec(4), h.AtVec(5),
		h.AtVec(6), h.AtVec(7), 1,
	}
	// A rank-deficient H collapses the frame onto a line or point.
	if det := mat.Det(mat.NewDense(3, 3, H[:])); math.Abs(det) < 1e-12 || math.IsNaN(det) {
		return Homography{}, errDegenerate
	}
	return H, nil
}

// Apply maps (x, y) through h. A point on the line at infinity maps far
// outside any image.
func (h Homography) Apply(x, y float64) (float64, float64) {
	denom := h[6]*x + h[7]*y + h[8]
	if denom == 0 {
		return -1e9, -1e9
	}
	return (h[0]*x + h[1]*y + h[2]) / denom, (h[3]*x + h[4]*y + h[5]) / denom
}
