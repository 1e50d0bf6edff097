package fiducial

import (
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
	"github.com/MeKo-Tech/ballotcount/internal/utils"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square() MarkerSet {
	return MarkerSet{
		TopLeft:     {X: 0, Y: 0},
		TopRight:    {X: 100, Y: 0},
		BottomRight: {X: 100, Y: 100},
		BottomLeft:  {X: 0, Y: 100},
	}
}

func without(m MarkerSet, c Corner) MarkerSet {
	out := MarkerSet{}
	for k, v := range m {
		if k != c {
			out[k] = v
		}
	}
	return out
}

func TestEstimateReconstructsEachCorner(t *testing.T) {
	full := square()
	for _, c := range Corners {
		t.Run(c.String(), func(t *testing.T) {
			got, err := Estimate(without(full, c), c)
			require.NoError(t, err)
			assert.Equal(t, full[c], got)
		})
	}
}

func TestEstimateFormulas(t *testing.T) {
	// Skewed quad: estimates must follow adjacent + adjacent - opposite exactly.
	m := MarkerSet{
		TopLeft:     {X: 10, Y: 20},
		TopRight:    {X: 210, Y: 35},
		BottomRight: {X: 190, Y: 330},
		BottomLeft:  {X: 5, Y: 300},
	}
	tests := []struct {
		missing Corner
		want    utils.Point
	}{
		{TopLeft, utils.Point{X: 210 + 5 - 190, Y: 35 + 300 - 330}},
		{TopRight, utils.Point{X: 10 + 190 - 5, Y: 20 + 330 - 300}},
		{BottomRight, utils.Point{X: 210 + 5 - 10, Y: 35 + 300 - 20}},
		{BottomLeft, utils.Point{X: 10 + 190 - 210, Y: 20 + 330 - 35}},
	}
	for _, tt := range tests {
		got, err := Estimate(without(m, tt.missing), tt.missing)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.missing.String())
	}
}

func TestEstimateNeedsAllThreeNeighbours(t *testing.T) {
	m := without(without(square(), TopLeft), BottomRight)
	_, err := Estimate(m, TopLeft)
	require.ErrorIs(t, err, ballot.ErrMissingMarkerEstimationFailed)

	_, err = Estimate(square(), Corner(7))
	require.ErrorIs(t, err, ballot.ErrMissingMarkerEstimationFailed)
}

func TestComplete(t *testing.T) {
	q, est, err := Complete(square())
	require.NoError(t, err)
	assert.Equal(t, Corner(-1), est)
	assert.Equal(t, utils.Point{X: 100, Y: 100}, q[2])

	q, est, err = Complete(without(square(), BottomLeft))
	require.NoError(t, err)
	assert.Equal(t, BottomLeft, est)
	assert.Equal(t, utils.Point{X: 0, Y: 100}, q[3])

	_, _, err = Complete(without(without(square(), TopLeft), TopRight))
	require.ErrorIs(t, err, ballot.ErrInsufficientMarkers)
}

func TestMissingAndObserved(t *testing.T) {
	m := without(square(), TopRight)
	m[Corner(9)] = utils.Point{}
	assert.Equal(t, []Corner{TopRight}, m.Missing())
	assert.Equal(t, 3, m.Observed())
}

func TestEstimateParallelogramProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("any corner of a parallelogram is recovered", prop.ForAll(
		func(ox, oy, ux, uy, vx, vy float64, idx int) bool {
			tl := utils.Point{X: ox, Y: oy}
			tr := tl.Add(utils.Point{X: ux, Y: uy})
			bl := tl.Add(utils.Point{X: vx, Y: vy})
			br := tr.Add(utils.Point{X: vx, Y: vy})
			full := MarkerSet{TopLeft: tl, TopRight: tr, BottomRight: br, BottomLeft: bl}
			c := Corners[idx]
			got, err := Estimate(without(full, c), c)
			if err != nil {
				return false
			}
			return got.Dist(full[c]) < 1e-6
		},
		gen.Float64Range(-500, 500),
		gen.Float64Range(-500, 500),
		gen.Float64Range(1, 2000),
		gen.Float64Range(-50, 50),
		gen.Float64Range(-50, 50),
		gen.Float64Range(1, 3000),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}

func TestSidecarRoundTrip(t *testing.T) {
	img := filepath.Join(t.TempDir(), "ballot_001.jpg")
	assert.False(t, HasSidecar(img))

	set := without(square(), BottomRight)
	require.NoError(t, WriteSidecar(img, set))
	assert.True(t, HasSidecar(img))
	assert.Equal(t, filepath.Join(filepath.Dir(img), "ballot_001.markers.yaml"), SidecarPath(img))

	got, err := LoadSidecar(SidecarPath(img))
	require.NoError(t, err)
	assert.Equal(t, set, got)
}
