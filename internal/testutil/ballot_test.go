package testutil

import (
	"image"
	"testing"

	"github.com/MeKo-Tech/ballotcount/internal/fiducial"
	"github.com/MeKo-Tech/ballotcount/internal/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateBallotMarksCells(t *testing.T) {
	cfg := DefaultBallotConfig()
	cfg.Marks = []Mark{Agree, Disagree, Both, Blank}
	img, markers, err := GenerateBallot(cfg)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 330, 468), img.Bounds())
	assert.Equal(t, 4, markers.Observed())

	tpl, err := layout.Build("t", cfg.Calibration)
	require.NoError(t, err)
	inner := func(r layout.Rect) image.Image {
		return img.(interface {
			SubImage(image.Rectangle) image.Image
		}).SubImage(r.Image().Inset(5))
	}

	rows := tpl.Rows
	assert.True(t, IsDark(inner(rows[0].Agree)))
	assert.False(t, IsDark(inner(rows[0].Disagree)))
	assert.False(t, IsDark(inner(rows[1].Agree)))
	assert.True(t, IsDark(inner(rows[1].Disagree)))
	assert.True(t, IsDark(inner(rows[2].Agree)))
	assert.True(t, IsDark(inner(rows[2].Disagree)))
	assert.False(t, IsDark(inner(rows[3].Agree)))
	assert.False(t, IsDark(inner(rows[9].Disagree)))
	assert.True(t, IsDark(inner(rows[9].Name)), "names are drawn on every row")
}

func TestGenerateBallotRotationMovesMarkers(t *testing.T) {
	cfg := DefaultBallotConfig()
	cfg.Rotation = 90
	img, markers, err := GenerateBallot(cfg)
	require.NoError(t, err)
	assert.Equal(t, 468, img.Bounds().Dx())
	assert.Equal(t, 330, img.Bounds().Dy())

	// A quarter turn counter-clockwise carries the top-left corner to the bottom-left.
	tl := markers[fiducial.TopLeft]
	assert.InDelta(t, 0, tl.X, 1e-6)
	assert.InDelta(t, 329, tl.Y, 1e-6)
}

func TestWriteBallotWritesSidecar(t *testing.T) {
	dir := t.TempDir()
	path := WriteBallot(t, dir, "b1", DefaultBallotConfig())
	assert.True(t, FileExists(path))
	assert.True(t, fiducial.HasSidecar(path))

	set, err := fiducial.LoadSidecar(fiducial.SidecarPath(path))
	require.NoError(t, err)
	assert.Len(t, set, 4)
}

func TestCompareImages(t *testing.T) {
	a := CreateTestImage(4, 4, image.White.C)
	b := CreateTestImage(4, 4, image.White.C)
	assert.True(t, CompareImages(a, b, 0))
	assert.False(t, CompareImages(a, CreateTestImage(5, 4, image.White.C), 1))
	assert.False(t, CompareImages(a, CreateTestImage(4, 4, image.Black.C), 0.1))
}
