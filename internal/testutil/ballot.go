package testutil

import (
	"image"
	"image/color"
	"math"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/ballotcount/internal/fiducial"
	"github.com/MeKo-Tech/ballotcount/internal/layout"
	"github.com/MeKo-Tech/ballotcount/internal/utils"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/basicfont"
)

// SmallFrame is a reduced canonical frame that keeps synthetic ballots cheap.
var SmallFrame = ImageSize{Width: 330, Height: 468}

// SmallCalibration fits ten rows inside SmallFrame.
func SmallCalibration() layout.Calibration {
	return layout.Calibration{YMin: 44, YMax: 444, Columns: []int{80, 200, 260, 320}}
}

// Mark is the state of one ballot row.
type Mark int

const (
	Blank Mark = iota
	Agree
	Disagree
	Both
)

// BallotConfig describes a synthetic ballot.
type BallotConfig struct {
	Size        ImageSize
	Calibration layout.Calibration
	Names       []string // row i+1 gets Names[i % len(Names)]
	Marks       []Mark   // one per row, missing rows stay blank
	Rules       bool     // draw table rules at the cell edges
	Rotation    float64  // degrees, counter-clockwise, applied after drawing
}

// DefaultBallotConfig returns a small ruled ballot with every row agreeing.
func DefaultBallotConfig() BallotConfig {
	marks := make([]Mark, layout.Rows)
	for i := range marks {
		marks[i] = Agree
	}
	return BallotConfig{
		Size:        SmallFrame,
		Calibration: SmallCalibration(),
		Names:       []string{"NGUYEN VAN A"},
		Marks:       marks,
		Rules:       true,
	}
}

const markerSize = 8

// GenerateBallot draws a ballot and returns it with the centres of its four
// corner markers. Without rotation the markers sit on the frame corners, so
// rectifying into a frame of the same size is the identity.
func GenerateBallot(cfg BallotConfig) (image.Image, fiducial.MarkerSet, error) {
	tpl, err := layout.Build("synthetic", cfg.Calibration)
	if err != nil {
		return nil, nil, err
	}
	w, h := cfg.Size.Width, cfg.Size.Height
	img := CreateTestImage(w, h, color.White)

	for _, p := range []image.Point{{0, 0}, {w - markerSize, 0}, {w - markerSize, h - markerSize}, {0, h - markerSize}} {
		FillRect(img, image.Rect(p.X, p.Y, p.X+markerSize, p.Y+markerSize), color.Black)
	}

	for i, row := range tpl.Rows {
		if cfg.Rules {
			drawRules(img, row)
		}
		if len(cfg.Names) > 0 {
			name := cfg.Names[i%len(cfg.Names)]
			n := row.Name
			DrawText(img, name, n.X1+8, (n.Y1+n.Y2)/2+basicfont.Face7x13.Ascent/2, color.Black)
		}
		if i < len(cfg.Marks) {
			m := cfg.Marks[i]
			if m == Agree || m == Both {
				drawCross(img, row.Agree)
			}
			if m == Disagree || m == Both {
				drawCross(img, row.Disagree)
			}
		}
	}

	markers := fiducial.MarkerSet{
		fiducial.TopLeft:     {X: 0, Y: 0},
		fiducial.TopRight:    {X: float64(w - 1), Y: 0},
		fiducial.BottomRight: {X: float64(w - 1), Y: float64(h - 1)},
		fiducial.BottomLeft:  {X: 0, Y: float64(h - 1)},
	}
	if cfg.Rotation == 0 {
		return img, markers, nil
	}

	rotated := imaging.Rotate(img, cfg.Rotation, color.White)
	return rotated, rotateMarkers(markers, w, h, rotated.Bounds().Size(), cfg.Rotation), nil
}

// rotateMarkers follows the pixel-centre convention of imaging.Rotate.
func rotateMarkers(m fiducial.MarkerSet, w, h int, dst image.Point, angle float64) fiducial.MarkerSet {
	sin, cos := math.Sincos(math.Pi * angle / 180)
	sx, sy := float64(w)/2-0.5, float64(h)/2-0.5
	dx, dy := float64(dst.X)/2-0.5, float64(dst.Y)/2-0.5
	out := make(fiducial.MarkerSet, len(m))
	for c, p := range m {
		x, y := p.X-sx, p.Y-sy
		out[c] = utils.Point{X: x*cos + y*sin + dx, Y: -x*sin + y*cos + dy}
	}
	return out
}

// rules sit on the left and top edge of each cell, inside the part the
// extractor trims away.
func drawRules(img *image.RGBA, row layout.Row) {
	for _, c := range []layout.Rect{row.Name, row.Agree, row.Disagree} {
		FillRect(img, image.Rect(c.X1, c.Y1, c.X2, c.Y1+2), color.Black)
		FillRect(img, image.Rect(c.X1, c.Y1, c.X1+2, c.Y2), color.Black)
	}
}

func drawCross(img *image.RGBA, c layout.Rect) {
	r := c.Image().Inset(8)
	pts := []utils.Point{
		{X: float64(r.Min.X), Y: float64(r.Min.Y)},
		{X: float64(r.Max.X - 1), Y: float64(r.Max.Y - 1)},
	}
	utils.DrawPolygon(img, pts, color.Black, 3)
	pts = []utils.Point{
		{X: float64(r.Max.X - 1), Y: float64(r.Min.Y)},
		{X: float64(r.Min.X), Y: float64(r.Max.Y - 1)},
	}
	utils.DrawPolygon(img, pts, color.Black, 3)
}

// WriteBallot generates a ballot into dir as <id>.png with a marker sidecar
// next to it and returns the image path.
func WriteBallot(t *testing.T, dir, id string, cfg BallotConfig) string {
	t.Helper()
	img, markers, err := GenerateBallot(cfg)
	require.NoError(t, err)
	path := filepath.Join(dir, id+".png")
	SaveImage(t, img, path)
	require.NoError(t, fiducial.WriteSidecar(path, markers))
	return path
}

// IsDark reports whether img has any pixel darker than 64 on every channel.
// Test mark engines use it to decide presence on normalized cells.
func IsDark(img image.Image) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r < 64<<8 && g < 64<<8 && bl < 64<<8 {
				return true
			}
		}
	}
	return false
}
