package utils

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/ballotcount/internal/mempool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSupportedImage(t *testing.T) {
	cases := []struct {
		path string
		ok   bool
	}{
		{"a.jpg", true},
		{"b.JPEG", true},
		{"c.png", true},
		{"d.bmp", true},
		{"e.tiff", true},
		{"f.gif", false},
		{"g.pdf", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, IsSupportedImage(c.path), c.path)
	}
}

func writeTempPNG(t *testing.T, dir string, w, h int, col color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, col)
		}
	}
	path := filepath.Join(dir, "test.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestLoadImageAndMetadata(t *testing.T) {
	p := writeTempPNG(t, t.TempDir(), 10, 20, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	img, meta, err := LoadImage(p)
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Equal(t, "png", meta.Format)
	assert.Equal(t, 10, meta.Width)
	assert.Equal(t, 20, meta.Height)
	assert.Positive(t, meta.SizeBytes)
}

func TestLoadImageErrors(t *testing.T) {
	_, _, err := LoadImage("")
	require.Error(t, err)

	_, _, err = LoadImage("ballot.gif")
	var ipe *ImageProcessingError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "load", ipe.Operation)

	_, _, err = LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveImageCreatesDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "out.png")
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	require.NoError(t, SaveImage(img, path))
	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestPointArithmetic(t *testing.T) {
	p := Point{X: 3, Y: 4}
	assert.Equal(t, Point{X: 4, Y: 6}, p.Add(Point{X: 1, Y: 2}))
	assert.Equal(t, Point{X: 2, Y: 2}, p.Sub(Point{X: 1, Y: 2}))
	assert.InDelta(t, 5.0, p.Dist(Point{}), 1e-12)
	assert.Equal(t, Point{X: 1, Y: 1}, Centroid([]Point{{0, 0}, {2, 0}, {2, 2}, {0, 2}}))
	assert.Equal(t, Point{}, Centroid(nil))
}

func TestImageToCHW(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{B: 255, A: 255})

	data, w, h, err := ImageToCHW(img)
	require.NoError(t, err)
	defer mempool.PutFloat32(data)

	assert.Equal(t, 2, w)
	assert.Equal(t, 1, h)
	require.Len(t, data, 6)
	assert.InDelta(t, 1.0, data[0], 1e-6) // R plane, pixel 0
	assert.InDelta(t, 0.0, data[1], 1e-6)
	assert.InDelta(t, 1.0, data[5], 1e-6) // B plane, pixel 1
}

func TestDrawRectStaysInBounds(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 10, 10))
	DrawRect(dst, image.Rect(-5, -5, 20, 20), color.White, 2)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, dst.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{}, dst.RGBAAt(5, 5))
}
