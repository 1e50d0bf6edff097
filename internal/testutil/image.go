package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImageSize represents image dimensions.
type ImageSize struct {
	Width  int
	Height int
}

// SaveImage saves an image as PNG, creating parent directories.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	dir := filepath.Dir(path)
	require.NoError(t, EnsureDir(dir), "Failed to create directory %s", dir)

	file, err := os.Create(path) //nolint:gosec // G304: Test file creation with controlled path
	require.NoError(t, err, "Failed to create file %s", path)
	defer func() {
		require.NoError(t, file.Close())
	}()

	require.NoError(t, png.Encode(file, img), "Failed to encode PNG image")
}

// CompareImages reports whether the mean per-pixel RGBA distance between
// two equally sized images is within tolerance (0..1).
func CompareImages(img1, img2 image.Image, tolerance float64) bool {
	b := img1.Bounds()
	if b != img2.Bounds() {
		return false
	}

	var total, n float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r1, g1, b1, a1 := img1.At(x, y).RGBA()
			r2, g2, b2, a2 := img2.At(x, y).RGBA()
			dr := float64(r1) - float64(r2)
			dg := float64(g1) - float64(g2)
			db := float64(b1) - float64(b2)
			da := float64(a1) - float64(a2)
			total += math.Sqrt(dr*dr + dg*dg + db*db + da*da)
			n++
		}
	}
	if n == 0 {
		return true
	}
	return total/n/math.Sqrt(4*65535*65535) <= tolerance
}

// CreateTestImage creates a uniformly coloured image.
func CreateTestImage(width, height int, background color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{background}, image.Point{}, draw.Src)
	return img
}

// DrawText writes text in basicfont 7x13 with its baseline-left corner at
// (x, y) and returns the drawn width.
func DrawText(dst draw.Image, text string, x, y int, col color.Color) int {
	d := &font.Drawer{
		Dst:  dst,
		Src:  &image.Uniform{col},
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
	return font.MeasureString(basicfont.Face7x13, text).Ceil()
}

// FillRect paints r with col, clipped to dst.
func FillRect(dst draw.Image, r image.Rectangle, col color.Color) {
	draw.Draw(dst, r.Intersect(dst.Bounds()), &image.Uniform{col}, image.Point{}, draw.Src)
}
