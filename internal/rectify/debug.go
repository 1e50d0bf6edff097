package rectify

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"path/filepath"

	"github.com/MeKo-Tech/ballotcount/internal/utils"
)

// debugPath names a debug image after its ballot: <id>_<kind>.png.
func debugPath(dir, id, kind string) string {
	if id == "" {
		id = "rect"
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.png", id, kind))
}

func dumpOverlayPNG(path string, src image.Image, quad []utils.Point) error {
	b := src.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), src, b.Min, draw.Src)
	utils.DrawPolygon(canvas, quad, color.RGBA{255, 0, 0, 255}, 3)
	return utils.SaveImage(canvas, path)
}

func dumpComparePNG(path string, src image.Image, srcQuad []utils.Point, dst image.Image) error {
	sb := src.Bounds()
	db := dst.Bounds()
	gap := 10
	canvas := image.NewRGBA(image.Rect(0, 0, sb.Dx()+gap+db.Dx(), max(sb.Dy(), db.Dy())))
	draw.Draw(canvas, image.Rect(0, 0, sb.Dx(), sb.Dy()), src, sb.Min, draw.Src)
	xoff := sb.Dx() + gap
	draw.Draw(canvas, image.Rect(xoff, 0, xoff+db.Dx(), db.Dy()), dst, db.Min, draw.Src)
	utils.DrawPolygon(canvas, srcQuad, color.RGBA{255, 0, 0, 255}, 3)
	utils.DrawRect(canvas, image.Rect(xoff, 0, xoff+db.Dx(), db.Dy()), color.RGBA{0, 255, 0, 255}, 2)
	return utils.SaveImage(canvas, path)
}
