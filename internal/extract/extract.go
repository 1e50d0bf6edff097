// Package extract cuts the cells of a rectified ballot and normalizes each
// one for its classifier: name cells are scaled onto a square canvas for text
// recognition, mark cells are framed unscaled for the mark detector.
package extract

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
	"github.com/MeKo-Tech/ballotcount/internal/layout"
	"github.com/MeKo-Tech/ballotcount/internal/utils"
	"github.com/disintegration/imaging"
)

// Config controls cell normalization.
type Config struct {
	Trim         int     // pixels dropped from the top and left of every crop
	NameSize     int     // square canvas for name cells
	MarkSize     int     // square canvas for mark cells
	EnhanceAbove float64 // enlargement factor above which name cells are enhanced
	AuditDir     string  // if non-empty, normalized cells are written here
}

// DefaultConfig returns the canvas sizes the classifiers were trained on.
func DefaultConfig() Config {
	return Config{
		Trim:         5,
		NameSize:     384,
		MarkSize:     640,
		EnhanceAbove: 1.2,
	}
}

// Validate checks canvas sizes.
func (c Config) Validate() error {
	if c.NameSize <= 0 || c.MarkSize <= 0 {
		return fmt.Errorf("extract: canvas sizes must be positive (name %d, mark %d)", c.NameSize, c.MarkSize)
	}
	if c.Trim < 0 {
		return fmt.Errorf("extract: negative trim %d", c.Trim)
	}
	return nil
}

// Cell is a normalized sub-image tagged with its row and field.
type Cell struct {
	Row   int
	Field ballot.Field
	Rect  layout.Rect
	Image *image.NRGBA
}

// Extractor crops and normalizes cells. It is stateless and safe for concurrent use.
type Extractor struct {
	cfg Config
}

// New creates an extractor.
func New(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{cfg: cfg}, nil
}

// Crop returns the part of img inside r. ok is false when nothing remains.
func (e *Extractor) Crop(img image.Image, r layout.Rect) (image.Image, bool) {
	rect := r.Image().Add(img.Bounds().Min).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, false
	}
	return imaging.Crop(img, rect), true
}

// Normalize prepares a raw crop for the classifier of field f.
func (e *Extractor) Normalize(f ballot.Field, crop image.Image) *image.NRGBA {
	trimmed := trim(crop, e.cfg.Trim)
	if f.IsMark() {
		return frameMark(trimmed, e.cfg.MarkSize)
	}
	return fitName(trimmed, e.cfg.NameSize, e.cfg.EnhanceAbove)
}

// Extract returns the normalized cells of every row of tpl, in row then
// field order. Cells whose rectangle falls outside img are omitted.
func (e *Extractor) Extract(img image.Image, tpl *layout.Template) []Cell {
	cells := make([]Cell, 0, len(tpl.Rows)*len(ballot.Fields))
	for _, row := range tpl.Rows {
		for _, f := range ballot.Fields {
			r := row.Cell(f)
			crop, ok := e.Crop(img, r)
			if !ok {
				continue
			}
			cells = append(cells, Cell{Row: row.Index, Field: f, Rect: r, Image: e.Normalize(f, crop)})
		}
	}
	return cells
}

// AuditEnabled reports whether normalized cells are kept on disk.
func (e *Extractor) AuditEnabled() bool { return e.cfg.AuditDir != "" }

// SaveAudit writes cells under AuditDir/<ballotID>/ as r<row>_<field>.png.
func (e *Extractor) SaveAudit(ballotID string, cells []Cell) error {
	if !e.AuditEnabled() {
		return nil
	}
	for _, c := range cells {
		path := filepath.Join(e.cfg.AuditDir, ballotID, fmt.Sprintf("r%02d_%s.png", c.Row, c.Field))
		if err := utils.SaveImage(c.Image, path); err != nil {
			return err
		}
	}
	return nil
}
