// Package layout turns a form calibration into the cell rectangles of every
// ballot row in the canonical frame.
//
// A calibration names the vertical active band of the candidate table and the
// x-coordinates of its column rules. The band is split into eleven equal
// strips: the first holds the column headers, the remaining ten are the
// candidate rows. Each row has three cells: the candidate name, the agree box
// and the disagree box.
package layout

import (
	"errors"
	"fmt"
	"image"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
)

const (
	// Bands is the number of equal-height strips in the active band.
	Bands = 11
	// HeaderBands is the number of leading strips that hold column headers.
	HeaderBands = 1
	// Rows is the number of candidate rows per form.
	Rows = Bands - HeaderBands
)

// Calibration holds the measured geometry of one printed form version.
type Calibration struct {
	YMin    int   `yaml:"y_min" json:"y_min"`
	YMax    int   `yaml:"y_max" json:"y_max"`
	Columns []int `yaml:"columns" json:"columns"`
	// SkipColumns drops leading column rules, e.g. a serial-number column
	// printed before the candidate name.
	SkipColumns int `yaml:"skip_columns,omitempty" json:"skip_columns,omitempty"`
}

// Rect is an axis-aligned rectangle in canonical coordinates, half-open on
// X2 and Y2.
type Rect struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Image converts r to an image.Rectangle.
func (r Rect) Image() image.Rectangle { return image.Rect(r.X1, r.Y1, r.X2, r.Y2) }

// Empty reports whether r has no area.
func (r Rect) Empty() bool { return r.X2 <= r.X1 || r.Y2 <= r.Y1 }

// Overlaps reports whether r and o share any area.
func (r Rect) Overlaps(o Rect) bool {
	return r.X1 < o.X2 && o.X1 < r.X2 && r.Y1 < o.Y2 && o.Y1 < r.Y2
}

func (r Rect) String() string { return fmt.Sprintf("(%d,%d)-(%d,%d)", r.X1, r.Y1, r.X2, r.Y2) }

// Row holds the three cells of one candidate row.
type Row struct {
	Index    int  `json:"row"` // 1-based
	Name     Rect `json:"name"`
	Agree    Rect `json:"agree"`
	Disagree Rect `json:"disagree"`
}

// Cell returns the rectangle for field f.
func (r Row) Cell(f ballot.Field) Rect {
	switch f {
	case ballot.FieldAgree:
		return r.Agree
	case ballot.FieldDisagree:
		return r.Disagree
	default:
		return r.Name
	}
}

// Template is a validated layout. It is immutable once built.
type Template struct {
	ID          string      `json:"id"`
	Calibration Calibration `json:"calibration"`
	Rows        []Row       `json:"rows"`
}

var errInvalidCalibration = errors.New("layout: invalid calibration")

// Build derives the template for id from its calibration and validates it.
func Build(id string, cal Calibration) (*Template, error) {
	if cal.YMax <= cal.YMin {
		return nil, fmt.Errorf("%w %q: y_max %d <= y_min %d", errInvalidCalibration, id, cal.YMax, cal.YMin)
	}
	if cal.SkipColumns < 0 || len(cal.Columns) < cal.SkipColumns+len(ballot.Fields)+1 {
		return nil, fmt.Errorf("%w %q: need %d column rules after skipping %d, have %d",
			errInvalidCalibration, id, len(ballot.Fields)+1, cal.SkipColumns, len(cal.Columns))
	}
	xs := cal.Columns[cal.SkipColumns : cal.SkipColumns+len(ballot.Fields)+1]

	h := float64(cal.YMax-cal.YMin) / Bands
	t := &Template{ID: id, Calibration: cal, Rows: make([]Row, 0, Rows)}
	for band := HeaderBands; band < Bands; band++ {
		y1 := int(float64(cal.YMin) + float64(band)*h)
		y2 := int(float64(cal.YMin) + float64(band+1)*h)
		t.Rows = append(t.Rows, Row{
			Index:    band,
			Name:     Rect{X1: xs[0], Y1: y1, X2: xs[1], Y2: y2},
			Agree:    Rect{X1: xs[1], Y1: y1, X2: xs[2], Y2: y2},
			Disagree: Rect{X1: xs[2], Y1: y1, X2: xs[3], Y2: y2},
		})
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the structural invariants: ten rows below the header band,
// non-empty cells, no overlap within a row and no vertical overlap between rows.
func (t *Template) Validate() error {
	if len(t.Rows) != Rows {
		return fmt.Errorf("%w %q: %d rows, want %d", errInvalidCalibration, t.ID, len(t.Rows), Rows)
	}
	header := float64(t.Calibration.YMin) + float64(t.Calibration.YMax-t.Calibration.YMin)/Bands
	for i, r := range t.Rows {
		cells := []Rect{r.Name, r.Agree, r.Disagree}
		for j, c := range cells {
			if c.Empty() {
				return fmt.Errorf("%w %q: row %d %v cell %v is empty", errInvalidCalibration, t.ID, r.Index, ballot.Fields[j], c)
			}
			for _, d := range cells[j+1:] {
				if c.Overlaps(d) {
					return fmt.Errorf("%w %q: row %d cells %v and %v overlap", errInvalidCalibration, t.ID, r.Index, c, d)
				}
			}
		}
		if float64(r.Name.Y1) < header-1 {
			return fmt.Errorf("%w %q: row %d starts inside the header band", errInvalidCalibration, t.ID, r.Index)
		}
		if i > 0 && r.Name.Y1 < t.Rows[i-1].Name.Y2 {
			return fmt.Errorf("%w %q: rows %d and %d overlap", errInvalidCalibration, t.ID, t.Rows[i-1].Index, r.Index)
		}
	}
	return nil
}

// Bounds returns the smallest rectangle containing every cell.
func (t *Template) Bounds() Rect {
	first, last := t.Rows[0], t.Rows[len(t.Rows)-1]
	return Rect{X1: first.Name.X1, Y1: first.Name.Y1, X2: last.Disagree.X2, Y2: last.Disagree.Y2}
}

// FitsIn reports whether every cell lies inside a w x h canonical frame.
func (t *Template) FitsIn(w, h int) bool {
	b := t.Bounds()
	return b.X1 >= 0 && b.Y1 >= 0 && b.X2 <= w && b.Y2 <= h
}
