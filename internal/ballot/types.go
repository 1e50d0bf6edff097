// Package ballot holds the domain types shared by every counting stage:
// per-ballot lifecycle stages, row results, ballot records and error kinds.
package ballot

import "fmt"

// Stage is a ballot's position in the counting lifecycle.
type Stage int

const (
	StageReceived Stage = iota
	StageRectified
	StageExtracted
	StageClassified
	StageAggregated
	StageValidTallied
	StageInvalid
)

var stageNames = [...]string{
	StageReceived:     "RECEIVED",
	StageRectified:    "RECTIFIED",
	StageExtracted:    "EXTRACTED",
	StageClassified:   "CLASSIFIED",
	StageAggregated:   "AGGREGATED",
	StageValidTallied: "VALID_TALLIED",
	StageInvalid:      "INVALID",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool { return s == StageValidTallied || s == StageInvalid }

// MarshalText renders the stage by name in JSON and YAML output.
func (s Stage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Field is the kind of cell within a ballot row.
type Field int

const (
	FieldName Field = iota
	FieldAgree
	FieldDisagree
)

// Fields lists the fixed per-row field set in column order.
var Fields = [3]Field{FieldName, FieldAgree, FieldDisagree}

func (f Field) String() string {
	switch f {
	case FieldName:
		return "name"
	case FieldAgree:
		return "agree"
	case FieldDisagree:
		return "disagree"
	default:
		return fmt.Sprintf("Field(%d)", int(f))
	}
}

// IsMark reports whether the field holds a check mark rather than text.
func (f Field) IsMark() bool { return f == FieldAgree || f == FieldDisagree }

// Detection is one raw object reported by a mark classifier.
type Detection struct {
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box"` // x1, y1, x2, y2 in cell coordinates
}

// MarkResult is the outcome of classifying a single mark cell.
type MarkResult struct {
	Present    bool        `json:"present"`
	Confidence float64     `json:"confidence"`
	Detections []Detection `json:"detections,omitempty"`
}

// MarkDetail records how a mark decision was reached.
type MarkDetail struct {
	MarkResult
	Source  string   `json:"source"` // "detector", "heuristic" or "missing"
	Text    string   `json:"text,omitempty"`
	Score   *int     `json:"score,omitempty"`
	Level   string   `json:"level,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// RowDetails carries raw classifier metadata for one row.
type RowDetails struct {
	NameError string     `json:"name_error,omitempty"`
	Agree     MarkDetail `json:"agree"`
	Disagree  MarkDetail `json:"disagree"`
}

// RowResult is the combined classification of one ballot row.
type RowResult struct {
	Row      int        `json:"row"`
	NameText string     `json:"name_text"`
	Agree    bool       `json:"agree"`
	Disagree bool       `json:"disagree"`
	Details  RowDetails `json:"details"`
}

// Exclusive reports whether exactly one of agree/disagree is marked.
func (r RowResult) Exclusive() bool { return r.Agree != r.Disagree }

// Selection is a candidate chosen on a valid ballot.
type Selection struct {
	Row         int     `json:"row"`
	CandidateID int     `json:"candidate_id"`
	Name        string  `json:"candidate_name"`
	Similarity  float64 `json:"similarity"`
}

// Record is the auditable outcome of counting one ballot.
type Record struct {
	ID               string      `json:"ballot_id"`
	Source           string      `json:"source,omitempty"`
	Template         string      `json:"template,omitempty"`
	TemplateFallback bool        `json:"template_fallback,omitempty"`
	EstimatedCorner  string      `json:"estimated_corner,omitempty"`
	Stage            Stage       `json:"stage"`
	Rows             []RowResult `json:"rows"`
	Valid            bool        `json:"valid"`
	Reason           Kind        `json:"reason,omitempty"`
	Detail           string      `json:"detail,omitempty"`
	Selections       []Selection `json:"selections,omitempty"`
}

// Advance moves the record to stage s.
func (r *Record) Advance(s Stage) { r.Stage = s }

// Fail marks the record INVALID with the kind of err as its reason.
func (r *Record) Fail(err error) {
	r.Stage = StageInvalid
	r.Valid = false
	r.Selections = nil
	r.Reason = KindOf(err)
	if err != nil {
		r.Detail = err.Error()
	}
}
