// Package markscore is the degraded mark detector: when no mark model is
// configured, the text recognizer reads each mark cell and this table decides
// from the recognized characters whether a cross was drawn.
//
// The table is data. DefaultTable reproduces the weights the forms were
// tuned with; operators may replace it with a YAML file.
package markscore

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Confusable is a single glyph the recognizer tends to emit for a cross.
type Confusable struct {
	Glyph  string `yaml:"glyph" json:"glyph"`
	Points int    `yaml:"points" json:"points"`
}

// Table holds the scoring rules.
type Table struct {
	Symbol         string       `yaml:"symbol" json:"symbol"`
	ExactPoints    int          `yaml:"exact_points" json:"exact_points"`
	ContainsPoints int          `yaml:"contains_points" json:"contains_points"`
	Glyphs         []string     `yaml:"glyphs" json:"glyphs"`
	GlyphPoints    int          `yaml:"glyph_points" json:"glyph_points"`
	Confusables    []Confusable `yaml:"confusables" json:"confusables"`
	SingleBonus    int          `yaml:"single_char_bonus" json:"single_char_bonus"`
	PairBonus      int          `yaml:"pair_with_symbol_bonus" json:"pair_with_symbol_bonus"`
	LongAfter      int          `yaml:"long_text_after" json:"long_text_after"`
	LongPenalty    int          `yaml:"long_text_penalty" json:"long_text_penalty"`
	NonMatches     []string     `yaml:"non_matches" json:"non_matches"`
	NonMatchScore  int          `yaml:"non_match_score" json:"non_match_score"`
	Threshold      int          `yaml:"threshold" json:"threshold"`
	HighAt         int          `yaml:"high_at" json:"high_at"`
	AbsentAt       int          `yaml:"absent_at" json:"absent_at"`
}

// DefaultTable returns the built-in scoring rules.
func DefaultTable() Table {
	return Table{
		Symbol:         "X",
		ExactPoints:    10,
		ContainsPoints: 8,
		Glyphs:         []string{"×", "✗", "✘", "XX"},
		GlyphPoints:    9,
		Confusables: []Confusable{
			{"V", 5}, {"Y", 4}, {"/", 3}, {`\`, 3}, {"+", 6},
			{"*", 7}, {"K", 4}, {"N", 3}, {"Z", 3},
		},
		SingleBonus: 2,
		PairBonus:   1,
		LongAfter:   3,
		LongPenalty: -5,
		NonMatches: []string{
			"0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
			"A", "B", "C", "D", "E", "F", "G", "H", "J", "M", "O", "P", "Q", "R", "S", "U", "W",
			"THE", "AND", "OR", "NOT", "YES", "NO", "OK",
		},
		NonMatchScore: -10,
		Threshold:     3,
		HighAt:        8,
		AbsentAt:      -5,
	}
}

// Validate checks that the table can be applied.
func (t Table) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("markscore: empty symbol")
	}
	if t.LongAfter < 2 {
		return fmt.Errorf("markscore: long_text_after must be at least 2, got %d", t.LongAfter)
	}
	for _, c := range t.Confusables {
		if c.Glyph == "" {
			return fmt.Errorf("markscore: confusable with empty glyph")
		}
	}
	return nil
}

// Load reads a table from YAML. Keys missing from the file keep their default values.
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied table
	if err != nil {
		return Table{}, fmt.Errorf("markscore: read %s: %w", path, err)
	}
	t := DefaultTable()
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("markscore: parse %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// Level grades how sure a verdict is.
type Level string

const (
	LevelHigh       Level = "high"
	LevelMedium     Level = "medium"
	LevelLow        Level = "low"
	LevelHighAbsent Level = "high_absent"
)

// Verdict is the outcome of scoring one recognized string.
type Verdict struct {
	Text    string   `json:"text"`
	Score   int      `json:"score"`
	Present bool     `json:"present"`
	Level   Level    `json:"level"`
	Reasons []string `json:"reasons"`
}

// Confidence maps the score onto [0,1] for callers that want a number.
func (v Verdict) Confidence() float64 {
	return max(0, min(1, float64(v.Score)/10))
}

// Score applies the table to text read from a mark cell.
func (t Table) Score(text string) Verdict {
	clean := strings.ToUpper(strings.TrimSpace(text))
	if clean == "" {
		return Verdict{Level: t.level(0), Reasons: []string{"empty"}}
	}

	score := 0
	var reasons []string
	add := func(points int, reason string) {
		score += points
		reasons = append(reasons, reason)
	}

	hasSymbol := strings.Contains(clean, t.Symbol)
	switch {
	case clean == t.Symbol:
		add(t.ExactPoints, "exact_symbol")
	case hasSymbol:
		add(t.ContainsPoints, "contains_symbol")
	}

	for _, g := range t.Glyphs {
		if strings.Contains(clean, g) {
			add(t.GlyphPoints, "glyph("+g+")")
			break
		}
	}

	for _, c := range t.Confusables {
		if clean == c.Glyph {
			add(c.Points, "confusable("+c.Glyph+")")
			break
		}
	}

	switch n := utf8.RuneCountInString(clean); {
	case n == 1:
		add(t.SingleBonus, "single_char")
	case n == 2 && hasSymbol:
		add(t.PairBonus, "pair_with_symbol")
	case n > t.LongAfter:
		add(t.LongPenalty, "long_text")
	}

	if slices.Contains(t.NonMatches, clean) {
		score = t.NonMatchScore
		reasons = []string{"non_match(" + clean + ")"}
	}

	return Verdict{
		Text:    clean,
		Score:   score,
		Present: score >= t.Threshold,
		Level:   t.level(score),
		Reasons: reasons,
	}
}

func (t Table) level(score int) Level {
	switch {
	case score >= t.HighAt:
		return LevelHigh
	case score >= t.Threshold:
		return LevelMedium
	case score <= t.AbsentAt:
		return LevelHighAbsent
	default:
		return LevelLow
	}
}
