//nolint:lll
package config

import (
	"github.com/MeKo-Tech/ballotcount/internal/engine/tesseract"
	"github.com/MeKo-Tech/ballotcount/internal/engine/yolo"
)

// Config represents the complete configuration for ballotcount. It is
// loaded from a config file, BALLOTCOUNT_* environment variables and
// command-line flags, in increasing order of precedence.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Poll identifies the counting run for the run guard. StateDir holds the
	// guard's markers; an empty StateDir disables the guard.
	Poll     string `mapstructure:"poll" yaml:"poll" json:"poll"`
	StateDir string `mapstructure:"state_dir" yaml:"state_dir" json:"state_dir"`

	// Roster is a YAML or plain-text candidate list.
	Roster string `mapstructure:"roster" yaml:"roster" json:"roster"`

	Input   InputConfig   `mapstructure:"input" yaml:"input" json:"input"`
	Layout  LayoutConfig  `mapstructure:"layout" yaml:"layout" json:"layout"`
	Rectify RectifyConfig `mapstructure:"rectify" yaml:"rectify" json:"rectify"`
	Markers MarkersConfig `mapstructure:"markers" yaml:"markers" json:"markers"`
	Extract ExtractConfig `mapstructure:"extract" yaml:"extract" json:"extract"`
	Engines EnginesConfig `mapstructure:"engines" yaml:"engines" json:"engines"`
	Run     RunConfig     `mapstructure:"run" yaml:"run" json:"run"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output" json:"output"`
}

// InputConfig controls ballot discovery.
type InputConfig struct {
	Recursive bool     `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	Include   []string `mapstructure:"include" yaml:"include" json:"include"`
	Exclude   []string `mapstructure:"exclude" yaml:"exclude" json:"exclude"`
	Pages     string   `mapstructure:"pages" yaml:"pages" json:"pages"`
}

// LayoutConfig selects the form template.
type LayoutConfig struct {
	Template string `mapstructure:"template" yaml:"template" json:"template"` // id or "auto"
	Default  string `mapstructure:"default" yaml:"default" json:"default"`    // used when "auto" matches nothing
	File     string `mapstructure:"file" yaml:"file" json:"file"`             // extra calibrations
}

// RectifyConfig sets the canonical frame.
type RectifyConfig struct {
	Width    int    `mapstructure:"width" yaml:"width" json:"width"`
	Height   int    `mapstructure:"height" yaml:"height" json:"height"`
	DebugDir string `mapstructure:"debug_dir" yaml:"debug_dir" json:"debug_dir"`
}

// MarkersConfig configures the built-in fiducial detector. Sidecar files
// always take precedence over it.
type MarkersConfig struct {
	Dictionary string `mapstructure:"dictionary" yaml:"dictionary" json:"dictionary"`
}

// ExtractConfig controls cell normalization.
type ExtractConfig struct {
	Trim         int     `mapstructure:"trim" yaml:"trim" json:"trim"`
	NameSize     int     `mapstructure:"name_size" yaml:"name_size" json:"name_size"`
	MarkSize     int     `mapstructure:"mark_size" yaml:"mark_size" json:"mark_size"`
	EnhanceAbove float64 `mapstructure:"enhance_above" yaml:"enhance_above" json:"enhance_above"`
	AuditDir     string  `mapstructure:"audit_dir" yaml:"audit_dir" json:"audit_dir"`
}

// EnginesConfig configures the classification engines. An empty
// Mark.ModelPath runs the degraded mode that scores marks from text using
// the table in MarkScoreTable (built-in table when empty).
type EnginesConfig struct {
	Text           tesseract.Config `mapstructure:"text" yaml:"text" json:"text"`
	Mark           yolo.Config      `mapstructure:"mark" yaml:"mark" json:"mark"`
	MarkScoreTable string           `mapstructure:"mark_score_table" yaml:"mark_score_table" json:"mark_score_table"`
}

// RunConfig bounds concurrency.
type RunConfig struct {
	Workers         int `mapstructure:"workers" yaml:"workers" json:"workers"`                   // ballots in parallel
	CellConcurrency int `mapstructure:"cell_concurrency" yaml:"cell_concurrency" json:"cell_concurrency"` // engine calls in flight across all ballots
}

// OutputConfig contains output settings.
type OutputConfig struct {
	Format      string `mapstructure:"format" yaml:"format" json:"format"`
	File        string `mapstructure:"file" yaml:"file" json:"file"`
	RecordsCSV  string `mapstructure:"records_csv" yaml:"records_csv" json:"records_csv"`
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file" json:"metrics_file"`
	TUI         bool   `mapstructure:"tui" yaml:"tui" json:"tui"`
}
