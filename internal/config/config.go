package config

import (
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/MeKo-Tech/ballotcount/internal/engine/tesseract"
	"github.com/MeKo-Tech/ballotcount/internal/engine/yolo"
	"github.com/MeKo-Tech/ballotcount/internal/extract"
	"github.com/MeKo-Tech/ballotcount/internal/fiducial"
	"github.com/MeKo-Tech/ballotcount/internal/layout"
	"github.com/MeKo-Tech/ballotcount/internal/rectify"
	"github.com/MeKo-Tech/ballotcount/internal/report"
	"github.com/MeKo-Tech/ballotcount/internal/source"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	ext := extract.DefaultConfig()
	return Config{
		LogLevel: "info",
		Layout:   LayoutConfig{Template: layout.Auto, Default: "data1"},
		Rectify:  RectifyConfig{Width: rectify.CanonicalWidth, Height: rectify.CanonicalHeight},
		Markers:  MarkersConfig{Dictionary: fiducial.DefaultOptions().Dictionary},
		Extract: ExtractConfig{
			Trim:         ext.Trim,
			NameSize:     ext.NameSize,
			MarkSize:     ext.MarkSize,
			EnhanceAbove: ext.EnhanceAbove,
		},
		Engines: EnginesConfig{
			Text: tesseract.DefaultConfig(),
			Mark: yolo.DefaultConfig(),
		},
		Run: RunConfig{
			Workers:         runtime.NumCPU(),
			CellConcurrency: 8,
		},
		Output: OutputConfig{Format: string(report.FormatText)},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if _, err := report.ParseFormat(c.Output.Format); err != nil {
		return err
	}
	if c.Layout.Template == "" {
		return fmt.Errorf("layout.template is empty (use %q to select from the input path)", layout.Auto)
	}
	if err := c.ToRectifyConfig().Validate(); err != nil {
		return err
	}
	if err := c.ToExtractConfig().Validate(); err != nil {
		return err
	}
	if c.Run.Workers <= 0 {
		return fmt.Errorf("invalid run workers: %d (must be positive)", c.Run.Workers)
	}
	if c.Run.CellConcurrency <= 0 {
		return fmt.Errorf("invalid cell concurrency: %d (must be positive)", c.Run.CellConcurrency)
	}
	if err := c.Engines.Text.Validate(); err != nil {
		return err
	}
	if c.Engines.Mark.ModelPath != "" {
		if err := c.Engines.Mark.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ToRectifyConfig converts to rectify.Config.
func (c *Config) ToRectifyConfig() rectify.Config {
	return rectify.Config{Width: c.Rectify.Width, Height: c.Rectify.Height, DebugDir: c.Rectify.DebugDir}
}

// ToExtractConfig converts to extract.Config.
func (c *Config) ToExtractConfig() extract.Config {
	return extract.Config{
		Trim:         c.Extract.Trim,
		NameSize:     c.Extract.NameSize,
		MarkSize:     c.Extract.MarkSize,
		EnhanceAbove: c.Extract.EnhanceAbove,
		AuditDir:     c.Extract.AuditDir,
	}
}

// ToMarkerOptions converts to fiducial.Options.
func (c *Config) ToMarkerOptions() fiducial.Options {
	opts := fiducial.DefaultOptions()
	if c.Markers.Dictionary != "" {
		opts.Dictionary = c.Markers.Dictionary
	}
	return opts
}

// ToSourceOptions converts to source.Options.
func (c *Config) ToSourceOptions() source.Options {
	return source.Options{
		Recursive: c.Input.Recursive,
		Include:   c.Input.Include,
		Exclude:   c.Input.Exclude,
		Pages:     c.Input.Pages,
	}
}
