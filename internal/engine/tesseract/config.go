// Package tesseract is the text engine backed by libtesseract through
// gosseract. The native binding is compiled only with the `tesseract` build
// tag; without it New reports the engine as unavailable.
package tesseract

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Config configures the recognizer.
type Config struct {
	Languages    []string `mapstructure:"languages" yaml:"languages" json:"languages"`
	TessdataDir  string   `mapstructure:"tessdata_dir" yaml:"tessdata_dir" json:"tessdata_dir"`
	PageSegMode  int      `mapstructure:"page_seg_mode" yaml:"page_seg_mode" json:"page_seg_mode"`
	Workers      int      `mapstructure:"workers" yaml:"workers" json:"workers"`
	DisableDicts bool     `mapstructure:"disable_dicts" yaml:"disable_dicts" json:"disable_dicts"`
}

// DefaultConfig reads Vietnamese plus English, one text line per cell.
func DefaultConfig() Config {
	return Config{
		Languages:    []string{"vie", "eng"},
		PageSegMode:  7,
		Workers:      4,
		DisableDicts: true,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if len(c.Languages) == 0 {
		return errors.New("tesseract: no languages configured")
	}
	if c.PageSegMode < 0 || c.PageSegMode > 13 {
		return fmt.Errorf("tesseract: page segmentation mode %d out of range", c.PageSegMode)
	}
	if c.Workers < 1 {
		return fmt.Errorf("tesseract: workers must be at least 1, got %d", c.Workers)
	}
	return nil
}

// cleanText folds the raw recognizer output into a single NFC line.
func cleanText(raw string) string {
	fields := strings.FieldsFunc(raw, unicode.IsSpace)
	return norm.NFC.String(strings.Join(fields, " "))
}
