//go:build !tesseract

package tesseract

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/ballotcount/internal/engine"
)

// Engine is the placeholder compiled without the tesseract tag.
type Engine struct{}

// New always fails: this binary was built without libtesseract.
func New(cfg Config, _ *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("tesseract: built without the tesseract tag: %w", engine.ErrUnavailable)
}

func (e *Engine) ClassifyText(context.Context, image.Image) (string, error) {
	return "", engine.ErrUnavailable
}

func (e *Engine) Close() error { return nil }
