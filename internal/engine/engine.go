// Package engine defines the boundary between the counting core and the
// recognition backends. The core only sees these interfaces; concrete
// adapters live in subpackages and are built once per run by the CLI.
package engine

import (
	"context"
	"errors"
	"image"
	"io"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
)

// TextClassifier reads the text printed or written in a cell.
type TextClassifier interface {
	ClassifyText(ctx context.Context, img image.Image) (string, error)
}

// MarkClassifier decides whether a cross was drawn in a mark cell.
type MarkClassifier interface {
	ClassifyMark(ctx context.Context, img image.Image) (ballot.MarkResult, error)
}

// Engines is the explicit handle passed into a counting run. A nil Mark
// selects the degraded mode where marks are inferred from Text output.
type Engines struct {
	Text TextClassifier
	Mark MarkClassifier
}

// ErrUnavailable wraps ballot.ErrClassificationEngineUnavailable for adapters
// that were compiled without their backend.
var ErrUnavailable = ballot.ErrClassificationEngineUnavailable

// Degraded reports whether marks are scored from recognized text.
func (e Engines) Degraded() bool { return e.Mark == nil }

// Check fails when no text engine is configured.
func (e Engines) Check() error {
	if e.Text == nil {
		return ErrUnavailable
	}
	return nil
}

// Close releases every engine that holds native resources.
func (e Engines) Close() error {
	var errs []error
	for _, v := range []any{e.Text, e.Mark} {
		if c, ok := v.(io.Closer); ok && c != nil {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// TextFunc adapts a plain function to TextClassifier.
type TextFunc func(ctx context.Context, img image.Image) (string, error)

func (f TextFunc) ClassifyText(ctx context.Context, img image.Image) (string, error) {
	return f(ctx, img)
}

// MarkFunc adapts a plain function to MarkClassifier.
type MarkFunc func(ctx context.Context, img image.Image) (ballot.MarkResult, error)

func (f MarkFunc) ClassifyMark(ctx context.Context, img image.Image) (ballot.MarkResult, error) {
	return f(ctx, img)
}
