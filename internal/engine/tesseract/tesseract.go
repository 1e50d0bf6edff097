//go:build tesseract

package tesseract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"

	"github.com/otiai10/gosseract/v2"
)

// Engine implements engine.TextClassifier with a fixed pool of clients.
// A gosseract client wraps one TessBaseAPI and is not safe for concurrent use.
type Engine struct {
	cfg     Config
	clients chan *gosseract.Client
	logger  *slog.Logger
}

// New creates cfg.Workers clients.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{cfg: cfg, clients: make(chan *gosseract.Client, cfg.Workers), logger: logger}
	for range cfg.Workers {
		c, err := newClient(cfg)
		if err != nil {
			_ = e.Close()
			return nil, err
		}
		e.clients <- c
	}
	logger.Debug("tesseract ready", "languages", cfg.Languages, "workers", cfg.Workers, "version", gosseract.Version())
	return e, nil
}

func newClient(cfg Config) (*gosseract.Client, error) {
	c := gosseract.NewClient()
	if cfg.TessdataDir != "" {
		if err := c.SetTessdataPrefix(cfg.TessdataDir); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("tesseract: tessdata path: %w", err)
		}
	}
	if err := c.SetLanguage(cfg.Languages...); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("tesseract: language: %w", err)
	}
	if err := c.SetPageSegMode(gosseract.PageSegMode(cfg.PageSegMode)); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("tesseract: page segmentation: %w", err)
	}
	if cfg.DisableDicts {
		_ = c.SetVariable("load_system_dawg", "false")
		_ = c.SetVariable("load_freq_dawg", "false")
	}
	return c, nil
}

// ClassifyText recognizes the text in one normalized cell.
func (e *Engine) ClassifyText(ctx context.Context, img image.Image) (string, error) {
	if img == nil {
		return "", errors.New("tesseract: nil image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("tesseract: encode cell: %w", err)
	}

	var c *gosseract.Client
	select {
	case c = <-e.clients:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { e.clients <- c }()

	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("tesseract: set image: %w", err)
	}
	raw, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: recognize: %w", err)
	}
	return cleanText(raw), nil
}

// Close releases every pooled client. Calls in flight must have returned.
func (e *Engine) Close() error {
	var errs []error
	for {
		select {
		case c := <-e.clients:
			errs = append(errs, c.Close())
		default:
			return errors.Join(errs...)
		}
	}
}
