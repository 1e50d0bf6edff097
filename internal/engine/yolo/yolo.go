// Package yolo is the mark engine backed by a YOLOv8 detection model
// exported to ONNX. The model sees the 640x640 normalized mark cell and
// reports crosses (x_mark) and crossed-out crosses (x_cancelled).
package yolo

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
	"github.com/MeKo-Tech/ballotcount/internal/mempool"
	"github.com/MeKo-Tech/ballotcount/internal/onnx"
	"github.com/MeKo-Tech/ballotcount/internal/utils"
	"github.com/disintegration/imaging"
)

// Config configures the mark model.
type Config struct {
	ModelPath   string         `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	LibraryPath string         `mapstructure:"library_path" yaml:"library_path" json:"library_path"`
	InputSize   int            `mapstructure:"input_size" yaml:"input_size" json:"input_size"`
	Confidence  float64        `mapstructure:"confidence" yaml:"confidence" json:"confidence"`
	IoU         float64        `mapstructure:"iou" yaml:"iou" json:"iou"`
	Classes     []string       `mapstructure:"classes" yaml:"classes" json:"classes"`
	MarkClass   string         `mapstructure:"mark_class" yaml:"mark_class" json:"mark_class"`
	NumThreads  int            `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	GPU         onnx.GPUConfig `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// DefaultConfig returns the settings the shipped mark model was trained with.
func DefaultConfig() Config {
	return Config{
		InputSize:  640,
		Confidence: 0.25,
		IoU:        0.7,
		Classes:    []string{"x_mark", "x_cancelled"},
		MarkClass:  "x_mark",
		GPU:        onnx.DefaultGPUConfig(),
	}
}

// Validate checks the config without touching the model file.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("yolo: model path is empty")
	}
	if c.InputSize < 32 {
		return fmt.Errorf("yolo: input size %d too small", c.InputSize)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("yolo: confidence %.2f out of [0,1]", c.Confidence)
	}
	if c.IoU <= 0 || c.IoU > 1 {
		return fmt.Errorf("yolo: iou %.2f out of (0,1]", c.IoU)
	}
	if c.MarkClass == "" {
		return errors.New("yolo: mark class is empty")
	}
	return c.GPU.Validate()
}

type runner interface {
	Run(t onnx.Tensor) ([]float32, []int64, error)
	Close() error
}

// Engine implements engine.MarkClassifier.
type Engine struct {
	cfg    Config
	model  runner
	logger *slog.Logger
}

// New loads the model.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s, err := onnx.NewSession(onnx.SessionConfig{
		ModelPath:   cfg.ModelPath,
		LibraryPath: cfg.LibraryPath,
		NumThreads:  cfg.NumThreads,
		GPU:         cfg.GPU,
	})
	if err != nil {
		return nil, fmt.Errorf("yolo: %w", err)
	}
	return newEngine(cfg, s, logger), nil
}

func newEngine(cfg Config, model runner, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, model: model, logger: logger}
}

// ClassifyMark runs the model on one mark cell.
func (e *Engine) ClassifyMark(ctx context.Context, img image.Image) (ballot.MarkResult, error) {
	if err := ctx.Err(); err != nil {
		return ballot.MarkResult{}, err
	}
	if img == nil {
		return ballot.MarkResult{}, errors.New("yolo: nil image")
	}
	img = letterbox(img, e.cfg.InputSize)

	data, w, h, err := utils.ImageToCHW(img)
	if err != nil {
		return ballot.MarkResult{}, err
	}
	defer mempool.PutFloat32(data)

	t, err := onnx.NewImageTensor(data, 3, h, w)
	if err != nil {
		return ballot.MarkResult{}, err
	}
	out, shape, err := e.model.Run(t)
	if err != nil {
		return ballot.MarkResult{}, fmt.Errorf("yolo: %w", err)
	}
	dets, err := decode(out, shape, e.cfg.Classes, e.cfg.Confidence, e.cfg.IoU)
	if err != nil {
		return ballot.MarkResult{}, err
	}
	r := verdict(dets, e.cfg.MarkClass)
	e.logger.Debug("mark classified", "present", r.Present, "confidence", r.Confidence, "detections", len(dets))
	return r, nil
}

// letterboxFill is the grey the model was trained with around scaled inputs.
var letterboxFill = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// letterbox scales img to fit a size x size square keeping its aspect ratio
// and centres it on a grey canvas.
func letterbox(img image.Image, size int) image.Image {
	b := img.Bounds()
	if b.Dx() == size && b.Dy() == size {
		return img
	}
	canvas := imaging.New(size, size, letterboxFill)
	if b.Empty() {
		return canvas
	}
	scale := float64(size) / float64(max(b.Dx(), b.Dy()))
	w := max(1, int(math.Round(float64(b.Dx())*scale)))
	h := max(1, int(math.Round(float64(b.Dy())*scale)))
	return imaging.PasteCenter(canvas, imaging.Resize(img, w, h, imaging.Linear))
}

// Close releases the model session.
func (e *Engine) Close() error { return e.model.Close() }
