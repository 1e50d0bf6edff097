package onnx

import (
	"errors"
	"fmt"
)

// Tensor is a float32 tensor in row-major layout, NCHW for images.
type Tensor struct {
	Data  []float32
	Shape []int64
}

// NewImageTensor wraps CHW data as a [1, C, H, W] tensor.
func NewImageTensor(data []float32, c, h, w int) (Tensor, error) {
	if data == nil {
		return Tensor{}, errors.New("nil data")
	}
	if want := c * h * w; len(data) != want {
		return Tensor{}, fmt.Errorf("unexpected data length: got %d, want %d", len(data), want)
	}
	t := Tensor{Data: data, Shape: []int64{1, int64(c), int64(h), int64(w)}}
	return t, ValidateNCHW(t.Shape)
}

// ValidateNCHW ensures a shape is [N, C, H, W] with positive dimensions.
func ValidateNCHW(shape []int64) error {
	if len(shape) != 4 {
		return fmt.Errorf("shape rank %d != 4", len(shape))
	}
	for i, v := range shape {
		if v <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
	}
	return nil
}
