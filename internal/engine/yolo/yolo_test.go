package yolo

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/MeKo-Tech/ballotcount/internal/onnx"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// head builds a [1, 6, n] output from per-anchor rows {cx, cy, w, h, s0, s1}.
func head(anchors ...[6]float32) ([]float32, []int64) {
	n := len(anchors)
	out := make([]float32, 6*n)
	for i, a := range anchors {
		for r := range 6 {
			out[r*n+i] = a[r]
		}
	}
	return out, []int64{1, 6, int64(n)}
}

var classes = []string{"x_mark", "x_cancelled"}

func TestDecodeThresholdAndBoxes(t *testing.T) {
	out, shape := head(
		[6]float32{100, 100, 40, 20, 0.9, 0.1},
		[6]float32{300, 300, 10, 10, 0.1, 0.2}, // below threshold
		[6]float32{500, 500, 20, 20, 0.05, 0.6},
	)
	dets, err := decode(out, shape, classes, 0.25, 0.7)
	require.NoError(t, err)
	require.Len(t, dets, 2)

	assert.Equal(t, "x_mark", dets[0].Class)
	assert.InDelta(t, 0.9, dets[0].Confidence, 1e-6)
	assert.Equal(t, [4]float64{80, 90, 120, 110}, dets[0].Box)
	assert.Equal(t, "x_cancelled", dets[1].Class)
}

func TestDecodeSuppressesOverlaps(t *testing.T) {
	out, shape := head(
		[6]float32{100, 100, 40, 40, 0.6, 0},
		[6]float32{102, 101, 40, 40, 0.8, 0},
		[6]float32{101, 100, 40, 40, 0, 0.7}, // other class survives
	)
	dets, err := decode(out, shape, classes, 0.25, 0.7)
	require.NoError(t, err)
	require.Len(t, dets, 2)
	assert.InDelta(t, 0.8, dets[0].Confidence, 1e-6)
	assert.Equal(t, "x_cancelled", dets[1].Class)
}

func TestDecodeRejectsBadShapes(t *testing.T) {
	_, err := decode(make([]float32, 8), []int64{1, 4, 2}, classes, 0.25, 0.7)
	require.Error(t, err)
	_, err = decode(make([]float32, 5), []int64{1, 6, 1}, classes, 0.25, 0.7)
	require.Error(t, err)
	_, err = decode(nil, []int64{6, 10}, classes, 0.25, 0.7)
	require.Error(t, err)
}

func TestVerdictIgnoresCancelledMarks(t *testing.T) {
	out, shape := head([6]float32{50, 50, 10, 10, 0, 0.95})
	dets, err := decode(out, shape, classes, 0.25, 0.7)
	require.NoError(t, err)
	r := verdict(dets, "x_mark")
	assert.False(t, r.Present)
	assert.Zero(t, r.Confidence)
	assert.Len(t, r.Detections, 1)

	out, shape = head(
		[6]float32{50, 50, 10, 10, 0.4, 0},
		[6]float32{400, 400, 10, 10, 0.7, 0},
	)
	dets, err = decode(out, shape, classes, 0.25, 0.7)
	require.NoError(t, err)
	r = verdict(dets, "x_mark")
	assert.True(t, r.Present)
	assert.InDelta(t, 0.7, r.Confidence, 1e-6)
}

func TestBoxIoU(t *testing.T) {
	assert.InDelta(t, 1.0, boxIoU([4]float64{0, 0, 10, 10}, [4]float64{0, 0, 10, 10}), 1e-12)
	assert.InDelta(t, 0.0, boxIoU([4]float64{0, 0, 10, 10}, [4]float64{20, 20, 30, 30}), 1e-12)
	assert.InDelta(t, 25.0/175.0, boxIoU([4]float64{0, 0, 10, 10}, [4]float64{5, 5, 15, 15}), 1e-12)
}

type fakeRunner struct {
	out    []float32
	shape  []int64
	err    error
	gotDim []int64
	closed bool
}

func (f *fakeRunner) Run(t onnx.Tensor) ([]float32, []int64, error) {
	f.gotDim = t.Shape
	return f.out, f.shape, f.err
}

func (f *fakeRunner) Close() error {
	f.closed = true
	return nil
}

func TestEngineClassifyMark(t *testing.T) {
	out, shape := head([6]float32{320, 320, 100, 100, 0.88, 0.01})
	r := &fakeRunner{out: out, shape: shape}
	e := newEngine(DefaultConfig(), r, nil)

	res, err := e.ClassifyMark(context.Background(), image.NewNRGBA(image.Rect(0, 0, 100, 50)))
	require.NoError(t, err)
	assert.True(t, res.Present)
	assert.Equal(t, []int64{1, 3, 640, 640}, r.gotDim, "cells are resized to the model input")

	require.NoError(t, e.Close())
	assert.True(t, r.closed)
}

func TestLetterboxKeepsAspect(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 100, 50))
	for i := range src.Pix {
		src.Pix[i] = 0
	}
	for i := 3; i < len(src.Pix); i += 4 {
		src.Pix[i] = 255
	}

	out := imaging.Clone(letterbox(src, 640))
	require.Equal(t, image.Rect(0, 0, 640, 640), out.Bounds())
	// 100x50 scales to 640x320, centred with 160 rows of padding each side.
	assert.Equal(t, letterboxFill, out.NRGBAAt(320, 100))
	assert.Equal(t, letterboxFill, out.NRGBAAt(320, 560))
	assert.Equal(t, color.NRGBA{A: 255}, out.NRGBAAt(320, 320))
	assert.Equal(t, color.NRGBA{A: 255}, out.NRGBAAt(5, 170))

	square := image.NewNRGBA(image.Rect(0, 0, 640, 640))
	assert.Same(t, square, letterbox(square, 640).(*image.NRGBA))

	empty := imaging.Clone(letterbox(image.NewNRGBA(image.Rectangle{}), 64))
	assert.Equal(t, letterboxFill, empty.NRGBAAt(0, 0))
}

func TestEngineErrors(t *testing.T) {
	e := newEngine(DefaultConfig(), &fakeRunner{err: errors.New("boom")}, nil)
	_, err := e.ClassifyMark(context.Background(), image.NewNRGBA(image.Rect(0, 0, 640, 640)))
	require.Error(t, err)

	_, err = e.ClassifyMark(context.Background(), nil)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.ClassifyMark(ctx, image.NewNRGBA(image.Rect(0, 0, 640, 640)))
	require.ErrorIs(t, err, context.Canceled)
}

func TestConfigValidate(t *testing.T) {
	c := DefaultConfig()
	require.Error(t, c.Validate(), "model path required")
	c.ModelPath = "marks.onnx"
	require.NoError(t, c.Validate())

	bad := c
	bad.Confidence = 1.5
	require.Error(t, bad.Validate())
	bad = c
	bad.IoU = 0
	require.Error(t, bad.Validate())
	bad = c
	bad.MarkClass = ""
	require.Error(t, bad.Validate())
}
