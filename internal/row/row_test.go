package row

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
	"github.com/MeKo-Tech/ballotcount/internal/engine"
	"github.com/MeKo-Tech/ballotcount/internal/extract"
	"github.com/MeKo-Tech/ballotcount/internal/markscore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

// cellImage encodes the field and a marked flag in the top-left pixel so the
// fake engines can answer without real recognition.
func cellImage(marked bool) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	if marked {
		img.SetNRGBA(0, 0, color.NRGBA{A: 255})
	} else {
		img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	}
	return img
}

func isMarked(img image.Image) bool {
	r, _, _, _ := img.At(0, 0).RGBA()
	return r == 0
}

func cells(marks map[int][2]bool) []extract.Cell {
	var out []extract.Cell
	for r := 1; r <= 10; r++ {
		m := marks[r]
		out = append(out,
			extract.Cell{Row: r, Field: ballot.FieldName, Image: cellImage(false)},
			extract.Cell{Row: r, Field: ballot.FieldAgree, Image: cellImage(m[0])},
			extract.Cell{Row: r, Field: ballot.FieldDisagree, Image: cellImage(m[1])},
		)
	}
	return out
}

var nameText = engine.TextFunc(func(_ context.Context, img image.Image) (string, error) {
	if isMarked(img) {
		return "X", nil
	}
	return "NGUYEN VAN A", nil
})

var darkMark = engine.MarkFunc(func(_ context.Context, img image.Image) (ballot.MarkResult, error) {
	if isMarked(img) {
		return ballot.MarkResult{Present: true, Confidence: 0.9}, nil
	}
	return ballot.MarkResult{}, nil
})

func TestCombine(t *testing.T) {
	r := Combine(3, "TRAN THI B",
		ballot.MarkDetail{MarkResult: ballot.MarkResult{Present: true}},
		ballot.MarkDetail{})
	assert.Equal(t, 3, r.Row)
	assert.True(t, r.Agree)
	assert.False(t, r.Disagree)
	assert.True(t, r.Exclusive())

	both := Combine(1, "", ballot.MarkDetail{MarkResult: ballot.MarkResult{Present: true}},
		ballot.MarkDetail{MarkResult: ballot.MarkResult{Present: true}})
	assert.False(t, both.Exclusive())
	assert.False(t, Combine(1, "", ballot.MarkDetail{}, ballot.MarkDetail{}).Exclusive())
}

func TestClassifyWithMarkEngine(t *testing.T) {
	a, err := NewAggregator(engine.Engines{Text: nameText, Mark: darkMark}, markscore.DefaultTable(), nil, nil)
	require.NoError(t, err)

	rows, err := a.Classify(context.Background(), cells(map[int][2]bool{1: {true, false}, 2: {false, true}, 3: {true, true}}))
	require.NoError(t, err)
	require.Len(t, rows, 10)

	assert.Equal(t, "NGUYEN VAN A", rows[0].NameText)
	assert.True(t, rows[0].Agree)
	assert.True(t, rows[1].Disagree)
	assert.True(t, rows[2].Agree && rows[2].Disagree)
	assert.False(t, rows[9].Agree || rows[9].Disagree)
	assert.Equal(t, SourceDetector, rows[0].Details.Agree.Source)
	assert.InDelta(t, 0.9, rows[0].Details.Agree.Confidence, 1e-12)
}

func TestClassifyDegradedScoresText(t *testing.T) {
	a, err := NewAggregator(engine.Engines{Text: nameText}, markscore.DefaultTable(), nil, nil)
	require.NoError(t, err)

	rows, err := a.Classify(context.Background(), cells(map[int][2]bool{1: {true, false}}))
	require.NoError(t, err)

	d := rows[0].Details.Agree
	assert.True(t, rows[0].Agree)
	assert.Equal(t, SourceHeuristic, d.Source)
	require.NotNil(t, d.Score)
	assert.Equal(t, 12, *d.Score)
	assert.Equal(t, "high", d.Level)

	// "NGUYEN VAN A" read from an empty mark cell is long text: absent.
	assert.False(t, rows[0].Disagree)
	assert.Equal(t, -5, *rows[0].Details.Disagree.Score)
}

func TestClassifyDegradesCellErrors(t *testing.T) {
	failing := engine.MarkFunc(func(context.Context, image.Image) (ballot.MarkResult, error) {
		return ballot.MarkResult{Present: true}, errors.New("model crashed")
	})
	badText := engine.TextFunc(func(context.Context, image.Image) (string, error) {
		return "", errors.New("tesseract died")
	})
	a, err := NewAggregator(engine.Engines{Text: badText, Mark: failing}, markscore.DefaultTable(), nil, nil)
	require.NoError(t, err)

	rows, err := a.Classify(context.Background(), cells(nil))
	require.NoError(t, err)
	assert.Empty(t, rows[0].NameText)
	assert.Equal(t, "tesseract died", rows[0].Details.NameError)
	assert.False(t, rows[0].Agree, "a failed call is an absent mark")
	assert.Equal(t, "model crashed", rows[0].Details.Agree.Error)
}

func TestClassifyFailsWhenEngineUnavailable(t *testing.T) {
	down := engine.MarkFunc(func(context.Context, image.Image) (ballot.MarkResult, error) {
		return ballot.MarkResult{}, engine.ErrUnavailable
	})
	a, err := NewAggregator(engine.Engines{Text: nameText, Mark: down}, markscore.DefaultTable(), nil, nil)
	require.NoError(t, err)

	rows, err := a.Classify(context.Background(), cells(nil))
	require.ErrorIs(t, err, ballot.ErrClassificationEngineUnavailable)
	assert.Nil(t, rows)

	// The same outage reported by the text engine in degraded mode.
	textDown := engine.TextFunc(func(context.Context, image.Image) (string, error) {
		return "", fmt.Errorf("session closed: %w", engine.ErrUnavailable)
	})
	a, err = NewAggregator(engine.Engines{Text: textDown}, markscore.DefaultTable(), nil, nil)
	require.NoError(t, err)
	_, err = a.Classify(context.Background(), cells(nil))
	require.ErrorIs(t, err, ballot.ErrClassificationEngineUnavailable)
}

func TestClassifyMissingCells(t *testing.T) {
	a, err := NewAggregator(engine.Engines{Text: nameText, Mark: darkMark}, markscore.DefaultTable(), nil, nil)
	require.NoError(t, err)

	rows, err := a.Classify(context.Background(), cells(nil)[:3])
	require.NoError(t, err)
	require.Len(t, rows, 10)
	assert.Equal(t, SourceMissing, rows[4].Details.Agree.Source)
	assert.NotEmpty(t, rows[4].Details.NameError)
}

func TestClassifyRequiresTextEngine(t *testing.T) {
	_, err := NewAggregator(engine.Engines{Mark: darkMark}, markscore.DefaultTable(), nil, nil)
	require.ErrorIs(t, err, ballot.ErrClassificationEngineUnavailable)
}

func TestClassifyBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := engine.MarkFunc(func(context.Context, image.Image) (ballot.MarkResult, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return ballot.MarkResult{}, nil
	})
	a, err := NewAggregator(engine.Engines{Text: nameText, Mark: slow}, markscore.DefaultTable(), semaphore.NewWeighted(3), nil)
	require.NoError(t, err)

	_, err = a.Classify(context.Background(), cells(nil))
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestClassifyCancelled(t *testing.T) {
	a, err := NewAggregator(engine.Engines{Text: nameText, Mark: darkMark}, markscore.DefaultTable(), nil, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Classify(ctx, cells(nil))
	require.ErrorIs(t, err, context.Canceled)
}
