// Package row classifies the cells of one ballot and folds them into
// per-row results.
package row

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
	"github.com/MeKo-Tech/ballotcount/internal/engine"
	"github.com/MeKo-Tech/ballotcount/internal/extract"
	"github.com/MeKo-Tech/ballotcount/internal/layout"
	"github.com/MeKo-Tech/ballotcount/internal/markscore"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	SourceDetector  = "detector"
	SourceHeuristic = "heuristic"
	SourceMissing   = "missing"
)

// Combine assembles the result of one row from its three classified cells.
func Combine(index int, nameText string, agree, disagree ballot.MarkDetail) ballot.RowResult {
	return ballot.RowResult{
		Row:      index,
		NameText: nameText,
		Agree:    agree.Present,
		Disagree: disagree.Present,
		Details:  ballot.RowDetails{Agree: agree, Disagree: disagree},
	}
}

// Aggregator dispatches cells to the engines. The semaphore bounds engine
// calls across every ballot sharing it.
type Aggregator struct {
	engines engine.Engines
	table   markscore.Table
	sem     *semaphore.Weighted
	logger  *slog.Logger
}

// NewAggregator fails with ballot.ErrClassificationEngineUnavailable when
// no text engine is configured. A nil sem allows 8 concurrent calls.
func NewAggregator(e engine.Engines, table markscore.Table, sem *semaphore.Weighted, logger *slog.Logger) (*Aggregator, error) {
	if err := e.Check(); err != nil {
		return nil, err
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if sem == nil {
		sem = semaphore.NewWeighted(8)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if e.Degraded() {
		logger.Info("no mark engine configured, scoring marks from recognized text")
	}
	return &Aggregator{engines: e, table: table, sem: sem, logger: logger}, nil
}

type cellResult struct {
	text    string
	mark    ballot.MarkDetail
	nameErr string
}

// Classify runs every cell through its engine and returns layout.Rows
// results in row order. Engine failures on a cell degrade to empty text or
// an absent mark. Cancellation of ctx and an engine reporting
// ballot.ErrClassificationEngineUnavailable are returned as errors.
func (a *Aggregator) Classify(ctx context.Context, cells []extract.Cell) ([]ballot.RowResult, error) {
	results := make([][3]*cellResult, layout.Rows)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range cells {
		if c.Row < 1 || c.Row > layout.Rows {
			continue
		}
		res := &cellResult{}
		results[c.Row-1][c.Field] = res
		g.Go(func() error {
			if err := a.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer a.sem.Release(1)
			return a.classifyCell(gctx, c, res)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows := make([]ballot.RowResult, layout.Rows)
	for i, r := range results {
		name, agree, disagree := r[ballot.FieldName], r[ballot.FieldAgree], r[ballot.FieldDisagree]
		var text, nameErr string
		if name != nil {
			text, nameErr = name.text, name.nameErr
		} else {
			nameErr = "cell outside image"
		}
		rows[i] = Combine(i+1, text, markOrMissing(agree), markOrMissing(disagree))
		rows[i].Details.NameError = nameErr
	}
	return rows, nil
}

func markOrMissing(r *cellResult) ballot.MarkDetail {
	if r == nil {
		return ballot.MarkDetail{Source: SourceMissing, Error: "cell outside image"}
	}
	return r.mark
}

func (a *Aggregator) classifyCell(ctx context.Context, c extract.Cell, out *cellResult) error {
	switch {
	case c.Field == ballot.FieldName:
		text, err := a.engines.Text.ClassifyText(ctx, c.Image)
		if err != nil {
			if unavailable(err) {
				return fmt.Errorf("row %d %v: %w", c.Row, c.Field, err)
			}
			a.logger.Warn("name cell unreadable", "row", c.Row, "error", err)
			out.nameErr = err.Error()
			return nil
		}
		out.text = text
	case a.engines.Degraded():
		m, err := a.markFromText(ctx, c)
		if err != nil {
			return err
		}
		out.mark = m
	default:
		r, err := a.engines.Mark.ClassifyMark(ctx, c.Image)
		out.mark = ballot.MarkDetail{MarkResult: r, Source: SourceDetector}
		if err != nil {
			if unavailable(err) {
				return fmt.Errorf("row %d %v: %w", c.Row, c.Field, err)
			}
			a.logger.Warn("mark cell unreadable", "row", c.Row, "field", c.Field, "error", err)
			out.mark = ballot.MarkDetail{Source: SourceDetector, Error: err.Error()}
		}
	}
	return nil
}

// unavailable reports an engine outage, as opposed to one unreadable cell.
func unavailable(err error) bool {
	return errors.Is(err, ballot.ErrClassificationEngineUnavailable)
}

func (a *Aggregator) markFromText(ctx context.Context, c extract.Cell) (ballot.MarkDetail, error) {
	text, err := a.engines.Text.ClassifyText(ctx, c.Image)
	if err != nil {
		if unavailable(err) {
			return ballot.MarkDetail{}, fmt.Errorf("row %d %v: %w", c.Row, c.Field, err)
		}
		a.logger.Warn("mark cell unreadable", "row", c.Row, "field", c.Field, "error", err)
		return ballot.MarkDetail{Source: SourceHeuristic, Error: err.Error()}, nil
	}
	v := a.table.Score(text)
	score := v.Score
	return ballot.MarkDetail{
		MarkResult: ballot.MarkResult{Present: v.Present, Confidence: v.Confidence()},
		Source:     SourceHeuristic,
		Text:       v.Text,
		Score:      &score,
		Level:      string(v.Level),
		Reasons:    v.Reasons,
	}, nil
}
