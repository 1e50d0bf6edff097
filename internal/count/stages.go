package count

import (
	"context"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
	"github.com/MeKo-Tech/ballotcount/internal/extract"
	"github.com/MeKo-Tech/ballotcount/internal/layout"
	"github.com/MeKo-Tech/ballotcount/internal/source"
	"github.com/MeKo-Tech/ballotcount/internal/tally"
)

// countBallot takes one ballot from RECEIVED to VALID_TALLIED or INVALID.
// Every stage failure invalidates the ballot with the failure's kind and
// the run moves on to the next ballot.
func (c *Counter) countBallot(ctx context.Context, t *tally.Tally, b source.Ballot, log *slog.Logger) *ballot.Record {
	rec := &ballot.Record{ID: b.ID, Source: b.Path, Stage: ballot.StageReceived}
	log = log.With("ballot", b.ID)
	start := time.Now()
	c.deps.Metrics.BallotStarted()
	defer func() { c.deps.Metrics.BallotFinished(rec, time.Since(start)) }()

	if err := c.aggregate(ctx, b, rec, log); err != nil {
		log.Warn("ballot invalid", "stage", rec.Stage, "kind", ballot.KindOf(err), "error", err)
		t.Reject(rec, err)
		return rec
	}

	timer := c.deps.Metrics.StageTimer(ballot.StageValidTallied)
	err := t.Settle(ctx, rec)
	timer.ObserveDuration()
	if err != nil {
		log.Warn("ballot invalid", "stage", ballot.StageAggregated, "kind", rec.Reason, "error", err)
		return rec
	}
	log.Debug("ballot tallied", "selections", len(rec.Selections))
	return rec
}

// aggregate runs the stages up to AGGREGATED.
func (c *Counter) aggregate(ctx context.Context, b source.Ballot, rec *ballot.Record, log *slog.Logger) error {
	var (
		canonical image.Image
		tpl       *layout.Template
		cells     []extract.Cell
	)

	err := c.stage(ctx, rec, ballot.StageRectified, func() error {
		img, err := b.Load()
		if err != nil {
			return err
		}
		markers, err := b.Markers(ctx, img, c.deps.Detector)
		if err != nil {
			return err
		}
		r, err := c.deps.Rectifier.Apply(b.ID, img, markers)
		if err != nil {
			return err
		}
		if r.Estimated >= 0 {
			rec.EstimatedCorner = r.Estimated.String()
			log.Info("estimated missing marker", "corner", rec.EstimatedCorner)
		}

		sel, err := c.deps.Layouts.Select(c.cfg.Template, b.Path, c.cfg.DefaultTemplate)
		if err != nil {
			return err
		}
		rec.Template = sel.Template.ID
		if sel.Fallback {
			rec.TemplateFallback = true
			log.Warn("no template matched the input path, using default", "template", sel.Template.ID)
		}

		canonical, tpl = r.Image, sel.Template
		return nil
	})
	if err != nil {
		return err
	}

	err = c.stage(ctx, rec, ballot.StageExtracted, func() error {
		cells = c.deps.Extractor.Extract(canonical, tpl)
		if err := c.deps.Extractor.SaveAudit(b.ID, cells); err != nil {
			log.Warn("audit artifacts not written", "error", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = c.stage(ctx, rec, ballot.StageClassified, func() error {
		rows, err := c.deps.Rows.Classify(ctx, cells)
		rec.Rows = rows
		return err
	})
	if err != nil {
		return err
	}

	// Rows are combined during classification; aggregation only records it.
	return c.stage(ctx, rec, ballot.StageAggregated, func() error { return nil })
}

// stage runs fn under a stage timer and advances rec to s when it succeeds.
// A cancelled ctx abandons the ballot before fn starts.
func (c *Counter) stage(ctx context.Context, rec *ballot.Record, s ballot.Stage, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timer := c.deps.Metrics.StageTimer(s)
	err := fn()
	timer.ObserveDuration()
	if err != nil {
		return err
	}
	rec.Advance(s)
	return nil
}
