// Package count drives a counting run: it pushes every ballot through
// rectification, cell extraction, classification and row aggregation on a
// fixed worker pool, settles the results into a tally and reports progress
// as ballots complete.
package count

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
	"github.com/MeKo-Tech/ballotcount/internal/candidate"
	"github.com/MeKo-Tech/ballotcount/internal/extract"
	"github.com/MeKo-Tech/ballotcount/internal/fiducial"
	"github.com/MeKo-Tech/ballotcount/internal/layout"
	"github.com/MeKo-Tech/ballotcount/internal/metrics"
	"github.com/MeKo-Tech/ballotcount/internal/progress"
	"github.com/MeKo-Tech/ballotcount/internal/rectify"
	"github.com/MeKo-Tech/ballotcount/internal/row"
	"github.com/MeKo-Tech/ballotcount/internal/source"
	"github.com/MeKo-Tech/ballotcount/internal/tally"
	"github.com/google/uuid"
)

// Config holds run settings.
type Config struct {
	Workers         int    // ballots processed in parallel (0 = runtime.NumCPU())
	Poll            string // run guard key, no guard check when empty
	Template        string // template id or layout.Auto
	DefaultTemplate string // used when auto-selection finds nothing
}

// Deps are the collaborators a Counter is built from. They are shared by
// every worker and must not change during a run.
type Deps struct {
	Detector  fiducial.Detector
	Rectifier *rectify.Rectifier
	Layouts   *layout.Registry
	Extractor *extract.Extractor
	Rows      *row.Aggregator
	Roster    *candidate.Roster
	Guard     tally.Guard
	Metrics   *metrics.Metrics
	Progress  progress.Sink
	Logger    *slog.Logger
}

// Result is the outcome of a run.
type Result struct {
	RunID      string           `json:"run_id"`
	Poll       string           `json:"poll,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Summary    tally.Summary    `json:"summary"`
	Tally      []tally.Entry    `json:"tally"`
	Records    []*ballot.Record `json:"ballots"`
}

// SaveFunc persists a finished run. It is called while progress reports
// the saving stage; an error fails the run.
type SaveFunc func(ctx context.Context, res *Result) error

// Counter runs counting batches.
type Counter struct {
	cfg  Config
	deps Deps
}

// New checks that the pipeline stages are present.
func New(cfg Config, d Deps) (*Counter, error) {
	switch {
	case d.Rectifier == nil:
		return nil, errors.New("count: rectifier is required")
	case d.Layouts == nil:
		return nil, errors.New("count: layout registry is required")
	case d.Extractor == nil:
		return nil, errors.New("count: extractor is required")
	case d.Rows == nil:
		return nil, errors.New("count: row aggregator is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Template == "" {
		cfg.Template = layout.Auto
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Counter{cfg: cfg, deps: d}, nil
}

type job struct {
	index int
	b     source.Ballot
}

// Run counts ballots. Precondition failures (empty roster, empty batch,
// poll already counted) return before any ballot is touched. On
// cancellation the partial result is returned with ctx's error, ballots
// never started are recorded as abandoned, and the run is not saved.
func (c *Counter) Run(ctx context.Context, ballots []source.Ballot, save SaveFunc) (*Result, error) {
	rep := progress.NewReporter(c.deps.Progress)
	res := &Result{RunID: uuid.NewString(), Poll: c.cfg.Poll, StartedAt: time.Now()}
	log := c.deps.Logger.With("run", res.RunID)

	t, err := c.preflight(ballots)
	if err != nil {
		log.Error("counting refused", "error", err, "kind", ballot.KindOf(err))
		rep.Fail(err)
		return nil, err
	}

	rep.Start(len(ballots))
	log.Info("counting started", "ballots", len(ballots), "workers", c.cfg.Workers, "poll", c.cfg.Poll)

	res.Records = c.process(ctx, t, ballots, rep, log)
	res.Summary = t.Summary()
	res.Tally = t.Snapshot()
	res.FinishedAt = time.Now()

	if err := ctx.Err(); err != nil {
		log.Warn("counting cancelled", "completed", res.Summary.ValidBallots+res.Summary.InvalidBallots, "error", err)
		rep.Fail(err)
		return res, err
	}

	rep.Saving()
	if save != nil {
		if err := save(ctx, res); err != nil {
			err = fmt.Errorf("save results: %w", err)
			log.Error("counting failed", "error", err)
			rep.Fail(err)
			return res, err
		}
	}
	if c.cfg.Poll != "" && c.deps.Guard != nil {
		m := tally.Marker{RunID: res.RunID, CountedAt: res.FinishedAt, Summary: res.Summary}
		if err := c.deps.Guard.Mark(c.cfg.Poll, m); err != nil {
			err = fmt.Errorf("mark poll counted: %w", err)
			log.Error("counting failed", "error", err)
			rep.Fail(err)
			return res, err
		}
	}

	log.Info("counting complete",
		"valid", res.Summary.ValidBallots,
		"invalid", res.Summary.InvalidBallots,
		"duration", res.FinishedAt.Sub(res.StartedAt))
	rep.Finish(fmt.Sprintf("counted %d ballots: %d valid, %d invalid",
		res.Summary.TotalBallots, res.Summary.ValidBallots, res.Summary.InvalidBallots))
	return res, nil
}

func (c *Counter) preflight(ballots []source.Ballot) (*tally.Tally, error) {
	if c.deps.Roster == nil || c.deps.Roster.Len() == 0 {
		return nil, ballot.ErrEmptyRoster
	}
	if len(ballots) == 0 {
		return nil, ballot.ErrEmptyBallotSet
	}
	if c.cfg.Poll != "" && c.deps.Guard != nil {
		if err := c.deps.Guard.Check(c.cfg.Poll); err != nil {
			return nil, err
		}
	}
	return tally.New(c.deps.Roster)
}

// process runs the worker pool and returns one record per ballot in input order.
func (c *Counter) process(ctx context.Context, t *tally.Tally, ballots []source.Ballot, rep *progress.Reporter, log *slog.Logger) []*ballot.Record {
	workers := min(c.cfg.Workers, len(ballots))
	jobs := make(chan job, workers)
	records := make([]*ballot.Record, len(ballots))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				records[j.index] = c.countBallot(ctx, t, j.b, log)
				rep.Completed(j.b.ID)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, b := range ballots {
			select {
			case jobs <- job{index: i, b: b}:
			case <-ctx.Done():
				return
			}
		}
	}()
	wg.Wait()

	for i, rec := range records {
		if rec != nil {
			continue
		}
		rec = &ballot.Record{ID: ballots[i].ID, Source: ballots[i].Path}
		t.Reject(rec, context.Cause(ctx))
		records[i] = rec
	}
	return records
}
