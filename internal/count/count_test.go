package count

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
	"github.com/MeKo-Tech/ballotcount/internal/candidate"
	"github.com/MeKo-Tech/ballotcount/internal/engine"
	"github.com/MeKo-Tech/ballotcount/internal/extract"
	"github.com/MeKo-Tech/ballotcount/internal/fiducial"
	"github.com/MeKo-Tech/ballotcount/internal/layout"
	"github.com/MeKo-Tech/ballotcount/internal/markscore"
	"github.com/MeKo-Tech/ballotcount/internal/metrics"
	"github.com/MeKo-Tech/ballotcount/internal/progress"
	"github.com/MeKo-Tech/ballotcount/internal/rectify"
	"github.com/MeKo-Tech/ballotcount/internal/row"
	"github.com/MeKo-Tech/ballotcount/internal/source"
	"github.com/MeKo-Tech/ballotcount/internal/tally"
	"github.com/MeKo-Tech/ballotcount/internal/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const markSize = 640

// nameOrMark reads every name cell as the first candidate and, for the
// degraded path, a dark mark cell as "X".
var nameOrMark = engine.TextFunc(func(_ context.Context, img image.Image) (string, error) {
	if img.Bounds().Dx() == markSize {
		if testutil.IsDark(img) {
			return "X", nil
		}
		return "", nil
	}
	return "NGUYEN VAN A", nil
})

var darkMark = engine.MarkFunc(func(_ context.Context, img image.Image) (ballot.MarkResult, error) {
	if testutil.IsDark(img) {
		return ballot.MarkResult{Present: true, Confidence: 0.9}, nil
	}
	return ballot.MarkResult{}, nil
})

type harness struct {
	cfg    Config
	deps   Deps
	events *progress.Channel
	dir    string
}

func testDeps(engines engine.Engines) (Deps, *progress.Channel, error) {
	rect, err := rectify.New(rectify.Config{Width: testutil.SmallFrame.Width, Height: testutil.SmallFrame.Height})
	if err != nil {
		return Deps{}, nil, err
	}
	layouts := layout.NewRegistry()
	if err := layouts.Register("small", testutil.SmallCalibration()); err != nil {
		return Deps{}, nil, err
	}
	ext, err := extract.New(extract.DefaultConfig())
	if err != nil {
		return Deps{}, nil, err
	}
	rows, err := row.NewAggregator(engines, markscore.DefaultTable(), nil, nil)
	if err != nil {
		return Deps{}, nil, err
	}
	roster, err := candidate.FromNames("NGUYEN VAN A", "TRAN THI B", "LE VAN C")
	if err != nil {
		return Deps{}, nil, err
	}
	events := progress.NewChannel(64)
	return Deps{
		Rectifier: rect,
		Layouts:   layouts,
		Extractor: ext,
		Rows:      rows,
		Roster:    roster,
		Guard:     tally.NewMemoryGuard(),
		Progress:  events,
	}, events, nil
}

func newHarness(t *testing.T, engines engine.Engines) *harness {
	t.Helper()
	deps, events, err := testDeps(engines)
	require.NoError(t, err)
	return &harness{
		cfg:    Config{Workers: 2, Template: "small"},
		deps:   deps,
		events: events,
		dir:    t.TempDir(),
	}
}

func (h *harness) ballot(t *testing.T, id string, marks ...testutil.Mark) string {
	t.Helper()
	cfg := testutil.DefaultBallotConfig()
	if len(marks) > 0 {
		cfg.Marks = marks
	}
	return testutil.WriteBallot(t, h.dir, id, cfg)
}

func (h *harness) run(t *testing.T, ctx context.Context, save SaveFunc) (*Result, error) {
	t.Helper()
	c, err := New(h.cfg, h.deps)
	require.NoError(t, err)
	ballots, err := source.Discover([]string{h.dir}, source.Options{})
	require.NoError(t, err)
	return c.Run(ctx, ballots, save)
}

func (h *harness) drain() []progress.Event {
	var out []progress.Event
	for e := range h.events.C() {
		out = append(out, e)
	}
	return out
}

func repeat(m testutil.Mark, n int) []testutil.Mark {
	out := make([]testutil.Mark, n)
	for i := range out {
		out[i] = m
	}
	return out
}

func alternating() []testutil.Mark {
	out := make([]testutil.Mark, layout.Rows)
	for i := range out {
		out[i] = testutil.Agree
		if i%2 == 1 {
			out[i] = testutil.Disagree
		}
	}
	return out
}

func TestRunThreeBallotBatch(t *testing.T) {
	h := newHarness(t, engine.Engines{Text: nameOrMark, Mark: darkMark})
	h.deps.Metrics = metrics.New()

	h.ballot(t, "b1")
	b2 := repeat(testutil.Agree, layout.Rows)
	b2[1], b2[2] = testutil.Both, testutil.Both
	h.ballot(t, "b2", b2...)
	h.ballot(t, "b3", alternating()...)

	var saved *Result
	res, err := h.run(t, context.Background(), func(_ context.Context, r *Result) error {
		saved = r
		return nil
	})
	require.NoError(t, err)
	assert.Same(t, res, saved)
	assert.NotEmpty(t, res.RunID)

	assert.Equal(t, tally.Summary{TotalBallots: 3, ValidBallots: 2, InvalidBallots: 1, InvalidIDs: []string{"b2"}}, res.Summary)
	assert.Equal(t, []tally.Entry{
		{CandidateID: 1, Name: "NGUYEN VAN A", Count: 15},
		{CandidateID: 3, Name: "LE VAN C", Count: 0},
		{CandidateID: 2, Name: "TRAN THI B", Count: 0},
	}, res.Tally)

	require.Len(t, res.Records, 3)
	b1rec, b2rec, b3rec := res.Records[0], res.Records[1], res.Records[2]
	assert.Equal(t, "b1", b1rec.ID)
	assert.Equal(t, ballot.StageValidTallied, b1rec.Stage)
	assert.Equal(t, "small", b1rec.Template)
	assert.Len(t, b1rec.Rows, layout.Rows)
	assert.Len(t, b1rec.Selections, 10)

	assert.Equal(t, ballot.StageInvalid, b2rec.Stage)
	assert.Equal(t, ballot.KindRowExclusivityViolation, b2rec.Reason)
	assert.Contains(t, b2rec.Detail, "row 2")
	assert.Empty(t, b2rec.Selections)
	assert.True(t, b2rec.Rows[1].Agree && b2rec.Rows[1].Disagree)

	assert.Len(t, b3rec.Selections, 5)
	assert.Equal(t, "detector", b3rec.Rows[0].Details.Agree.Source)

	events := h.drain()
	require.Len(t, events, 6)
	assert.Equal(t, progress.PercentStart, events[0].Percent)
	assert.Equal(t, progress.PercentSaving, events[4].Percent)
	assert.Equal(t, progress.PercentDone, events[5].Percent)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Percent, events[i-1].Percent)
	}

	n, err := promtest.GatherAndCount(h.deps.Metrics.Registry(), "ballotcount_ballots_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRunDegradedMarksFromText(t *testing.T) {
	h := newHarness(t, engine.Engines{Text: nameOrMark})
	h.ballot(t, "b1", alternating()...)

	res, err := h.run(t, context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	require.True(t, rec.Valid, rec.Detail)
	assert.Len(t, rec.Selections, 5)

	agree := rec.Rows[0].Details.Agree
	assert.Equal(t, "heuristic", agree.Source)
	assert.Equal(t, "X", agree.Text)
	require.NotNil(t, agree.Score)
	assert.Equal(t, 12, *agree.Score)
}

func TestRunPreconditions(t *testing.T) {
	t.Run("empty roster", func(t *testing.T) {
		h := newHarness(t, engine.Engines{Text: nameOrMark, Mark: darkMark})
		h.deps.Roster = nil
		h.ballot(t, "b1")
		res, err := h.run(t, context.Background(), nil)
		require.ErrorIs(t, err, ballot.ErrEmptyRoster)
		assert.Nil(t, res)
		assert.Equal(t, []int{progress.PercentFailed}, percents(h.drain()))
	})

	t.Run("empty ballot set", func(t *testing.T) {
		h := newHarness(t, engine.Engines{Text: nameOrMark, Mark: darkMark})
		_, err := h.run(t, context.Background(), nil)
		require.ErrorIs(t, err, ballot.ErrEmptyBallotSet)
		assert.Equal(t, []int{progress.PercentFailed}, percents(h.drain()))
	})

	t.Run("already counted", func(t *testing.T) {
		h := newHarness(t, engine.Engines{Text: nameOrMark, Mark: darkMark})
		h.cfg.Poll = "district-7"
		h.ballot(t, "b1")

		_, err := h.run(t, context.Background(), nil)
		require.NoError(t, err)

		h.events = progress.NewChannel(8)
		h.deps.Progress = h.events
		_, err = h.run(t, context.Background(), nil)
		require.ErrorIs(t, err, ballot.ErrAlreadyCounted)
		assert.Equal(t, []int{progress.PercentFailed}, percents(h.drain()))
	})
}

func percents(events []progress.Event) []int {
	out := make([]int, len(events))
	for i, e := range events {
		out[i] = e.Percent
	}
	return out
}

func TestRunBallotScopedFailures(t *testing.T) {
	h := newHarness(t, engine.Engines{Text: nameOrMark, Mark: darkMark})

	// Two markers only.
	p := h.ballot(t, "a_two_markers")
	require.NoError(t, fiducial.WriteSidecar(p, fiducial.MarkerSet{
		fiducial.TopLeft:  {X: 0, Y: 0},
		fiducial.TopRight: {X: 329, Y: 0},
	}))

	// Bottom-right missing, estimated from the other three.
	p = h.ballot(t, "b_three_markers")
	require.NoError(t, fiducial.WriteSidecar(p, fiducial.MarkerSet{
		fiducial.TopLeft:    {X: 0, Y: 0},
		fiducial.TopRight:   {X: 329, Y: 0},
		fiducial.BottomLeft: {X: 0, Y: 467},
	}))

	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "c_corrupt.png"), []byte("garbage"), 0o600))

	res, err := h.run(t, context.Background(), nil)
	require.NoError(t, err, "ballot failures never fail the run")
	require.Len(t, res.Records, 3)

	assert.Equal(t, ballot.KindInsufficientMarkers, res.Records[0].Reason)
	assert.Equal(t, ballot.StageInvalid, res.Records[0].Stage)

	assert.True(t, res.Records[1].Valid, res.Records[1].Detail)
	assert.Equal(t, "BR", res.Records[1].EstimatedCorner)

	assert.Equal(t, ballot.KindImageUnreadable, res.Records[2].Reason)
	assert.Equal(t, []string{"a_two_markers", "c_corrupt"}, res.Summary.InvalidIDs)
}

func TestRunEngineOutageInvalidatesBallot(t *testing.T) {
	down := engine.MarkFunc(func(context.Context, image.Image) (ballot.MarkResult, error) {
		return ballot.MarkResult{}, ballot.ErrClassificationEngineUnavailable
	})
	h := newHarness(t, engine.Engines{Text: nameOrMark, Mark: down})
	h.ballot(t, "b1", alternating()...)

	res, err := h.run(t, context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	rec := res.Records[0]
	assert.False(t, rec.Valid)
	assert.Equal(t, ballot.KindClassificationEngineUnavailable, rec.Reason)
	assert.Equal(t, ballot.StageInvalid, rec.Stage)
	assert.Equal(t, 1, res.Summary.InvalidBallots)
	assert.Equal(t, []string{"b1"}, res.Summary.InvalidIDs)
}

func TestRunTemplateSelection(t *testing.T) {
	h := newHarness(t, engine.Engines{Text: nameOrMark, Mark: darkMark})
	h.cfg.Template = layout.Auto
	h.cfg.DefaultTemplate = "small"
	h.ballot(t, "b1")

	res, err := h.run(t, context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, res.Records[0].TemplateFallback)
	assert.True(t, res.Records[0].Valid)

	h2 := newHarness(t, engine.Engines{Text: nameOrMark, Mark: darkMark})
	h2.cfg.Template = layout.Auto
	h2.ballot(t, "b1")
	res, err = h2.run(t, context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ballot.KindTemplateNotFound, res.Records[0].Reason)

	h3 := newHarness(t, engine.Engines{Text: nameOrMark, Mark: darkMark})
	h3.cfg.Template = "missing"
	h3.ballot(t, "b1")
	res, err = h3.run(t, context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, ballot.KindTemplateNotFound, res.Records[0].Reason)
}

func TestRunCancelled(t *testing.T) {
	h := newHarness(t, engine.Engines{Text: nameOrMark, Mark: darkMark})
	h.cfg.Poll = "p"
	for _, id := range []string{"b1", "b2", "b3"} {
		h.ballot(t, id)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	saved := false
	res, err := h.run(t, ctx, func(context.Context, *Result) error {
		saved = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, saved)
	require.Len(t, res.Records, 3)
	for _, rec := range res.Records {
		assert.Equal(t, ballot.KindAbandoned, rec.Reason, rec.ID)
		assert.Empty(t, rec.Selections)
	}
	assert.Equal(t, 0, res.Summary.ValidBallots)
	assert.Equal(t, 0, res.Tally[0].Count)

	events := h.drain()
	assert.Equal(t, progress.PercentFailed, events[len(events)-1].Percent)
	require.NoError(t, h.deps.Guard.Check("p"), "a cancelled run does not mark the poll")
}

func TestRunSaveFailure(t *testing.T) {
	h := newHarness(t, engine.Engines{Text: nameOrMark, Mark: darkMark})
	h.cfg.Poll = "p"
	h.ballot(t, "b1")

	res, err := h.run(t, context.Background(), func(context.Context, *Result) error {
		return errors.New("disk full")
	})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "disk full"))
	require.NotNil(t, res)

	events := h.drain()
	assert.Equal(t, progress.PercentFailed, events[len(events)-1].Percent)
	assert.Equal(t, progress.PercentSaving, events[len(events)-2].Percent)
	require.NoError(t, h.deps.Guard.Check("p"))
}

func TestRunAuditArtifacts(t *testing.T) {
	h := newHarness(t, engine.Engines{Text: nameOrMark, Mark: darkMark})
	cfg := extract.DefaultConfig()
	cfg.AuditDir = filepath.Join(h.dir, "audit")
	ext, err := extract.New(cfg)
	require.NoError(t, err)
	h.deps.Extractor = ext
	h.ballot(t, "b1")

	_, err = h.run(t, context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, testutil.FileExists(filepath.Join(cfg.AuditDir, "b1", "r01_name.png")))
	assert.True(t, testutil.FileExists(filepath.Join(cfg.AuditDir, "b1", "r10_disagree.png")))
}

func TestNewRequiresStages(t *testing.T) {
	_, err := New(Config{}, Deps{})
	require.Error(t, err)
}
