package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
	"github.com/MeKo-Tech/ballotcount/internal/candidate"
	"github.com/MeKo-Tech/ballotcount/internal/config"
	"github.com/MeKo-Tech/ballotcount/internal/count"
	"github.com/MeKo-Tech/ballotcount/internal/engine"
	"github.com/MeKo-Tech/ballotcount/internal/engine/tesseract"
	"github.com/MeKo-Tech/ballotcount/internal/engine/yolo"
	"github.com/MeKo-Tech/ballotcount/internal/extract"
	"github.com/MeKo-Tech/ballotcount/internal/fiducial"
	"github.com/MeKo-Tech/ballotcount/internal/layout"
	"github.com/MeKo-Tech/ballotcount/internal/markscore"
	"github.com/MeKo-Tech/ballotcount/internal/metrics"
	"github.com/MeKo-Tech/ballotcount/internal/progress"
	"github.com/MeKo-Tech/ballotcount/internal/rectify"
	"github.com/MeKo-Tech/ballotcount/internal/report"
	"github.com/MeKo-Tech/ballotcount/internal/row"
	"github.com/MeKo-Tech/ballotcount/internal/source"
	"github.com/MeKo-Tech/ballotcount/internal/tally"
	"github.com/MeKo-Tech/ballotcount/internal/tui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/semaphore"
)

// countCmd counts a batch of scanned ballots.
var countCmd = &cobra.Command{
	Use:   "count [files or directories...]",
	Short: "Count a batch of scanned ballots",
	Long: `Count every ballot image (JPEG, PNG, BMP, TIFF) or PDF page found in the
given paths and print the tally.

Corner markers are read from a <image>.markers.yaml sidecar when present and
from the built-in detector otherwise. Without --mark-model, marks are scored
from the text engine's output.

Examples:
  ballotcount count scans/ --roster candidates.yaml
  ballotcount count scans/ --recursive --include "*.png" --poll ward-7 --state-dir /var/lib/ballotcount
  ballotcount count batch.pdf --pages 1-3,7 --format csv --records-csv records.csv
  ballotcount count scans/ --mark-model models/marks.onnx --tui`,
	SilenceUsage: true,
	RunE:         runCount,
}

// countFlags maps flag names to configuration keys.
var countFlags = map[string]string{
	"roster":           "roster",
	"poll":             "poll",
	"state-dir":        "state_dir",
	"template":         "layout.template",
	"default-template": "layout.default",
	"layout-file":      "layout.file",
	"recursive":        "input.recursive",
	"include":          "input.include",
	"exclude":          "input.exclude",
	"pages":            "input.pages",
	"workers":          "run.workers",
	"cell-concurrency": "run.cell_concurrency",
	"mark-model":       "engines.mark.model_path",
	"mark-scores":      "engines.mark_score_table",
	"tessdata":         "engines.text.tessdata_dir",
	"audit-dir":        "extract.audit_dir",
	"debug-dir":        "rectify.debug_dir",
	"format":           "output.format",
	"output":           "output.file",
	"records-csv":      "output.records_csv",
	"metrics-file":     "output.metrics_file",
	"tui":              "output.tui",
}

func init() {
	rootCmd.AddCommand(countCmd)

	f := countCmd.Flags()
	f.String("roster", "", "candidate roster (YAML or one name per line)")
	f.String("poll", "", "poll id; refuses to count a poll twice when --state-dir is set")
	f.String("state-dir", "", "directory holding counted-poll markers")
	f.String("template", layout.Auto, "form template id, or auto to pick from the input path")
	f.String("default-template", "data1", "template used when auto selection finds no id")
	f.String("layout-file", "", "YAML file with additional template calibrations")
	f.BoolP("recursive", "r", false, "descend into subdirectories")
	f.StringSlice("include", nil, "only files whose name matches one of these globs")
	f.StringSlice("exclude", nil, "skip files whose name matches one of these globs")
	f.String("pages", "", "PDF page range, e.g. 1-3,7 (default all)")
	f.IntP("workers", "w", 0, "ballots processed in parallel (default number of CPUs)")
	f.Int("cell-concurrency", 8, "classifier calls in flight across all ballots")
	f.String("mark-model", "", "ONNX mark detection model (scores marks from text when empty)")
	f.String("mark-scores", "", "YAML mark score table for text-scored marks")
	f.String("tessdata", "", "tesseract language data directory")
	f.String("audit-dir", "", "write every normalized cell here")
	f.String("debug-dir", "", "write marker overlays and rectified pages here")
	f.StringP("format", "f", "text", "output format: text, json, csv or records")
	f.StringP("output", "o", "", "write the report to this file instead of stdout")
	f.String("records-csv", "", "write one CSV row per ballot to this file")
	f.String("metrics-file", "", "write Prometheus metrics in textfile format to this file")
	f.Bool("tui", false, "interactive progress view")

	bindCountFlags()
}

func bindCountFlags() {
	for flag, key := range countFlags {
		_ = viper.BindPFlag(key, countCmd.Flags().Lookup(flag))
	}
}

// engineFactory builds the classifiers for a run. Tests replace it.
var engineFactory = buildEngines

func buildEngines(cfg *config.Config, logger *slog.Logger) (engine.Engines, error) {
	text, err := tesseract.New(cfg.Engines.Text, logger)
	if err != nil {
		return engine.Engines{}, err
	}
	e := engine.Engines{Text: text}
	if cfg.Engines.Mark.ModelPath != "" {
		mark, err := yolo.New(cfg.Engines.Mark, logger)
		if err != nil {
			_ = text.Close()
			return engine.Engines{}, err
		}
		e.Mark = mark
	}
	return e, nil
}

// pipeline is everything a run needs besides the ballots.
type pipeline struct {
	counter *count.Counter
	metrics *metrics.Metrics
	engines engine.Engines
}

func buildPipeline(cfg *config.Config, sink progress.Sink, logger *slog.Logger) (*pipeline, error) {
	var roster *candidate.Roster
	if cfg.Roster != "" {
		r, err := candidate.LoadRoster(cfg.Roster)
		if err != nil {
			return nil, err
		}
		roster = r
	}

	layouts := layout.NewRegistry()
	if cfg.Layout.File != "" {
		if err := layouts.LoadFile(cfg.Layout.File); err != nil {
			return nil, err
		}
	}
	if cfg.Layout.Template != layout.Auto {
		if _, err := layouts.Resolve(cfg.Layout.Template); err != nil {
			return nil, err
		}
	}

	table := markscore.DefaultTable()
	if cfg.Engines.MarkScoreTable != "" {
		t, err := markscore.Load(cfg.Engines.MarkScoreTable)
		if err != nil {
			return nil, err
		}
		table = t
	}

	rect, err := rectify.New(cfg.ToRectifyConfig())
	if err != nil {
		return nil, err
	}
	ext, err := extract.New(cfg.ToExtractConfig())
	if err != nil {
		return nil, err
	}
	det, err := fiducial.NewDetector(cfg.ToMarkerOptions())
	if err != nil {
		return nil, err
	}

	engines, err := engineFactory(cfg, logger)
	if err != nil {
		return nil, err
	}
	rows, err := row.NewAggregator(engines, table, semaphore.NewWeighted(int64(cfg.Run.CellConcurrency)), logger)
	if err != nil {
		_ = engines.Close()
		return nil, err
	}

	var guard tally.Guard
	if cfg.StateDir != "" {
		guard = tally.FileGuard{Dir: cfg.StateDir}
	} else if cfg.Poll != "" {
		logger.Warn("poll set without a state directory, repeat counts are not detected", "poll", cfg.Poll)
	}

	m := metrics.New()
	counter, err := count.New(count.Config{
		Workers:         cfg.Run.Workers,
		Poll:            cfg.Poll,
		Template:        cfg.Layout.Template,
		DefaultTemplate: cfg.Layout.Default,
	}, count.Deps{
		Detector:  det,
		Rectifier: rect,
		Layouts:   layouts,
		Extractor: ext,
		Rows:      rows,
		Roster:    roster,
		Guard:     guard,
		Metrics:   m,
		Progress:  sink,
		Logger:    logger,
	})
	if err != nil {
		_ = engines.Close()
		return nil, err
	}
	return &pipeline{counter: counter, metrics: m, engines: engines}, nil
}

// saveFunc persists the file outputs of a run while progress reports saving.
func saveFunc(cfg *config.Config, format report.Format, m *metrics.Metrics) count.SaveFunc {
	return func(_ context.Context, res *count.Result) error {
		if cfg.Output.File != "" {
			if err := report.WriteFile(cfg.Output.File, res, format); err != nil {
				return err
			}
		}
		if cfg.Output.RecordsCSV != "" {
			if err := report.WriteFile(cfg.Output.RecordsCSV, res, report.FormatRecords); err != nil {
				return err
			}
		}
		if cfg.Output.MetricsFile != "" {
			if err := m.WriteTextfile(cfg.Output.MetricsFile); err != nil {
				return err
			}
		}
		return nil
	}
}

func runCount(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}
	logger := slog.Default()

	ballots, err := source.Discover(args, cfg.ToSourceOptions())
	if err != nil {
		return err
	}
	logger.Debug("ballots discovered", "count", len(ballots))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		sink progress.Sink
		view *tui.View
	)
	if cfg.Output.TUI {
		view = tui.Start(fmt.Sprintf("Counting %s", pollTitle(cfg.Poll)), cancel)
		sink = progress.Multi{view, progress.NewLog(logger, slog.LevelDebug)}
	} else {
		sink = progress.Multi{progress.NewConsole(cmd.ErrOrStderr(), ""), progress.NewLog(logger, slog.LevelDebug)}
	}

	p, err := buildPipeline(cfg, sink, logger)
	if err != nil {
		if view != nil {
			sink.Emit(progress.Event{Percent: progress.PercentFailed, Message: err.Error()})
			_ = view.Wait()
		}
		return err
	}
	defer func() {
		if err := p.engines.Close(); err != nil {
			logger.Warn("closing engines", "error", err)
		}
	}()

	res, runErr := p.counter.Run(ctx, ballots, saveFunc(cfg, format, p.metrics))
	if view != nil {
		if err := view.Wait(); err != nil {
			logger.Warn("progress view", "error", err)
		}
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) && res != nil {
			return fmt.Errorf("counting interrupted after %d of %d ballots: %w",
				res.Summary.ValidBallots+res.Summary.InvalidBallots, len(ballots), runErr)
		}
		return describe(runErr)
	}
	if cfg.Output.File == "" {
		return report.Write(cmd.OutOrStdout(), res, format)
	}
	return nil
}

func pollTitle(poll string) string {
	if poll == "" {
		return "ballots"
	}
	return "poll " + poll
}

// describe adds the error kind so that scripts can match on it.
func describe(err error) error {
	if k := ballot.KindOf(err); k != ballot.KindInternal && k != ballot.KindNone {
		return fmt.Errorf("%s: %w", k, err)
	}
	return err
}
