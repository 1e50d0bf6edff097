package progress

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Channel delivers events on a buffered channel that is closed after the
// terminal event. Emit blocks when the buffer is full.
type Channel struct {
	ch chan Event
}

// NewChannel returns a channel sink with the given buffer size.
func NewChannel(buffer int) *Channel { return &Channel{ch: make(chan Event, max(buffer, 0))} }

// C returns the receive side.
func (c *Channel) C() <-chan Event { return c.ch }

func (c *Channel) Emit(e Event) {
	c.ch <- e
	if e.Terminal() {
		close(c.ch)
	}
}

// Multi fans events out to several sinks in order.
type Multi []Sink

func (m Multi) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

// Log writes events through slog: the first and last ballots, every
// Interval ballots in between and the terminal event.
type Log struct {
	Logger   *slog.Logger
	Level    slog.Level
	Interval int

	lastLogged int
}

// NewLog returns a slog sink logging every 10 ballots.
func NewLog(logger *slog.Logger, level slog.Level) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{Logger: logger, Level: level, Interval: 10}
}

func (l *Log) Emit(e Event) {
	switch {
	case e.Percent == PercentFailed:
		l.Logger.Log(context.Background(), slog.LevelError, "counting progress",
			"percent", e.Percent, "message", e.Message, "completed", e.Completed, "total", e.Total)
		return
	case e.Terminal(), e.Completed == 0, e.Completed == e.Total,
		e.Completed-l.lastLogged >= max(l.Interval, 1):
	default:
		return
	}
	l.lastLogged = e.Completed
	l.Logger.Log(context.Background(), l.Level, "counting progress",
		"percent", e.Percent, "message", e.Message, "completed", e.Completed, "total", e.Total)
}

// Console draws a single-line progress bar.
type Console struct {
	writer         io.Writer
	prefix         string
	width          int
	updateInterval time.Duration
	startTime      time.Time
	lastUpdate     time.Time
	now            func() time.Time
}

// NewConsole returns a bar writing to w, stderr when nil.
func NewConsole(w io.Writer, prefix string) *Console {
	if w == nil {
		w = os.Stderr
	}
	return &Console{writer: w, prefix: prefix, width: 40, updateInterval: 100 * time.Millisecond, now: time.Now}
}

// WithWidth sets the bar width in cells.
func (c *Console) WithWidth(width int) *Console {
	c.width = max(width, 1)
	return c
}

func (c *Console) Emit(e Event) {
	now := c.now()
	if e.Percent == PercentStart && e.Completed == 0 {
		c.startTime = now
	}
	if e.Percent == PercentFailed {
		_, _ = fmt.Fprintf(c.writer, "\n%sfailed: %s\n", c.prefix, e.Message)
		return
	}
	if !e.Terminal() && e.Completed != e.Total && now.Sub(c.lastUpdate) < c.updateInterval {
		return
	}
	c.lastUpdate = now
	c.draw(e, now)
	if e.Terminal() {
		_, _ = fmt.Fprintf(c.writer, "\n%sdone in %v\n", c.prefix, now.Sub(c.startTime).Round(time.Millisecond))
	}
}

func (c *Console) draw(e Event, now time.Time) {
	filled := c.width * e.Percent / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", c.width-filled)
	status := fmt.Sprintf("\r%s[%s] %3d%% %d/%d", c.prefix, bar, e.Percent, e.Completed, e.Total)

	elapsed := now.Sub(c.startTime)
	if elapsed > 0 && e.Completed > 0 && e.Completed < e.Total {
		rate := float64(e.Completed) / elapsed.Seconds()
		eta := time.Duration(float64(e.Total-e.Completed) / rate * float64(time.Second))
		status += fmt.Sprintf(" %.1f/s ETA: %v", rate, eta.Round(time.Second))
	}
	_, _ = fmt.Fprint(c.writer, status)
}
