// Package progress reports the advance of a counting run as a stream of
// {message, percent} events. Percent starts at 5, moves with completed
// ballots, parks at 99 while results are saved and ends at 100, or at -1
// when the run fails or is cancelled.
package progress

import (
	"fmt"
	"sync"
)

const (
	PercentStart  = 5
	PercentSaving = 99
	PercentDone   = 100
	PercentFailed = -1
)

// Event is one progress update.
type Event struct {
	Message   string `json:"message"`
	Percent   int    `json:"percent"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// Terminal reports whether e ends the stream.
func (e Event) Terminal() bool { return e.Percent == PercentDone || e.Percent == PercentFailed }

// Sink receives events. Emit is called from one goroutine at a time.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Percent maps c of t completed ballots onto [5,99]. An empty batch
// reports 99.
func Percent(c, t int) int {
	if t <= 0 {
		return PercentSaving
	}
	return max(PercentStart, min(PercentSaving, 100*c/t))
}

// Reporter turns run milestones into events. It never lowers the percent
// and emits exactly one terminal event; calls after it are ignored.
// A Reporter is safe for concurrent use.
type Reporter struct {
	mu        sync.Mutex
	sink      Sink
	last      int
	total     int
	completed int
	started   bool
	done      bool
}

// NewReporter returns a reporter writing to sink. A nil sink discards events.
func NewReporter(sink Sink) *Reporter {
	if sink == nil {
		sink = SinkFunc(func(Event) {})
	}
	return &Reporter{sink: sink}
}

func (r *Reporter) emit(msg string, percent int) {
	if percent != PercentFailed {
		percent = max(percent, r.last)
		r.last = percent
	}
	e := Event{Message: msg, Percent: percent, Completed: r.completed, Total: r.total}
	if e.Terminal() {
		r.done = true
	}
	r.sink.Emit(e)
}

// Start announces a batch of total ballots.
func (r *Reporter) Start(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done || r.started {
		return
	}
	r.started = true
	r.total = total
	r.emit(fmt.Sprintf("counting %d ballots", total), PercentStart)
}

// Completed records one finished ballot, valid or not.
func (r *Reporter) Completed(ballotID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.completed++
	r.emit(fmt.Sprintf("ballot %s done (%d/%d)", ballotID, r.completed, r.total), Percent(r.completed, r.total))
}

// Saving announces that results are being written.
func (r *Reporter) Saving() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.emit("saving results", PercentSaving)
}

// Finish emits the successful terminal event.
func (r *Reporter) Finish(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	if msg == "" {
		msg = "counting complete"
	}
	r.emit(msg, PercentDone)
}

// Fail emits the failing terminal event carrying err.
func (r *Reporter) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	msg := "counting failed"
	if err != nil {
		msg = err.Error()
	}
	r.emit(msg, PercentFailed)
}

// Done reports whether the terminal event was emitted.
func (r *Reporter) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}
