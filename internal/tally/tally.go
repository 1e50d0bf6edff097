// Package tally validates aggregated ballots and applies their selections
// to the per-candidate counts of one counting run.
package tally

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
	"github.com/MeKo-Tech/ballotcount/internal/candidate"
)

// Entry is one line of a tally snapshot.
type Entry struct {
	CandidateID int    `json:"candidate_id"`
	Name        string `json:"candidate_name"`
	Count       int    `json:"selection_count"`
}

// Summary describes a finished batch.
type Summary struct {
	TotalBallots   int      `json:"total_ballots" yaml:"total_ballots"`
	ValidBallots   int      `json:"valid_ballots" yaml:"valid_ballots"`
	InvalidBallots int      `json:"invalid_ballots" yaml:"invalid_ballots"`
	InvalidIDs     []string `json:"invalid_ballot_ids" yaml:"invalid_ballot_ids"`
}

// Tally is the per-run count state. Counts change only inside Settle's
// critical section; a fresh Tally is created for every run.
type Tally struct {
	roster *candidate.Roster

	mu      sync.Mutex
	counts  map[int]int
	valid   int
	invalid []string
}

// New returns an empty tally over roster.
func New(roster *candidate.Roster) (*Tally, error) {
	if roster == nil || roster.Len() == 0 {
		return nil, ballot.ErrEmptyRoster
	}
	return &Tally{roster: roster, counts: make(map[int]int, roster.Len())}, nil
}

// CheckRows enforces that every row marks exactly one of agree/disagree.
// The first offending row is named in the error.
func CheckRows(rows []ballot.RowResult) error {
	for _, r := range rows {
		if !r.Exclusive() {
			return fmt.Errorf("row %d (agree=%t disagree=%t): %w",
				r.Row, r.Agree, r.Disagree, ballot.ErrRowExclusivityViolation)
		}
	}
	return nil
}

// Selections resolves the candidate of every agree row.
func Selections(roster *candidate.Roster, rows []ballot.RowResult) []ballot.Selection {
	var out []ballot.Selection
	for _, r := range rows {
		if !r.Agree {
			continue
		}
		m := roster.Resolve(r.NameText)
		out = append(out, ballot.Selection{
			Row:         r.Row,
			CandidateID: m.Candidate.ID,
			Name:        m.Candidate.Name,
			Similarity:  m.Similarity,
		})
	}
	return out
}

// Settle finishes an AGGREGATED ballot. An invalid ballot is rejected with
// none of its selections applied. A valid one has all of its selections
// applied at once, unless ctx was cancelled first.
func (t *Tally) Settle(ctx context.Context, rec *ballot.Record) error {
	if err := CheckRows(rec.Rows); err != nil {
		t.Reject(rec, err)
		return err
	}
	sel := Selections(t.roster, rec.Rows)
	if err := ctx.Err(); err != nil {
		t.Reject(rec, err)
		return err
	}

	t.mu.Lock()
	for _, s := range sel {
		t.counts[s.CandidateID]++
	}
	t.valid++
	t.mu.Unlock()

	rec.Selections = sel
	rec.Valid = true
	rec.Reason = ballot.KindNone
	rec.Advance(ballot.StageValidTallied)
	return nil
}

// Reject marks rec INVALID with err and counts it as invalid.
func (t *Tally) Reject(rec *ballot.Record, err error) {
	rec.Fail(err)
	t.mu.Lock()
	t.invalid = append(t.invalid, rec.ID)
	t.mu.Unlock()
}

// Count returns the current count of one candidate.
func (t *Tally) Count(candidateID int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[candidateID]
}

// Snapshot lists every roster candidate, most selected first, names
// ascending on ties.
func (t *Tally) Snapshot() []Entry {
	t.mu.Lock()
	out := make([]Entry, 0, t.roster.Len())
	for _, c := range t.roster.Candidates() {
		out = append(out, Entry{CandidateID: c.ID, Name: c.Name, Count: t.counts[c.ID]})
	}
	t.mu.Unlock()

	slices.SortStableFunc(out, func(a, b Entry) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Summary reports ballot totals. Invalid ids are sorted.
func (t *Tally) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := slices.Clone(t.invalid)
	slices.Sort(ids)
	if ids == nil {
		ids = []string{}
	}
	return Summary{
		TotalBallots:   t.valid + len(ids),
		ValidBallots:   t.valid,
		InvalidBallots: len(ids),
		InvalidIDs:     ids,
	}
}
