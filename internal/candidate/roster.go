// Package candidate holds the roster of a counting run and resolves
// recognized name text to the closest roster entry.
package candidate

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/ballotcount/internal/ballot"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Candidate is one roster entry.
type Candidate struct {
	ID   int    `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Roster is an immutable ordered candidate list. It is safe to share
// between goroutines.
type Roster struct {
	entries    []Candidate
	normalized []string
}

// Normalize prepares text for comparison: NFC, whitespace runs collapsed to
// one space, trimmed, uppercased.
func Normalize(s string) string {
	s = strings.Join(strings.Fields(norm.NFC.String(s)), " ")
	// A Caser keeps state and must not be shared between goroutines.
	return cases.Upper(language.Vietnamese).String(s)
}

// NewRoster builds a roster. Duplicate ids are rejected; an empty list
// fails with ballot.ErrEmptyRoster.
func NewRoster(entries []Candidate) (*Roster, error) {
	if len(entries) == 0 {
		return nil, ballot.ErrEmptyRoster
	}
	r := &Roster{
		entries:    append([]Candidate(nil), entries...),
		normalized: make([]string, len(entries)),
	}
	seen := make(map[int]bool, len(entries))
	for i, c := range r.entries {
		if seen[c.ID] {
			return nil, fmt.Errorf("candidate: duplicate id %d", c.ID)
		}
		seen[c.ID] = true
		r.normalized[i] = Normalize(c.Name)
	}
	return r, nil
}

// FromNames builds a roster whose ids are the 1-based positions of names.
func FromNames(names ...string) (*Roster, error) {
	entries := make([]Candidate, 0, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		entries = append(entries, Candidate{ID: len(entries) + 1, Name: strings.TrimSpace(n)})
	}
	return NewRoster(entries)
}

type rosterFile struct {
	Candidates []Candidate `yaml:"candidates"`
}

// LoadRoster reads a roster from YAML (`candidates: [{id, name}]`) when the
// file ends in .yaml or .yml, otherwise from a text file with one name per
// line. Blank lines and lines starting with # are skipped.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied roster
	if err != nil {
		return nil, fmt.Errorf("candidate: read roster: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var f rosterFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("candidate: parse %s: %w", path, err)
		}
		return NewRoster(f.Candidates)
	default:
		var names []string
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			names = append(names, line)
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("candidate: scan %s: %w", path, err)
		}
		return FromNames(names...)
	}
}

// Len returns the number of candidates.
func (r *Roster) Len() int { return len(r.entries) }

// Candidates returns a copy of the entries in roster order.
func (r *Roster) Candidates() []Candidate { return append([]Candidate(nil), r.entries...) }

// Match is the outcome of resolving one name.
type Match struct {
	Index      int
	Candidate  Candidate
	Similarity float64
}

// Resolve returns the roster entry most similar to text. Ties go to the
// earlier entry. There is no minimum similarity: some candidate is always
// chosen.
func (r *Roster) Resolve(text string) Match {
	q := Normalize(text)
	best := Match{Index: -1, Similarity: -1}
	for i, n := range r.normalized {
		if s := Ratio(q, n); s > best.Similarity {
			best = Match{Index: i, Candidate: r.entries[i], Similarity: s}
		}
	}
	return best
}
